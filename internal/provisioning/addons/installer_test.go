package addons

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/eksforge/internal/config"
	awsplatform "github.com/imamik/eksforge/internal/platform/aws"
	"github.com/imamik/eksforge/internal/provisioning"
	"github.com/imamik/eksforge/internal/provisioning/identity"
	testutil "github.com/imamik/eksforge/internal/testing"
)

func TestConflictMode(t *testing.T) {
	t.Parallel()
	mode, err := ConflictMode(config.ConflictOverwrite)
	require.NoError(t, err)
	assert.Equal(t, awsplatform.ResolveConflictsOverwrite, mode)

	mode, err = ConflictMode(config.ConflictFail)
	require.NoError(t, err)
	assert.Equal(t, awsplatform.ResolveConflictsNone, mode)

	_, err = ConflictMode("preserve")
	assert.Error(t, err)
}

func TestInstall_WithoutIdentity(t *testing.T) {
	t.Parallel()
	fx := testutil.NewFixture(t)
	ctx := fx.Context(testutil.MinimalDescriptor())
	fx.ReadyCluster(ctx, "demo")

	inst := NewInstaller(config.AddonSpec{Name: "coredns", ResolveConflicts: config.ConflictFail})
	assert.Equal(t, "addon", inst.Name())
	require.NoError(t, inst.Provision(ctx))

	addon, ok := fx.Cloud.Addon("demo", "coredns")
	require.True(t, ok)
	assert.Equal(t, awsplatform.ResolveConflictsNone, addon.ResolveConflicts)
	assert.Empty(t, addon.ServiceAccountRoleARN)
	assert.Equal(t, 1, fx.Cloud.CallCount("WaitAddonActive", "coredns"))
}

func TestInstall_UsesBindingRole(t *testing.T) {
	t.Parallel()
	fx := testutil.NewFixture(t)
	ctx := fx.Context(testutil.MinimalDescriptor())
	fx.ReadyCluster(ctx, "demo")

	b, err := identity.DeclareBinding(ctx.State, "demo", config.WorkloadIdentitySpec{
		Namespace: "kube-system", Name: "aws-node", Audience: config.DefaultAudience,
	})
	require.NoError(t, err)
	b.Role.Resolve("arn:aws:iam::123456789012:role/demo-kube-system-aws-node")

	err = NewInstaller(config.AddonSpec{
		Name:             "vpc-cni",
		ResolveConflicts: config.ConflictOverwrite,
		ServiceAccount:   "kube-system/aws-node",
	}).Install(ctx)
	require.NoError(t, err)

	addon, ok := fx.Cloud.Addon("demo", "vpc-cni")
	require.True(t, ok)
	assert.Equal(t, awsplatform.ResolveConflictsOverwrite, addon.ResolveConflicts)
	assert.Equal(t, "arn:aws:iam::123456789012:role/demo-kube-system-aws-node", addon.ServiceAccountRoleARN)
}

func TestInstall_Errors(t *testing.T) {
	t.Parallel()

	t.Run("undeclared identity", func(t *testing.T) {
		t.Parallel()
		fx := testutil.NewFixture(t)
		ctx := fx.Context(testutil.MinimalDescriptor())
		fx.ReadyCluster(ctx, "demo")

		err := NewInstaller(config.AddonSpec{Name: "vpc-cni", ServiceAccount: "kube-system/aws-node"}).Install(ctx)
		assert.True(t, provisioning.IsConfigurationError(err))
	})

	t.Run("failed binding blocks the add-on", func(t *testing.T) {
		t.Parallel()
		fx := testutil.NewFixture(t)
		ctx := fx.Context(testutil.MinimalDescriptor())
		fx.ReadyCluster(ctx, "demo")
		b, err := identity.DeclareBinding(ctx.State, "demo", config.WorkloadIdentitySpec{Namespace: "kube-system", Name: "aws-node"})
		require.NoError(t, err)
		b.Role.Fail(errors.New("role rejected"))

		err = NewInstaller(config.AddonSpec{Name: "vpc-cni", ServiceAccount: "kube-system/aws-node"}).Install(ctx)
		var notReady *provisioning.PrerequisiteNotReadyError
		require.ErrorAs(t, err, &notReady)
		assert.Equal(t, "identity/kube-system/aws-node", notReady.Prerequisite)
		assert.Equal(t, -1, fx.Cloud.CallIndex("EnsureAddon", "vpc-cni"))
	})

	t.Run("provider failure carries the resource", func(t *testing.T) {
		t.Parallel()
		fx := testutil.NewFixture(t)
		ctx := fx.Context(testutil.MinimalDescriptor())
		fx.ReadyCluster(ctx, "demo")
		fx.Cloud.Fail("EnsureAddon", "kube-proxy", errors.New("boom"))

		err := NewInstaller(config.AddonSpec{Name: "kube-proxy"}).Install(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "addon/kube-proxy")
	})
}
