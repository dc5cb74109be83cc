package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/eksforge/internal/config"
	"github.com/imamik/eksforge/internal/provisioning"
	"github.com/imamik/eksforge/internal/provisioning/identity"
	testutil "github.com/imamik/eksforge/internal/testing"
)

func TestFederation_PollsUntilIssuerPublished(t *testing.T) {
	t.Parallel()
	fx := testutil.NewFixture(t)
	fx.Cloud.IssuerPolls = 2
	ctx := fx.Context(testutil.MinimalDescriptor())
	cluster := fx.ReadyCluster(ctx, "demo")

	_, err := identity.DeclareBinding(ctx.State, "demo", config.WorkloadIdentitySpec{
		Namespace: "kube-system", Name: "aws-node", Audience: "sts.amazonaws.com",
	})
	require.NoError(t, err)

	f := NewFederation("demo")
	assert.Equal(t, "federation", f.Name())
	require.NoError(t, f.Provision(ctx))

	fed, err := cluster.Federation.Get()
	require.NoError(t, err)
	assert.Contains(t, fed.Issuer, "https://oidc.eks.eu-west-1.amazonaws.com/id/")
	assert.Contains(t, fed.ProviderARN, ":oidc-provider/oidc.eks.eu-west-1.amazonaws.com/id/")
	assert.Equal(t, 3, fx.Cloud.CallCount("DescribeCluster", "demo"))
	assert.Equal(t, []string{"sts.amazonaws.com"}, fx.Cloud.OIDCAudiences(fed.Issuer))
	assert.Equal(t, fed.Issuer, ctx.State.Outputs()[provisioning.OutputOIDCIssuer])
}

func TestFederation_IssuerNeverPublished(t *testing.T) {
	t.Parallel()
	fx := testutil.NewFixture(t)
	fx.Cloud.IssuerPolls = 100
	ctx := fx.Context(testutil.MinimalDescriptor())
	cluster := fx.ReadyCluster(ctx, "demo")

	err := NewFederation("demo").Provision(ctx)
	var notReady *provisioning.PrerequisiteNotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, "federation/demo", notReady.Resource)
	assert.Equal(t, ctx.Timeouts.RetryMaxAttempts+1, fx.Cloud.CallCount("DescribeCluster", "demo"))

	_, ferr := cluster.Federation.Get()
	assert.Error(t, ferr)
	assert.Equal(t, -1, fx.Cloud.CallIndex("EnsureOIDCProvider", cluster.Name))
}

func TestAudiences(t *testing.T) {
	t.Parallel()
	state := provisioning.NewState()
	assert.Equal(t, []string{"sts.amazonaws.com"}, audiences(state))

	for _, spec := range []config.WorkloadIdentitySpec{
		{Namespace: "a", Name: "x", Audience: "sts.amazonaws.com"},
		{Namespace: "b", Name: "y", Audience: "custom"},
		{Namespace: "c", Name: "z", Audience: "custom"},
	} {
		_, err := identity.DeclareBinding(state, "demo", spec)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"custom", "sts.amazonaws.com"}, audiences(state))
}
