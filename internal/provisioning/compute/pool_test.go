package compute

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/eksforge/internal/config"
	"github.com/imamik/eksforge/internal/provisioning"
	testutil "github.com/imamik/eksforge/internal/testing"
	"github.com/imamik/eksforge/internal/util/async"
)

func pool(name string, class config.SubnetClass, instance string, size int) config.NodePoolSpec {
	return config.NodePoolSpec{
		Name:          name,
		NodegroupName: name,
		SubnetClass:   class,
		InstanceTypes: []string{instance},
		MinSize:       size,
		MaxSize:       size,
		DesiredSize:   size,
		CapacityType:  config.DefaultCapacityOnDemand,
	}
}

func TestAttachPool(t *testing.T) {
	t.Parallel()
	fx := testutil.NewFixture(t)
	ctx := fx.Context(testutil.MinimalDescriptor())
	network := fx.ReadyNetwork(ctx)
	fx.ReadyCluster(ctx, "demo")

	p := NewProvisioner(pool("private", config.SubnetPrivateNAT, "t3.medium", 1))
	assert.Equal(t, "compute", p.Name())
	handle, err := p.AttachPool(ctx)
	require.NoError(t, err)
	assert.Equal(t, network.SubnetIDs(config.SubnetPrivateNAT), handle.SubnetIDs)

	ng, ok := fx.Cloud.Nodegroup("demo", "private")
	require.True(t, ok)
	assert.Equal(t, []string{"t3.medium"}, ng.InstanceTypes)
	assert.Equal(t, int32(1), ng.MinSize)
	assert.Equal(t, "arn:aws:iam::123456789012:role/demo-node-role", ng.NodeRoleARN)

	role, ok := fx.Cloud.Role("demo-node-role")
	require.True(t, ok)
	assert.Contains(t, role.TrustPolicy, "ec2.amazonaws.com")
	assert.Len(t, role.ManagedPolicies, len(NodePolicies))
	assert.Equal(t, handle.ARN, ctx.State.ProviderIDs()["nodepool/private"])
}

func TestAttachPool_IndependentPools(t *testing.T) {
	t.Parallel()
	fx := testutil.NewFixture(t)
	ctx := fx.Context(testutil.MinimalDescriptor())
	fx.ReadyCluster(ctx, "demo")
	fx.Cloud.Fail("EnsureNodegroup", "gpu", errors.New("InsufficientInstanceCapacity"))

	specs := []config.NodePoolSpec{
		pool("public", config.SubnetPublic, "t3.small", 1),
		pool("gpu", config.SubnetPrivateNAT, "g5.xlarge", 1),
		pool("private", config.SubnetPrivateNAT, "t3.medium", 1),
	}
	tasks := make([]async.Task, 0, len(specs))
	errs := make([]error, len(specs))
	for i, spec := range specs {
		tasks = append(tasks, async.Task{Name: spec.Name, Func: func(c context.Context) error {
			_, errs[i] = NewProvisioner(spec).AttachPool(ctx.WithContext(c))
			return nil
		}})
	}
	require.NoError(t, async.RunParallel(ctx, tasks, 0))
	results := make(map[string]error)
	for i, spec := range specs {
		results[spec.Name] = errs[i]
	}

	assert.NoError(t, results["public"])
	assert.NoError(t, results["private"])
	require.Error(t, results["gpu"])
	assert.Contains(t, results["gpu"].Error(), "nodepool/gpu")

	_, ok := fx.Cloud.Nodegroup("demo", "public")
	assert.True(t, ok)
	_, ok = fx.Cloud.Nodegroup("demo", "private")
	assert.True(t, ok)
}

func TestAttachPool_Errors(t *testing.T) {
	t.Parallel()

	t.Run("spot capacity is unsupported", func(t *testing.T) {
		t.Parallel()
		fx := testutil.NewFixture(t)
		ctx := fx.Context(testutil.MinimalDescriptor())
		spec := pool("spot", config.SubnetPrivateNAT, "t3.small", 1)
		spec.CapacityType = "SPOT"

		_, err := NewProvisioner(spec).AttachPool(ctx)
		assert.True(t, provisioning.IsConfigurationError(err))
		assert.Empty(t, fx.Cloud.Calls())
	})

	t.Run("cluster failed", func(t *testing.T) {
		t.Parallel()
		fx := testutil.NewFixture(t)
		ctx := fx.Context(testutil.MinimalDescriptor())
		ctx.State.Cluster.Fail(errors.New("control plane failed"))

		_, err := NewProvisioner(pool("p", config.SubnetPublic, "t3.small", 1)).AttachPool(ctx)
		var notReady *provisioning.PrerequisiteNotReadyError
		require.ErrorAs(t, err, &notReady)
		assert.Equal(t, "nodepool/p", notReady.Resource)
	})
}
