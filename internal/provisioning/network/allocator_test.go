package network

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/eksforge/internal/config"
	"github.com/imamik/eksforge/internal/provisioning"
	testutil "github.com/imamik/eksforge/internal/testing"
)

func TestAllocator_Provision(t *testing.T) {
	t.Parallel()
	fx := testutil.NewFixture(t)
	desc := testutil.MinimalDescriptor()
	ctx := fx.Context(desc)

	alloc := NewAllocator("network/vpc", desc.Cluster.Name, desc.Network)
	assert.Equal(t, "network", alloc.Name())
	require.NoError(t, alloc.Provision(ctx))

	handle, err := ctx.State.Network.Get()
	require.NoError(t, err)
	assert.Equal(t, "vpc", handle.Name)
	assert.Equal(t, []string{"eu-west-1a", "eu-west-1b"}, handle.Zones)
	require.Len(t, handle.Subnets, 4)
	assert.Len(t, handle.SubnetsByClass(config.SubnetPublic), 2)
	assert.Len(t, handle.SubnetsByClass(config.SubnetPrivateNAT), 2)

	for _, s := range fx.Cloud.Subnets() {
		assert.Equal(t, SubnetName(s.LogicalID, s.Zone), s.Name)
	}

	egress, ok := fx.Cloud.Egress(handle.VPCID)
	require.True(t, ok)
	assert.Equal(t, 1, egress.NATGateways)
	assert.Len(t, egress.PublicSubnets, 2)
	assert.Len(t, egress.PrivateSubnets, 2)

	assert.Less(t, fx.Cloud.CallIndex("EnsureEgress", "vpc"), fx.Cloud.CallIndex("SetNameTag", handle.Subnets[0].ID),
		"subnets are named after egress is in place")
	assert.Equal(t, handle.VPCID, ctx.State.ProviderIDs()["network/vpc"])
}

func TestAllocator_Rerun(t *testing.T) {
	t.Parallel()
	fx := testutil.NewFixture(t)
	desc := testutil.MinimalDescriptor()

	first := fx.Context(desc)
	require.NoError(t, NewAllocator("network/vpc", "test", desc.Network).Provision(first))
	before := fx.Cloud.Subnets()

	second := fx.Context(desc)
	require.NoError(t, NewAllocator("network/vpc", "test", desc.Network).Provision(second))
	assert.Equal(t, before, fx.Cloud.Subnets())
}

func TestAllocator_ProviderFailureFailsPromise(t *testing.T) {
	t.Parallel()
	fx := testutil.NewFixture(t)
	desc := testutil.MinimalDescriptor()
	ctx := fx.Context(desc)
	fx.Cloud.Fail("EnsureVPC", "vpc", errors.New("VpcLimitExceeded"))

	err := NewAllocator("network/vpc", "test", desc.Network).Provision(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network/vpc")

	_, werr := ctx.State.Network.Wait(context.Background())
	assert.ErrorIs(t, werr, err)
}

func TestAllocator_InvalidSpec(t *testing.T) {
	t.Parallel()
	fx := testutil.NewFixture(t)
	desc := testutil.MinimalDescriptor()
	spec := desc.Network
	spec.MaxAZs = 0

	err := NewAllocator("network/vpc", "test", spec).Provision(fx.Context(desc))
	assert.True(t, provisioning.IsConfigurationError(err))
	assert.Empty(t, fx.Cloud.Calls(), "nothing is created for an invalid network")
}
