package network

import (
	"context"
	"fmt"
	"sync"

	"github.com/imamik/eksforge/internal/config"
	awsplatform "github.com/imamik/eksforge/internal/platform/aws"
	"github.com/imamik/eksforge/internal/provisioning"
	"github.com/imamik/eksforge/internal/util/async"
)

const phase = "network"

// Allocator provisions the VPC, its subnets and NAT egress.
type Allocator struct {
	id      string
	cluster string
	spec    config.NetworkSpec
}

// NewAllocator creates the allocator for one network. id is the resource
// identity used in state and events.
func NewAllocator(id, cluster string, spec config.NetworkSpec) *Allocator {
	return &Allocator{id: id, cluster: cluster, spec: spec}
}

// Name implements the provisioning.Phase interface.
func (a *Allocator) Name() string {
	return phase
}

// Provision implements the provisioning.Phase interface. On success the
// network handle is published through ctx.State.Network.
func (a *Allocator) Provision(ctx *provisioning.Context) error {
	handle, err := a.Allocate(ctx)
	if err != nil {
		ctx.State.Network.Fail(err)
		return err
	}
	ctx.State.Network.Resolve(handle)
	return nil
}

// Allocate creates or finds every network resource and returns the handle.
func (a *Allocator) Allocate(ctx *provisioning.Context) (*provisioning.NetworkHandle, error) {
	if a.spec.MaxAZs <= 0 {
		return nil, config.NewConfigurationError("network.maxAzs", "at least one availability zone is required")
	}
	if _, err := config.NewSubnetAllocator(a.spec.CIDR); err != nil {
		return nil, config.NewConfigurationError("network.cidr", "%v", err)
	}

	timeout := ctx.Timeouts.Network
	c, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	zones, err := ctx.Cloud.AvailabilityZones(c, a.spec.MaxAZs)
	if err != nil {
		return nil, provisioning.ProviderError(a.id, "list availability zones", err)
	}
	plans, err := Plan(a.spec, zones)
	if err != nil {
		return nil, err
	}
	if err := checkDisjoint(plans); err != nil {
		return nil, err
	}

	tags := awsplatform.ManagedTags(a.cluster, a.spec.Tags)

	provisioning.LogResourceCreating(ctx.Observer, phase, "vpc", a.spec.Name)
	vpc, err := ctx.Cloud.EnsureVPC(c, a.spec.Name, a.spec.CIDR, tags)
	if err != nil {
		return nil, provisioning.ProviderError(a.id, "ensure vpc", err)
	}
	provisioning.LogResourceCreated(ctx.Observer, phase, "vpc", a.spec.Name, vpc.ID)

	subnets, err := a.ensureSubnets(c, ctx, vpc.ID, plans, tags)
	if err != nil {
		return nil, err
	}

	var public, private []awsplatform.Subnet
	for _, s := range subnets {
		if s.Public {
			public = append(public, s)
		} else {
			private = append(private, s)
		}
	}

	ctx.Observer.Printf("[%s] Configuring egress with %d NAT gateway(s)...", phase, a.spec.NATGatewayCount())
	err = ctx.Cloud.EnsureEgress(c, awsplatform.EgressSpec{
		VPCID:          vpc.ID,
		NetworkName:    a.spec.Name,
		PublicSubnets:  public,
		PrivateSubnets: private,
		NATGateways:    a.spec.NATGatewayCount(),
		Tags:           tags,
	})
	if err != nil {
		return nil, provisioning.ProviderError(a.id, "ensure egress", err)
	}

	changed, err := NamePass(c, ctx.Cloud, subnets, ctx.Timeouts.MaxConcurrency)
	if err != nil {
		return nil, provisioning.ProviderError(a.id, "name subnets", err)
	}
	ctx.Observer.Printf("[%s] Named %d subnet(s), %d already up to date", phase, changed, len(subnets)-changed)

	named := make([]awsplatform.Subnet, len(subnets))
	for i, s := range subnets {
		s.Name = SubnetName(s.LogicalID, s.Zone)
		named[i] = s
	}

	ctx.State.SetProviderID(a.id, vpc.ID)
	return &provisioning.NetworkHandle{
		Name:    a.spec.Name,
		VPCID:   vpc.ID,
		CIDR:    a.spec.CIDR,
		Zones:   zones,
		Subnets: named,
	}, nil
}

func (a *Allocator) ensureSubnets(c context.Context, ctx *provisioning.Context, vpcID string, plans []SubnetPlan, tags map[string]string) ([]awsplatform.Subnet, error) {
	subnets := make([]awsplatform.Subnet, len(plans))
	var mu sync.Mutex
	tasks := make([]async.Task, 0, len(plans))
	for i, p := range plans {
		tasks = append(tasks, async.Task{
			Name: "subnet " + p.LogicalID,
			Func: func(c context.Context) error {
				s, err := ctx.Cloud.EnsureSubnet(c, vpcID, awsplatform.SubnetSpec{
					LogicalID: p.LogicalID,
					Partition: p.Partition,
					CIDR:      p.CIDR,
					Zone:      p.Zone,
					Public:    p.Public(),
					Tags:      withClusterTag(tags, a.cluster),
				})
				if err != nil {
					return err
				}
				mu.Lock()
				subnets[i] = *s
				mu.Unlock()
				return nil
			},
		})
	}

	ctx.Observer.Printf("[%s] Ensuring %d subnet(s) across %d zone(s)...", phase, len(plans), a.spec.MaxAZs)
	if err := async.RunParallel(c, tasks, ctx.Timeouts.MaxConcurrency); err != nil {
		return nil, provisioning.ProviderError(a.id, "ensure subnets", err)
	}
	return subnets, nil
}

// withClusterTag adds the shared-ownership tag the load balancer controller
// uses to discover cluster subnets.
func withClusterTag(tags map[string]string, cluster string) map[string]string {
	out := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		out[k] = v
	}
	if cluster != "" {
		out[fmt.Sprintf("kubernetes.io/cluster/%s", cluster)] = "shared"
	}
	return out
}
