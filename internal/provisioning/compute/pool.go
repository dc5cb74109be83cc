package compute

import (
	"context"
	"fmt"

	"github.com/imamik/eksforge/internal/config"
	awsplatform "github.com/imamik/eksforge/internal/platform/aws"
	"github.com/imamik/eksforge/internal/provisioning"
	"github.com/imamik/eksforge/internal/provisioning/identity"
	"github.com/imamik/eksforge/internal/util/naming"
)

const phase = "compute"

// NodePolicies are the managed policies every node role carries.
var NodePolicies = []string{
	"AmazonEKSWorkerNodePolicy",
	"AmazonEC2ContainerRegistryReadOnly",
}

// ResourceID returns the graph identity of a node pool.
func ResourceID(pool string) string {
	return "nodepool/" + pool
}

// PoolHandle is an attached node pool.
type PoolHandle struct {
	Name      string
	ARN       string
	SubnetIDs []string
}

// Provisioner attaches one node pool.
type Provisioner struct {
	id   string
	spec config.NodePoolSpec
}

// NewProvisioner creates the provisioner of one node pool.
func NewProvisioner(spec config.NodePoolSpec) *Provisioner {
	return &Provisioner{id: ResourceID(spec.Name), spec: spec}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return phase
}

// Provision implements the provisioning.Phase interface.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	_, err := p.AttachPool(ctx)
	return err
}

// AttachPool creates or updates the node group and waits until it is
// active.
func (p *Provisioner) AttachPool(ctx *provisioning.Context) (*PoolHandle, error) {
	if p.spec.CapacityType != "" && p.spec.CapacityType != config.DefaultCapacityOnDemand {
		return nil, config.NewConfigurationError("nodePools."+p.spec.Name+".capacityType",
			"capacity type %s is not supported", p.spec.CapacityType)
	}

	cluster, err := ctx.State.Cluster.Wait(ctx)
	if err != nil {
		return nil, &provisioning.PrerequisiteNotReadyError{Resource: p.id, Prerequisite: "cluster", Err: err}
	}
	network, err := ctx.State.Network.Wait(ctx)
	if err != nil {
		return nil, &provisioning.PrerequisiteNotReadyError{Resource: p.id, Prerequisite: "network", Err: err}
	}

	subnetIDs := network.SubnetIDs(p.spec.SubnetClass)
	if len(subnetIDs) == 0 {
		return nil, config.NewConfigurationError("nodePools."+p.spec.Name+".subnetClass",
			"network %s has no %s subnets", network.Name, p.spec.SubnetClass)
	}

	tags := awsplatform.ManagedTags(cluster.Name, nil)
	role, err := ensureNodeRole(ctx, cluster.Name, tags)
	if err != nil {
		return nil, provisioning.ProviderError(p.id, "ensure node role", err)
	}

	name := p.spec.NodegroupName
	if name == "" {
		name = p.spec.Name
	}
	provisioning.LogResourceCreating(ctx.Observer, phase, "node group", name)
	ng, err := ctx.Cloud.EnsureNodegroup(ctx, awsplatform.NodegroupSpec{
		Cluster:       cluster.Name,
		Name:          name,
		NodeRoleARN:   role.ARN,
		SubnetIDs:     subnetIDs,
		InstanceTypes: p.spec.InstanceTypes,
		MinSize:       int32(p.spec.MinSize),     // #nosec G115
		MaxSize:       int32(p.spec.MaxSize),     // #nosec G115
		DesiredSize:   int32(p.spec.DesiredSize), // #nosec G115
		CapacityType:  p.spec.CapacityType,
		Labels:        p.spec.Labels,
		Tags:          tags,
	})
	if err != nil {
		return nil, provisioning.ProviderError(p.id, "create node group", err)
	}

	timeout := ctx.Timeouts.Nodegroup
	provisioning.LogResourceWaiting(ctx.Observer, phase, name, timeout)
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ctx.Cloud.WaitNodegroupActive(waitCtx, cluster.Name, name, timeout); err != nil {
		if waitCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, &provisioning.TimeoutError{Resource: p.id, Timeout: timeout, Err: err}
		}
		return nil, provisioning.ProviderError(p.id, "wait for node group", err)
	}
	provisioning.LogResourceCreated(ctx.Observer, phase, "node group", name, ng.ARN)

	ctx.State.SetProviderID(p.id, ng.ARN)
	return &PoolHandle{Name: name, ARN: ng.ARN, SubnetIDs: subnetIDs}, nil
}

// ensureNodeRole creates the role shared by all node pools of a cluster.
// Concurrent pools converge on the same role.
func ensureNodeRole(ctx *provisioning.Context, cluster string, tags map[string]string) (*awsplatform.Role, error) {
	trust, err := identity.ServiceTrust("ec2.amazonaws.com")
	if err != nil {
		return nil, err
	}
	role, err := ctx.Cloud.EnsureRole(ctx, awsplatform.RoleSpec{
		Name:        naming.NodeRole(cluster),
		Description: fmt.Sprintf("Node role of cluster %s", cluster),
		TrustPolicy: trust,
		Tags:        tags,
	})
	if err != nil {
		return nil, err
	}
	for _, policy := range NodePolicies {
		if err := ctx.Cloud.AttachManagedPolicy(ctx, role.Name, ctx.Env.ManagedPolicyARN(policy)); err != nil {
			return nil, err
		}
	}
	return role, nil
}
