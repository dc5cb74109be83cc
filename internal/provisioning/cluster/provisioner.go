package cluster

import (
	"context"
	"fmt"

	"github.com/imamik/eksforge/internal/config"
	awsplatform "github.com/imamik/eksforge/internal/platform/aws"
	"github.com/imamik/eksforge/internal/provisioning"
	"github.com/imamik/eksforge/internal/provisioning/graph"
	"github.com/imamik/eksforge/internal/provisioning/identity"
	"github.com/imamik/eksforge/internal/util/naming"
)

const phase = "cluster"

// ClusterPolicy is the managed policy attached to the control plane role.
const ClusterPolicy = "AmazonEKSClusterPolicy"

// Provisioner handles control plane creation.
type Provisioner struct {
	id   string
	spec config.ClusterSpec
}

// NewProvisioner creates a new cluster provisioner.
func NewProvisioner(id string, spec config.ClusterSpec) *Provisioner {
	return &Provisioner{id: id, spec: spec}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return phase
}

// Provision implements the provisioning.Phase interface. The cluster
// handle is published through ctx.State.Cluster; on failure the promise is
// failed so no dependent attaches to a partial cluster.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	handle, err := p.provision(ctx)
	if err != nil {
		ctx.State.Cluster.Fail(err)
		return err
	}
	ctx.State.Cluster.Resolve(handle)
	return nil
}

func (p *Provisioner) provision(ctx *provisioning.Context) (*provisioning.ClusterHandle, error) {
	if p.spec.DefaultCapacity != 0 {
		return nil, config.NewConfigurationError("cluster.defaultCapacity",
			"must be 0, capacity is added through node pools (got %d)", p.spec.DefaultCapacity)
	}

	network, err := ctx.State.Network.Wait(ctx)
	if err != nil {
		return nil, &provisioning.PrerequisiteNotReadyError{Resource: p.id, Prerequisite: "network", Err: err}
	}
	subnetIDs := network.SubnetIDs(p.spec.Placement...)
	if len(subnetIDs) == 0 {
		return nil, config.NewConfigurationError("cluster.placement",
			"network %s has no subnets of class %v", network.Name, p.spec.Placement)
	}

	tags := awsplatform.ManagedTags(p.spec.Name, p.spec.Tags)

	clusterRole, err := p.ensureClusterRole(ctx, tags)
	if err != nil {
		return nil, err
	}
	adminRole, err := p.ensureAdminRole(ctx, tags)
	if err != nil {
		return nil, err
	}

	public, private := endpointFlags(p.spec.EndpointAccess)
	provisioning.LogResourceCreating(ctx.Observer, phase, "control plane", p.spec.Name)
	created, err := ctx.Cloud.EnsureCluster(ctx, awsplatform.ClusterSpec{
		Name:            p.spec.Name,
		Version:         p.spec.Version,
		RoleARN:         clusterRole.ARN,
		SubnetIDs:       subnetIDs,
		EndpointPublic:  public,
		EndpointPrivate: private,
		Tags:            tags,
	})
	if err != nil {
		return nil, provisioning.ProviderError(p.id, "create control plane", err)
	}
	if created.Status == awsplatform.ClusterStatusFailed {
		return nil, &provisioning.ProviderRejectionError{
			Resource:  p.id,
			Operation: "create control plane",
			Err:       fmt.Errorf("control plane %s is in state %s", p.spec.Name, created.Status),
		}
	}

	provisioning.LogResourceWaiting(ctx.Observer, phase, p.spec.Name, ctx.Timeouts.Cluster)
	waitCtx, cancel := context.WithTimeout(ctx, ctx.Timeouts.Cluster)
	defer cancel()
	active, err := ctx.Cloud.WaitClusterActive(waitCtx, p.spec.Name, ctx.Timeouts.Cluster)
	if err != nil {
		if waitCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, &provisioning.TimeoutError{Resource: p.id, Timeout: ctx.Timeouts.Cluster, Err: err}
		}
		return nil, provisioning.ProviderError(p.id, "wait for control plane", err)
	}
	provisioning.LogResourceCreated(ctx.Observer, phase, "control plane", p.spec.Name, active.ARN)

	handle := &provisioning.ClusterHandle{
		Name:                 active.Name,
		ARN:                  active.ARN,
		Version:              active.Version,
		Endpoint:             active.Endpoint,
		CertificateAuthority: active.CertificateAuthority,
		RoleARN:              clusterRole.ARN,
		AdminRoleARN:         adminRole.ARN,
		Federation:           graph.NewPromise[provisioning.Federation](FederationID(p.spec.Name)),
	}

	access, err := ctx.Kube.Access(ctx, handle)
	if err != nil {
		return nil, provisioning.ProviderError(p.id, "connect to cluster", err)
	}
	handle.Access = access

	err = handle.AddRoleMapping(ctx, provisioning.RoleMapping{
		RoleARN:  adminRole.ARN,
		Username: p.spec.AdminRole.Username,
		Groups:   p.spec.AdminRole.Groups,
	})
	if err != nil {
		return nil, provisioning.ProviderError(p.id, "map administrative role", err)
	}
	ctx.Observer.Printf("[%s] Mapped %s to %s %v", phase, adminRole.Name, p.spec.AdminRole.Username, p.spec.AdminRole.Groups)

	ctx.State.SetProviderID(p.id, active.ARN)
	ctx.State.SetOutput(provisioning.OutputMastersRoleARN, adminRole.ARN)
	ctx.State.SetOutput(provisioning.OutputClusterName, active.Name)
	ctx.State.SetOutput(provisioning.OutputClusterEndpoint, active.Endpoint)
	return handle, nil
}

func (p *Provisioner) ensureClusterRole(ctx *provisioning.Context, tags map[string]string) (*awsplatform.Role, error) {
	trust, err := identity.ServiceTrust("eks.amazonaws.com")
	if err != nil {
		return nil, err
	}
	role, err := ctx.Cloud.EnsureRole(ctx, awsplatform.RoleSpec{
		Name:        naming.ClusterRole(p.spec.Name),
		Description: fmt.Sprintf("Control plane role of cluster %s", p.spec.Name),
		TrustPolicy: trust,
		Tags:        tags,
	})
	if err != nil {
		return nil, provisioning.ProviderError(p.id, "ensure control plane role", err)
	}
	if err := ctx.Cloud.AttachManagedPolicy(ctx, role.Name, ctx.Env.ManagedPolicyARN(ClusterPolicy)); err != nil {
		return nil, provisioning.ProviderError(p.id, "attach control plane policy", err)
	}
	return role, nil
}

// ensureAdminRole creates the administrative role any principal of the
// account may assume.
func (p *Provisioner) ensureAdminRole(ctx *provisioning.Context, tags map[string]string) (*awsplatform.Role, error) {
	if ctx.Env.AccountID == "" {
		return nil, config.NewConfigurationError("environment.accountId", "account id is required to trust the administrative role")
	}
	trust, err := identity.AccountTrust(ctx.Env.RootPrincipalARN())
	if err != nil {
		return nil, err
	}
	name := p.spec.AdminRole.Name
	if name == "" {
		name = naming.AdminRole(p.spec.Name)
	}
	role, err := ctx.Cloud.EnsureRole(ctx, awsplatform.RoleSpec{
		Name:        name,
		Description: fmt.Sprintf("Administrative role of cluster %s", p.spec.Name),
		TrustPolicy: trust,
		Tags:        tags,
	})
	if err != nil {
		return nil, provisioning.ProviderError(p.id, "ensure administrative role", err)
	}
	return role, nil
}

func endpointFlags(access config.EndpointAccess) (public, private bool) {
	switch access {
	case config.EndpointPublic:
		return true, false
	case config.EndpointPrivate:
		return false, true
	default:
		return true, true
	}
}
