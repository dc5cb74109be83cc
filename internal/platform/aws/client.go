package aws

import (
	"context"
	"time"
)

// Tag keys written on every managed resource.
const (
	TagName      = "Name"
	TagManagedBy = "eksforge.io/managed-by"
	TagCluster   = "eksforge.io/cluster"
	ManagedBy    = "eksforge"
)

// VPC is an allocated virtual network.
type VPC struct {
	ID   string
	Name string
	CIDR string
}

// SubnetSpec describes one subnet to allocate.
type SubnetSpec struct {
	// LogicalID is the generated identifier used to find the subnet again,
	// e.g. "vpc-PublicSubnet-1Subnet1".
	LogicalID string
	Partition string
	CIDR      string
	Zone      string
	Public    bool
	Tags      map[string]string
}

// Subnet is an allocated subnet.
type Subnet struct {
	ID        string
	LogicalID string
	Partition string
	CIDR      string
	Zone      string
	Public    bool
	Name      string
}

// EgressSpec describes internet and NAT egress for a network.
type EgressSpec struct {
	VPCID          string
	NetworkName    string
	PublicSubnets  []Subnet
	PrivateSubnets []Subnet
	// NATGateways is the number of NAT gateways, placed in the first
	// public subnets. Private subnets route through them round-robin.
	NATGateways int
	Tags        map[string]string
}

// NetworkManager allocates VPC resources.
type NetworkManager interface {
	// AvailabilityZones returns up to max available zones of the region in
	// lexical order.
	AvailabilityZones(ctx context.Context, max int) ([]string, error)
	EnsureVPC(ctx context.Context, name, cidr string, tags map[string]string) (*VPC, error)
	EnsureSubnet(ctx context.Context, vpcID string, spec SubnetSpec) (*Subnet, error)
	EnsureEgress(ctx context.Context, spec EgressSpec) error
	// SetNameTag sets the Name tag of a resource. It reports whether the
	// tag changed; re-applying the current name is a no-op.
	SetNameTag(ctx context.Context, resourceID, name string) (bool, error)
}

// ClusterSpec describes a managed control plane.
type ClusterSpec struct {
	Name            string
	Version         string
	RoleARN         string
	SubnetIDs       []string
	EndpointPublic  bool
	EndpointPrivate bool
	Tags            map[string]string
}

// Cluster is the provider view of a control plane.
type Cluster struct {
	Name                 string
	ARN                  string
	Version              string
	Status               string
	Endpoint             string
	CertificateAuthority string
	// Issuer is the federation endpoint. It stays empty until the
	// provider publishes it, which may be after the cluster is active.
	Issuer string
}

// Cluster status values reported by the provider.
const (
	ClusterStatusCreating = "CREATING"
	ClusterStatusActive   = "ACTIVE"
	ClusterStatusFailed   = "FAILED"
)

// NodegroupSpec describes a managed node group.
type NodegroupSpec struct {
	Cluster       string
	Name          string
	NodeRoleARN   string
	SubnetIDs     []string
	InstanceTypes []string
	MinSize       int32
	MaxSize       int32
	DesiredSize   int32
	CapacityType  string
	Labels        map[string]string
	Tags          map[string]string
}

// Nodegroup is the provider view of a node group.
type Nodegroup struct {
	Cluster string
	Name    string
	ARN     string
	Status  string
}

// AddonSpec describes a managed add-on.
type AddonSpec struct {
	Cluster string
	Name    string
	Version string
	// ResolveConflicts is the provider conflict mode: NONE or OVERWRITE.
	ResolveConflicts      string
	ServiceAccountRoleARN string
	Tags                  map[string]string
}

// Conflict resolution modes accepted by the provider.
const (
	ResolveConflictsNone      = "NONE"
	ResolveConflictsOverwrite = "OVERWRITE"
)

// Addon is the provider view of an add-on.
type Addon struct {
	Cluster string
	Name    string
	ARN     string
	Version string
	Status  string
}

// ClusterManager manages control planes, node groups and add-ons.
type ClusterManager interface {
	EnsureCluster(ctx context.Context, spec ClusterSpec) (*Cluster, error)
	DescribeCluster(ctx context.Context, name string) (*Cluster, error)
	WaitClusterActive(ctx context.Context, name string, timeout time.Duration) (*Cluster, error)
	EnsureNodegroup(ctx context.Context, spec NodegroupSpec) (*Nodegroup, error)
	WaitNodegroupActive(ctx context.Context, cluster, name string, timeout time.Duration) error
	EnsureAddon(ctx context.Context, spec AddonSpec) (*Addon, error)
	WaitAddonActive(ctx context.Context, cluster, name string, timeout time.Duration) error
}

// RoleSpec describes an IAM role.
type RoleSpec struct {
	Name        string
	Description string
	// TrustPolicy is the JSON assume-role policy document.
	TrustPolicy string
	Tags        map[string]string
}

// Role is an IAM role.
type Role struct {
	Name string
	ARN  string
}

// IdentityManager manages IAM roles, policies and the federation provider.
type IdentityManager interface {
	// CallerAccount returns the account ID of the active credentials.
	CallerAccount(ctx context.Context) (string, error)
	// EnsureRole creates the role or updates its trust policy when it differs.
	EnsureRole(ctx context.Context, spec RoleSpec) (*Role, error)
	AttachManagedPolicy(ctx context.Context, roleName, policyARN string) error
	PutInlinePolicy(ctx context.Context, roleName, policyName, document string) error
	// EnsureOIDCProvider registers the federation issuer and returns the
	// provider ARN.
	EnsureOIDCProvider(ctx context.Context, issuerURL string, audiences []string, tags map[string]string) (string, error)
	// ClusterToken returns a bearer token for the cluster API.
	ClusterToken(ctx context.Context, cluster string) (string, error)
}

// Provider is the full cloud surface used by the provisioning components.
type Provider interface {
	NetworkManager
	ClusterManager
	IdentityManager
}

// ManagedTags returns the tags written on every resource of a cluster,
// merged with extra.
func ManagedTags(cluster string, extra map[string]string) map[string]string {
	tags := map[string]string{
		TagManagedBy: ManagedBy,
	}
	if cluster != "" {
		tags[TagCluster] = cluster
	}
	for k, v := range extra {
		tags[k] = v
	}
	return tags
}
