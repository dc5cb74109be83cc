package config

import (
	"fmt"
	"strings"
)

// SubnetClass identifies how a subnet partition reaches the internet.
type SubnetClass string

const (
	// SubnetPublic subnets route through an internet gateway.
	SubnetPublic SubnetClass = "public"
	// SubnetPrivateNAT subnets egress through a NAT gateway.
	SubnetPrivateNAT SubnetClass = "private-natted"
)

// EndpointAccess controls how the Kubernetes API endpoint is exposed.
type EndpointAccess string

const (
	EndpointPublic  EndpointAccess = "public"
	EndpointPrivate EndpointAccess = "private"
	EndpointBoth    EndpointAccess = "both"
)

// ConflictPolicy decides what happens when an add-on already exists with
// settings that diverge from the descriptor.
type ConflictPolicy string

const (
	ConflictFail      ConflictPolicy = "fail"
	ConflictOverwrite ConflictPolicy = "overwrite"
)

// Descriptor is the full desired state of one deployment.
type Descriptor struct {
	Network    NetworkSpec            `yaml:"network"`
	Cluster    ClusterSpec            `yaml:"cluster"`
	NodePools  []NodePoolSpec         `yaml:"nodePools"`
	Identities []WorkloadIdentitySpec `yaml:"identities"`
	Addons     []AddonSpec            `yaml:"addons"`
	Charts     []ChartRelease         `yaml:"charts"`
	State      StateConfig            `yaml:"state"`
}

// SubnetPartition is one subnet layer, replicated across every availability zone.
type SubnetPartition struct {
	Name     string      `yaml:"name"`
	CIDRMask int         `yaml:"cidrMask"`
	Class    SubnetClass `yaml:"class"`
}

// NetworkSpec describes the isolated network the cluster is placed in.
type NetworkSpec struct {
	Name        string            `yaml:"name"`
	CIDR        string            `yaml:"cidr"`
	MaxAZs      int               `yaml:"maxAzs"`
	NATGateways *int              `yaml:"natGateways,omitempty"`
	Subnets     []SubnetPartition `yaml:"subnets"`
	Tags        map[string]string `yaml:"tags,omitempty"`
}

// NATGatewayCount returns the configured NAT gateway count (defaults applied).
func (n NetworkSpec) NATGatewayCount() int {
	if n.NATGateways == nil {
		return 0
	}
	return *n.NATGateways
}

// HasClass reports whether at least one partition has the given class.
func (n NetworkSpec) HasClass(class SubnetClass) bool {
	for _, s := range n.Subnets {
		if s.Class == class {
			return true
		}
	}
	return false
}

// RoleMapping maps an IAM role into the cluster's internal authorization model.
type RoleMapping struct {
	RoleARN  string   `yaml:"roleArn"`
	Username string   `yaml:"username"`
	Groups   []string `yaml:"groups"`
}

// AdminRoleSpec configures the administrative identity created with the cluster.
type AdminRoleSpec struct {
	Name     string   `yaml:"name"`
	Username string   `yaml:"username"`
	Groups   []string `yaml:"groups"`
}

// ClusterSpec describes the managed control plane.
type ClusterSpec struct {
	Name              string            `yaml:"name"`
	Version           string            `yaml:"version"`
	AdminRole         AdminRoleSpec     `yaml:"adminRole"`
	Placement         []SubnetClass     `yaml:"placement"`
	DefaultCapacity   int               `yaml:"defaultCapacity"`
	EndpointAccess    EndpointAccess    `yaml:"endpointAccess"`
	ExtraRoleMappings []RoleMapping     `yaml:"extraRoleMappings,omitempty"`
	Tags              map[string]string `yaml:"tags,omitempty"`
}

// NodePoolSpec describes one managed node group.
type NodePoolSpec struct {
	Name          string            `yaml:"name"`
	NodegroupName string            `yaml:"nodegroupName"`
	SubnetClass   SubnetClass       `yaml:"subnetClass"`
	InstanceTypes []string          `yaml:"instanceTypes"`
	MinSize       int               `yaml:"minSize"`
	MaxSize       int               `yaml:"maxSize"`
	DesiredSize   int               `yaml:"desiredSize"`
	CapacityType  string            `yaml:"capacityType,omitempty"`
	Labels        map[string]string `yaml:"labels,omitempty"`
}

// InlinePolicy is a permission document attached directly to a role.
type InlinePolicy struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
}

// WorkloadIdentitySpec declares a trust binding between a namespaced
// service account and an IAM role.
type WorkloadIdentitySpec struct {
	Namespace       string         `yaml:"namespace"`
	Name            string         `yaml:"name"`
	RoleName        string         `yaml:"roleName,omitempty"`
	Audience        string         `yaml:"audience,omitempty"`
	ManagedPolicies []string       `yaml:"managedPolicies,omitempty"`
	InlinePolicies  []InlinePolicy `yaml:"inlinePolicies,omitempty"`
	// CreateServiceAccount controls whether the Kubernetes ServiceAccount
	// object is managed here. Add-ons that ship their own account set it to false.
	CreateServiceAccount *bool `yaml:"createServiceAccount,omitempty"`
}

// Ref returns the "namespace/name" reference of the identity.
func (w WorkloadIdentitySpec) Ref() string {
	return w.Namespace + "/" + w.Name
}

// Subject returns the token subject claim of the service account.
func (w WorkloadIdentitySpec) Subject() string {
	return fmt.Sprintf("system:serviceaccount:%s:%s", w.Namespace, w.Name)
}

// ManagesServiceAccount reports whether the ServiceAccount object is created.
func (w WorkloadIdentitySpec) ManagesServiceAccount() bool {
	return w.CreateServiceAccount == nil || *w.CreateServiceAccount
}

// AddonSpec describes one managed add-on.
type AddonSpec struct {
	Name             string         `yaml:"name"`
	Version          string         `yaml:"version,omitempty"`
	ResolveConflicts ConflictPolicy `yaml:"resolveConflicts"`
	// ServiceAccount references an identity ("namespace/name") whose role
	// the add-on runs under.
	ServiceAccount string   `yaml:"serviceAccount,omitempty"`
	DependsOn      []string `yaml:"dependsOn,omitempty"`
}

// ChartRelease describes a chart installed into the cluster.
type ChartRelease struct {
	Release        string         `yaml:"release"`
	Chart          string         `yaml:"chart"`
	Repository     string         `yaml:"repository"`
	Version        string         `yaml:"version"`
	Namespace      string         `yaml:"namespace"`
	Wait           bool           `yaml:"wait"`
	Timeout        Duration       `yaml:"timeout"`
	ServiceAccount string         `yaml:"serviceAccount,omitempty"`
	Values         map[string]any `yaml:"values,omitempty"`
	DependsOn      []string       `yaml:"dependsOn,omitempty"`
}

// StateConfig selects where last-applied state is persisted.
type StateConfig struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path,omitempty"`
	Bucket   string `yaml:"bucket,omitempty"`
	Key      string `yaml:"key,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// State backends.
const (
	StateBackendFile = "file"
	StateBackendS3   = "s3"
)

// SplitRef splits a "namespace/name" reference.
func SplitRef(ref string) (namespace, name string, ok bool) {
	namespace, name, ok = strings.Cut(ref, "/")
	if !ok || namespace == "" || name == "" || strings.Contains(name, "/") {
		return "", "", false
	}
	return namespace, name, true
}
