package provisioning

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/imamik/eksforge/internal/config"
	awsplatform "github.com/imamik/eksforge/internal/platform/aws"
	"github.com/imamik/eksforge/internal/provisioning/graph"
)

// NetworkHandle is an allocated network.
type NetworkHandle struct {
	Name    string
	VPCID   string
	CIDR    string
	Zones   []string
	Subnets []awsplatform.Subnet
}

// SubnetsByClass returns the subnets of one class in allocation order.
func (n *NetworkHandle) SubnetsByClass(class config.SubnetClass) []awsplatform.Subnet {
	var out []awsplatform.Subnet
	for _, s := range n.Subnets {
		if s.Public == (class == config.SubnetPublic) {
			out = append(out, s)
		}
	}
	return out
}

// SubnetIDs returns the IDs of all subnets in the given classes.
func (n *NetworkHandle) SubnetIDs(classes ...config.SubnetClass) []string {
	var ids []string
	for _, class := range classes {
		for _, s := range n.SubnetsByClass(class) {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// Federation is the cluster's published identity-federation endpoint.
type Federation struct {
	Issuer      string
	ProviderARN string
}

// IssuerHost returns the issuer URL without its scheme, the form used as
// the prefix of trust policy condition keys.
func (f Federation) IssuerHost() string {
	return strings.TrimPrefix(f.Issuer, "https://")
}

// ClusterHandle is a provisioned control plane. Federation resolves only
// after the provider publishes the issuer; read it from nodes that depend
// on the federation node.
type ClusterHandle struct {
	Name                 string
	ARN                  string
	Version              string
	Endpoint             string
	CertificateAuthority string
	RoleARN              string
	AdminRoleARN         string

	Federation *graph.Promise[Federation]
	Access     ClusterAccess
}

// AddRoleMapping binds an identity to groups inside the cluster.
func (c *ClusterHandle) AddRoleMapping(ctx context.Context, mapping RoleMapping) error {
	if c.Access == nil {
		return fmt.Errorf("cluster %s is not connected", c.Name)
	}
	return c.Access.UpsertRoleMapping(ctx, mapping)
}

// TrustBinding pairs one workload identity with the role it may assume.
// It is declared up front and finalized once the federation endpoint is
// known.
type TrustBinding struct {
	Spec     config.WorkloadIdentitySpec
	RoleName string

	// Set when the binding is finalized.
	Issuer      string
	TrustPolicy string

	// Role resolves to the role ARN once the binding is applied.
	Role *graph.Promise[string]
}

// Subject returns the token subject claim the binding trusts.
func (b *TrustBinding) Subject() string {
	return b.Spec.Subject()
}

// Ref returns "namespace/name" of the workload identity.
func (b *TrustBinding) Ref() string {
	return b.Spec.Ref()
}

// State holds the results shared between resources of one deployment. It is
// safe for concurrent use.
type State struct {
	Network *graph.Promise[*NetworkHandle]
	Cluster *graph.Promise[*ClusterHandle]

	mu          sync.Mutex
	bindings    map[string]*TrustBinding // by subject claim
	providerIDs map[string]string
	outputs     map[string]string
}

// NewState creates an empty provisioning state.
func NewState() *State {
	return &State{
		Network:     graph.NewPromise[*NetworkHandle]("network"),
		Cluster:     graph.NewPromise[*ClusterHandle]("cluster"),
		bindings:    make(map[string]*TrustBinding),
		providerIDs: make(map[string]string),
		outputs:     make(map[string]string),
	}
}

// RegisterBinding records a declared binding. A second binding with the
// same subject claim is a configuration error.
func (s *State) RegisterBinding(b *TrustBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject := b.Subject()
	if existing, ok := s.bindings[subject]; ok {
		return config.NewConfigurationError("identities", "subject %q is bound twice (roles %s and %s)", subject, existing.RoleName, b.RoleName)
	}
	s.bindings[subject] = b
	return nil
}

// Binding returns the binding of a "namespace/name" workload identity.
func (s *State) Binding(ref string) (*TrustBinding, bool) {
	namespace, name, ok := config.SplitRef(ref)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[fmt.Sprintf("system:serviceaccount:%s:%s", namespace, name)]
	return b, ok
}

// Bindings returns all bindings ordered by subject.
func (s *State) Bindings() []*TrustBinding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*TrustBinding, 0, len(s.bindings))
	for _, b := range s.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject() < out[j].Subject() })
	return out
}

// SetProviderID records the provider identity (ID or ARN) of a resource.
func (s *State) SetProviderID(resource, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providerIDs[resource] = id
}

// ProviderIDs returns a copy of the recorded provider identities.
func (s *State) ProviderIDs() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMap(s.providerIDs)
}

// SetOutput records a named deployment output.
func (s *State) SetOutput(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[name] = value
}

// Outputs returns a copy of the deployment outputs.
func (s *State) Outputs() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMap(s.outputs)
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
