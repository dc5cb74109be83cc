// Package fake provides an in-memory cloud provider for tests.
//
// Cloud records every call in order and supports fault injection: a delayed
// federation issuer, per-resource failures and per-call latency.
package fake

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	awsplatform "github.com/imamik/eksforge/internal/platform/aws"
)

// DefaultAccount is the account ID reported by CallerAccount.
const DefaultAccount = "123456789012"

// Call is one recorded provider operation.
type Call struct {
	Op       string
	Resource string
	At       time.Time
}

// RoleRecord is the stored state of a role.
type RoleRecord struct {
	Name            string
	ARN             string
	TrustPolicy     string
	ManagedPolicies []string
	InlinePolicies  map[string]string
	Tags            map[string]string
}

// Cloud is an in-memory Provider. The zero value is not usable; call New.
type Cloud struct {
	mu sync.Mutex

	Account string
	Region  string
	Zones   []string

	// IssuerPolls is how many DescribeCluster calls after activation still
	// report an empty issuer.
	IssuerPolls int
	// Latency is added to every Ensure and Wait call.
	Latency time.Duration
	// Failures maps "<op>:<resource>" (e.g. "EnsureNodegroup:gpu") to the
	// error that call returns.
	Failures map[string]error

	calls      []Call
	seq        int
	vpcs       map[string]*awsplatform.VPC
	subnets    map[string]*awsplatform.Subnet
	nameTags   map[string]string
	egress     map[string]awsplatform.EgressSpec
	clusters   map[string]*awsplatform.Cluster
	issuerSeen map[string]int
	nodegroups map[string]*awsplatform.NodegroupSpec
	addons     map[string]*awsplatform.AddonSpec
	roles      map[string]*RoleRecord
	oidc       map[string][]string
}

// New returns an empty cloud with three zones in eu-west-1.
func New() *Cloud {
	return &Cloud{
		Account:    DefaultAccount,
		Region:     "eu-west-1",
		Zones:      []string{"eu-west-1a", "eu-west-1b", "eu-west-1c"},
		Failures:   make(map[string]error),
		vpcs:       make(map[string]*awsplatform.VPC),
		subnets:    make(map[string]*awsplatform.Subnet),
		nameTags:   make(map[string]string),
		egress:     make(map[string]awsplatform.EgressSpec),
		clusters:   make(map[string]*awsplatform.Cluster),
		issuerSeen: make(map[string]int),
		nodegroups: make(map[string]*awsplatform.NodegroupSpec),
		addons:     make(map[string]*awsplatform.AddonSpec),
		roles:      make(map[string]*RoleRecord),
		oidc:       make(map[string][]string),
	}
}

// Fail makes every call of op on resource return err.
func (c *Cloud) Fail(op, resource string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Failures[op+":"+resource] = err
}

// Calls returns the recorded calls in order.
func (c *Cloud) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

// CallIndex returns the position of the first call of op on resource, or
// -1.
func (c *Cloud) CallIndex(op, resource string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, call := range c.calls {
		if call.Op == op && call.Resource == resource {
			return i
		}
	}
	return -1
}

// CallCount returns how many times op was called on resource.
func (c *Cloud) CallCount(op, resource string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Op == op && call.Resource == resource {
			n++
		}
	}
	return n
}

// Role returns a copy of the stored role.
func (c *Cloud) Role(name string) (RoleRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.roles[name]
	if !ok {
		return RoleRecord{}, false
	}
	out := *r
	out.ManagedPolicies = slices.Clone(r.ManagedPolicies)
	out.InlinePolicies = make(map[string]string, len(r.InlinePolicies))
	for k, v := range r.InlinePolicies {
		out.InlinePolicies[k] = v
	}
	return out, true
}

// Subnets returns all subnets sorted by logical ID.
func (c *Cloud) Subnets() []awsplatform.Subnet {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]awsplatform.Subnet, 0, len(c.subnets))
	for _, s := range c.subnets {
		cp := *s
		cp.Name = c.nameTags[s.ID]
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LogicalID < out[j].LogicalID })
	return out
}

// NameTag returns the Name tag of a resource.
func (c *Cloud) NameTag(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nameTags[id]
}

// Nodegroup returns the stored node group spec.
func (c *Cloud) Nodegroup(cluster, name string) (awsplatform.NodegroupSpec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ng, ok := c.nodegroups[cluster+"/"+name]
	if !ok {
		return awsplatform.NodegroupSpec{}, false
	}
	return *ng, true
}

// Addon returns the stored add-on spec.
func (c *Cloud) Addon(cluster, name string) (awsplatform.AddonSpec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.addons[cluster+"/"+name]
	if !ok {
		return awsplatform.AddonSpec{}, false
	}
	return *a, true
}

// Egress returns the egress spec applied to a VPC.
func (c *Cloud) Egress(vpcID string) (awsplatform.EgressSpec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.egress[vpcID]
	return e, ok
}

// OIDCAudiences returns the client IDs registered for an issuer.
func (c *Cloud) OIDCAudiences(issuer string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.oidc[issuer])
}

func (c *Cloud) record(ctx context.Context, op, resource string) error {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Op: op, Resource: resource, At: time.Now()})
	err := c.Failures[op+":"+resource]
	latency := c.Latency
	c.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return err
}

func (c *Cloud) nextID(prefix string) string {
	c.seq++
	return fmt.Sprintf("%s-%04d", prefix, c.seq)
}

func (c *Cloud) arn(kind, name string) string {
	return fmt.Sprintf("arn:aws:%s::%s:%s", kind, c.Account, name)
}

// AvailabilityZones implements awsplatform.NetworkManager.
func (c *Cloud) AvailabilityZones(ctx context.Context, max int) ([]string, error) {
	if err := c.record(ctx, "AvailabilityZones", c.Region); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	zones := slices.Clone(c.Zones)
	sort.Strings(zones)
	if max > 0 && len(zones) > max {
		zones = zones[:max]
	}
	return zones, nil
}

// EnsureVPC implements awsplatform.NetworkManager.
func (c *Cloud) EnsureVPC(ctx context.Context, name, cidr string, _ map[string]string) (*awsplatform.VPC, error) {
	if err := c.record(ctx, "EnsureVPC", name); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.vpcs[name]; ok {
		if v.CIDR != cidr {
			return nil, fmt.Errorf("vpc %s exists with CIDR %s, want %s", name, v.CIDR, cidr)
		}
		cp := *v
		return &cp, nil
	}
	v := &awsplatform.VPC{ID: c.nextID("vpc"), Name: name, CIDR: cidr}
	c.vpcs[name] = v
	c.nameTags[v.ID] = name
	cp := *v
	return &cp, nil
}

// EnsureSubnet implements awsplatform.NetworkManager.
func (c *Cloud) EnsureSubnet(ctx context.Context, vpcID string, spec awsplatform.SubnetSpec) (*awsplatform.Subnet, error) {
	if err := c.record(ctx, "EnsureSubnet", spec.LogicalID); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := vpcID + "/" + spec.LogicalID
	if s, ok := c.subnets[key]; ok {
		if s.CIDR != spec.CIDR {
			return nil, fmt.Errorf("subnet %s exists with CIDR %s, want %s", spec.LogicalID, s.CIDR, spec.CIDR)
		}
		cp := *s
		cp.Name = c.nameTags[s.ID]
		return &cp, nil
	}
	for k, s := range c.subnets {
		if strings.HasPrefix(k, vpcID+"/") && s.CIDR == spec.CIDR {
			return nil, fmt.Errorf("subnet CIDR %s conflicts with %s", spec.CIDR, s.LogicalID)
		}
	}
	s := &awsplatform.Subnet{
		ID:        c.nextID("subnet"),
		LogicalID: spec.LogicalID,
		Partition: spec.Partition,
		CIDR:      spec.CIDR,
		Zone:      spec.Zone,
		Public:    spec.Public,
	}
	c.subnets[key] = s
	cp := *s
	return &cp, nil
}

// EnsureEgress implements awsplatform.NetworkManager.
func (c *Cloud) EnsureEgress(ctx context.Context, spec awsplatform.EgressSpec) error {
	if err := c.record(ctx, "EnsureEgress", spec.NetworkName); err != nil {
		return err
	}
	if len(spec.PublicSubnets) == 0 {
		return fmt.Errorf("network %s has no public subnet for egress", spec.NetworkName)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.egress[spec.VPCID] = spec
	return nil
}

// SetNameTag implements awsplatform.NetworkManager.
func (c *Cloud) SetNameTag(ctx context.Context, resourceID, name string) (bool, error) {
	if err := c.record(ctx, "SetNameTag", resourceID); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nameTags[resourceID] == name {
		return false, nil
	}
	c.nameTags[resourceID] = name
	return true, nil
}

// EnsureCluster implements awsplatform.ClusterManager.
func (c *Cloud) EnsureCluster(ctx context.Context, spec awsplatform.ClusterSpec) (*awsplatform.Cluster, error) {
	if err := c.record(ctx, "EnsureCluster", spec.Name); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clusters[spec.Name]; ok {
		cp := *cl
		return &cp, nil
	}
	if spec.RoleARN == "" || len(spec.SubnetIDs) == 0 {
		return nil, fmt.Errorf("cluster %s: role and subnets are required", spec.Name)
	}
	cl := &awsplatform.Cluster{
		Name:    spec.Name,
		ARN:     c.arn("eks", "cluster/"+spec.Name),
		Version: spec.Version,
		Status:  awsplatform.ClusterStatusCreating,
	}
	c.clusters[spec.Name] = cl
	cp := *cl
	return &cp, nil
}

// DescribeCluster implements awsplatform.ClusterManager. The issuer stays
// empty for IssuerPolls calls after the cluster became active.
func (c *Cloud) DescribeCluster(ctx context.Context, name string) (*awsplatform.Cluster, error) {
	if err := c.record(ctx, "DescribeCluster", name); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.clusters[name]
	if !ok {
		return nil, fmt.Errorf("cluster %s not found", name)
	}
	cp := *cl
	if cl.Status == awsplatform.ClusterStatusActive {
		c.issuerSeen[name]++
		if c.issuerSeen[name] <= c.IssuerPolls {
			cp.Issuer = ""
		}
	}
	return &cp, nil
}

// WaitClusterActive implements awsplatform.ClusterManager.
func (c *Cloud) WaitClusterActive(ctx context.Context, name string, _ time.Duration) (*awsplatform.Cluster, error) {
	if err := c.record(ctx, "WaitClusterActive", name); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.clusters[name]
	if !ok {
		return nil, fmt.Errorf("cluster %s not found", name)
	}
	if cl.Status != awsplatform.ClusterStatusActive {
		id := fmt.Sprintf("%X", name)
		cl.Status = awsplatform.ClusterStatusActive
		cl.Endpoint = fmt.Sprintf("https://%s.gr7.%s.eks.amazonaws.com", id, c.Region)
		cl.CertificateAuthority = "LS0tLS1CRUdJTiBDRVJUSUZJQ0FURS0tLS0tCg=="
		cl.Issuer = fmt.Sprintf("https://oidc.eks.%s.amazonaws.com/id/%s", c.Region, id)
	}
	cp := *cl
	// Active but issuer not yet published.
	cp.Issuer = ""
	return &cp, nil
}

// EnsureNodegroup implements awsplatform.ClusterManager.
func (c *Cloud) EnsureNodegroup(ctx context.Context, spec awsplatform.NodegroupSpec) (*awsplatform.Nodegroup, error) {
	if err := c.record(ctx, "EnsureNodegroup", spec.Name); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clusters[spec.Cluster]; !ok || cl.Status != awsplatform.ClusterStatusActive {
		return nil, fmt.Errorf("cluster %s is not active", spec.Cluster)
	}
	cp := spec
	c.nodegroups[spec.Cluster+"/"+spec.Name] = &cp
	return &awsplatform.Nodegroup{
		Cluster: spec.Cluster,
		Name:    spec.Name,
		ARN:     c.arn("eks", "nodegroup/"+spec.Cluster+"/"+spec.Name),
		Status:  "ACTIVE",
	}, nil
}

// WaitNodegroupActive implements awsplatform.ClusterManager.
func (c *Cloud) WaitNodegroupActive(ctx context.Context, _ string, name string, _ time.Duration) error {
	return c.record(ctx, "WaitNodegroupActive", name)
}

// EnsureAddon implements awsplatform.ClusterManager.
func (c *Cloud) EnsureAddon(ctx context.Context, spec awsplatform.AddonSpec) (*awsplatform.Addon, error) {
	if err := c.record(ctx, "EnsureAddon", spec.Name); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clusters[spec.Cluster]; !ok || cl.Status != awsplatform.ClusterStatusActive {
		return nil, fmt.Errorf("cluster %s is not active", spec.Cluster)
	}
	cp := spec
	c.addons[spec.Cluster+"/"+spec.Name] = &cp
	return &awsplatform.Addon{
		Cluster: spec.Cluster,
		Name:    spec.Name,
		ARN:     c.arn("eks", "addon/"+spec.Cluster+"/"+spec.Name),
		Version: spec.Version,
		Status:  "ACTIVE",
	}, nil
}

// WaitAddonActive implements awsplatform.ClusterManager.
func (c *Cloud) WaitAddonActive(ctx context.Context, _ string, name string, _ time.Duration) error {
	return c.record(ctx, "WaitAddonActive", name)
}

// CallerAccount implements awsplatform.IdentityManager.
func (c *Cloud) CallerAccount(ctx context.Context) (string, error) {
	if err := c.record(ctx, "CallerAccount", ""); err != nil {
		return "", err
	}
	return c.Account, nil
}

// EnsureRole implements awsplatform.IdentityManager.
func (c *Cloud) EnsureRole(ctx context.Context, spec awsplatform.RoleSpec) (*awsplatform.Role, error) {
	if err := c.record(ctx, "EnsureRole", spec.Name); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.roles[spec.Name]
	if !ok {
		r = &RoleRecord{
			Name:           spec.Name,
			ARN:            c.arn("iam", "role/"+spec.Name),
			InlinePolicies: make(map[string]string),
			Tags:           spec.Tags,
		}
		c.roles[spec.Name] = r
	}
	r.TrustPolicy = spec.TrustPolicy
	return &awsplatform.Role{Name: r.Name, ARN: r.ARN}, nil
}

// AttachManagedPolicy implements awsplatform.IdentityManager.
func (c *Cloud) AttachManagedPolicy(ctx context.Context, roleName, policyARN string) error {
	if err := c.record(ctx, "AttachManagedPolicy", roleName); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.roles[roleName]
	if !ok {
		return fmt.Errorf("role %s not found", roleName)
	}
	if !slices.Contains(r.ManagedPolicies, policyARN) {
		r.ManagedPolicies = append(r.ManagedPolicies, policyARN)
	}
	return nil
}

// PutInlinePolicy implements awsplatform.IdentityManager.
func (c *Cloud) PutInlinePolicy(ctx context.Context, roleName, policyName, document string) error {
	if err := c.record(ctx, "PutInlinePolicy", roleName); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.roles[roleName]
	if !ok {
		return fmt.Errorf("role %s not found", roleName)
	}
	r.InlinePolicies[policyName] = document
	return nil
}

// EnsureOIDCProvider implements awsplatform.IdentityManager.
func (c *Cloud) EnsureOIDCProvider(ctx context.Context, issuerURL string, audiences []string, _ map[string]string) (string, error) {
	if err := c.record(ctx, "EnsureOIDCProvider", issuerURL); err != nil {
		return "", err
	}
	if issuerURL == "" {
		return "", fmt.Errorf("issuer URL is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	existing := c.oidc[issuerURL]
	for _, a := range audiences {
		if !slices.Contains(existing, a) {
			existing = append(existing, a)
		}
	}
	c.oidc[issuerURL] = existing
	return c.arn("iam", "oidc-provider/"+strings.TrimPrefix(issuerURL, "https://")), nil
}

// ClusterToken implements awsplatform.IdentityManager.
func (c *Cloud) ClusterToken(ctx context.Context, cluster string) (string, error) {
	if err := c.record(ctx, "ClusterToken", cluster); err != nil {
		return "", err
	}
	return "k8s-aws-v1.fake-" + cluster, nil
}

var _ awsplatform.Provider = (*Cloud)(nil)
