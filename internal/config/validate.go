package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Severity levels for validation findings.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

var (
	// clusterNameRegex follows the managed control plane naming rules.
	clusterNameRegex = regexp.MustCompile(`^[0-9A-Za-z][A-Za-z0-9\-_]{0,99}$`)
	// dnsLabelRegex validates namespaces and service account names.
	dnsLabelRegex = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]{0,61}[a-z0-9])?$`)
	// resourceRefRegex validates explicit dependency references ("kind/name").
	resourceRefRegex = regexp.MustCompile(`^(network|cluster|federation|nodepool|identity|addon|chart)/[A-Za-z0-9._/\-]+$`)
)

// ValidationError is a single configuration finding.
type ValidationError struct {
	Field    string // Descriptor field that failed validation
	Message  string // Human-readable error message
	Severity string // "error" or "warning"
}

// Error implements the error interface.
func (ve ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", ve.Severity, ve.Field, ve.Message)
}

// IsError returns true if this is an error (not a warning).
func (ve ValidationError) IsError() bool {
	return ve.Severity == SeverityError
}

// HasErrors reports whether any finding is an error.
func HasErrors(problems []ValidationError) bool {
	for _, p := range problems {
		if p.IsError() {
			return true
		}
	}
	return false
}

// ConfigurationError is an invalid descriptor detected before any provider
// call. It is never retried.
type ConfigurationError struct {
	Problems []ValidationError
}

func (e *ConfigurationError) Error() string {
	var msgs []string
	for _, p := range e.Problems {
		if p.IsError() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", p.Field, p.Message))
		}
	}
	return fmt.Sprintf("configuration error: %s", strings.Join(msgs, "; "))
}

// NewConfigurationError builds a ConfigurationError with a single problem.
func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Problems: []ValidationError{{
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityError,
	}}}
}

type validator struct {
	problems []ValidationError
}

func (v *validator) errorf(field, format string, args ...any) {
	v.problems = append(v.problems, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Severity: SeverityError})
}

func (v *validator) warnf(field, format string, args ...any) {
	v.problems = append(v.problems, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning})
}

// Validate checks the descriptor and returns every finding. Defaults are
// expected to have been applied.
func (d *Descriptor) Validate() []ValidationError {
	v := &validator{}
	d.validateNetwork(v)
	d.validateCluster(v)
	d.validateNodePools(v)
	d.validateIdentities(v)
	d.validateAddons(v)
	d.validateCharts(v)
	d.validateState(v)
	return v.problems
}

func (d *Descriptor) validateNetwork(v *validator) {
	n := d.Network

	_, ipNet, err := net.ParseCIDR(n.CIDR)
	prefixLen := 0
	switch {
	case err != nil:
		v.errorf("network.cidr", "invalid CIDR %q: %v", n.CIDR, err)
	case ipNet.IP.To4() == nil:
		v.errorf("network.cidr", "only IPv4 address blocks are supported, got %s", n.CIDR)
	default:
		prefixLen, _ = ipNet.Mask.Size()
		if prefixLen < 16 || prefixLen > 28 {
			v.errorf("network.cidr", "prefix length must be between /16 and /28, got /%d", prefixLen)
		}
	}

	if n.MaxAZs <= 0 {
		v.errorf("network.maxAzs", "at least one availability zone is required, got %d", n.MaxAZs)
	}

	if !n.HasClass(SubnetPublic) {
		v.errorf("network.subnets", "at least one %s partition is required", SubnetPublic)
	}
	if !n.HasClass(SubnetPrivateNAT) {
		v.errorf("network.subnets", "at least one %s partition is required", SubnetPrivateNAT)
	}

	seen := make(map[string]bool)
	for i, s := range n.Subnets {
		field := fmt.Sprintf("network.subnets[%d]", i)
		if s.Name == "" {
			v.errorf(field+".name", "name is required")
		} else if seen[s.Name] {
			v.errorf(field+".name", "duplicate partition name %q", s.Name)
		}
		seen[s.Name] = true

		if s.Class != SubnetPublic && s.Class != SubnetPrivateNAT {
			v.errorf(field+".class", "invalid class %q: must be %s or %s", s.Class, SubnetPublic, SubnetPrivateNAT)
		}
		if s.CIDRMask < 16 || s.CIDRMask > 28 {
			v.errorf(field+".cidrMask", "mask must be between /16 and /28, got /%d", s.CIDRMask)
		} else if prefixLen > 0 && s.CIDRMask < prefixLen {
			v.errorf(field+".cidrMask", "/%d is larger than the network /%d", s.CIDRMask, prefixLen)
		}
	}

	if prefixLen > 0 && n.MaxAZs > 0 {
		var needed uint64
		for _, s := range n.Subnets {
			if s.CIDRMask >= prefixLen && s.CIDRMask <= 32 {
				needed += uint64(n.MaxAZs) << (32 - s.CIDRMask)
			}
		}
		if available := uint64(1) << (32 - prefixLen); needed > available {
			v.errorf("network.subnets", "partitions need %d addresses across %d zones but %s holds %d", needed, n.MaxAZs, n.CIDR, available)
		}
	}

	nat := n.NATGatewayCount()
	switch {
	case nat < 0:
		v.errorf("network.natGateways", "must not be negative")
	case nat > n.MaxAZs && n.MaxAZs > 0:
		v.errorf("network.natGateways", "%d NAT gateways exceed %d availability zones", nat, n.MaxAZs)
	case nat == 0 && n.HasClass(SubnetPrivateNAT):
		v.errorf("network.natGateways", "%s partitions need at least one NAT gateway", SubnetPrivateNAT)
	}
}

func (d *Descriptor) validateCluster(v *validator) {
	c := d.Cluster

	if !clusterNameRegex.MatchString(c.Name) {
		v.errorf("cluster.name", "invalid cluster name %q", c.Name)
	}

	if c.Version == "" {
		v.errorf("cluster.version", "platform version is required")
	} else if _, err := semver.NewVersion(c.Version); err != nil {
		v.errorf("cluster.version", "invalid version %q: %v", c.Version, err)
	}

	if c.DefaultCapacity != 0 {
		v.errorf("cluster.defaultCapacity", "must be 0: compute is added through node pools only")
	}

	switch c.EndpointAccess {
	case EndpointPublic, EndpointPrivate, EndpointBoth:
	default:
		v.errorf("cluster.endpointAccess", "invalid value %q: must be public, private or both", c.EndpointAccess)
	}

	for i, class := range c.Placement {
		if !d.Network.HasClass(class) {
			v.errorf(fmt.Sprintf("cluster.placement[%d]", i), "no %s partition exists in the network", class)
		}
	}

	if len(c.ExtraRoleMappings) > 0 {
		v.errorf("cluster.extraRoleMappings", "additional role mappings are not supported; only the administrative role is mapped")
	}

	if len(c.AdminRole.Groups) == 0 {
		v.errorf("cluster.adminRole.groups", "at least one group is required")
	}
}

func (d *Descriptor) validateNodePools(v *validator) {
	if len(d.NodePools) == 0 {
		v.warnf("nodePools", "no node pools: workloads will not be scheduled")
	}

	seen := make(map[string]bool)
	for i, p := range d.NodePools {
		field := fmt.Sprintf("nodePools[%d]", i)
		if p.Name == "" {
			v.errorf(field+".name", "name is required")
		} else if seen[p.Name] {
			v.errorf(field+".name", "duplicate node pool name %q", p.Name)
		}
		seen[p.Name] = true

		if !d.Network.HasClass(p.SubnetClass) {
			v.errorf(field+".subnetClass", "no %q partition exists in the network", p.SubnetClass)
		}
		if len(p.InstanceTypes) == 0 {
			v.errorf(field+".instanceTypes", "at least one instance type is required")
		}
		if p.MinSize < 0 {
			v.errorf(field+".minSize", "must not be negative")
		}
		if p.MaxSize < p.MinSize {
			v.errorf(field+".maxSize", "maxSize %d is below minSize %d", p.MaxSize, p.MinSize)
		}
		if p.DesiredSize < p.MinSize || p.DesiredSize > p.MaxSize {
			v.errorf(field+".desiredSize", "desiredSize %d must be within [%d, %d]", p.DesiredSize, p.MinSize, p.MaxSize)
		}
		if p.CapacityType != DefaultCapacityOnDemand {
			v.errorf(field+".capacityType", "capacity type %q is not supported", p.CapacityType)
		}
	}
}

func (d *Descriptor) validateIdentities(v *validator) {
	subjects := make(map[string]int)
	roles := make(map[string]int)
	for i, w := range d.Identities {
		field := fmt.Sprintf("identities[%d]", i)
		if !dnsLabelRegex.MatchString(w.Namespace) {
			v.errorf(field+".namespace", "invalid namespace %q", w.Namespace)
		}
		if !dnsLabelRegex.MatchString(w.Name) {
			v.errorf(field+".name", "invalid service account name %q", w.Name)
		}
		if w.Audience == "" {
			v.errorf(field+".audience", "audience is required")
		}

		if prev, dup := subjects[w.Subject()]; dup {
			v.errorf(field, "subject %q is already bound by identities[%d]", w.Subject(), prev)
		} else {
			subjects[w.Subject()] = i
		}

		if w.RoleName != "" {
			if prev, dup := roles[w.RoleName]; dup {
				v.errorf(field+".roleName", "role %q is already used by identities[%d]", w.RoleName, prev)
			} else {
				roles[w.RoleName] = i
			}
		}

		if len(w.ManagedPolicies) == 0 && len(w.InlinePolicies) == 0 {
			v.warnf(field, "no permission policies attached to %s", w.Ref())
		}
		for j, p := range w.InlinePolicies {
			if p.Name == "" || p.File == "" {
				v.errorf(fmt.Sprintf("%s.inlinePolicies[%d]", field, j), "name and file are required")
			}
		}
	}
}

func (d *Descriptor) identityExists(ref string) bool {
	for _, w := range d.Identities {
		if w.Ref() == ref {
			return true
		}
	}
	return false
}

func (d *Descriptor) validateAddons(v *validator) {
	seen := make(map[string]bool)
	for i, a := range d.Addons {
		field := fmt.Sprintf("addons[%d]", i)
		if a.Name == "" {
			v.errorf(field+".name", "name is required")
		} else if seen[a.Name] {
			v.errorf(field+".name", "duplicate add-on %q", a.Name)
		}
		seen[a.Name] = true

		if a.ResolveConflicts != ConflictFail && a.ResolveConflicts != ConflictOverwrite {
			v.errorf(field+".resolveConflicts", "invalid policy %q: must be fail or overwrite", a.ResolveConflicts)
		}
		if a.ServiceAccount != "" && !d.identityExists(a.ServiceAccount) {
			v.errorf(field+".serviceAccount", "no identity %q is declared", a.ServiceAccount)
		}
		validateRefs(v, field+".dependsOn", a.DependsOn)
	}
}

func (d *Descriptor) validateCharts(v *validator) {
	seen := make(map[string]bool)
	for i, c := range d.Charts {
		field := fmt.Sprintf("charts[%d]", i)
		if c.Chart == "" {
			v.errorf(field+".chart", "chart is required")
		}
		if c.Repository == "" {
			v.errorf(field+".repository", "repository is required")
		}
		if c.Version == "" {
			v.errorf(field+".version", "version is required")
		}
		if !dnsLabelRegex.MatchString(c.Namespace) {
			v.errorf(field+".namespace", "invalid namespace %q", c.Namespace)
		}
		key := c.Namespace + "/" + c.Release
		if seen[key] {
			v.errorf(field+".release", "duplicate release %q", key)
		}
		seen[key] = true

		if c.Wait && c.Timeout.Duration <= 0 {
			v.errorf(field+".timeout", "a positive timeout is required when wait is set")
		}
		if c.ServiceAccount == "" {
			v.warnf(field+".serviceAccount", "no workload identity: the release will run without provider permissions")
		} else if !d.identityExists(c.ServiceAccount) {
			v.errorf(field+".serviceAccount", "no identity %q is declared", c.ServiceAccount)
		}
		validateRefs(v, field+".dependsOn", c.DependsOn)
	}
}

func validateRefs(v *validator, field string, refs []string) {
	for j, ref := range refs {
		if !resourceRefRegex.MatchString(ref) {
			v.errorf(fmt.Sprintf("%s[%d]", field, j), "invalid resource reference %q: expected kind/name", ref)
		}
	}
}

func (d *Descriptor) validateState(v *validator) {
	switch d.State.Backend {
	case StateBackendFile:
		if d.State.Path == "" {
			v.errorf("state.path", "path is required for the file backend")
		}
	case StateBackendS3:
		if d.State.Bucket == "" {
			v.errorf("state.bucket", "bucket is required for the s3 backend")
		}
	default:
		v.errorf("state.backend", "invalid backend %q: must be file or s3", d.State.Backend)
	}
}
