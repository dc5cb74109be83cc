package config

import "time"

// Defaults mirror the reference deployment: a /16 network over two zones
// with one public and one NAT-backed private /20 per zone.
const (
	DefaultNetworkName      = "vpc"
	DefaultNetworkCIDR      = "10.2.0.0/16"
	DefaultMaxAZs           = 2
	DefaultNATGateways      = 1
	DefaultSubnetMask       = 20
	DefaultClusterName      = "cluster"
	DefaultAdminUsername    = "masterRole"
	DefaultAdminGroup       = "system:masters"
	DefaultAudience         = "sts.amazonaws.com"
	DefaultChartTimeout     = 5 * time.Minute
	DefaultStateFile        = ".eksforge/state.json"
	DefaultCapacityOnDemand = "ON_DEMAND"
)

// ApplyDefaults fills unset fields. It never overrides explicit values.
func (d *Descriptor) ApplyDefaults() {
	d.Network.applyDefaults()
	d.Cluster.applyDefaults()

	for i := range d.NodePools {
		p := &d.NodePools[i]
		if p.NodegroupName == "" {
			p.NodegroupName = p.Name
		}
		if p.MaxSize == 0 {
			p.MaxSize = max(p.MinSize, p.DesiredSize, 1)
		}
		if p.DesiredSize == 0 {
			p.DesiredSize = p.MinSize
		}
		if p.CapacityType == "" {
			p.CapacityType = DefaultCapacityOnDemand
		}
	}

	for i := range d.Identities {
		if d.Identities[i].Audience == "" {
			d.Identities[i].Audience = DefaultAudience
		}
	}

	for i := range d.Addons {
		if d.Addons[i].ResolveConflicts == "" {
			d.Addons[i].ResolveConflicts = ConflictFail
		}
	}

	for i := range d.Charts {
		c := &d.Charts[i]
		if c.Release == "" {
			c.Release = c.Chart
		}
		if c.Wait && c.Timeout.Duration == 0 {
			c.Timeout.Duration = DefaultChartTimeout
		}
	}

	if d.State.Backend == "" {
		d.State.Backend = StateBackendFile
	}
	if d.State.Backend == StateBackendFile && d.State.Path == "" {
		d.State.Path = DefaultStateFile
	}
	if d.State.Backend == StateBackendS3 && d.State.Key == "" {
		d.State.Key = d.Cluster.Name + "/state.json"
	}
}

func (n *NetworkSpec) applyDefaults() {
	if n.Name == "" {
		n.Name = DefaultNetworkName
	}
	if n.CIDR == "" {
		n.CIDR = DefaultNetworkCIDR
	}
	if n.MaxAZs == 0 {
		n.MaxAZs = DefaultMaxAZs
	}
	if len(n.Subnets) == 0 {
		n.Subnets = []SubnetPartition{
			{Name: "vpc-PublicSubnet-1", CIDRMask: DefaultSubnetMask, Class: SubnetPublic},
			{Name: "vpc-PrivateSubnet-1", CIDRMask: DefaultSubnetMask, Class: SubnetPrivateNAT},
		}
	}
	if n.NATGateways == nil {
		count := 0
		if n.HasClass(SubnetPrivateNAT) {
			count = DefaultNATGateways
		}
		n.NATGateways = &count
	}
}

func (c *ClusterSpec) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultClusterName
	}
	if c.AdminRole.Username == "" {
		c.AdminRole.Username = DefaultAdminUsername
	}
	if len(c.AdminRole.Groups) == 0 {
		c.AdminRole.Groups = []string{DefaultAdminGroup}
	}
	if len(c.Placement) == 0 {
		c.Placement = []SubnetClass{SubnetPublic}
	}
	if c.EndpointAccess == "" {
		c.EndpointAccess = EndpointBoth
	}
}
