package testing

import (
	"maps"
	"slices"

	"github.com/imamik/eksforge/internal/config"
)

// DescriptorBuilder provides a fluent interface for constructing test
// descriptors. Each method returns a new builder (immutable) for chaining.
type DescriptorBuilder struct {
	desc config.Descriptor
}

// NewDescriptorBuilder creates a builder for a cluster named "test" with
// default network and no nodes.
func NewDescriptorBuilder() *DescriptorBuilder {
	return &DescriptorBuilder{
		desc: config.Descriptor{
			Cluster: config.ClusterSpec{
				Name:    "test",
				Version: "1.29",
			},
		},
	}
}

// WithCluster sets the cluster name and version.
func (b *DescriptorBuilder) WithCluster(name, version string) *DescriptorBuilder {
	nb := b.clone()
	nb.desc.Cluster.Name = name
	nb.desc.Cluster.Version = version
	return nb
}

// WithNetwork sets the network name and CIDR.
func (b *DescriptorBuilder) WithNetwork(name, cidr string, maxAZs int) *DescriptorBuilder {
	nb := b.clone()
	nb.desc.Network.Name = name
	nb.desc.Network.CIDR = cidr
	nb.desc.Network.MaxAZs = maxAZs
	return nb
}

// WithNodePool adds a fixed-size node pool.
func (b *DescriptorBuilder) WithNodePool(name string, class config.SubnetClass, size int) *DescriptorBuilder {
	nb := b.clone()
	nb.desc.NodePools = append(nb.desc.NodePools, config.NodePoolSpec{
		Name:          name,
		SubnetClass:   class,
		InstanceTypes: []string{"m5.large"},
		MinSize:       size,
		MaxSize:       size,
		DesiredSize:   size,
	})
	return nb
}

// WithIdentity adds a workload identity with the given managed policies.
func (b *DescriptorBuilder) WithIdentity(namespace, name string, managedPolicies ...string) *DescriptorBuilder {
	nb := b.clone()
	nb.desc.Identities = append(nb.desc.Identities, config.WorkloadIdentitySpec{
		Namespace:       namespace,
		Name:            name,
		ManagedPolicies: managedPolicies,
	})
	return nb
}

// WithInlinePolicy attaches an inline policy file to the most recently
// added identity.
func (b *DescriptorBuilder) WithInlinePolicy(name, file string) *DescriptorBuilder {
	nb := b.clone()
	if n := len(nb.desc.Identities); n > 0 {
		id := &nb.desc.Identities[n-1]
		id.InlinePolicies = append(id.InlinePolicies, config.InlinePolicy{Name: name, File: file})
	}
	return nb
}

// WithAddon adds a managed add-on, optionally bound to a workload identity
// given as "namespace/name".
func (b *DescriptorBuilder) WithAddon(name string, conflicts config.ConflictPolicy, serviceAccount string) *DescriptorBuilder {
	nb := b.clone()
	nb.desc.Addons = append(nb.desc.Addons, config.AddonSpec{
		Name:             name,
		ResolveConflicts: conflicts,
		ServiceAccount:   serviceAccount,
	})
	return nb
}

// WithChart adds a chart release. serviceAccount may be empty.
func (b *DescriptorBuilder) WithChart(release, chart, namespace, serviceAccount string, dependsOn ...string) *DescriptorBuilder {
	nb := b.clone()
	nb.desc.Charts = append(nb.desc.Charts, config.ChartRelease{
		Release:        release,
		Chart:          chart,
		Repository:     "https://charts.example.com",
		Version:        "1.0.0",
		Namespace:      namespace,
		Wait:           true,
		ServiceAccount: serviceAccount,
		DependsOn:      dependsOn,
	})
	return nb
}

// Build returns the constructed descriptor with defaults applied.
func (b *DescriptorBuilder) Build() *config.Descriptor {
	desc := b.clone().desc
	desc.ApplyDefaults()
	return &desc
}

// clone creates a deep copy of the builder for immutability.
func (b *DescriptorBuilder) clone() *DescriptorBuilder {
	d := b.desc
	d.Network.Subnets = slices.Clone(b.desc.Network.Subnets)
	d.Network.Tags = maps.Clone(b.desc.Network.Tags)
	d.Cluster.Placement = slices.Clone(b.desc.Cluster.Placement)
	d.Cluster.Tags = maps.Clone(b.desc.Cluster.Tags)

	d.NodePools = make([]config.NodePoolSpec, len(b.desc.NodePools))
	for i, p := range b.desc.NodePools {
		p.InstanceTypes = slices.Clone(p.InstanceTypes)
		p.Labels = maps.Clone(p.Labels)
		d.NodePools[i] = p
	}
	d.Identities = make([]config.WorkloadIdentitySpec, len(b.desc.Identities))
	for i, id := range b.desc.Identities {
		id.ManagedPolicies = slices.Clone(id.ManagedPolicies)
		id.InlinePolicies = slices.Clone(id.InlinePolicies)
		d.Identities[i] = id
	}
	d.Addons = make([]config.AddonSpec, len(b.desc.Addons))
	for i, a := range b.desc.Addons {
		a.DependsOn = slices.Clone(a.DependsOn)
		d.Addons[i] = a
	}
	d.Charts = make([]config.ChartRelease, len(b.desc.Charts))
	for i, c := range b.desc.Charts {
		c.DependsOn = slices.Clone(c.DependsOn)
		c.Values = maps.Clone(c.Values)
		d.Charts[i] = c
	}
	return &DescriptorBuilder{desc: d}
}

// MinimalDescriptor returns a valid descriptor with only the default
// network and cluster.
func MinimalDescriptor() *config.Descriptor {
	return NewDescriptorBuilder().Build()
}

// ReferenceDescriptor returns the reference deployment: one private node
// pool, the node networking add-on bound to its workload identity and a
// load balancer controller chart.
func ReferenceDescriptor() *config.Descriptor {
	return NewDescriptorBuilder().
		WithCluster("demo", "1.29").
		WithNodePool("general", config.SubnetPrivateNAT, 2).
		WithIdentity("kube-system", "aws-node", "AmazonEKS_CNI_Policy").
		WithIdentity("kube-system", "aws-load-balancer-controller").
		WithAddon("vpc-cni", config.ConflictOverwrite, "kube-system/aws-node").
		WithChart("aws-load-balancer-controller", "eks/aws-load-balancer-controller", "kube-system",
			"kube-system/aws-load-balancer-controller").
		Build()
}
