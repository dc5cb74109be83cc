package deploy

import (
	"fmt"

	"github.com/imamik/eksforge/internal/config"
	"github.com/imamik/eksforge/internal/provisioning"
	"github.com/imamik/eksforge/internal/provisioning/addons"
	"github.com/imamik/eksforge/internal/provisioning/chart"
	"github.com/imamik/eksforge/internal/provisioning/cluster"
	"github.com/imamik/eksforge/internal/provisioning/compute"
	"github.com/imamik/eksforge/internal/provisioning/identity"
	"github.com/imamik/eksforge/internal/provisioning/network"
	"github.com/imamik/eksforge/internal/state"
)

// Resource kinds used for reporting and metrics.
const (
	KindNetwork    = "network"
	KindCluster    = "cluster"
	KindFederation = "federation"
	KindNodePool   = "nodepool"
	KindIdentity   = "identity"
	KindAddon      = "addon"
	KindChart      = "chart"
)

// NetworkID returns the graph identity of the network.
func NetworkID(name string) string {
	return KindNetwork + "/" + name
}

// ClusterID returns the graph identity of the control plane.
func ClusterID(name string) string {
	return KindCluster + "/" + name
}

// Deployment is a built resource graph ready to plan or apply.
type Deployment struct {
	Descriptor *config.Descriptor
	Pipeline   *provisioning.Pipeline

	desired []state.Desired
}

// Desired returns the declared resources with their configuration
// fingerprints, in declaration order.
func (d *Deployment) Desired() []state.Desired {
	return d.desired
}

// Build creates the graph for desc. Workload identities are registered in
// st, which must be the state of the context the deployment is applied
// with.
func Build(desc *config.Descriptor, st *provisioning.State) (*Deployment, error) {
	d := &Deployment{Descriptor: desc, Pipeline: provisioning.NewPipeline()}
	clusterName := desc.Cluster.Name

	netID := NetworkID(desc.Network.Name)
	clusterID := ClusterID(clusterName)
	fedID := cluster.FederationID(clusterName)

	if err := d.add(netID, KindNetwork, desc.Network, network.NewAllocator(netID, clusterName, desc.Network)); err != nil {
		return nil, err
	}
	if err := d.add(clusterID, KindCluster, desc.Cluster, cluster.NewProvisioner(clusterID, desc.Cluster), netID); err != nil {
		return nil, err
	}
	if err := d.add(fedID, KindFederation, audiences(desc), cluster.NewFederation(clusterName), clusterID); err != nil {
		return nil, err
	}

	for _, pool := range desc.NodePools {
		if err := d.add(compute.ResourceID(pool.Name), KindNodePool, pool, compute.NewProvisioner(pool), clusterID); err != nil {
			return nil, err
		}
	}

	for _, spec := range desc.Identities {
		binding, err := identity.DeclareBinding(st, clusterName, spec)
		if err != nil {
			return nil, err
		}
		if err := d.add(identity.ResourceID(spec.Ref()), KindIdentity, spec, identity.NewBinder(binding), clusterID, fedID); err != nil {
			return nil, err
		}
	}

	for _, spec := range desc.Addons {
		deps := []string{clusterID}
		if spec.ServiceAccount != "" {
			deps = append(deps, identity.ResourceID(spec.ServiceAccount))
		}
		deps = append(deps, spec.DependsOn...)
		if err := d.add(addons.ResourceID(spec.Name), KindAddon, spec, addons.NewInstaller(spec), deps...); err != nil {
			return nil, err
		}
	}

	for _, spec := range desc.Charts {
		deps := []string{clusterID, fedID}
		if spec.ServiceAccount != "" {
			deps = append(deps, identity.ResourceID(spec.ServiceAccount))
		}
		deps = append(deps, spec.DependsOn...)
		if err := d.add(chart.ResourceID(spec.Namespace, spec.Release), KindChart, spec, chart.NewDeployer(spec), deps...); err != nil {
			return nil, err
		}
	}

	if err := d.Pipeline.Graph().Validate(); err != nil {
		return nil, config.NewConfigurationError("graph", "%v", err)
	}
	return d, nil
}

func (d *Deployment) add(id, kind string, spec any, phase provisioning.Phase, deps ...string) error {
	fp, err := state.Fingerprint(spec)
	if err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}
	if err := d.Pipeline.Add(id, kind, phase, deps...); err != nil {
		return config.NewConfigurationError(id, "%v", err)
	}
	d.desired = append(d.desired, state.Desired{ID: id, Kind: kind, Fingerprint: fp})
	return nil
}

// audiences is the fingerprinted configuration of the federation node: the
// provider registers every audience the identities ask for.
func audiences(desc *config.Descriptor) []string {
	seen := map[string]bool{}
	var out []string
	for _, spec := range desc.Identities {
		if spec.Audience != "" && !seen[spec.Audience] {
			seen[spec.Audience] = true
			out = append(out, spec.Audience)
		}
	}
	return out
}
