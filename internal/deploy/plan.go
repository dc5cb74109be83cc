package deploy

import (
	"github.com/imamik/eksforge/internal/config"
	"github.com/imamik/eksforge/internal/provisioning"
	"github.com/imamik/eksforge/internal/state"
)

// PlanReport is what an apply of the descriptor would do, computed without
// provider calls.
type PlanReport struct {
	Cluster string `json:"cluster"`
	// Order is one valid sequential apply order.
	Order []string `json:"order"`
	// Levels groups resources whose prerequisites are all in earlier
	// levels; resources in one level may apply concurrently.
	Levels  [][]string     `json:"levels"`
	Changes []state.Change `json:"changes"`
}

// Plan validates desc, builds its graph and classifies each resource
// against prev, which may be nil.
func Plan(desc *config.Descriptor, env config.Environment, prev *state.Record) (*PlanReport, error) {
	problems := provisioning.Validate(desc, env)
	if config.HasErrors(problems) {
		return nil, &config.ConfigurationError{Problems: problems}
	}

	d, err := Build(desc, provisioning.NewState())
	if err != nil {
		return nil, err
	}
	g := d.Pipeline.Graph()
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, config.NewConfigurationError("graph", "%v", err)
	}
	levels, err := g.Levels()
	if err != nil {
		return nil, config.NewConfigurationError("graph", "%v", err)
	}
	return &PlanReport{
		Cluster: desc.Cluster.Name,
		Order:   order,
		Levels:  levels,
		Changes: state.Classify(prev, d.Desired()),
	}, nil
}
