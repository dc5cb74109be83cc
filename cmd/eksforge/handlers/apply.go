package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-logr/logr"

	"github.com/imamik/eksforge/internal/config"
	"github.com/imamik/eksforge/internal/deploy"
	"github.com/imamik/eksforge/internal/provisioning"
	"github.com/imamik/eksforge/internal/provisioning/graph"
	"github.com/imamik/eksforge/internal/ui/tui"
)

// applyDeployment runs the deployment (for testing injection).
var applyDeployment = deploy.Apply

// runApplyView runs the live apply view (for testing injection).
var runApplyView = func(ctx context.Context, clusterName, region string, nodes []graph.Node, apply tui.ApplyFunc) (*deploy.Result, error) {
	return tui.RunApply(ctx, clusterName, region, nodes, apply, tea.WithAltScreen())
}

// Apply provisions the deployment described by the descriptor.
//
// This function orchestrates the complete apply workflow:
//  1. Loads and validates the descriptor
//  2. Resolves the account and region and creates the AWS client
//  3. Opens the state backend
//  4. Applies the resource graph, with a live view on an interactive
//     terminal and text output
//  5. Prints the result, also when only part of the deployment succeeded
//
// Configuration errors are returned before any resource is touched.
func Apply(ctx context.Context, opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	desc, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	env, err := resolveEnvironment(opts)
	if err != nil {
		return err
	}

	log := newLogger(opts)
	timeouts := config.LoadTimeouts()

	cloud, err := newCloud(ctx, env, timeouts)
	if err != nil {
		return fmt.Errorf("failed to create AWS client: %w", err)
	}
	store, err := openState(ctx, desc.State, env)
	if err != nil {
		return fmt.Errorf("failed to open state: %w", err)
	}

	metrics, stopMetrics, err := startMetrics(opts.MetricsAddr, log.WithName("metrics"))
	if err != nil {
		return err
	}
	defer stopMetrics()

	pctx := provisioning.NewContext(ctx, env, desc, cloud, newKube(cloud, log.WithName("kube")))
	pctx.Observer = newObserver(opts, log)
	pctx.Timeouts = timeouts
	pctx.Metrics = metrics

	var result *deploy.Result
	var applyErr error
	if opts.Output != OutputJSON && isInteractiveTTY() {
		// Console lines would tear the view; it renders the transitions.
		pctx.Observer = provisioning.NewLogrObserver(logr.Discard())
		result, applyErr = runApplyView(ctx, desc.Cluster.Name, env.Region, plannedNodes(desc),
			func(c context.Context, listener graph.Listener) (*deploy.Result, error) {
				p := pctx.WithContext(c)
				p.Listener = listener
				return applyDeployment(p, store)
			})
	} else {
		pctx.Observer.Printf("Applying deployment %s in %s (state: %s)", desc.Cluster.Name, env.Region, store.Location())
		result, applyErr = applyDeployment(pctx, store)
	}
	if result != nil {
		if err := writeResult(result, opts.Output); err != nil {
			return err
		}
	}
	return applyErr
}

// plannedNodes lists the resources of a fresh deployment so the view can
// show them as pending. Nodes the run adds later are appended as they start.
func plannedNodes(desc *config.Descriptor) []graph.Node {
	d, err := deploy.Build(desc, provisioning.NewState())
	if err != nil {
		return nil
	}
	g := d.Pipeline.Graph()
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil
	}
	nodes := make([]graph.Node, 0, len(order))
	for _, id := range order {
		if n, ok := g.Node(id); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// writeResult prints the result as text or JSON.
func writeResult(result *deploy.Result, format string) error {
	if format == OutputJSON {
		return writeJSON(result)
	}
	_, err := fmt.Fprint(stdout, tui.RenderResult(result))
	return err
}

func writeJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
