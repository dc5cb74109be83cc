package provisioning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/imamik/eksforge/internal/config"
	"github.com/imamik/eksforge/internal/provisioning/graph"
)

// RunPhases executes phases sequentially and stops at the first error.
func RunPhases(ctx *Context, phases []Phase) error {
	start := time.Now()
	ctx.Observer.Printf("Starting provisioning with %d phases...", len(phases))

	for i, phase := range phases {
		phaseStart := time.Now()
		name := fmt.Sprintf("%s (%d/%d)", phase.Name(), i+1, len(phases))

		LogPhaseStart(ctx.Observer, phase.Name())

		if err := phase.Provision(ctx); err != nil {
			LogPhaseFailed(ctx.Observer, phase.Name(), err)
			return fmt.Errorf("%s phase failed: %w", phase.Name(), err)
		}

		ctx.Observer.Printf("[%s] completed in %v", name, time.Since(phaseStart).Round(time.Millisecond))
	}

	ctx.Observer.Printf("Provisioning completed in %v", time.Since(start).Round(time.Millisecond))
	return nil
}

// Pipeline applies phases as nodes of a dependency graph. Each phase runs
// once all of its prerequisites are ready.
type Pipeline struct {
	graph *graph.Graph
	ctx   *Context
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{graph: graph.New()}
}

// Add registers phase as resource id of the given kind.
func (p *Pipeline) Add(id, kind string, phase Phase, deps ...string) error {
	if phase == nil {
		return fmt.Errorf("resource %q has no phase", id)
	}
	return p.graph.Add(graph.Node{
		ID:        id,
		Kind:      kind,
		DependsOn: deps,
		Apply: func(c context.Context) error {
			observer := p.ctx.Observer.WithFields(map[string]string{"resource": id})
			return phase.Provision(p.ctx.WithContext(c).WithObserver(observer))
		},
	})
}

// DependOn adds explicit edges from id to deps.
func (p *Pipeline) DependOn(id string, deps ...string) error {
	return p.graph.DependOn(id, deps...)
}

// Graph exposes the underlying graph for planning.
func (p *Pipeline) Graph() *graph.Graph {
	return p.graph
}

// Run validates the graph and applies every phase. It returns an error
// only when the graph itself is invalid; per-resource outcomes are in the
// report.
func (p *Pipeline) Run(ctx *Context) (*graph.Report, error) {
	if err := p.graph.Validate(); err != nil {
		return nil, config.NewConfigurationError("graph", "%v", err)
	}
	p.ctx = ctx

	listener := &pipelineListener{ctx: ctx, total: p.graph.Len()}
	start := time.Now()
	ctx.Observer.Printf("Applying %d resources (concurrency %d)...", listener.total, ctx.concurrency())

	report, err := p.graph.Run(ctx, graph.WithConcurrency(ctx.concurrency()), graph.WithListener(listener))
	if err != nil {
		return nil, err
	}
	ctx.Observer.Printf("Apply finished in %v: %d ready, %d failed, %d blocked, %d cancelled",
		time.Since(start).Round(time.Millisecond),
		report.Count(graph.StatusReady), report.Count(graph.StatusFailed),
		report.Count(graph.StatusBlocked), report.Count(graph.StatusCancelled))
	return report, nil
}

func (c *Context) concurrency() int {
	if c.Timeouts == nil {
		return 0
	}
	return c.Timeouts.MaxConcurrency
}

// pipelineListener turns graph transitions into observer events and
// metrics.
type pipelineListener struct {
	ctx   *Context
	total int

	mu       sync.Mutex
	finished int
}

func (l *pipelineListener) NodeStarted(n graph.Node) {
	l.ctx.Observer.Event(Event{
		Type:     EventResourceApplying,
		Phase:    n.Kind,
		Resource: n.ID,
		Message:  "prerequisites ready, applying",
	})
	if l.ctx.Listener != nil {
		l.ctx.Listener.NodeStarted(n)
	}
}

func (l *pipelineListener) NodeFinished(n graph.Node, r graph.Result) {
	event := Event{Phase: n.Kind, Resource: n.ID}
	switch r.Status {
	case graph.StatusReady:
		event.Type = EventResourceReady
		event.Message = fmt.Sprintf("ready in %v", r.Duration().Round(time.Millisecond))
	case graph.StatusBlocked:
		event.Type = EventResourceBlocked
		event.Message = fmt.Sprint(r.Err)
	case graph.StatusCancelled:
		event.Type = EventResourceCancelled
		event.Message = fmt.Sprintf("cancelled: %v", r.Err)
	default:
		event.Type = EventResourceFailed
		event.Message = fmt.Sprintf("failed: %v", r.Err)
	}
	l.ctx.Observer.Event(event)
	l.ctx.Metrics.ObserveResult(r)

	l.mu.Lock()
	l.finished++
	done := l.finished
	l.mu.Unlock()
	l.ctx.Observer.Progress("deploy", done, l.total)
	if l.ctx.Listener != nil {
		l.ctx.Listener.NodeFinished(n, r)
	}
}
