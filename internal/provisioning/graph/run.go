package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Status is the terminal state of a node after a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusFailed    Status = "failed"
	StatusBlocked   Status = "blocked"
	StatusCancelled Status = "cancelled"
)

// Result records how a node finished.
type Result struct {
	ID       string
	Kind     string
	Status   Status
	Err      error
	Started  time.Time
	Finished time.Time
}

// Duration is the time the node spent applying. Nodes that never started
// report zero.
func (r Result) Duration() time.Duration {
	if r.Started.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// BlockedError is recorded for nodes that were skipped because a
// prerequisite did not become ready.
type BlockedError struct {
	Node       string
	Dependency string
	Status     Status
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s not applied: prerequisite %s is %s", e.Node, e.Dependency, e.Status)
}

// Listener observes node transitions during a run. Calls may arrive
// concurrently from different nodes.
type Listener interface {
	NodeStarted(n Node)
	NodeFinished(n Node, r Result)
}

// Report is the outcome of a run.
type Report struct {
	// Order is the topological order the graph was scheduled in.
	Order   []string
	Results map[string]Result
}

// Get returns the result for a node.
func (r *Report) Get(id string) (Result, bool) {
	res, ok := r.Results[id]
	return res, ok
}

// InOrder returns results in topological order.
func (r *Report) InOrder() []Result {
	out := make([]Result, 0, len(r.Order))
	for _, id := range r.Order {
		out = append(out, r.Results[id])
	}
	return out
}

// Succeeded reports whether every node reached StatusReady.
func (r *Report) Succeeded() bool {
	for _, res := range r.Results {
		if res.Status != StatusReady {
			return false
		}
	}
	return true
}

// Count returns the number of nodes that finished with the given status.
func (r *Report) Count(status Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Err joins the errors of all nodes that did not reach StatusReady, in
// topological order.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.InOrder() {
		if res.Status != StatusReady && res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.ID, res.Err))
		}
	}
	return errors.Join(errs...)
}

// RunOption configures Run.
type RunOption func(*runConfig)

type runConfig struct {
	concurrency int64
	listener    Listener
	now         func() time.Time
}

// WithConcurrency bounds how many nodes apply at the same time. Values
// below one mean unbounded.
func WithConcurrency(n int) RunOption {
	return func(c *runConfig) {
		c.concurrency = int64(n)
	}
}

// WithListener registers a listener for node transitions.
func WithListener(l Listener) RunOption {
	return func(c *runConfig) {
		c.listener = l
	}
}

type nopListener struct{}

func (nopListener) NodeStarted(Node)          {}
func (nopListener) NodeFinished(Node, Result) {}

// Run applies every node once all of its dependencies are ready. Independent
// nodes run concurrently. A node failure never stops unrelated nodes; nodes
// downstream of it are reported as StatusBlocked without being applied.
//
// Run returns an error only if the graph is invalid; node failures are
// recorded in the report.
func (g *Graph) Run(ctx context.Context, opts ...RunOption) (*Report, error) {
	cfg := &runConfig{listener: nopListener{}, now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	var sem *semaphore.Weighted
	if cfg.concurrency > 0 {
		sem = semaphore.NewWeighted(cfg.concurrency)
	}

	var mu sync.Mutex
	results := make(map[string]Result, len(order))
	done := make(map[string]chan struct{}, len(order))
	for _, id := range order {
		done[id] = make(chan struct{})
		n := g.nodes[id]
		results[id] = Result{ID: id, Kind: n.Kind, Status: StatusPending}
	}

	record := func(res Result) {
		mu.Lock()
		results[res.ID] = res
		mu.Unlock()
	}
	lookup := func(id string) Result {
		mu.Lock()
		defer mu.Unlock()
		return results[id]
	}

	// Node goroutines never return errors: failures are part of the report.
	var eg errgroup.Group
	for _, id := range order {
		n := *g.nodes[id]
		eg.Go(func() error {
			defer close(done[n.ID])
			res := g.runNode(ctx, cfg, sem, n, done, lookup)
			record(res)
			cfg.listener.NodeFinished(n, res)
			return nil
		})
	}
	_ = eg.Wait()

	return &Report{Order: order, Results: results}, nil
}

func (g *Graph) runNode(
	ctx context.Context,
	cfg *runConfig,
	sem *semaphore.Weighted,
	n Node,
	done map[string]chan struct{},
	lookup func(string) Result,
) Result {
	res := Result{ID: n.ID, Kind: n.Kind}

	for _, dep := range n.DependsOn {
		<-done[dep]
	}

	cancelledDep := false
	for _, dep := range n.DependsOn {
		switch st := lookup(dep).Status; st {
		case StatusReady:
		case StatusCancelled:
			cancelledDep = true
		default:
			res.Status = StatusBlocked
			res.Err = &BlockedError{Node: n.ID, Dependency: dep, Status: st}
			return res
		}
	}
	if cancelledDep || ctx.Err() != nil {
		res.Status = StatusCancelled
		res.Err = cancelCause(ctx)
		return res
	}

	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			res.Status = StatusCancelled
			res.Err = cancelCause(ctx)
			return res
		}
		defer sem.Release(1)
	}

	res.Started = cfg.now()
	cfg.listener.NodeStarted(n)
	err := n.Apply(ctx)
	res.Finished = cfg.now()

	switch {
	case err == nil:
		res.Status = StatusReady
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		res.Status = StatusCancelled
		res.Err = err
	default:
		res.Status = StatusFailed
		res.Err = err
	}
	return res
}

func cancelCause(ctx context.Context) error {
	if err := context.Cause(ctx); err != nil {
		return err
	}
	return context.Canceled
}
