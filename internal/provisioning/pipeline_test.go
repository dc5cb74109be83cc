package provisioning

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/eksforge/internal/config"
	"github.com/imamik/eksforge/internal/provisioning/graph"
)

// phaseFunc adapts a function to the Phase interface.
type phaseFunc struct {
	name string
	fn   func(ctx *Context) error
}

func (p phaseFunc) Name() string                 { return p.name }
func (p phaseFunc) Provision(ctx *Context) error { return p.fn(ctx) }

func testContext(t *testing.T) (*Context, *MockObserver) {
	t.Helper()
	observer := NewMockObserver()
	return &Context{
		Context:    context.Background(),
		Descriptor: testDescriptor(t),
		Env:        config.Environment{Region: "eu-west-1"},
		State:      NewState(),
		Observer:   observer,
		Timeouts:   config.FastTimeouts(),
	}, observer
}

func TestRunPhases_Sequential(t *testing.T) {
	t.Parallel()
	ctx, observer := testContext(t)
	var executed []string
	record := func(name string) Phase {
		return phaseFunc{name, func(*Context) error { executed = append(executed, name); return nil }}
	}

	err := RunPhases(ctx, []Phase{record("validation"), record("account")})

	require.NoError(t, err)
	assert.Equal(t, []string{"validation", "account"}, executed)
	assert.Len(t, observer.EventsOf(EventPhaseStarted), 2)
}

func TestRunPhases_StopsOnError(t *testing.T) {
	t.Parallel()
	ctx, observer := testContext(t)
	boom := errors.New("boom")
	ran := false

	err := RunPhases(ctx, []Phase{
		phaseFunc{"validation", func(*Context) error { return boom }},
		phaseFunc{"account", func(*Context) error { ran = true; return nil }},
	})

	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "validation phase failed")
	assert.False(t, ran)
	assert.Len(t, observer.EventsOf(EventPhaseFailed), 1)
}

func TestPipeline_RunsInDependencyOrder(t *testing.T) {
	t.Parallel()
	ctx, observer := testContext(t)
	reg := prometheus.NewRegistry()
	ctx.Metrics = NewMetrics(reg)

	var mu sync.Mutex
	var order []string
	record := func(id string) Phase {
		return phaseFunc{id, func(c *Context) error {
			assert.NotNil(t, c.Observer)
			mu.Lock()
			defer mu.Unlock()
			order = append(order, id)
			return nil
		}}
	}

	p := NewPipeline()
	require.NoError(t, p.Add("network/vpc", "network", record("network/vpc")))
	require.NoError(t, p.Add("cluster/demo", "cluster", record("cluster/demo"), "network/vpc"))
	require.NoError(t, p.Add("nodepool/a", "nodepool", record("nodepool/a"), "cluster/demo"))
	require.NoError(t, p.Add("nodepool/b", "nodepool", record("nodepool/b")))
	require.NoError(t, p.DependOn("nodepool/b", "cluster/demo"))

	report, err := p.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Succeeded())
	assert.Equal(t, []string{"network/vpc", "cluster/demo"}, order[:2])
	assert.Len(t, order, 4)

	assert.Len(t, observer.EventsOf(EventResourceApplying), 4)
	ready := observer.EventsOf(EventResourceReady)
	require.Len(t, ready, 4)
	assert.Equal(t, "network", ready[0].Phase)
	assert.Len(t, observer.EventsOf(EventProgress), 4)

	assert.Equal(t, float64(2), testutil.ToFloat64(ctx.Metrics.applies.WithLabelValues("nodepool", "ready")))
}

func TestPipeline_FailureIsReportedPerResource(t *testing.T) {
	t.Parallel()
	ctx, observer := testContext(t)
	boom := errors.New("quota exceeded")

	p := NewPipeline()
	require.NoError(t, p.Add("cluster/demo", "cluster", phaseFunc{"c", func(*Context) error { return nil }}))
	require.NoError(t, p.Add("nodepool/a", "nodepool", phaseFunc{"a", func(*Context) error { return boom }}, "cluster/demo"))
	require.NoError(t, p.Add("nodepool/b", "nodepool", phaseFunc{"b", func(*Context) error { return nil }}, "cluster/demo"))
	require.NoError(t, p.Add("chart/x", "chart", phaseFunc{"x", func(*Context) error { return nil }}, "nodepool/a"))

	report, err := p.Run(ctx)
	require.NoError(t, err)

	b, _ := report.Get("nodepool/b")
	assert.Equal(t, graph.StatusReady, b.Status)
	a, _ := report.Get("nodepool/a")
	assert.Equal(t, graph.StatusFailed, a.Status)
	x, _ := report.Get("chart/x")
	assert.Equal(t, graph.StatusBlocked, x.Status)

	assert.Len(t, observer.EventsOf(EventResourceFailed), 1)
	assert.Len(t, observer.EventsOf(EventResourceBlocked), 1)
}

// transitionRecorder is a graph.Listener keeping every transition.
type transitionRecorder struct {
	mu       sync.Mutex
	started  []string
	finished map[string]graph.Status
}

func (r *transitionRecorder) NodeStarted(n graph.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, n.ID)
}

func (r *transitionRecorder) NodeFinished(n graph.Node, res graph.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[n.ID] = res.Status
}

func TestPipeline_ForwardsTransitionsToListener(t *testing.T) {
	t.Parallel()
	ctx, observer := testContext(t)
	rec := &transitionRecorder{finished: make(map[string]graph.Status)}
	ctx.Listener = rec

	p := NewPipeline()
	require.NoError(t, p.Add("network/vpc", "network", phaseFunc{"n", func(*Context) error { return errors.New("vpc limit exceeded") }}))
	require.NoError(t, p.Add("cluster/demo", "cluster", phaseFunc{"c", func(*Context) error { return nil }}, "network/vpc"))

	_, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"network/vpc"}, rec.started)
	assert.Equal(t, map[string]graph.Status{
		"network/vpc":  graph.StatusFailed,
		"cluster/demo": graph.StatusBlocked,
	}, rec.finished)
	assert.Len(t, observer.EventsOf(EventResourceBlocked), 1, "observer still sees every transition")
}

func TestPipeline_InvalidGraphIsConfigurationError(t *testing.T) {
	t.Parallel()
	ctx, _ := testContext(t)
	noop := phaseFunc{"noop", func(*Context) error { return nil }}

	p := NewPipeline()
	require.NoError(t, p.Add("a", "x", noop, "b"))
	require.NoError(t, p.Add("b", "x", noop, "a"))

	_, err := p.Run(ctx)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	assert.Error(t, NewPipeline().Add("c", "x", nil))
}

func TestPipeline_ResourceFieldOnObserver(t *testing.T) {
	t.Parallel()
	ctx, observer := testContext(t)

	p := NewPipeline()
	require.NoError(t, p.Add("network/vpc", "network", phaseFunc{"n", func(c *Context) error {
		LogResourceCreating(c.Observer, "network", "vpc", "vpc")
		return nil
	}}))
	_, err := p.Run(ctx)
	require.NoError(t, err)

	creating := observer.EventsOf(EventResourceCreating)
	require.Len(t, creating, 1)
	assert.Equal(t, "network/vpc", creating[0].Fields["resource"])
}
