package graph

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu       sync.Mutex
	started  []string
	finished map[string]Status
}

func newRecordingListener() *recordingListener {
	return &recordingListener{finished: make(map[string]Status)}
}

func (l *recordingListener) NodeStarted(n Node) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, n.ID)
}

func (l *recordingListener) NodeFinished(n Node, r Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finished[n.ID] = r.Status
}

func TestRun_RespectsDependencies(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var applied []string
	record := func(id string) ApplyFunc {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			applied = append(applied, id)
			return nil
		}
	}

	g := New()
	require.NoError(t, g.Add(Node{ID: "chart", DependsOn: []string{"identity"}, Apply: record("chart")}))
	require.NoError(t, g.Add(Node{ID: "identity", DependsOn: []string{"federation"}, Apply: record("identity")}))
	require.NoError(t, g.Add(Node{ID: "federation", DependsOn: []string{"cluster"}, Apply: record("federation")}))
	require.NoError(t, g.Add(Node{ID: "cluster", DependsOn: []string{"network"}, Apply: record("cluster")}))
	require.NoError(t, g.Add(Node{ID: "network", Apply: record("network")}))

	listener := newRecordingListener()
	report, err := g.Run(context.Background(), WithListener(listener))
	require.NoError(t, err)

	assert.True(t, report.Succeeded())
	assert.NoError(t, report.Err())
	assert.Equal(t, []string{"network", "cluster", "federation", "identity", "chart"}, applied)
	assert.Equal(t, applied, listener.started)
	assert.Len(t, listener.finished, 5)
	for _, res := range report.InOrder() {
		assert.Equal(t, StatusReady, res.Status, res.ID)
		assert.False(t, res.Started.IsZero())
	}
}

func TestRun_FailureBlocksDependentsOnly(t *testing.T) {
	t.Parallel()
	boom := errors.New("capacity unavailable")
	var chartApplied atomic.Bool

	g := New()
	require.NoError(t, g.Add(Node{ID: "cluster", Kind: "cluster", Apply: noop}))
	require.NoError(t, g.Add(Node{ID: "nodepool/a", Kind: "nodepool", DependsOn: []string{"cluster"}, Apply: func(context.Context) error { return boom }}))
	require.NoError(t, g.Add(Node{ID: "nodepool/b", Kind: "nodepool", DependsOn: []string{"cluster"}, Apply: noop}))
	require.NoError(t, g.Add(Node{ID: "chart/app", Kind: "chart", DependsOn: []string{"nodepool/a"}, Apply: func(context.Context) error {
		chartApplied.Store(true)
		return nil
	}}))

	report, err := g.Run(context.Background())
	require.NoError(t, err)

	a, _ := report.Get("nodepool/a")
	b, _ := report.Get("nodepool/b")
	chart, _ := report.Get("chart/app")

	assert.Equal(t, StatusFailed, a.Status)
	assert.ErrorIs(t, a.Err, boom)
	assert.Equal(t, StatusReady, b.Status)
	assert.Equal(t, StatusBlocked, chart.Status)
	assert.False(t, chartApplied.Load())
	assert.Zero(t, chart.Duration())

	var blocked *BlockedError
	require.ErrorAs(t, chart.Err, &blocked)
	assert.Equal(t, "nodepool/a", blocked.Dependency)
	assert.Equal(t, StatusFailed, blocked.Status)

	assert.False(t, report.Succeeded())
	assert.Equal(t, 1, report.Count(StatusFailed))
	assert.Equal(t, 1, report.Count(StatusBlocked))
	assert.ErrorIs(t, report.Err(), boom)
}

func TestRun_BlockedPropagates(t *testing.T) {
	t.Parallel()
	g := New()
	require.NoError(t, g.Add(Node{ID: "a", Apply: func(context.Context) error { return errors.New("fail") }}))
	require.NoError(t, g.Add(Node{ID: "b", DependsOn: []string{"a"}, Apply: noop}))
	require.NoError(t, g.Add(Node{ID: "c", DependsOn: []string{"b"}, Apply: noop}))

	report, err := g.Run(context.Background())
	require.NoError(t, err)

	c, _ := report.Get("c")
	assert.Equal(t, StatusBlocked, c.Status)
	var blocked *BlockedError
	require.ErrorAs(t, c.Err, &blocked)
	assert.Equal(t, StatusBlocked, blocked.Status)
}

func TestRun_IndependentNodesRunConcurrently(t *testing.T) {
	t.Parallel()
	var current, peak atomic.Int32
	work := func(context.Context) error {
		c := current.Add(1)
		for {
			old := peak.Load()
			if c <= old || peak.CompareAndSwap(old, c) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		current.Add(-1)
		return nil
	}

	g := New()
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5", "p6"} {
		require.NoError(t, g.Add(Node{ID: id, Apply: work}))
	}

	_, err := g.Run(context.Background(), WithConcurrency(3))
	require.NoError(t, err)
	assert.Equal(t, int32(3), peak.Load())
}

func TestRun_CancellationStopsScheduling(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	var laterApplied atomic.Bool

	g := New()
	require.NoError(t, g.Add(Node{ID: "slow", Apply: func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}}))
	require.NoError(t, g.Add(Node{ID: "later", DependsOn: []string{"slow"}, Apply: func(context.Context) error {
		laterApplied.Store(true)
		return nil
	}}))

	report, err := g.Run(ctx)
	require.NoError(t, err)

	slow, _ := report.Get("slow")
	later, _ := report.Get("later")
	assert.Equal(t, StatusCancelled, slow.Status)
	assert.Equal(t, StatusCancelled, later.Status)
	assert.ErrorIs(t, later.Err, context.Canceled)
	assert.False(t, laterApplied.Load())
}

func TestRun_InvalidGraph(t *testing.T) {
	t.Parallel()
	g := New()
	require.NoError(t, g.Add(Node{ID: "a", DependsOn: []string{"b"}, Apply: noop}))
	require.NoError(t, g.Add(Node{ID: "b", DependsOn: []string{"a"}, Apply: noop}))

	report, err := g.Run(context.Background())
	assert.Nil(t, report)
	var cycle *CycleError
	assert.ErrorAs(t, err, &cycle)
}

func TestRun_PromiseGatedByEdge(t *testing.T) {
	t.Parallel()
	issuer := NewPromise[string]("issuer")
	var observed string

	g := New()
	require.NoError(t, g.Add(Node{ID: "federation", Apply: func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		issuer.Resolve("https://oidc.example/id/1")
		return nil
	}}))
	require.NoError(t, g.Add(Node{ID: "identity", DependsOn: []string{"federation"}, Apply: func(context.Context) error {
		v, err := issuer.Get()
		observed = v
		return err
	}}))

	report, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Succeeded())
	assert.Equal(t, "https://oidc.example/id/1", observed)
}
