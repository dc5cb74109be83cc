package provisioning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/eksforge/internal/provisioning/graph"
)

func TestMetrics_ObserveResult(t *testing.T) {
	t.Parallel()
	m := NewMetrics(prometheus.NewRegistry())
	now := time.Now()

	m.ObserveResult(graph.Result{ID: "addon/coredns", Kind: "addon", Status: graph.StatusReady, Started: now, Finished: now.Add(3 * time.Second)})
	m.ObserveResult(graph.Result{ID: "addon/vpc-cni", Kind: "addon", Status: graph.StatusFailed, Started: now, Finished: now.Add(time.Second)})
	m.ObserveResult(graph.Result{ID: "chart/x", Kind: "chart", Status: graph.StatusBlocked})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.applies.WithLabelValues("addon", "ready")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.applies.WithLabelValues("addon", "failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.applies.WithLabelValues("chart", "blocked")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestMetrics_ObserveReport(t *testing.T) {
	t.Parallel()
	m := NewMetrics(prometheus.NewRegistry())

	g := graph.New()
	require.NoError(t, g.Add(graph.Node{ID: "a", Apply: func(context.Context) error { return nil }}))
	require.NoError(t, g.Add(graph.Node{ID: "b", Apply: func(context.Context) error { return errors.New("x") }}))
	report, err := g.Run(context.Background())
	require.NoError(t, err)

	m.ObserveReport("demo", report)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.lastResult.WithLabelValues("demo")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.resources.WithLabelValues("demo", "failed")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.ObserveResult(graph.Result{Kind: "x", Status: graph.StatusReady})
	m.ObserveReport("demo", &graph.Report{})
}
