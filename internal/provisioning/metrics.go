package provisioning

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/imamik/eksforge/internal/provisioning/graph"
)

// Metrics records per-resource apply results. A nil *Metrics records
// nothing.
type Metrics struct {
	applies    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	lastResult *prometheus.GaugeVec
	resources  *prometheus.GaugeVec
}

// NewMetrics creates the deployment metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		applies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eksforge",
				Subsystem: "deploy",
				Name:      "resource_applies_total",
				Help:      "Total number of resource applies by kind and terminal status",
			},
			[]string{"kind", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "eksforge",
				Subsystem: "deploy",
				Name:      "resource_apply_duration_seconds",
				Help:      "Duration of resource applies in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
			},
			[]string{"kind"},
		),
		lastResult: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "eksforge",
				Subsystem: "deploy",
				Name:      "last_success",
				Help:      "Whether the last deployment of a cluster succeeded (1) or not (0)",
			},
			[]string{"cluster"},
		),
		resources: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "eksforge",
				Subsystem: "deploy",
				Name:      "resources",
				Help:      "Resources of the last deployment by terminal status",
			},
			[]string{"cluster", "status"},
		),
	}
	reg.MustRegister(m.applies, m.duration, m.lastResult, m.resources)
	return m
}

// ObserveResult records the terminal state of one resource.
func (m *Metrics) ObserveResult(r graph.Result) {
	if m == nil {
		return
	}
	m.applies.WithLabelValues(r.Kind, string(r.Status)).Inc()
	if d := r.Duration(); d > 0 {
		m.duration.WithLabelValues(r.Kind).Observe(d.Seconds())
	}
}

// ObserveReport records the outcome of a whole deployment.
func (m *Metrics) ObserveReport(cluster string, report *graph.Report) {
	if m == nil || report == nil {
		return
	}
	for _, s := range []graph.Status{graph.StatusReady, graph.StatusFailed, graph.StatusBlocked, graph.StatusCancelled} {
		m.resources.WithLabelValues(cluster, string(s)).Set(float64(report.Count(s)))
	}
	if report.Succeeded() {
		m.lastResult.WithLabelValues(cluster).Set(1)
	} else {
		m.lastResult.WithLabelValues(cluster).Set(0)
	}
}
