package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"cyclegc/pkg/memory"
)

const (
	namespace = "cyclegc"
	subsystem = "collector"
)

// CollectorMetrics holds metrics for one collector. It implements
// memory.Observer, so it is installed with memory.WithObserver.
type CollectorMetrics struct {
	// EventsApplied counts events applied by ProcessEvents.
	EventsApplied prometheus.Counter

	// ProcessDuration tracks how long each ProcessEvents batch took.
	ProcessDuration prometheus.Histogram

	// Passes counts finished collection passes.
	Passes prometheus.Counter

	// NodesReclaimed counts reclaimed nodes across all passes.
	NodesReclaimed prometheus.Counter

	// CyclesReclaimed counts garbage cycles (strongly connected components
	// of size > 1 or self-loops) across all passes.
	CyclesReclaimed prometheus.Counter

	// Finalized counts finalizers run.
	Finalized prometheus.Counter

	// Candidates is the number of root-count-zero nodes seen by the last pass.
	Candidates prometheus.Gauge

	// LiveCandidates is the number of those candidates kept alive by edges.
	LiveCandidates prometheus.Gauge

	// CollectDuration tracks wall time per pass, finalizers included.
	CollectDuration prometheus.Histogram

	// Violations counts protocol violations by error code.
	Violations *prometheus.CounterVec

	// NodesLive and PendingEvents are sampled by RecordStats.
	NodesLive     prometheus.Gauge
	PendingEvents prometheus.Gauge
}

var _ memory.Observer = (*CollectorMetrics)(nil)

// NewCollectorMetrics creates and registers collector metrics.
// Uses promauto for automatic registration with the default registry.
// The collector name becomes a constant "collector" label.
func NewCollectorMetrics(collector string) *CollectorMetrics {
	return NewCollectorMetricsWithRegistry(prometheus.DefaultRegisterer, collector)
}

// NewCollectorMetricsWithRegistry creates metrics registered with a custom
// registry. Useful for testing to avoid conflicts with the default registry.
func NewCollectorMetricsWithRegistry(reg prometheus.Registerer, collector string) *CollectorMetrics {
	labels := prometheus.Labels{"collector": collector}
	factory := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}
	histogram := func(name, help string, buckets []float64) prometheus.Histogram {
		return factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
			Buckets:     buckets,
		})
	}

	return &CollectorMetrics{
		EventsApplied: counter("events_applied_total",
			"Total number of AddRoot/RemoveRoot/Connect/Disconnect events applied."),
		ProcessDuration: histogram("process_duration_seconds",
			"Time spent applying one batch of queued events.",
			prometheus.ExponentialBuckets(0.00001, 4, 10)),
		Passes: counter("passes_total",
			"Total number of collection passes."),
		NodesReclaimed: counter("nodes_reclaimed_total",
			"Total number of nodes reclaimed."),
		CyclesReclaimed: counter("cycles_reclaimed_total",
			"Total number of garbage cycles reclaimed."),
		Finalized: counter("finalized_total",
			"Total number of finalizers run."),
		Candidates: gauge("candidates",
			"Nodes with root count zero at the start of the last pass."),
		LiveCandidates: gauge("live_candidates",
			"Candidates of the last pass kept alive through edges from rooted nodes."),
		CollectDuration: histogram("collect_duration_seconds",
			"Wall time of one collection pass including finalizers.",
			prometheus.ExponentialBuckets(0.0001, 4, 10)),
		Violations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "violations_total",
			Help:        "Total number of protocol violations by error code.",
			ConstLabels: labels,
		}, []string{"code"}),
		NodesLive: gauge("nodes_live",
			"Tracked nodes not yet reclaimed."),
		PendingEvents: gauge("pending_events",
			"Queued events not yet applied."),
	}
}

// OnProcessEvents records one applied batch.
func (m *CollectorMetrics) OnProcessEvents(applied int, d time.Duration) {
	m.EventsApplied.Add(float64(applied))
	m.ProcessDuration.Observe(d.Seconds())
}

// OnCollect records a finished pass.
func (m *CollectorMetrics) OnCollect(res *memory.Result) {
	m.Passes.Inc()
	m.NodesReclaimed.Add(float64(len(res.Reclaimed)))
	m.CyclesReclaimed.Add(float64(len(res.Cycles)))
	m.Finalized.Add(float64(res.Finalized))
	m.Candidates.Set(float64(res.Candidates))
	m.LiveCandidates.Set(float64(res.Live))
	m.CollectDuration.Observe(res.Duration.Seconds())
}

// OnViolation records the violation that poisoned the collector.
func (m *CollectorMetrics) OnViolation(err error) {
	code := "UNKNOWN"
	var e *memory.Error
	if errors.As(err, &e) {
		code = string(e.Code)
	}
	m.Violations.WithLabelValues(code).Inc()
}

// RecordStats samples the point-in-time gauges from a stats snapshot.
func (m *CollectorMetrics) RecordStats(s memory.Stats) {
	m.NodesLive.Set(float64(s.NodesLive))
	m.PendingEvents.Set(float64(s.Pending))
}
