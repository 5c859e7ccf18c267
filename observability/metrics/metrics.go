// Package metrics exposes the Prometheus collectors of Archon 72's
// long-lived worker loops. The ledger writer, the halt circuit, and the job
// queue update theirs; the Conclave and Three-Fates collectors are
// registered, but no package updates them.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the collectors a process registers once at startup.
type Registry struct {
	LedgerAppends       *prometheus.CounterVec
	LedgerAppendLatency *prometheus.HistogramVec
	HaltState           prometheus.Gauge
	ConclavePhase       *prometheus.GaugeVec
	ConclavePhaseSecs   *prometheus.HistogramVec
	JobQueueDepth       *prometheus.GaugeVec
	JobAttempts         *prometheus.CounterVec
	DeliberationOutcome *prometheus.CounterVec
}

var (
	once     sync.Once
	registry *Registry
)

// Default returns the lazily-initialised, process-wide metrics registry.
func Default() *Registry {
	once.Do(func() {
		registry = &Registry{
			LedgerAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "archon72",
				Subsystem: "ledger",
				Name:      "appends_total",
				Help:      "Total ledger append attempts segmented by branch and outcome.",
			}, []string{"branch", "outcome"}),
			LedgerAppendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "archon72",
				Subsystem: "ledger",
				Name:      "append_duration_seconds",
				Help:      "Latency distribution for ledger append commits.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"branch"}),
			HaltState: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "archon72",
				Subsystem: "halt",
				Name:      "is_halted",
				Help:      "1 when the halt circuit is tripped, 0 otherwise.",
			}),
			ConclavePhase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "archon72",
				Subsystem: "conclave",
				Name:      "active_phase",
				Help:      "1 for the currently active phase of a Conclave session, keyed by phase.",
			}, []string{"session_id", "phase"}),
			ConclavePhaseSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "archon72",
				Subsystem: "conclave",
				Name:      "phase_duration_seconds",
				Help:      "Wall-clock duration of each Conclave phase.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"phase"}),
			JobQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "archon72",
				Subsystem: "jobqueue",
				Name:      "depth",
				Help:      "Pending job count segmented by job type.",
			}, []string{"job_type"}),
			JobAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "archon72",
				Subsystem: "jobqueue",
				Name:      "attempts_total",
				Help:      "Job handler attempts segmented by job type and outcome.",
			}, []string{"job_type", "outcome"}),
			DeliberationOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "archon72",
				Subsystem: "fates",
				Name:      "outcomes_total",
				Help:      "Three-Fates deliberation outcomes segmented by disposition.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			registry.LedgerAppends,
			registry.LedgerAppendLatency,
			registry.HaltState,
			registry.ConclavePhase,
			registry.ConclavePhaseSecs,
			registry.JobQueueDepth,
			registry.JobAttempts,
			registry.DeliberationOutcome,
		)
	})
	return registry
}

// ObserveLedgerAppend records the outcome and latency of a ledger append.
func (r *Registry) ObserveLedgerAppend(branch, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.LedgerAppends.WithLabelValues(branch, outcome).Inc()
	r.LedgerAppendLatency.WithLabelValues(branch).Observe(d.Seconds())
}

// SetHalted updates the halt-state gauge.
func (r *Registry) SetHalted(halted bool) {
	if r == nil {
		return
	}
	if halted {
		r.HaltState.Set(1)
		return
	}
	r.HaltState.Set(0)
}
