package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records orchestration counters and latencies. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inflight    prometheus.Gauge
}

// NewMetrics creates the orchestrator collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidyavahini_runs_total",
			Help: "Orchestrated runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vidyavahini_run_duration_seconds",
			Help:    "Wall time of orchestrated runs.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"mode"}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidyavahini_worker_invocations_total",
			Help: "Worker invocations by terminal state.",
		}, []string{"worker", "state"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vidyavahini_worker_duration_seconds",
			Help:    "Worker invocation latency.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"worker"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vidyavahini_worker_inflight",
			Help: "Worker invocations currently executing, including detached ones.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.runDuration, m.invocations, m.duration, m.inflight)
	}
	return m
}

func (m *Metrics) observeRun(mode Mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(mode), outcome).Inc()
	if d > 0 {
		m.runDuration.WithLabelValues(string(mode)).Observe(d.Seconds())
	}
}

func (m *Metrics) observeWorker(worker string, state State, d time.Duration) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(worker, string(state)).Inc()
	if state != StateCancelled {
		m.duration.WithLabelValues(worker).Observe(d.Seconds())
	}
}

func (m *Metrics) inflightAdd(delta float64) {
	if m == nil {
		return
	}
	m.inflight.Add(delta)
}
