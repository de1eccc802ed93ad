package metricsvc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pan-thu/lets-talk-sub000/core"
)

// Prometheus implements core.Metrics.
type Prometheus struct {
	transitionsTotal         *prometheus.CounterVec
	rejectedTransitionsTotal *prometheus.CounterVec
	progressRecompute        prometheus.Histogram
	sessionStatusTotal       *prometheus.CounterVec
}

var _ core.Metrics = (*Prometheus)(nil)

func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	factory := promauto.With(reg)

	return &Prometheus{
		transitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_transitions_total",
			Help:      "Applied enrollment and payment status transitions.",
		}, []string{"entity", "from", "to"}),

		rejectedTransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_rejected_transitions_total",
			Help:      "Transitions refused by the transition table.",
		}, []string{"entity", "from", "event"}),

		progressRecompute: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "progress_recompute_duration_seconds",
			Help:      "Latency of progress recomputations.",
			Buckets:   prometheus.DefBuckets,
		}),

		sessionStatusTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_session_status_total",
			Help:      "Derived live session statuses served to viewers.",
		}, []string{"status"}),
	}
}

func (m *Prometheus) RecordTransition(entity, from, to string) {
	m.transitionsTotal.WithLabelValues(entity, from, to).Inc()
}

func (m *Prometheus) RecordRejectedTransition(entity, from, event string) {
	m.rejectedTransitionsTotal.WithLabelValues(entity, from, event).Inc()
}

func (m *Prometheus) RecordProgressRecompute(d time.Duration) {
	m.progressRecompute.Observe(d.Seconds())
}

func (m *Prometheus) RecordSessionStatus(status string) {
	m.sessionStatusTotal.WithLabelValues(status).Inc()
}
