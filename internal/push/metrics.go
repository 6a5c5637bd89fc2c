package push

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the dispatcher's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	deliveries    *prometheus.CounterVec
	pruned        prometheus.Counter
	pruneFailures prometheus.Counter
	dedupHits     prometheus.Counter
	duration      prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "push_deliveries_total",
			Help: "Push delivery attempts by outcome (sent, gone, failed).",
		}, []string{"outcome"}),
		pruned: f.NewCounter(prometheus.CounterOpts{
			Name: "push_pruned_subscriptions_total",
			Help: "Subscriptions deleted after a permanent-gone response.",
		}),
		pruneFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "push_prune_failures_total",
			Help: "Batch prune operations that failed.",
		}),
		dedupHits: f.NewCounter(prometheus.CounterOpts{
			Name: "push_dedup_hits_total",
			Help: "Webhook deliveries short-circuited as duplicates.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "push_dispatch_duration_seconds",
			Help:    "Time to fan a notification out to all of its subscriptions.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) delivery(o outcome) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(o.String()).Inc()
}

func (m *Metrics) prune(n int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.pruneFailures.Inc()
		return
	}
	m.pruned.Add(float64(n))
}

// DuplicateHit counts one webhook short-circuited by the dedup cache.
func (m *Metrics) DuplicateHit() {
	if m == nil {
		return
	}
	m.dedupHits.Inc()
}

func (m *Metrics) observe(start time.Time) {
	if m == nil {
		return
	}
	m.duration.Observe(time.Since(start).Seconds())
}
