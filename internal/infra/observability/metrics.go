package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	upstreamErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	forcedLogouts   prometheus.Counter
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "surplus_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		upstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surplus_upstream_errors_total",
				Help: "Total errors from the marketplace API.",
			},
			[]string{"endpoint"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surplus_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surplus_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surplus_transaction_transitions_total",
				Help: "Total transaction status transitions by outcome.",
			},
			[]string{"to", "outcome"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surplus_notifications_total",
				Help: "Total notifications dispatched into feeds.",
			},
			[]string{"type"},
		),
		forcedLogouts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "surplus_forced_logouts_total",
				Help: "Sessions cleared by the global 401/403 policy.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrUpstreamError increments the upstream error counter.
func (m *Metrics) IncrUpstreamError(endpoint string) {
	m.upstreamErrors.WithLabelValues(endpoint).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrTransition records a transaction transition attempt.
func (m *Metrics) IncrTransition(to, outcome string) {
	m.transitions.WithLabelValues(to, outcome).Inc()
}

// IncrNotification records a dispatched notification.
func (m *Metrics) IncrNotification(kind string) {
	m.notifications.WithLabelValues(kind).Inc()
}

// IncrForcedLogout records a session cleared by the 401/403 policy.
func (m *Metrics) IncrForcedLogout() {
	m.forcedLogouts.Inc()
}

// Snapshot is a point-in-time view of gateway counters for the ops
// endpoint.
type Snapshot struct {
	CacheHitRate         float64 `json:"cacheHitRate"`
	UpstreamErrors       float64 `json:"upstreamErrors"`
	AcceptedTransactions float64 `json:"acceptedTransactions"`
	RejectedTransactions float64 `json:"rejectedTransactions"`
	NotificationsTotal   float64 `json:"notificationsTotal"`
	ForcedLogouts        float64 `json:"forcedLogouts"`
}

// GetSnapshot gathers current counter values. Prometheus counters expose
// cumulative values, so rates are computed over process lifetime.
func (m *Metrics) GetSnapshot() *Snapshot {
	hits := counterValue(m.cacheHits.WithLabelValues("products")) +
		counterValue(m.cacheHits.WithLabelValues("companies"))
	misses := counterValue(m.cacheMisses.WithLabelValues("products")) +
		counterValue(m.cacheMisses.WithLabelValues("companies"))

	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	var upstream float64
	mfs, err := m.Registry.Gather()
	if err == nil {
		for _, mf := range mfs {
			if mf.GetName() == "surplus_upstream_errors_total" {
				for _, mm := range mf.GetMetric() {
					upstream += mm.GetCounter().GetValue()
				}
			}
		}
	}

	return &Snapshot{
		CacheHitRate:         hitRate,
		UpstreamErrors:       upstream,
		AcceptedTransactions: counterValue(m.transitions.WithLabelValues("ACCEPTED", "ok")),
		RejectedTransactions: counterValue(m.transitions.WithLabelValues("CANCELLED", "ok")),
		NotificationsTotal:   counterValue(m.notifications.WithLabelValues("NEW_LISTING")) + counterValue(m.notifications.WithLabelValues("TRANSACTION_UPDATE")) + counterValue(m.notifications.WithLabelValues("DELIVERY_UPDATE")),
		ForcedLogouts:        counterValue(m.forcedLogouts),
	}
}

// counterValue extracts the current float64 value from a prometheus counter.
func counterValue(c prometheus.Counter) float64 {
	msg := &dto.Metric{}
	if err := c.Write(msg); err != nil {
		return 0
	}
	if msg.Counter != nil && msg.Counter.Value != nil {
		return *msg.Counter.Value
	}
	return 0
}
