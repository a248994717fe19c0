// Package metrics exposes Prometheus metrics for fetches, passes and deliveries.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "skuwatch"

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	FetchesTotal       *prometheus.CounterVec
	ResolutionsTotal   *prometheus.CounterVec
	PollOutcomesTotal  *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	DeliveriesTotal    *prometheus.CounterVec
	StoreFailureRatio  *prometheus.GaugeVec
	PassDuration       *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates and registers the collectors on reg. A nil reg uses a fresh
// registry so that tests can build many instances.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		FetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_fetches_total",
			Help:      "Store page fetches by store and status",
		}, []string{"store", "status"}),
		ResolutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Product resolutions by store and source (cache or web)",
		}, []string{"store", "source"}),
		PollOutcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_outcomes_total",
			Help:      "Per item poll outcomes by store (good or failed)",
		}, []string{"store", "outcome"}),
		NotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification lines rendered by kind",
		}, []string{"kind"}),
		DeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Subscriber deliveries by result",
		}, []string{"result"}),
		StoreFailureRatio: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_failure_ratio",
			Help:      "Failed over successful checks in the last health window",
		}, []string{"store"}),
		PassDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of scheduled passes",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"pass"}),
		gatherer: reg,
	}
}

func (m *Metrics) Fetch(store, status string) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(store, status).Inc()
}

func (m *Metrics) Resolution(store, source string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(store, source).Inc()
}

func (m *Metrics) PollOutcome(store string, good bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if good {
		outcome = "good"
	}
	m.PollOutcomesTotal.WithLabelValues(store, outcome).Inc()
}

func (m *Metrics) Notification(kind string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) Delivery(result string) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(result).Inc()
}

// FailureRatio records failures/successes for a store; a store with no
// successes reports the failure count.
func (m *Metrics) FailureRatio(store string, successes, failures int) {
	if m == nil {
		return
	}
	ratio := float64(failures)
	if successes > 0 {
		ratio = float64(failures) / float64(successes)
	}
	m.StoreFailureRatio.WithLabelValues(store).Set(ratio)
}

func (m *Metrics) Pass(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.PassDuration.WithLabelValues(name).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
