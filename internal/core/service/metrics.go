package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "inventory"

// Shipment outcomes as reported in the result label.
const (
	resultCommitted         = "committed"
	resultMalformed         = "malformed_request"
	resultItemNotFound      = "item_not_found"
	resultInsufficientStock = "insufficient_stock"
	resultCommitConflict    = "commit_conflict"
	resultStoreUnavailable  = "store_unavailable"
	resultDuplicate         = "duplicate_request"
	resultError             = "error"
)

type Metrics struct {
	shipments      *prometheus.CounterVec
	shippedUnits   prometheus.Counter
	commitDuration prometheus.Histogram
	cacheRefreshes *prometheus.CounterVec
	invalidations  prometheus.Counter
}

// NewMetrics registers the service collectors on reg. A nil *Metrics is valid
// and records nothing.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		shipments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "shipment_requests_total",
			Help:      "Shipment requests by outcome.",
		}, []string{"result"}),
		shippedUnits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "shipped_units_total",
			Help:      "Units removed from stock by committed shipments.",
		}),
		commitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "shipment_commit_duration_seconds",
			Help:      "Time spent in the stock decrement transaction.",
			Buckets:   prometheus.DefBuckets,
		}),
		cacheRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "item_cache_refreshes_total",
			Help:      "Item cache reloads by outcome.",
		}, []string{"result"}),
		invalidations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "item_cache_invalidations_total",
			Help:      "Item cache invalidations.",
		}),
	}
}

func (m *Metrics) shipment(result string) {
	if m == nil {
		return
	}
	m.shipments.WithLabelValues(result).Inc()
}

func (m *Metrics) shipped(units int) {
	if m == nil {
		return
	}
	m.shippedUnits.Add(float64(units))
}

func (m *Metrics) observeCommit(start time.Time) {
	if m == nil {
		return
	}
	m.commitDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) cacheRefresh(result string) {
	if m == nil {
		return
	}
	m.cacheRefreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) cacheInvalidated() {
	if m == nil {
		return
	}
	m.invalidations.Inc()
}
