// Package metrics exposes queue and sync metrics for the agent's /metrics
// endpoint.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/melicheck/fieldsync/internal/events"
)

// Metrics holds the agent's prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	pendingVisits prometheus.Gauge
	pendingOrders prometheus.Gauge
	syncRecords   *prometheus.CounterVec
	syncPasses    *prometheus.CounterVec
	dataPulls     prometheus.Counter
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.pendingVisits = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fieldsync_pending_visits",
		Help: "Unsynced check-ins waiting in the outbound queue.",
	})
	m.pendingOrders = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fieldsync_pending_orders",
		Help: "Unsynced orders waiting in the outbound queue.",
	})
	m.syncRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldsync_sync_records_total",
		Help: "Queue records processed by drains, by outcome.",
	}, []string{"outcome"})
	m.syncPasses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldsync_sync_passes_total",
		Help: "Sync passes, by result.",
	}, []string{"result"})
	m.dataPulls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fieldsync_reference_pulls_total",
		Help: "Reference data refreshes completed.",
	})

	m.registry.MustRegister(m.pendingVisits, m.pendingOrders, m.syncRecords, m.syncPasses, m.dataPulls)
	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe updates the collectors from bus events until ctx is done.
func (m *Metrics) Observe(ctx context.Context, bus *events.Bus) {
	ch, cancel := bus.Subscribe(
		events.TopicQueueUpdated,
		events.TopicSyncCompleted,
		events.TopicSyncFailed,
		events.TopicDataRefreshed,
	)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			m.apply(evt)
		}
	}
}

func (m *Metrics) apply(evt events.Event) {
	switch evt.Topic {
	case events.TopicQueueUpdated:
		if v, ok := asFloat(evt.Data["visits"]); ok {
			m.pendingVisits.Set(v)
		}
		if v, ok := asFloat(evt.Data["orders"]); ok {
			m.pendingOrders.Set(v)
		}
	case events.TopicSyncCompleted:
		m.syncPasses.WithLabelValues("completed").Inc()
		if v, ok := asFloat(evt.Data["success"]); ok {
			m.syncRecords.WithLabelValues("success").Add(v)
		}
		if v, ok := asFloat(evt.Data["failed"]); ok {
			m.syncRecords.WithLabelValues("failed").Add(v)
		}
		if v, ok := asFloat(evt.Data["skipped"]); ok {
			m.syncRecords.WithLabelValues("skipped").Add(v)
		}
	case events.TopicSyncFailed:
		m.syncPasses.WithLabelValues("failed").Inc()
	case events.TopicDataRefreshed:
		m.dataPulls.Inc()
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
