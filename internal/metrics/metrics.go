// Package metrics exposes dialer counters and gauges to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ProductBay/vynce/internal/domain"
)

// Collector owns every dialer metric.
type Collector struct {
	registry *prometheus.Registry

	placements       *prometheus.CounterVec
	placementLatency prometheus.Histogram
	transitions      *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	batches          *prometheus.CounterVec
	batchCalls       *prometheus.CounterVec
	queueLength      prometheus.Gauge
	running          prometheus.Gauge
	eventsDropped    prometheus.Counter
}

// NewCollector registers the dialer metrics on a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		placements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vynce",
			Name:      "call_placements_total",
			Help:      "Outbound call placement attempts by result.",
		}, []string{"result"}),
		placementLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vynce",
			Name:      "call_placement_seconds",
			Help:      "Latency of the provider placement request.",
			Buckets:   prometheus.DefBuckets,
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vynce",
			Name:      "call_status_transitions_total",
			Help:      "Applied call status transitions by target status.",
		}, []string{"status"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vynce",
			Name:      "webhook_events_total",
			Help:      "Provider webhook deliveries by kind and outcome.",
		}, []string{"kind", "outcome"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vynce",
			Name:      "bulk_batches_total",
			Help:      "Bulk batches by how they finished.",
		}, []string{"result"}),
		batchCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vynce",
			Name:      "bulk_calls_total",
			Help:      "Bulk entries processed by result.",
		}, []string{"result"}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vynce",
			Name:      "bulk_queue_length",
			Help:      "Entries waiting in the bulk queue.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vynce",
			Name:      "bulk_running",
			Help:      "1 while a bulk batch is being drained.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vynce",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a subscriber or the mirror was full.",
		}),
	}

	c.registry.MustRegister(
		c.placements,
		c.placementLatency,
		c.transitions,
		c.webhookEvents,
		c.batches,
		c.batchCalls,
		c.queueLength,
		c.running,
		c.eventsDropped,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObservePlacement records one provider placement attempt.
func (c *Collector) ObservePlacement(ok bool, elapsed time.Duration) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.placements.WithLabelValues(result).Inc()
	c.placementLatency.Observe(elapsed.Seconds())
}

// ObserveTransition counts an applied status change.
func (c *Collector) ObserveTransition(status domain.CallStatus) {
	c.transitions.WithLabelValues(string(status)).Inc()
}

// ObserveWebhook counts a webhook delivery.
func (c *Collector) ObserveWebhook(kind, outcome string) {
	c.webhookEvents.WithLabelValues(kind, outcome).Inc()
}

// BatchStarted flips the running gauge on.
func (c *Collector) BatchStarted() {
	c.running.Set(1)
}

// BatchFinished records the outcome of a drained batch.
func (c *Collector) BatchFinished(success, failed int, stopped bool) {
	c.running.Set(0)
	result := "completed"
	if stopped {
		result = "stopped"
	}
	c.batches.WithLabelValues(result).Inc()
	c.batchCalls.WithLabelValues("success").Add(float64(success))
	c.batchCalls.WithLabelValues("failed").Add(float64(failed))
}

// SetQueueLength updates the pending queue gauge.
func (c *Collector) SetQueueLength(n int) {
	c.queueLength.Set(float64(n))
}

// AddDroppedEvents counts events the publisher had to discard.
func (c *Collector) AddDroppedEvents(n uint64) {
	c.eventsDropped.Add(float64(n))
}
