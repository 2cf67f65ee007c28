// Package metrics exposes worker activity as Prometheus metrics.
//
//   - worker_events_created_total{type}: WorkerEvents persisted
//   - worker_event_deliveries_total{result}: delivery attempts, result is
//     success, rejected (collector answered >= 300) or transport
//   - worker_event_delivery_seconds: delivery attempt latency
//   - messages_handled_total{message,result}: bus handler runs
//   - application_state{state}: 1 for the current application state, 0
//     for the others, computed when scraped
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/testworker/internal/callback"
	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/progress"
)

// Delivery results.
const (
	ResultSuccess   = "success"
	ResultRejected  = "rejected"
	ResultTransport = "transport"
	ResultError     = "error"
)

// Collector records worker metrics into its own registry.
//
// It satisfies engine.Observer, callback.CreationObserver and
// callback.DeliveryObserver.
type Collector struct {
	registry *prometheus.Registry

	eventsCreated   *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	deliveryLatency prometheus.Histogram
	messagesHandled *prometheus.CounterVec
}

// NewCollector creates a Collector. When app is non-nil the
// application_state gauge is registered and evaluated on every scrape.
func NewCollector(app *progress.Application, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		eventsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_events_created_total",
			Help: "Total number of WorkerEvents created",
		}, []string{"type"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_event_deliveries_total",
			Help: "Total number of WorkerEvent delivery attempts",
		}, []string{"result"}),
		deliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_event_delivery_seconds",
			Help:    "WorkerEvent delivery attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		messagesHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_handled_total",
			Help: "Total number of bus messages handled",
		}, []string{"message", "result"}),
	}

	c.registry.MustRegister(
		c.eventsCreated,
		c.deliveries,
		c.deliveryLatency,
		c.messagesHandled,
	)
	if app != nil {
		c.registry.MustRegister(newApplicationStateCollector(app, logger))
	}
	return c
}

// Registry returns the registry metrics are recorded in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WorkerEventCreated implements callback.CreationObserver.
func (c *Collector) WorkerEventCreated(e domain.WorkerEvent) {
	c.eventsCreated.WithLabelValues(string(e.Type())).Inc()
}

// WorkerEventDelivered implements callback.DeliveryObserver.
func (c *Collector) WorkerEventDelivered(e domain.WorkerEvent, duration time.Duration, err error) {
	c.deliveries.WithLabelValues(deliveryResult(err)).Inc()
	c.deliveryLatency.Observe(duration.Seconds())
}

// MessageHandled implements engine.Observer.
func (c *Collector) MessageHandled(name string, duration time.Duration, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	c.messagesHandled.WithLabelValues(name, result).Inc()
}

func deliveryResult(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case callback.IsDeliveryError(err):
		return ResultRejected
	case callback.IsTransportError(err):
		return ResultTransport
	default:
		return ResultError
	}
}

// applicationStateCollector reports the application state at scrape time.
type applicationStateCollector struct {
	app    *progress.Application
	desc   *prometheus.Desc
	logger *slog.Logger
}

func newApplicationStateCollector(app *progress.Application, logger *slog.Logger) *applicationStateCollector {
	return &applicationStateCollector{
		app: app,
		desc: prometheus.NewDesc(
			"application_state",
			"Current application state (1 for the current state)",
			[]string{"state"}, nil,
		),
		logger: logger,
	}
}

func (a *applicationStateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- a.desc
}

func (a *applicationStateCollector) Collect(ch chan<- prometheus.Metric) {
	current, err := a.app.Get(context.Background())
	if err != nil {
		a.logger.Error("application state unavailable", "error", err)
		return
	}
	for _, state := range progress.ApplicationStates {
		value := 0.0
		if state == current {
			value = 1
		}
		ch <- prometheus.MustNewConstMetric(a.desc, prometheus.GaugeValue, value, string(state))
	}
}
