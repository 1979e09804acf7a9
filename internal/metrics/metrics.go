// Package metrics exposes the process's Prometheus collectors.
//
// All recording methods are safe on a nil *Metrics, so components can take an
// optional collector set without guarding every call.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "legisync"

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	subscribers     *prometheus.GaugeVec
	events          *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	mutationsFailed *prometheus.CounterVec
}

// New creates and registers the collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests by route, method and status code."},
			[]string{"route", "method", "code"},
		),
		subscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Subsystem: "realtime", Name: "subscribers", Help: "Open realtime subscriptions per table."},
			[]string{"table"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "realtime", Name: "events_total", Help: "Change events delivered to subscribers."},
			[]string{"table", "type"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "realtime", Name: "dropped_total", Help: "Subscribers disconnected for falling behind."},
			[]string{"table"},
		),
		mutationsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "mutations_failed_total", Help: "Failed writes by table and operation."},
			[]string{"table", "op"},
		),
	}
	m.registry.MustRegister(
		m.httpRequests,
		m.subscribers,
		m.events,
		m.dropped,
		m.mutationsFailed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer returns the underlying registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// HTTPRequest counts one served request.
func (m *Metrics) HTTPRequest(route, method string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
}

// SubscriberAdded increments the open subscription gauge for table.
func (m *Metrics) SubscriberAdded(table string) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(table).Inc()
}

// SubscriberRemoved decrements the open subscription gauge for table.
func (m *Metrics) SubscriberRemoved(table string) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(table).Dec()
}

// EventDelivered counts one event handed to a subscriber.
func (m *Metrics) EventDelivered(table, kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(table, kind).Inc()
}

// SubscriberDropped counts one slow subscriber disconnect.
func (m *Metrics) SubscriberDropped(table string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(table).Inc()
}

// MutationFailed counts one failed write.
func (m *Metrics) MutationFailed(table, op string) {
	if m == nil {
		return
	}
	m.mutationsFailed.WithLabelValues(table, op).Inc()
}
