// Package metrics holds the daemon's Prometheus collectors and their HTTP exposition.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "leadchat"

// Metrics groups the collectors updated by the conversation engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	pushEvents    *prometheus.CounterVec
	pageRequests  *prometheus.CounterVec
	dispatches    *prometheus.CounterVec
	outboxSends   *prometheus.CounterVec
	pushConnects  *prometheus.CounterVec
	conversations prometheus.Gauge
	unread        prometheus.Gauge
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_events_total",
			Help:      "Push events received by the bridge, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		pageRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_requests_total",
			Help:      "History fetches by operation and result.",
		}, []string{"op", "result"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Batch dispatch requests by result.",
		}, []string{"result"}),
		outboxSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_sends_total",
			Help:      "Messages delivered by the local batch runner, by result.",
		}, []string{"result"}),
		pushConnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_connects_total",
			Help:      "Push channel connection attempts by result.",
		}, []string{"result"}),
		conversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversations",
			Help:      "Conversations held by the registry.",
		}),
		unread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unread_messages",
			Help:      "Sum of unread counters across the registry.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.pushEvents, m.pageRequests, m.dispatches, m.outboxSends, m.pushConnects,
		m.conversations, m.unread,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// PushEvent counts one push frame. outcome is "applied", "ignored" or "invalid".
func (m *Metrics) PushEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.pushEvents.WithLabelValues(kind, outcome).Inc()
}

// HistoryRequest counts one history fetch. op is "initial" or "more".
func (m *Metrics) HistoryRequest(op, result string) {
	if m == nil {
		return
	}
	m.pageRequests.WithLabelValues(op, result).Inc()
}

// Dispatch counts one batch dispatch request.
func (m *Metrics) Dispatch(result string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(result).Inc()
}

// OutboxSend counts one message delivered by the local runner.
func (m *Metrics) OutboxSend(result string) {
	if m == nil {
		return
	}
	m.outboxSends.WithLabelValues(result).Inc()
}

// PushConnect counts one push channel connection attempt.
func (m *Metrics) PushConnect(result string) {
	if m == nil {
		return
	}
	m.pushConnects.WithLabelValues(result).Inc()
}

// SetConversations records the registry size and unread total.
func (m *Metrics) SetConversations(count, unread int) {
	if m == nil {
		return
	}
	m.conversations.Set(float64(count))
	m.unread.Set(float64(unread))
}
