package metrics

import (
	"context"
	"strconv"
	"sync"
	"time"

	"premiumshop/pkg/bus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace   = "premiumshop"
	eventBuffer = 64
)

// Metrics turns bridge and storefront lifecycle events into Prometheus
// collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsSent    *prometheus.CounterVec
	repliesMatched  *prometheus.CounterVec
	requestTimeouts *prometheus.CounterVec
	sendFailures    prometheus.Counter
	priceLoads      *prometheus.CounterVec
	replyLatency    prometheus.Histogram
	inboundMessages *prometheus.CounterVec
	pendingRequests prometheus.Gauge

	httpRequestsTotal *prometheus.CounterVec
	httpResponseTime  *prometheus.HistogramVec

	mu      sync.Mutex
	pending map[string]time.Time
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requestsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_requests_total",
			Help:      "Requests sent to the bot backend",
		}, []string{"request_type"}),
		repliesMatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_replies_total",
			Help:      "Replies correlated to a pending request",
		}, []string{"request_type"}),
		requestTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_timeouts_total",
			Help:      "Requests that received no reply in time",
		}, []string{"request_type"}),
		sendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_send_failures_total",
			Help:      "Sends rejected by the host transport",
		}),
		priceLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shop_price_loads_total",
			Help:      "Price loads by outcome",
		}, []string{"outcome"}),
		replyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bridge_reply_latency_seconds",
			Help:      "Time from request to matched reply",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		inboundMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Messages received from the bot backend",
		}, []string{"source"}),
		pendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bridge_pending_requests",
			Help:      "Requests waiting for a reply",
		}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpResponseTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		pending: make(map[string]time.Time),
	}
}

// EventBuffer is the subscription size callers should use with Consume.
func EventBuffer() int {
	return eventBuffer
}

// Registry is served by the gateway's /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Run records every event published on messageBus until ctx ends or the bus
// closes.
func (m *Metrics) Run(ctx context.Context, messageBus *bus.MessageBus) error {
	events, unsubscribe := messageBus.SubscribeEvents(ctx, eventBuffer)
	defer unsubscribe()

	return m.Consume(ctx, events)
}

// Consume records events until ctx ends or events is closed.
func (m *Metrics) Consume(ctx context.Context, events <-chan bus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			m.Observe(event)
		}
	}
}

func (m *Metrics) Observe(event bus.Event) {
	switch event.Type {
	case bus.EventRequestSent:
		m.requestsSent.WithLabelValues(event.RequestType).Inc()
		m.track(event.CorrelationID, event.At)
	case bus.EventReplyMatched:
		m.repliesMatched.WithLabelValues(event.RequestType).Inc()
		if sentAt, ok := m.untrack(event.CorrelationID); ok && !event.At.Before(sentAt) {
			m.replyLatency.Observe(event.At.Sub(sentAt).Seconds())
		}
	case bus.EventRequestTimedOut:
		m.requestTimeouts.WithLabelValues(event.RequestType).Inc()
		m.untrack(event.CorrelationID)
	case bus.EventRequestCancelled:
		m.untrack(event.CorrelationID)
	case bus.EventSendFailed:
		m.sendFailures.Inc()
	case bus.EventPricesLoaded:
		m.priceLoads.WithLabelValues("loaded").Inc()
	case bus.EventPricesDefaulted:
		m.priceLoads.WithLabelValues("defaulted").Inc()
	}
}

func (m *Metrics) ObserveInbound(source string) {
	if source == "" {
		source = "unknown"
	}
	m.inboundMessages.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveHTTP(method string, path string, status int, elapsed time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpResponseTime.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func (m *Metrics) track(correlationID string, at time.Time) {
	if correlationID == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[correlationID]; !ok {
		m.pendingRequests.Inc()
	}
	m.pending[correlationID] = at
}

func (m *Metrics) untrack(correlationID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sentAt, ok := m.pending[correlationID]
	if ok {
		delete(m.pending, correlationID)
		m.pendingRequests.Dec()
	}
	return sentAt, ok
}
