// Package metrics holds the Prometheus collectors of the chat server. All
// methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Push results.
const (
	PushDelivered = "delivered"
	PushFailed    = "failed"
)

type Metrics struct {
	messagesSent prometheus.Counter
	pushes       *prometheus.CounterVec
	sendFailures *prometheus.CounterVec
	bindings     prometheus.Gauge
	httpLatency  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg, or with the
// default registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gophchat_messages_sent_total",
			Help: "Messages persisted by the router.",
		}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gophchat_pushes_total",
			Help: "Live channel pushes grouped by result.",
		}, []string{"result"}),
		sendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gophchat_send_failures_total",
			Help: "Rejected or failed sends grouped by reason.",
		}, []string{"reason"}),
		bindings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gophchat_live_bindings",
			Help: "Current number of bound live channels.",
		}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gophchat_http_request_duration_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"route", "method", "code"}),
	}

	reg.MustRegister(
		m.messagesSent,
		m.pushes,
		m.sendFailures,
		m.bindings,
		m.httpLatency,
	)
	return m
}

func (m *Metrics) RecordMessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

func (m *Metrics) RecordPush(result string) {
	if m == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	m.pushes.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordSendFailure(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.sendFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetBindings(n int) {
	if m == nil {
		return
	}
	m.bindings.Set(float64(n))
}

func (m *Metrics) ObserveHTTP(route, method string, code int, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpLatency.WithLabelValues(route, method, strconv.Itoa(code)).Observe(dur.Seconds())
}
