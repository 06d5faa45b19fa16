package socket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes client internals to Prometheus. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	state            prometheus.Gauge
	connectionErrors prometheus.Counter
	reconnectCounter prometheus.Gauge
	queueDepth       prometheus.Gauge
	dropped          prometheus.Counter
	listenerFailures *prometheus.CounterVec
	sent             *prometheus.CounterVec
	received         *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		state: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "hostel_realtime",
			Name:      "connection_state",
			Help:      "Connection state: 0 disconnected, 1 connecting, 2 connected, 3 failed.",
		}),
		connectionErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hostel_realtime",
			Name:      "connection_errors_total",
			Help:      "Connection errors reported by the transport.",
		}),
		reconnectCounter: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "hostel_realtime",
			Name:      "reconnect_counter",
			Help:      "Consecutive failed connection attempts since the last success.",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "hostel_realtime",
			Name:      "outbound_queue_depth",
			Help:      "Messages waiting for a connection.",
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hostel_realtime",
			Name:      "outbound_dropped_total",
			Help:      "Messages discarded by the outbound queue overflow policy.",
		}),
		listenerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hostel_realtime",
			Name:      "listener_failures_total",
			Help:      "Listener invocations that returned an error or panicked.",
		}, []string{"event"}),
		sent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hostel_realtime",
			Name:      "messages_sent_total",
			Help:      "Frames written to the transport.",
		}, []string{"event"}),
		received: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hostel_realtime",
			Name:      "messages_received_total",
			Help:      "Frames received from the transport.",
		}, []string{"event"}),
	}
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	m.state.Set(float64(s))
}

func (m *Metrics) connectionError(counter int) {
	if m == nil {
		return
	}
	m.connectionErrors.Inc()
	m.reconnectCounter.Set(float64(counter))
}

func (m *Metrics) resetCounter() {
	if m == nil {
		return
	}
	m.reconnectCounter.Set(0)
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) drop() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) listenerFailure(event Event) {
	if m == nil {
		return
	}
	m.listenerFailures.WithLabelValues(string(event)).Inc()
}

func (m *Metrics) messageSent(event Event) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(string(event)).Inc()
}

// otherEvent labels inbound events that have no listeners.
const otherEvent = "other"

func (m *Metrics) messageReceived(event Event, known bool) {
	if m == nil {
		return
	}
	label := string(event)
	if !known {
		label = otherEvent
	}
	m.received.WithLabelValues(label).Inc()
}
