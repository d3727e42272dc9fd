package socketio

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "socketio"

// metrics holds the Prometheus collectors of one handler. A nil *metrics
// records nothing.
type metrics struct {
	sessionsActive    prometheus.Gauge
	sessionsCreated   prometheus.Counter
	sessionUpgrades   *prometheus.CounterVec
	packetsReceived   *prometheus.CounterVec
	packetsSent       *prometheus.CounterVec
	packetsDropped    *prometheus.CounterVec
	heartbeatTimeouts prometheus.Counter
	dispatchErrors    *prometheus.CounterVec
}

// newMetrics creates the collectors and registers them on reg. With a nil
// registerer the collectors work but are not exported anywhere.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently registered",
		}),
		sessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_created_total",
			Help:      "Total number of sessions created",
		}),
		sessionUpgrades: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "session_upgrades_total",
			Help:      "Total number of sessions replaced by a transport upgrade",
		}, []string{"from", "to"}),
		packetsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packets_received_total",
			Help:      "Total number of packets received from clients",
		}, []string{"type"}),
		packetsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packets_sent_total",
			Help:      "Total number of packets written to clients",
		}, []string{"type"}),
		packetsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packets_dropped_total",
			Help:      "Total number of outbound packets dropped for lack of a connection",
		}, []string{"type"}),
		heartbeatTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "heartbeat_timeouts_total",
			Help:      "Total number of sessions disconnected by heartbeat timeout",
		}),
		dispatchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dispatch_errors_total",
			Help:      "Total number of packets that failed routing or whose listener panicked",
		}, []string{"reason"}),
	}
}

func (m *metrics) sessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
	m.sessionsActive.Inc()
}

func (m *metrics) sessionRemoved() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *metrics) sessionUpgraded(from, to TransportType) {
	if m == nil {
		return
	}
	m.sessionUpgrades.WithLabelValues(from.String(), to.String()).Inc()
}

func (m *metrics) packetReceived(t PacketType) {
	if m == nil {
		return
	}
	m.packetsReceived.WithLabelValues(t.String()).Inc()
}

func (m *metrics) packetSent(t PacketType) {
	if m == nil {
		return
	}
	m.packetsSent.WithLabelValues(t.String()).Inc()
}

func (m *metrics) packetDropped(t PacketType) {
	if m == nil {
		return
	}
	m.packetsDropped.WithLabelValues(t.String()).Inc()
}

func (m *metrics) heartbeatTimeout() {
	if m == nil {
		return
	}
	m.heartbeatTimeouts.Inc()
}

func (m *metrics) dispatchError(reason string) {
	if m == nil {
		return
	}
	m.dispatchErrors.WithLabelValues(reason).Inc()
}
