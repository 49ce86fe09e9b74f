package metrics

import "github.com/prometheus/client_golang/prometheus"

// RealtimeMetrics tracks websocket connections and frame flow.
type RealtimeMetrics struct {
	connections prometheus.Gauge
	delivered   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
}

// NewRealtimeMetrics registers the realtime metrics on the provided registerer.
func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	if reg == nil {
		return &RealtimeMetrics{}
	}
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "connections",
		Help:      "Open websocket connections on this instance.",
	})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "events_delivered_total",
		Help:      "Events written to local sockets by type.",
	}, []string{"type"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped by reason.",
	}, []string{"reason"})
	reg.MustRegister(connections, delivered, dropped)
	return &RealtimeMetrics{connections: connections, delivered: delivered, dropped: dropped}
}

func (m *RealtimeMetrics) ConnOpened() {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.Inc()
}

func (m *RealtimeMetrics) ConnClosed() {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.Dec()
}

func (m *RealtimeMetrics) Delivered(eventType string) {
	if m == nil || m.delivered == nil {
		return
	}
	m.delivered.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *RealtimeMetrics) Dropped(reason string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(reason)).Inc()
}
