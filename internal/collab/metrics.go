package collab

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "cowrite"

// Drop reasons reported by the dropped deliveries counter.
const (
	dropReasonBufferFull   = "buffer_full"
	dropReasonTargetGone   = "target_gone"
	dropReasonChatRejected = "chat_rejected"
)

// Metrics holds the coordinator's prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	connections prometheus.Gauge
	rooms       prometheus.Gauge
	events      *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	saves       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Number of registered realtime connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "realtime",
			Name:      "document_rooms",
			Help:      "Number of document rooms held in memory.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "realtime",
			Name:      "inbound_events_total",
			Help:      "Inbound events handled, by event name.",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "realtime",
			Name:      "dropped_deliveries_total",
			Help:      "Outbound events that were not delivered, by reason.",
		}, []string{"reason"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "realtime",
			Name:      "saves_total",
			Help:      "Write-through saves, by result.",
		}, []string{"result"}),
	}
	if registerer == nil {
		return metrics, nil
	}
	collectors := []prometheus.Collector{
		metrics.connections,
		metrics.rooms,
		metrics.events,
		metrics.dropped,
		metrics.saves,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return metrics, nil
}

func (m *Metrics) connectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) connectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) roomCreated() {
	if m == nil {
		return
	}
	m.rooms.Inc()
}

func (m *Metrics) roomEvicted() {
	if m == nil {
		return
	}
	m.rooms.Dec()
}

func (m *Metrics) eventHandled(event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event).Inc()
}

func (m *Metrics) deliveryDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) saveCompleted(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.saves.WithLabelValues(result).Inc()
}
