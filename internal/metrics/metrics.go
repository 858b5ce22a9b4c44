package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dashboard"

// Metrics holds every collector exported by the dashboard.
type Metrics struct {
	ConnectionState   prometheus.Gauge
	StateTransitions  *prometheus.CounterVec
	ReconnectAttempts prometheus.Counter
	PushMessages      prometheus.Counter
	ProtocolErrors    prometheus.Counter
	ListRequests      prometheus.Counter
	StaleResponses    prometheus.Counter
	RequestErrors     *prometheus.CounterVec
	SnapshotsApplied  *prometheus.CounterVec
	SnapshotsDropped  *prometheus.CounterVec
	ArchivedRows      prometheus.Counter
	ArchiveErrors     prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg creates
// unregistered collectors, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "connection_state",
			Help:      "Current push channel state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting).",
		}),
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "state_transitions_total",
			Help:      "Push channel state transitions by target state.",
		}, []string{"state"}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts scheduled after a transport failure.",
		}),
		PushMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "messages_total",
			Help:      "Push payloads decoded and delivered.",
		}),
		ProtocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "protocol_errors_total",
			Help:      "Push payloads dropped because they failed to decode.",
		}),
		ListRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "list",
			Name:      "requests_total",
			Help:      "List queries issued.",
		}),
		StaleResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "list",
			Name:      "stale_responses_total",
			Help:      "List responses discarded because a newer query was issued.",
		}),
		RequestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_errors_total",
			Help:      "Failed REST requests by operation.",
		}, []string{"op"}),
		SnapshotsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "snapshots_applied_total",
			Help:      "Analytics snapshots accepted by source.",
		}, []string{"source"}),
		SnapshotsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "snapshots_dropped_total",
			Help:      "Analytics snapshots rejected by reason.",
		}, []string{"reason"}),
		ArchivedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "rows_total",
			Help:      "Analytics snapshots written to the archive.",
		}),
		ArchiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "errors_total",
			Help:      "Failed archive batch inserts.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ConnectionState,
			m.StateTransitions,
			m.ReconnectAttempts,
			m.PushMessages,
			m.ProtocolErrors,
			m.ListRequests,
			m.StaleResponses,
			m.RequestErrors,
			m.SnapshotsApplied,
			m.SnapshotsDropped,
			m.ArchivedRows,
			m.ArchiveErrors,
		)
	}

	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// SetConnectionState records a push channel state transition.
func (m *Metrics) SetConnectionState(state string, code int) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(float64(code))
	m.StateTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) IncReconnectAttempt() {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Inc()
}

func (m *Metrics) IncPushMessage() {
	if m == nil {
		return
	}
	m.PushMessages.Inc()
}

func (m *Metrics) IncProtocolError() {
	if m == nil {
		return
	}
	m.ProtocolErrors.Inc()
}

func (m *Metrics) IncListRequest() {
	if m == nil {
		return
	}
	m.ListRequests.Inc()
}

func (m *Metrics) IncStaleResponse() {
	if m == nil {
		return
	}
	m.StaleResponses.Inc()
}

func (m *Metrics) IncRequestError(op string) {
	if m == nil {
		return
	}
	m.RequestErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) IncSnapshotApplied(source string) {
	if m == nil {
		return
	}
	m.SnapshotsApplied.WithLabelValues(source).Inc()
}

func (m *Metrics) IncSnapshotDropped(reason string) {
	if m == nil {
		return
	}
	m.SnapshotsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) AddArchivedRows(n int) {
	if m == nil {
		return
	}
	m.ArchivedRows.Add(float64(n))
}

func (m *Metrics) IncArchiveError() {
	if m == nil {
		return
	}
	m.ArchiveErrors.Inc()
}
