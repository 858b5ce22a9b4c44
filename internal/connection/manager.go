package connection

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/subscription-dashboard/internal/eventloop"
	"github.com/rickgao/subscription-dashboard/internal/metrics"
	"github.com/rickgao/subscription-dashboard/internal/model"
)

// Handler receives manager events. Calls happen on the event loop.
type Handler interface {
	HandleState(State)
	HandleRealtime(data model.RealtimeData, receivedAt time.Time)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	OnState    func(State)
	OnRealtime func(model.RealtimeData, time.Time)
}

func (h HandlerFuncs) HandleState(s State) {
	if h.OnState != nil {
		h.OnState(s)
	}
}

func (h HandlerFuncs) HandleRealtime(data model.RealtimeData, receivedAt time.Time) {
	if h.OnRealtime != nil {
		h.OnRealtime(data, receivedAt)
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State          State
	Attempts       int64 // Connection attempts started
	Reconnects     int64 // Reconnects scheduled
	Messages       int64 // Payloads delivered to the handler
	ProtocolErrors int64 // Payloads dropped as undecodable
}

// Manager owns the single push channel connection and its state machine:
//
//	Disconnected -> Connecting -> Connected -> Reconnecting -> Connecting -> ...
//
// Start and Stop must be called on the event loop. State and Stats are safe
// from any goroutine.
type Manager struct {
	cfg     ManagerConfig
	loop    *eventloop.Loop
	handler Handler
	logger  *slog.Logger
	newConn ClientFactory
	clock   Clock
	metrics *metrics.Metrics

	// Loop-confined
	state  State
	seq    uint64 // Bumped per attempt and on Stop; stale callbacks compare against it
	client Client
	cancel context.CancelFunc
	timer  Timer
	delay  time.Duration

	current        atomic.Int32
	attempts       atomic.Int64
	reconnects     atomic.Int64
	messages       atomic.Int64
	protocolErrors atomic.Int64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClientFactory replaces the gorilla client, mainly for tests.
func WithClientFactory(f ClientFactory) ManagerOption {
	return func(m *Manager) {
		if f != nil {
			m.newConn = f
		}
	}
}

// WithClock replaces the wall clock used for reconnect timers.
func WithClock(c Clock) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithMetrics records state and message counters.
func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a Manager in the Disconnected state.
func NewManager(cfg ManagerConfig, loop *eventloop.Loop, handler Handler, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = HandlerFuncs{}
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultManagerConfig().ReconnectDelay
	}

	m := &Manager{
		cfg:     cfg,
		loop:    loop,
		handler: handler,
		logger:  logger.With("component", "connection"),
		newConn: NewClient,
		clock:   SystemClock{},
		state:   StateDisconnected,
		delay:   cfg.ReconnectDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.current.Load())
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	return ManagerStats{
		State:          m.State(),
		Attempts:       m.attempts.Load(),
		Reconnects:     m.reconnects.Load(),
		Messages:       m.messages.Load(),
		ProtocolErrors: m.protocolErrors.Load(),
	}
}

// Start begins connecting. It does nothing unless the manager is
// Disconnected: an attempt in flight, an open channel, or a pending
// reconnect already guarantee the next step.
func (m *Manager) Start() {
	if m.state != StateDisconnected {
		m.logger.Debug("start ignored", "state", m.state)
		return
	}
	m.delay = m.cfg.ReconnectDelay
	m.logger.Info("connection manager started", "url", m.cfg.Client.URL)
	m.connect()
}

// Stop ends the session: the reconnect timer is cleared, any attempt in
// flight is abandoned, and the open channel is closed.
func (m *Manager) Stop() {
	if m.state == StateDisconnected {
		return
	}
	m.seq++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.teardown()
	m.setState(StateDisconnected)
	m.logger.Info("connection manager stopped")
}

func (m *Manager) connect() {
	m.seq++
	seq := m.seq
	attemptID := uuid.NewString()
	m.attempts.Add(1)

	logger := m.logger.With("attempt_id", attemptID)
	client := m.newConn(m.cfg.Client, logger)
	ctx, cancel := context.WithCancel(context.Background())
	m.client = client
	m.cancel = cancel

	m.setState(StateConnecting)
	logger.Debug("connecting", "url", m.cfg.Client.URL)

	eventloop.Async(m.loop, ctx,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, client.Connect(ctx)
		},
		func(_ struct{}, err error) {
			m.onConnectResult(ctx, seq, client, attemptID, err)
		},
	)
}

func (m *Manager) onConnectResult(ctx context.Context, seq uint64, client Client, attemptID string, err error) {
	if seq != m.seq {
		// Superseded by Stop (or Stop then Start) while dialing.
		client.Close()
		return
	}
	if err != nil {
		m.lost(&TransportError{AttemptID: attemptID, Err: err})
		return
	}

	m.delay = m.cfg.ReconnectDelay
	m.setState(StateConnected)
	m.logger.Info("push channel connected", "attempt_id", attemptID)

	go m.pump(ctx, seq, client, attemptID)
}

// pump forwards one client's frames and its terminal error onto the loop, in
// arrival order.
func (m *Manager) pump(ctx context.Context, seq uint64, client Client, attemptID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-client.Messages():
			m.forward(seq, msg)
		case err := <-client.Errors():
			// Frames read before the failure are still delivered first.
		drain:
			for {
				select {
				case msg := <-client.Messages():
					m.forward(seq, msg)
				default:
					break drain
				}
			}
			m.loop.Post(func() {
				if seq == m.seq {
					m.lost(&TransportError{AttemptID: attemptID, Err: err})
				}
			})
			return
		}
	}
}

func (m *Manager) forward(seq uint64, msg TimestampedMessage) {
	data, err := DecodeRealtime(msg.Data)
	m.loop.Post(func() {
		if seq != m.seq || m.state != StateConnected {
			return
		}
		if err != nil {
			m.protocolErrors.Add(1)
			m.metrics.IncProtocolError()
			m.logger.Warn("dropping malformed push payload", "error", err, "size", len(msg.Data))
			return
		}
		m.messages.Add(1)
		m.metrics.IncPushMessage()
		m.handler.HandleRealtime(data, msg.ReceivedAt)
	})
}

// lost handles a transport failure from the current attempt.
func (m *Manager) lost(err *TransportError) {
	m.logger.Warn("push channel lost", "attempt_id", err.AttemptID, "error", err.Err, "state", m.state)
	m.teardown()
	m.scheduleReconnect()
}

func (m *Manager) teardown() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
}

func (m *Manager) scheduleReconnect() {
	delay := m.delay
	m.delay = m.cfg.nextDelay(delay)
	m.reconnects.Add(1)
	m.metrics.IncReconnectAttempt()

	m.setState(StateReconnecting)
	m.logger.Info("reconnect scheduled", "delay", delay)

	seq := m.seq
	m.timer = m.clock.AfterFunc(delay, func() {
		m.loop.Post(func() {
			if seq != m.seq || m.state != StateReconnecting {
				return
			}
			m.timer = nil
			m.connect()
		})
	})
}

func (m *Manager) setState(s State) {
	if s == m.state {
		return
	}
	prev := m.state
	m.state = s
	m.current.Store(int32(s))
	m.metrics.SetConnectionState(s.String(), int(s))
	m.logger.Debug("state change", "from", prev, "to", s)
	m.handler.HandleState(s)
}
