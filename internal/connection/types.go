package connection

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// State is the push channel connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// TransportError reports that a connection attempt failed or an open channel
// was lost. The manager reacts by scheduling a reconnect.
type TransportError struct {
	AttemptID string
	Err       error
}

func (e *TransportError) Error() string {
	return "push transport (attempt " + e.AttemptID + "): " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a push payload that could not be decoded. The payload
// is dropped; the connection is left alone.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return "push protocol: " + e.Reason + ": " + e.Err.Error()
	}
	return "push protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // Push endpoint (e.g., ws://localhost:8080/ws)
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	PingInterval     time.Duration // How often we send our own ping
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration // Write deadline for control frames
	ReadLimit        int64         // Max message size in bytes (0 = unlimited)
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadLimit:        1 << 20,
		BufferSize:       256,
	}
}

// ManagerConfig configures the connection Manager.
type ManagerConfig struct {
	Client ClientConfig

	// ReconnectDelay is the wait before the first reconnect attempt after a
	// failure. With no multiplier every attempt waits exactly this long.
	ReconnectDelay time.Duration

	// BackoffMultiplier grows the delay after each consecutive failure.
	// Values <= 1 keep the delay fixed.
	BackoffMultiplier float64

	// ReconnectMaxDelay caps the grown delay. Zero means no cap.
	ReconnectMaxDelay time.Duration
}

// DefaultManagerConfig returns the fixed 3s reconnect policy.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client:         DefaultClientConfig(),
		ReconnectDelay: 3 * time.Second,
	}
}

// nextDelay returns the delay to use after cur when backoff is enabled.
func (c ManagerConfig) nextDelay(cur time.Duration) time.Duration {
	if c.BackoffMultiplier <= 1 {
		return c.ReconnectDelay
	}
	next := time.Duration(float64(cur) * c.BackoffMultiplier)
	if c.ReconnectMaxDelay > 0 && next > c.ReconnectMaxDelay {
		next = c.ReconnectMaxDelay
	}
	if next <= 0 {
		next = c.ReconnectDelay
	}
	return next
}
