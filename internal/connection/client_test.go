package connection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:              url,
		PingTimeout:      30 * time.Second,
		HandshakeTimeout: time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       100,
	}
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Just keep the connection open
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
}

func TestClient_ConnectRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("expected handshake error")
	}
	if client.IsConnected() {
		t.Error("client should not report connected after failed dial")
	}
}

func TestClient_Messages(t *testing.T) {
	testMessages := []string{
		`{"analytics":{"total_subscriptions":1},"timestamp":"10:00:01"}`,
		`{"analytics":{"total_subscriptions":2},"timestamp":"10:00:06"}`,
		`{"analytics":{"total_subscriptions":3},"timestamp":"10:00:11"}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for i, msg := range testMessages {
			if i == 1 {
				// Binary frames are not part of the protocol and are skipped.
				conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02})
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		// Keep connection open
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	var received []string
	timeout := time.After(500 * time.Millisecond)

	for i := 0; i < len(testMessages); i++ {
		select {
		case msg := <-client.Messages():
			received = append(received, string(msg.Data))
			if msg.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-timeout:
			t.Fatalf("timeout waiting for messages, received %d of %d", len(received), len(testMessages))
		}
	}

	for i, want := range testMessages {
		if received[i] != want {
			t.Errorf("message %d: got %q, want %q", i, received[i], want)
		}
	}
}

func TestClient_ServerClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{}`))
		// Returning drops the connection.
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if err == nil {
			t.Error("expected non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for connection error")
	}

	deadline := time.Now().Add(time.Second)
	for client.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if client.IsConnected() {
		t.Error("expected IsConnected to be false after server close")
	}
}

func TestClient_ReadLimit(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 512)))
		time.Sleep(time.Second)
	})
	defer server.Close()

	cfg := testClientConfig(wsURL(server))
	cfg.ReadLimit = 128
	client := NewClient(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if !errors.Is(err, websocket.ErrReadLimit) {
			t.Errorf("err = %v, want ErrReadLimit", err)
		}
	case <-client.Messages():
		t.Fatal("oversized frame should not be delivered")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for read limit error")
	}
}

func TestClient_DoubleClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// First close should succeed
	if err := client.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}

	// Second close should be no-op
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	// A closed client cannot be reused
	if err := client.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}
}

func TestClient_CloseSuppressesError(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	client.Close()

	select {
	case err := <-client.Errors():
		t.Errorf("unexpected error after Close: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClient_PingHandler(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		if err := conn.WriteControl(websocket.PingMessage, []byte("heartbeat"), time.Now().Add(time.Second)); err != nil {
			t.Logf("ping error: %v", err)
			return
		}
		time.Sleep(500 * time.Millisecond)
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	// Give time for ping to be processed
	time.Sleep(200 * time.Millisecond)

	if !client.IsConnected() {
		t.Error("expected client to be connected after ping")
	}
}

func TestClient_StaleConnection(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Never read, so our pings are never answered.
		time.Sleep(time.Second)
	})
	defer server.Close()

	cfg := testClientConfig(wsURL(server))
	cfg.PingInterval = 20 * time.Millisecond
	cfg.PingTimeout = 50 * time.Millisecond
	client := NewClient(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if err != ErrStaleConnection {
			t.Errorf("err = %v, want ErrStaleConnection", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for stale connection error")
	}
}

func TestDefaultConfigs(t *testing.T) {
	clientCfg := DefaultClientConfig()
	if clientCfg.PingTimeout != 60*time.Second {
		t.Errorf("PingTimeout = %v, want 60s", clientCfg.PingTimeout)
	}
	if clientCfg.ReadLimit != 1<<20 {
		t.Errorf("ReadLimit = %d, want 1MiB", clientCfg.ReadLimit)
	}

	mgrCfg := DefaultManagerConfig()
	if mgrCfg.ReconnectDelay != 3*time.Second {
		t.Errorf("ReconnectDelay = %v, want 3s", mgrCfg.ReconnectDelay)
	}
	if mgrCfg.BackoffMultiplier != 0 {
		t.Errorf("BackoffMultiplier = %v, want fixed delay", mgrCfg.BackoffMultiplier)
	}
}

func TestManagerConfig_NextDelay(t *testing.T) {
	tests := []struct {
		name string
		cfg  ManagerConfig
		cur  time.Duration
		want time.Duration
	}{
		{"fixed", ManagerConfig{ReconnectDelay: 3 * time.Second}, 3 * time.Second, 3 * time.Second},
		{"multiplier one is fixed", ManagerConfig{ReconnectDelay: 3 * time.Second, BackoffMultiplier: 1}, 3 * time.Second, 3 * time.Second},
		{"doubles", ManagerConfig{ReconnectDelay: time.Second, BackoffMultiplier: 2}, 4 * time.Second, 8 * time.Second},
		{"capped", ManagerConfig{ReconnectDelay: time.Second, BackoffMultiplier: 2, ReconnectMaxDelay: 5 * time.Second}, 4 * time.Second, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.nextDelay(tt.cur); got != tt.want {
				t.Errorf("nextDelay(%v) = %v, want %v", tt.cur, got, tt.want)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateReconnecting: "reconnecting",
		State(9):          "state(9)",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
