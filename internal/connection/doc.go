// Package connection implements the push channel Connection Manager.
//
// The Connection Manager:
//   - Holds exactly one WebSocket connection to the push endpoint at a time
//   - Exposes a four-state machine (disconnected, connecting, connected, reconnecting)
//   - Reconnects after a fixed delay, forever, with optional capped backoff
//   - Decodes RealtimeData envelopes; malformed payloads are dropped, not fatal
//
// All state transitions run on the dashboard event loop.
package connection
