// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Push channel connection state, transitions and reconnect attempts
//   - Push message throughput and protocol (decode) errors
//   - List query volume and stale responses discarded by the ordering guard
//   - REST request failures by operation
//   - Analytics snapshots applied and dropped
//   - Snapshot archive throughput and failures
//
// A nil *Metrics is valid and records nothing.
package metrics
