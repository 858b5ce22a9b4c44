// Package model defines the subscription dashboard's shared data types.
//
// All types mirror the JSON documents served by the backend REST API and the
// push channel. Values are replaced wholesale on every fetch or push message;
// nothing in this package is mutated in place after decoding.
//
// Conventions:
//   - Timestamps: time.Time, RFC 3339 on the wire
//   - Money: float64 amount plus ISO currency code
//   - IDs: int, assigned by the backend
package model
