// Package buffer provides an unbounded FIFO queue used wherever a producer
// must never block on a slow consumer: event loop tasks and archived analytics views.
package buffer
