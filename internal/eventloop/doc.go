// Package eventloop runs the dashboard's single logical thread.
//
// Every mutation of dashboard state happens inside a task posted to one Loop.
// Network work runs on helper goroutines via Async and delivers its result
// back onto the loop, so component state needs no locks and suspension only
// happens at I/O boundaries.
package eventloop
