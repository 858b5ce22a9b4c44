// Package dashboard composes the push connection, list query and analytics
// components behind a single Controller.
//
// The Controller owns the event loop. Its exported methods are safe to call
// from any goroutine; they queue work onto the loop, and every Renderer call
// happens on the loop.
package dashboard
