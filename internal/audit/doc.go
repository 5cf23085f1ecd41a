// Package audit relays session lifecycle events (login, logout, forced logout, guard
// redirects) to a sink without blocking the caller.
//
// [Dispatcher] owns one goroutine and a bounded queue; [Sink] implementations decide
// where events end up.
package audit
