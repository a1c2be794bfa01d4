// Package peerserver manages live peer channels and fans new entries out
// to them.
//
// A peer is a client holding a WebSocket open on /ws?host=<name>. The
// Registry tracks every live channel under a single lock. The Broadcaster
// delivers each new entry to every channel whose host differs from the
// entry's source host. Delivery never blocks the publisher: every channel
// has a bounded queue drained by its own writer goroutine, and a channel
// whose queue is full or whose socket failed is removed and closed.
package peerserver
