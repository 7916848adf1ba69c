// Package session implements the MoQ session engine: the connection
// state machine, stream multiplexer, and the broadcast/track/group
// producer and consumer types layered on top of package wire.
//
// A Session is symmetric — the same type serves both the client role
// (Connect) and the peer role a test harness or embedding relay uses
// (Accept) — and can simultaneously publish and consume broadcasts,
// per the session's configured Mode.
package session
