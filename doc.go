// Package moqclient is a client-side library for Media-over-QUIC (MoQ)
// publish/subscribe. It connects to a MoQ relay, announces and consumes
// named broadcasts organized as hierarchical streams (broadcast → track →
// group → frame), and offers a manager that drives subscription lifecycle
// from a JSON catalog advertised by the publisher.
//
// The wire codec lives in package wire, the connection/session state
// machine in package session, the announce bus in package announce, the
// catalog formats in package catalog, and the supervisor in package
// manager.
package moqclient
