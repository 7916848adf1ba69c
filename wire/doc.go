// Package wire implements the MoQ Transport control-message and
// group/frame codecs used by package session. It has no dependency on
// QUIC itself: every function reads from an io.Reader or writes to an
// io.Writer, so the codec can be exercised in tests against plain byte
// buffers and driven by real quic.Stream values in production.
package wire
