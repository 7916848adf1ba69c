package session

import "errors"

// Sentinel errors for session-level failures. Callers distinguish failure
// modes with errors.Is.
var (
	ErrNotConnected    = errors.New("session: not connected")
	ErrAlreadyClosed   = errors.New("session: already closed")
	ErrWrongMode       = errors.New("session: operation not permitted by session mode")
	ErrPathAlreadyUsed = errors.New("session: broadcast path already published on this session")
	ErrUnknownTrack    = errors.New("session: unknown track")
)
