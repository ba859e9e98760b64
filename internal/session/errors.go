package session

import "errors"

var (
	// ErrSessionClosed is returned when an event is sent to a session that
	// has already finalized or been discarded, or while the manager is
	// shutting down.
	ErrSessionClosed = errors.New("session closed")
	// ErrUnknownSession is returned for a room with no live session.
	ErrUnknownSession = errors.New("unknown session")
)
