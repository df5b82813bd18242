package race

import "errors"

var (
	// ErrNotFound is returned when a user, text or session does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyCompleted is returned for a second completion by the same user in a session.
	ErrAlreadyCompleted = errors.New("participant already completed")
	// ErrDuplicateQueueEntry is returned when a user is already waiting in the same queue or lobby.
	ErrDuplicateQueueEntry = errors.New("duplicate queue entry")
	// ErrAlreadyInSession is returned when a user tries to queue while racing.
	ErrAlreadyInSession = errors.New("user already in a session")
	// ErrSessionClosed is returned for mutations against a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrNotParticipant is returned when a user acts on a session they are not part of.
	ErrNotParticipant = errors.New("user is not a participant")
	// ErrInvalidCommand is returned for malformed or unknown inbound commands.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrPersistence marks a write to an external store that failed after retries.
	ErrPersistence = errors.New("persistence failure")
)
