package chat

import "errors"

// Sentinel errors for session operations.
// These errors are part of the package's public API and should be
// checked using errors.Is().
//
// Example:
//
//	sess, err := svc.Session(ctx, id)
//	if errors.Is(err, chat.ErrNotFound) {
//	    // Handle missing session
//	}
var (
	// ErrNotFound indicates the requested session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrDuplicateSession indicates an explicit create collided with an
	// existing session ID.
	ErrDuplicateSession = errors.New("session already exists")

	// ErrInvalidRole indicates a message role outside {user, assistant}.
	ErrInvalidRole = errors.New("invalid message role")

	// ErrInvalidArgument indicates a missing or malformed input such as
	// an empty session ID.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStorage indicates the backing store failed.
	ErrStorage = errors.New("storage failure")

	// ErrTimeout indicates a store operation exceeded its deadline.
	ErrTimeout = errors.New("storage timeout")
)
