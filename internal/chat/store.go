package chat

import "context"

// Store defines the persistence contract for chat sessions.
// Following Go best practices: the interface is defined by the
// consumer (the service layer), not by the storage packages.
//
// Implementations translate driver errors to the package sentinels:
// a missing session surfaces as [ErrNotFound], a unique-key collision
// on Create as [ErrDuplicateSession]. All other failures pass through
// for the service to classify.
type Store interface {
	// Session returns the full session document for sessionID.
	Session(ctx context.Context, sessionID string) (*Session, error)

	// Summaries returns the sessions owned by owner, newest activity
	// first (updatedAt descending).
	Summaries(ctx context.Context, owner string) ([]Summary, error)

	// Create inserts a new empty-or-seeded session document.
	Create(ctx context.Context, sess *Session) error

	// UpsertAppend atomically appends msg to the session's message list,
	// creating the document with the given owner and title when the
	// session ID is unknown. It reports whether this call created the
	// session. Two concurrent calls for the same new session ID must
	// result in one creation and one plain append.
	UpsertAppend(ctx context.Context, sessionID, owner, title string, msg Message) (created bool, err error)

	// Retitle replaces the session title, but only while the stored
	// title is still a placeholder (see [IsPlaceholderTitle]).
	Retitle(ctx context.Context, sessionID, title string) error

	// Delete removes the session document and returns the number of
	// documents removed (0 or 1).
	Delete(ctx context.Context, sessionID string) (int64, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}
