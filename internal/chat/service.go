package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultOpTimeout bounds every store call issued by the Service so a
// stalled database cannot pin request goroutines indefinitely.
const DefaultOpTimeout = 10 * time.Second

// Service implements the session use cases on top of a [Store].
//
// Service is safe for concurrent use by multiple goroutines.
type Service struct {
	store     Store
	opTimeout time.Duration
	logger    *slog.Logger
}

// NewService creates a new Service.
//
// Parameters:
//   - store: backing session store
//   - opTimeout: per-operation store timeout (<= 0 uses DefaultOpTimeout)
//   - logger: logger for debugging (nil = slog.Default())
func NewService(store Store, opTimeout time.Duration, logger *slog.Logger) *Service {
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		opTimeout: opTimeout,
		logger:    logger,
	}
}

// AppendResult reports what AppendMessage did.
type AppendResult struct {
	// Created is true when the append created the session document.
	Created bool

	// Skipped is true when the message was the welcome greeting and
	// nothing was persisted.
	Skipped bool
}

// AppendMessage persists one message to the session identified by
// sessionID, creating the session on first write.
//
// The welcome greeting is filtered before anything else, including
// role validation, so a malformed welcome payload is silently skipped
// rather than rejected. A first persisted user message titles the
// session; a later user message replaces the title only while it is
// still a placeholder.
func (s *Service) AppendMessage(ctx context.Context, sessionID, owner, content, role string) (AppendResult, error) {
	if sessionID == "" {
		return AppendResult{}, fmt.Errorf("%w: session id is required", ErrInvalidArgument)
	}

	if IsWelcome(content, role) {
		s.logger.Debug("skipped welcome message", "session_id", sessionID)
		return AppendResult{Skipped: true}, nil
	}

	if !ValidRole(role) {
		return AppendResult{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if content == "" {
		return AppendResult{}, fmt.Errorf("%w: content is required", ErrInvalidArgument)
	}
	if owner == "" {
		return AppendResult{}, fmt.Errorf("%w: owner is required", ErrInvalidArgument)
	}

	msg := Message{
		Content:   content,
		Role:      role,
		Timestamp: time.Now().UTC(),
	}
	title := DeriveTitle(content, role)

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	created, err := s.store.UpsertAppend(opCtx, sessionID, owner, title, msg)
	if err != nil {
		return AppendResult{}, s.storeErr("append message", err)
	}

	// An existing session may still carry a placeholder title; the
	// first real user message claims it. The store applies the update
	// conditionally, so concurrent appends retitle at most once.
	if !created && role == RoleUser {
		if err := s.store.Retitle(opCtx, sessionID, title); err != nil {
			s.logger.Warn("retitle failed", "session_id", sessionID, "error", err)
		}
	}

	s.logger.Debug("appended message",
		"session_id", sessionID, "role", role, "created", created)
	return AppendResult{Created: created}, nil
}

// Session retrieves a full session document by ID.
func (s *Service) Session(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidArgument)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	sess, err := s.store.Session(opCtx, sessionID)
	if err != nil {
		return nil, s.storeErr(fmt.Sprintf("get session %s", sessionID), err)
	}
	return sess, nil
}

// Summaries lists the sessions owned by owner, most recently updated
// first. Listing is fail-soft: a store failure yields an empty,
// non-nil slice so callers always render a valid (possibly empty)
// history.
func (s *Service) Summaries(ctx context.Context, owner string) []Summary {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	summaries, err := s.store.Summaries(opCtx, owner)
	if err != nil {
		s.logger.Error("list sessions failed", "owner", owner, "error", err)
		return []Summary{}
	}
	if summaries == nil {
		summaries = []Summary{}
	}
	return summaries
}

// Delete removes a session by ID and reports whether a document was
// actually deleted.
func (s *Service) Delete(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("%w: session id is required", ErrInvalidArgument)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	deleted, err := s.store.Delete(opCtx, sessionID)
	if err != nil {
		return false, s.storeErr(fmt.Sprintf("delete session %s", sessionID), err)
	}

	s.logger.Debug("deleted session", "session_id", sessionID, "deleted", deleted)
	return deleted > 0, nil
}

// storeErr classifies a store failure into the package sentinels.
// Sentinels produced by the store itself pass through untouched.
func (s *Service) storeErr(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicateSession):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, ErrStorage, ErrTimeout)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrStorage, err)
	}
}
