// Package pgstore implements chat.Store on PostgreSQL.
//
// The schema mirrors the document model: one chat_session row per
// session with the message list in a JSONB column. Appends use a
// single INSERT ... ON CONFLICT statement so concurrent first writes
// resolve to one insert and one concatenation inside the database.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iamkuldeepprovana/kmschatbot/internal/chat"
)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

// Store manages session persistence with a PostgreSQL backend.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store on the given connection pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		pool:   pool,
		logger: logger,
	}
}

// Session returns the full session row for sessionID.
func (s *Store) Session(ctx context.Context, sessionID string) (*chat.Session, error) {
	const q = `
		SELECT session_id, username, title, messages, created_at, updated_at
		FROM chat_session
		WHERE session_id = $1`

	var (
		sess     chat.Session
		messages []byte
	)
	err := s.pool.QueryRow(ctx, q, sessionID).Scan(
		&sess.SessionID, &sess.Owner, &sess.Title, &messages, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	if err := json.Unmarshal(messages, &sess.Messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return &sess, nil
}

// Summaries returns the sessions owned by owner, updated_at descending.
func (s *Store) Summaries(ctx context.Context, owner string) ([]chat.Summary, error) {
	const q = `
		SELECT session_id, title, created_at, updated_at
		FROM chat_session
		WHERE username = $1
		ORDER BY updated_at DESC`

	rows, err := s.pool.Query(ctx, q, owner)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	summaries := make([]chat.Summary, 0)
	for rows.Next() {
		var sm chat.Summary
		if err := rows.Scan(&sm.SessionID, &sm.Title, &sm.CreatedAt, &sm.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		summaries = append(summaries, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return summaries, nil
}

// Create inserts a new session row.
func (s *Store) Create(ctx context.Context, sess *chat.Session) error {
	const q = `
		INSERT INTO chat_session (session_id, username, title, messages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	msgs := sess.Messages
	if msgs == nil {
		msgs = []chat.Message{}
	}
	encoded, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	_, err = s.pool.Exec(ctx, q, sess.SessionID, sess.Owner, sess.Title, encoded, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return chat.ErrDuplicateSession
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// UpsertAppend atomically concatenates msg onto the session's message
// list, inserting the row on first write. xmax = 0 on the returned row
// means the statement inserted rather than updated.
func (s *Store) UpsertAppend(ctx context.Context, sessionID, owner, title string, msg chat.Message) (bool, error) {
	const q = `
		INSERT INTO chat_session (session_id, username, title, messages, created_at, updated_at)
		VALUES ($1, $2, $3, jsonb_build_array($4::jsonb), $5, $5)
		ON CONFLICT (session_id) DO UPDATE
		SET messages   = chat_session.messages || EXCLUDED.messages,
		    updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0)`

	encoded, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("encode message: %w", err)
	}

	var created bool
	if err := s.pool.QueryRow(ctx, q, sessionID, owner, title, encoded, msg.Timestamp).Scan(&created); err != nil {
		return false, fmt.Errorf("upsert append: %w", err)
	}
	return created, nil
}

// Retitle sets the session title while the stored title is still a
// placeholder. The condition lives in the UPDATE predicate so
// concurrent retitles apply at most once.
func (s *Store) Retitle(ctx context.Context, sessionID, title string) error {
	const q = `
		UPDATE chat_session
		SET title = $2
		WHERE session_id = $1
		  AND (title = $3 OR title LIKE $4)`

	_, err := s.pool.Exec(ctx, q, sessionID, title, chat.DefaultTitle, chat.WelcomePrefix+"%")
	if err != nil {
		return fmt.Errorf("retitle session: %w", err)
	}
	return nil
}

// Delete removes the session row and returns the deleted count.
func (s *Store) Delete(ctx context.Context, sessionID string) (int64, error) {
	ct, err := s.pool.Exec(ctx, `DELETE FROM chat_session WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete session: %w", err)
	}
	return ct.RowsAffected(), nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
