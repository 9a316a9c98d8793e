// Package mongostore implements chat.Store on MongoDB.
//
// Sessions are stored one document per session in the "chats"
// collection. Appends use a single FindOneAndUpdate with upsert so
// concurrent first writes for the same session ID resolve to one
// insert and one push without any Go-side locking.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/iamkuldeepprovana/kmschatbot/internal/chat"
)

// Collection is the MongoDB collection holding session documents.
const Collection = "chats"

// connectTimeout bounds the initial server selection during Connect.
const connectTimeout = 15 * time.Second

// sessionDoc is the stored shape of a session.
type sessionDoc struct {
	SessionID string       `bson:"sessionId"`
	Username  string       `bson:"username"`
	Title     string       `bson:"title"`
	Messages  []messageDoc `bson:"messages"`
	CreatedAt time.Time    `bson:"createdAt"`
	UpdatedAt time.Time    `bson:"updatedAt"`
}

// messageDoc is the stored shape of a message. The isUser flag is kept
// alongside role for documents written by older clients that never set
// a role.
type messageDoc struct {
	Content   string    `bson:"content"`
	IsUser    bool      `bson:"isUser"`
	Role      string    `bson:"role,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
}

// summaryDoc is the listing projection.
type summaryDoc struct {
	SessionID string    `bson:"sessionId"`
	Title     string    `bson:"title"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// Store manages session persistence with a MongoDB backend.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

// New creates a Store backed by the given database.
func New(db *mongo.Database, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		coll:   db.Collection(Collection),
		logger: logger,
	}
}

// Connect dials MongoDB, verifies connectivity, ensures indexes and
// returns a ready Store plus a disconnect function for shutdown.
func Connect(ctx context.Context, uri, dbName string, logger *slog.Logger) (*Store, func(context.Context) error, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongodb: %w", err)
	}

	if err := client.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, nil, fmt.Errorf("ping mongodb: %w", err)
	}

	store := New(client.Database(dbName), logger)
	if err := store.EnsureIndexes(dialCtx); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, nil, err
	}

	return store, client.Disconnect, nil
}

// EnsureIndexes creates the indexes the store depends on: a unique
// index on sessionId and a compound index serving the owner listing.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sessionId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "username", Value: 1}, {Key: "updatedAt", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// Session returns the full session document for sessionID.
func (s *Store) Session(ctx context.Context, sessionID string) (*chat.Session, error) {
	var doc sessionDoc
	err := s.coll.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return docToSession(doc), nil
}

// Summaries returns the sessions owned by owner, updatedAt descending.
func (s *Store) Summaries(ctx context.Context, owner string) ([]chat.Summary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetProjection(bson.D{
			{Key: "sessionId", Value: 1},
			{Key: "title", Value: 1},
			{Key: "createdAt", Value: 1},
			{Key: "updatedAt", Value: 1},
		})

	cursor, err := s.coll.Find(ctx, bson.M{"username": owner}, opts)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var docs []summaryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}

	summaries := make([]chat.Summary, 0, len(docs))
	for _, d := range docs {
		summaries = append(summaries, chat.Summary{
			SessionID: d.SessionID,
			Title:     d.Title,
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		})
	}
	return summaries, nil
}

// Create inserts a new session document.
func (s *Store) Create(ctx context.Context, sess *chat.Session) error {
	doc := sessionDoc{
		SessionID: sess.SessionID,
		Username:  sess.Owner,
		Title:     sess.Title,
		Messages:  make([]messageDoc, 0, len(sess.Messages)),
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}
	for _, m := range sess.Messages {
		doc.Messages = append(doc.Messages, toMessageDoc(m))
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return chat.ErrDuplicateSession
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// UpsertAppend atomically pushes msg onto the session's message list,
// inserting the document on first write. The pre-image requested via
// ReturnDocument(Before) distinguishes the two outcomes: no pre-image
// means this call created the session.
func (s *Store) UpsertAppend(ctx context.Context, sessionID, owner, title string, msg chat.Message) (bool, error) {
	update := bson.M{
		"$push": bson.M{"messages": toMessageDoc(msg)},
		"$set":  bson.M{"updatedAt": msg.Timestamp},
		"$setOnInsert": bson.M{
			"sessionId": sessionID,
			"username":  owner,
			"title":     title,
			"createdAt": msg.Timestamp,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)

	err := s.coll.FindOneAndUpdate(ctx, bson.M{"sessionId": sessionID}, update, opts).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("upsert append: %w", err)
	}
	return false, nil
}

// Retitle sets the session title while the stored title is still a
// placeholder. The condition lives in the filter so concurrent
// retitles apply at most once.
func (s *Store) Retitle(ctx context.Context, sessionID, title string) error {
	filter := bson.M{
		"sessionId": sessionID,
		"$or": bson.A{
			bson.M{"title": chat.DefaultTitle},
			bson.M{"title": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(chat.WelcomePrefix)}},
		},
	}

	if _, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"title": title}}); err != nil {
		return fmt.Errorf("retitle session: %w", err)
	}
	return nil
}

// Delete removes the session document and returns the deleted count.
func (s *Store) Delete(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.coll.DeleteOne(ctx, bson.M{"sessionId": sessionID})
	if err != nil {
		return 0, fmt.Errorf("delete session: %w", err)
	}
	return res.DeletedCount, nil
}

// Ping verifies the MongoDB deployment is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, readpref.Primary())
}

func toMessageDoc(m chat.Message) messageDoc {
	return messageDoc{
		Content:   m.Content,
		IsUser:    m.Role == chat.RoleUser,
		Role:      m.Role,
		Timestamp: m.Timestamp,
	}
}

func docToSession(doc sessionDoc) *chat.Session {
	sess := &chat.Session{
		SessionID: doc.SessionID,
		Owner:     doc.Username,
		Title:     doc.Title,
		Messages:  make([]chat.Message, 0, len(doc.Messages)),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, m := range doc.Messages {
		role := m.Role
		if role == "" {
			// Documents from older clients carry only the isUser flag.
			role = chat.RoleAssistant
			if m.IsUser {
				role = chat.RoleUser
			}
		}
		sess.Messages = append(sess.Messages, chat.Message{
			Content:   m.Content,
			Role:      role,
			Timestamp: m.Timestamp,
		})
	}
	return sess
}
