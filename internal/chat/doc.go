// Package chat provides chat session persistence and the rules that
// govern it.
//
// A session is a document keyed by a client-assigned session ID. It
// carries an owner, a derived title and an ordered list of messages.
// Sessions are created lazily: the first persisted message of an
// unknown session ID creates the document and derives its title.
//
// Key pieces:
//
//   - [Session], [Message], [Summary]: the domain types
//   - [Store]: the persistence contract implemented by the mongostore
//     and pgstore packages
//   - [Service]: the use-case layer enforcing the welcome filter, role
//     validation, title derivation and per-operation timeouts
//
// # Concurrency
//
// Service holds no mutable state; all state lives in the backing
// store. Concurrent appends to the same session are resolved by the
// store's atomic upsert-append, never by read-modify-write in Go.
package chat
