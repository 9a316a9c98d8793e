package chat

import (
	"strings"
	"time"
)

// Role constants define valid message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Title derivation constants.
const (
	// DefaultTitle is assigned to sessions whose first persisted message
	// is not a user message.
	DefaultTitle = "New Chat"

	// TitleMaxLen is the number of leading characters of the first user
	// message kept as the session title.
	TitleMaxLen = 50
)

// Welcome greeting constants. The assistant greeting shown by clients
// on a fresh chat is presentation-only and must never reach the store.
const (
	// WelcomeMessage is the exact client greeting.
	WelcomeMessage = "Welcome to Provana KMS! How can I help you today?"

	// WelcomePrefix catches reworded variants of the greeting. Stores
	// also use it to recognize placeholder titles during retitling.
	WelcomePrefix = "Welcome to Provana KMS"
)

// Session is a full chat session document.
type Session struct {
	SessionID string    `json:"sessionId"`
	Owner     string    `json:"owner"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is a single entry in a session's ordered message list.
type Message struct {
	Content   string    `json:"content"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary is the listing projection of a session: identity and
// metadata without the message bodies.
type Summary struct {
	SessionID string    `json:"sessionId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ValidRole reports whether role is one of the persistable roles.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}

// IsWelcome reports whether a message is the client-side welcome
// greeting. Only assistant messages qualify; a user quoting the
// greeting verbatim is still persisted. A message with an empty role
// is treated as welcome noise and skipped as well.
func IsWelcome(content, role string) bool {
	if role == "" {
		return true
	}
	if role != RoleAssistant {
		return false
	}
	return content == WelcomeMessage || strings.HasPrefix(content, WelcomePrefix)
}

// IsPlaceholderTitle reports whether a stored title is still a
// placeholder that a later user message may replace.
func IsPlaceholderTitle(title string) bool {
	return title == DefaultTitle || strings.HasPrefix(title, WelcomePrefix)
}

// DeriveTitle derives a session title from the first persisted message.
// A user message yields its first TitleMaxLen characters, with "..."
// appended when truncated. Anything else yields DefaultTitle.
func DeriveTitle(content, role string) string {
	if role != RoleUser {
		return DefaultTitle
	}
	runes := []rune(content)
	if len(runes) <= TitleMaxLen {
		return content
	}
	return string(runes[:TitleMaxLen]) + "..."
}
