// Package store implements the pluggable conversation and preference
// stores backing the chat surface: SQLite (default), Redis (windowed), and
// Postgres conversation backends behind one interface, plus a SQL-backed
// preference store.
package store

import (
	"context"
	"time"
)

// Message is one row of a session's conversation history.
type Message struct {
	ID        int64
	SessionID string
	Role      string
	Stage     string
	Content   string
	CreatedAt time.Time
}

// CompleteMarker is the system message content that marks a session done;
// incompleteSessions reports every session lacking one.
const CompleteMarker = "[COMPLETE]"

// ConversationStore is the pluggable per-session message log.
type ConversationStore interface {
	AppendMessage(ctx context.Context, sessionID, role, stage, content string) (int64, error)
	ListHistory(ctx context.Context, sessionID string, limit int) ([]Message, error)
	IncompleteSessions(ctx context.Context) ([]string, error)
}

// Preferences is a user's stored chat overrides, gated at the chat handler
// by allowUserModelSelect/allowUserHitlConfig.
type Preferences struct {
	UserID    string
	Model     string
	HitlLevel string
	UpdatedAt time.Time
}

// PreferenceStore is the per-user preference store.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (*Preferences, error)
	Upsert(ctx context.Context, prefs Preferences) error
}
