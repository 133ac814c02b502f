package store

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureConversationSchema creates the conversation_messages table if it does
// not already exist. Called once at startup for SQL-backed conversation
// stores; Redis needs no schema.
func EnsureConversationSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	var ddl string
	switch dialect {
	case DialectPostgres:
		ddl = `
			CREATE TABLE IF NOT EXISTS conversation_messages (
				id BIGSERIAL PRIMARY KEY,
				session_id TEXT NOT NULL,
				role TEXT NOT NULL,
				stage TEXT NOT NULL,
				content TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL
			);
			CREATE INDEX IF NOT EXISTS conversation_messages_session_idx ON conversation_messages (session_id, id);`
	default:
		ddl = `
			CREATE TABLE IF NOT EXISTS conversation_messages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL,
				role TEXT NOT NULL,
				stage TEXT NOT NULL,
				content TEXT NOT NULL,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS conversation_messages_session_idx ON conversation_messages (session_id, id);`
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("store: ensure conversation schema: %w", err)
	}
	return nil
}

// EnsurePreferenceSchema creates the user_preferences table if absent.
func EnsurePreferenceSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	var ddl string
	switch dialect {
	case DialectPostgres:
		ddl = `
			CREATE TABLE IF NOT EXISTS user_preferences (
				user_id TEXT PRIMARY KEY,
				model TEXT NOT NULL DEFAULT '',
				hitl_level TEXT NOT NULL DEFAULT '',
				updated_at TIMESTAMPTZ NOT NULL
			)`
	default:
		ddl = `
			CREATE TABLE IF NOT EXISTS user_preferences (
				user_id TEXT PRIMARY KEY,
				model TEXT NOT NULL DEFAULT '',
				hitl_level TEXT NOT NULL DEFAULT '',
				updated_at DATETIME NOT NULL
			)`
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("store: ensure preference schema: %w", err)
	}
	return nil
}
