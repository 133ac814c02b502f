package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect selects the placeholder style and driver-specific quirks between
// the two SQL conversation backends.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLConversationStore is the SQLite/Postgres-backed ConversationStore.
// SQLite is the config default; Postgres shares its *sql.DB with
// internal/registry and internal/drift when selected.
type SQLConversationStore struct {
	db            *sql.DB
	dialect       Dialect
	defaultWindow int
}

// NewSQLConversationStore builds a store. defaultWindow is used as the
// history limit whenever ListHistory is called with limit <= 0.
func NewSQLConversationStore(db *sql.DB, dialect Dialect, defaultWindow int) *SQLConversationStore {
	if defaultWindow <= 0 {
		defaultWindow = 25
	}
	return &SQLConversationStore{db: db, dialect: dialect, defaultWindow: defaultWindow}
}

func (s *SQLConversationStore) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// AppendMessage inserts one message and returns its assigned id. On
// Postgres the id comes back via RETURNING; on SQLite via LastInsertId.
func (s *SQLConversationStore) AppendMessage(ctx context.Context, sessionID, role, stage, content string) (int64, error) {
	now := time.Now()
	if s.dialect == DialectPostgres {
		var id int64
		err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
			INSERT INTO conversation_messages (session_id, role, stage, content, created_at)
			VALUES (%s, %s, %s, %s, %s) RETURNING id`,
			s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5)),
			sessionID, role, stage, content, now).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("store: append message: %w", err)
		}
		return id, nil
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (session_id, role, stage, content, created_at)
		VALUES (?, ?, ?, ?, ?)`, sessionID, role, stage, content, now)
	if err != nil {
		return 0, fmt.Errorf("store: append message: %w", err)
	}
	return res.LastInsertId()
}

// ListHistory returns a session's messages ascending by id. limit <= 0 uses
// the store's default window.
func (s *SQLConversationStore) ListHistory(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = s.defaultWindow
	}

	query := fmt.Sprintf(`
		SELECT id, session_id, role, stage, content, created_at FROM (
			SELECT id, session_id, role, stage, content, created_at
			FROM conversation_messages
			WHERE session_id = %s
			ORDER BY id DESC
			LIMIT %s
		) recent ORDER BY id ASC`, s.placeholder(1), s.placeholder(2))

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list history: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Stage, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// IncompleteSessions lists every distinct session_id with no system message
// whose content contains CompleteMarker.
func (s *SQLConversationStore) IncompleteSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT DISTINCT session_id FROM conversation_messages m
		WHERE NOT EXISTS (
			SELECT 1 FROM conversation_messages c
			WHERE c.session_id = m.session_id AND c.role = %s AND %s
		)`, s.placeholder(1), s.containsClause("c.content", 2)), "system", "%"+CompleteMarker+"%")
	if err != nil {
		return nil, fmt.Errorf("store: incomplete sessions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLConversationStore) containsClause(column string, argIndex int) string {
	return strings.TrimSpace(fmt.Sprintf("%s LIKE %s", column, s.placeholder(argIndex)))
}
