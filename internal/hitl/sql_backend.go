package hitl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Dialect selects the placeholder style for SQLBackend's queries.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// SQLBackend stores pending state in a `hitl_pending` table, used for both
// the Postgres and SQLite conversation-store configurations.
type SQLBackend struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLBackend wraps db. Call EnsureSchema once at startup before using it.
func NewSQLBackend(db *sql.DB, dialect Dialect) *SQLBackend {
	return &SQLBackend{db: db, dialect: dialect}
}

// EnsureSchema creates the hitl_pending table if it does not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS hitl_pending (
			token TEXT PRIMARY KEY,
			state BYTEA NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`
	if dialect == DialectSQLite {
		ddl = `
		CREATE TABLE IF NOT EXISTS hitl_pending (
			token TEXT PRIMARY KEY,
			state BLOB NOT NULL,
			expires_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL
		)`
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("hitl: ensure schema: %w", err)
	}
	return nil
}

func (b *SQLBackend) placeholder(n int) string {
	if b.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (b *SQLBackend) Save(ctx context.Context, token string, state []byte, expiresAt time.Time) error {
	query := fmt.Sprintf(
		`INSERT INTO hitl_pending (token, state, expires_at, created_at) VALUES (%s, %s, %s, %s)`,
		b.placeholder(1), b.placeholder(2), b.placeholder(3), b.placeholder(4))
	_, err := b.db.ExecContext(ctx, query, token, state, expiresAt, time.Now())
	if err != nil {
		return fmt.Errorf("hitl: sql save: %w", err)
	}
	return nil
}

// Consume runs inside a transaction: select the row, delete it, and only
// then decide validity, so a concurrent Consume for the same token can never
// observe the row twice.
func (b *SQLBackend) Consume(ctx context.Context, token string) ([]byte, bool, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("hitl: sql begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	selectQuery := fmt.Sprintf(`SELECT state, expires_at FROM hitl_pending WHERE token = %s`, b.placeholder(1))
	var state []byte
	var expiresAt time.Time
	err = tx.QueryRowContext(ctx, selectQuery, token).Scan(&state, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("hitl: sql select: %w", err)
	}

	deleteQuery := fmt.Sprintf(`DELETE FROM hitl_pending WHERE token = %s`, b.placeholder(1))
	if _, err := tx.ExecContext(ctx, deleteQuery, token); err != nil {
		return nil, false, fmt.Errorf("hitl: sql delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("hitl: sql commit: %w", err)
	}

	if time.Now().After(expiresAt) {
		return nil, false, nil
	}
	return state, true, nil
}
