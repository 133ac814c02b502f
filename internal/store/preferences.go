package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// SQLPreferenceStore is the SQL-backed PreferenceStore, sharing its *sql.DB
// and Dialect with the conversation store when both are SQL-backed.
type SQLPreferenceStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLPreferenceStore builds a store.
func NewSQLPreferenceStore(db *sql.DB, dialect Dialect) *SQLPreferenceStore {
	return &SQLPreferenceStore{db: db, dialect: dialect}
}

func (s *SQLPreferenceStore) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (s *SQLPreferenceStore) Get(ctx context.Context, userID string) (*Preferences, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT user_id, model, hitl_level, updated_at FROM user_preferences WHERE user_id = %s`,
		s.placeholder(1)), userID)

	var p Preferences
	if err := row.Scan(&p.UserID, &p.Model, &p.HitlLevel, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get preferences: %w", err)
	}
	return &p, nil
}

// Upsert writes prefs, overwriting any existing row for the user.
func (s *SQLPreferenceStore) Upsert(ctx context.Context, prefs Preferences) error {
	if prefs.UpdatedAt.IsZero() {
		prefs.UpdatedAt = time.Now()
	}

	var query string
	if s.dialect == DialectPostgres {
		query = `
			INSERT INTO user_preferences (user_id, model, hitl_level, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id) DO UPDATE SET model = $2, hitl_level = $3, updated_at = $4`
	} else {
		query = `
			INSERT INTO user_preferences (user_id, model, hitl_level, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET model = excluded.model, hitl_level = excluded.hitl_level, updated_at = excluded.updated_at`
	}

	if _, err := s.db.ExecContext(ctx, query, prefs.UserID, prefs.Model, prefs.HitlLevel, prefs.UpdatedAt); err != nil {
		return fmt.Errorf("store: upsert preferences: %w", err)
	}
	return nil
}
