package verifier

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLResultSink persists verifier_results rows, sharing its *sql.DB with
// internal/registry and internal/drift.
type SQLResultSink struct {
	db *sql.DB
}

// NewSQLResultSink builds a SQLResultSink.
func NewSQLResultSink(db *sql.DB) *SQLResultSink {
	return &SQLResultSink{db: db}
}

func (s *SQLResultSink) LogVerifierResult(ctx context.Context, sessionID, toolName, verifierName string, outcome Outcome, message string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verifier_results (session_id, tool_name, verifier_name, outcome, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sessionID, toolName, verifierName, string(outcome), message, time.Now())
	if err != nil {
		return fmt.Errorf("verifier: log result: %w", err)
	}
	return nil
}
