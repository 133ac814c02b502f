// Package drift implements the drift monitor: rolling pass-rate comparison
// against a tool's baseline, atomic alert flagging, and suspect
// attribution among recently-promoted tools.
package drift

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultThreshold and DefaultWindowSize are the config fallbacks.
const (
	DefaultThreshold  = 0.10
	DefaultWindowSize = 5

	// fallbackBaselinePassRate is used when a tool's own baseline_pass_rate
	// is null, for the "last clean run" search in suspect computation.
	fallbackBaselinePassRate = 0.8
)

// AlertStatus is a drift_alert row's lifecycle.
type AlertStatus string

const (
	AlertOpen     AlertStatus = "open"
	AlertResolved AlertStatus = "resolved"
)

// Alert is one drift_alert row.
type Alert struct {
	ID           int64
	ToolName     string
	DetectedAt   time.Time
	TriggerTools []string
	BaselineRate float64
	CurrentRate  float64
	Delta        float64
	Status       AlertStatus
	ResolvedAt   *time.Time
}

// CheckResult is the outcome of one drift check for a tool.
type CheckResult struct {
	Drifting    bool
	Delta       float64
	CurrentRate float64
	Suspects    []string
}

// Store is the Postgres-backed drift monitor persistence layer, sharing its
// *sql.DB with internal/registry.
type Store struct {
	db *sql.DB
}

// New builds a Store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// RollingAverage reads up to windowSize most-recent eval runs for toolName
// with a non-null pass_rate and total_cases > 0, ordered run_at DESC, and
// returns their arithmetic mean. Returns nil if there are no such rows.
func (s *Store) RollingAverage(ctx context.Context, toolName string, windowSize int) (*float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pass_rate FROM (
			SELECT pass_rate, run_at FROM eval_runs
			WHERE tool_name = $1 AND pass_rate IS NOT NULL AND total_cases > 0
			ORDER BY run_at DESC
			LIMIT $2
		) recent`, toolName, windowSize)
	if err != nil {
		return nil, fmt.Errorf("drift: rolling average query: %w", err)
	}
	defer rows.Close()

	var sum float64
	var count int
	for rows.Next() {
		var rate float64
		if err := rows.Scan(&rate); err != nil {
			return nil, fmt.Errorf("drift: scan pass_rate: %w", err)
		}
		sum += rate
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	avg := sum / float64(count)
	return &avg, nil
}

// CheckDrift compares the rolling average against baselinePassRate. A nil
// rolling average (no eligible eval runs) is never drifting.
func (s *Store) CheckDrift(ctx context.Context, toolName string, baselinePassRate, threshold float64, windowSize int) (CheckResult, error) {
	current, err := s.RollingAverage(ctx, toolName, windowSize)
	if err != nil {
		return CheckResult{}, err
	}
	if current == nil {
		return CheckResult{Drifting: false}, nil
	}

	delta := baselinePassRate - *current
	if delta < threshold {
		return CheckResult{Drifting: false, Delta: delta, CurrentRate: *current}, nil
	}

	suspects, err := s.ComputeSuspects(ctx, toolName, baselinePassRate, time.Now())
	if err != nil {
		return CheckResult{}, err
	}
	return CheckResult{Drifting: true, Delta: delta, CurrentRate: *current, Suspects: suspects}, nil
}

// ComputeSuspects finds the most recent eval run at or above the effective
// baseline (baselinePassRate, or 0.8 if it is the tool's unset/zero value)
// and returns every other tool's name whose promoted_at falls in the
// half-open interval (lastCleanRun, asOf].
func (s *Store) ComputeSuspects(ctx context.Context, toolName string, baselinePassRate float64, asOf time.Time) ([]string, error) {
	effectiveBaseline := baselinePassRate
	if effectiveBaseline <= 0 {
		effectiveBaseline = fallbackBaselinePassRate
	}

	var lastClean time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT run_at FROM eval_runs
		WHERE tool_name = $1 AND pass_rate >= $2
		ORDER BY run_at DESC LIMIT 1`, toolName, effectiveBaseline).Scan(&lastClean)
	if err == sql.ErrNoRows {
		lastClean = time.Time{}
	} else if err != nil {
		return nil, fmt.Errorf("drift: last clean run query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tool_name FROM tool_registry
		WHERE tool_name != $1 AND promoted_at > $2 AND promoted_at <= $3`,
		toolName, lastClean, asOf)
	if err != nil {
		return nil, fmt.Errorf("drift: suspects query: %w", err)
	}
	defer rows.Close()

	var suspects []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		suspects = append(suspects, name)
	}
	return suspects, rows.Err()
}

// FlagIfDrifting persists a CheckResult when drifting, in a single
// transaction: insert the drift_alert row, and flag the tool's lifecycle
// state. Idempotent — if an open alert already exists for toolName, no new
// row is inserted and the call returns (false, nil).
func (s *Store) FlagIfDrifting(ctx context.Context, toolName string, result CheckResult) (inserted bool, err error) {
	if !result.Drifting {
		return false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("drift: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM drift_alert WHERE tool_name = $1 AND status = $2`,
		toolName, AlertOpen).Scan(&existing); err != nil {
		return false, fmt.Errorf("drift: check existing alert: %w", err)
	}
	if existing > 0 {
		return false, nil
	}

	now := time.Now()
	triggerTools, _ := json.Marshal(result.Suspects)
	baseline := result.CurrentRate + result.Delta

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO drift_alert (tool_name, detected_at, trigger_tools, baseline_rate, current_rate, delta, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		toolName, now, triggerTools, baseline, result.CurrentRate, result.Delta, AlertOpen); err != nil {
		return false, fmt.Errorf("drift: insert alert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tool_registry SET lifecycle_state = $1, flagged_at = $2 WHERE tool_name = $3`,
		"flagged", now, toolName); err != nil {
		return false, fmt.Errorf("drift: flag tool: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("drift: commit: %w", err)
	}
	return true, nil
}

// ResolveDrift marks alertID resolved, retires its tool in favor of
// replacementName, and promotes the replacement — all in one transaction.
func (s *Store) ResolveDrift(ctx context.Context, alertID int64, replacementName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("drift: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var toolName string
	if err := tx.QueryRowContext(ctx, `SELECT tool_name FROM drift_alert WHERE id = $1`, alertID).Scan(&toolName); err != nil {
		return fmt.Errorf("drift: lookup alert: %w", err)
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE drift_alert SET status = $1, resolved_at = $2 WHERE id = $3`,
		AlertResolved, now, alertID); err != nil {
		return fmt.Errorf("drift: resolve alert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE tool_registry SET lifecycle_state = $1, retired_at = $2, replaced_by = $3 WHERE tool_name = $4`,
		"retired", now, replacementName, toolName); err != nil {
		return fmt.Errorf("drift: retire tool: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE tool_registry SET lifecycle_state = $1, promoted_at = $2 WHERE tool_name = $3`,
		"promoted", now, replacementName); err != nil {
		return fmt.Errorf("drift: promote replacement: %w", err)
	}

	return tx.Commit()
}

// PromotedToolBaseline is the minimal shape the background loop needs per
// promoted tool.
type PromotedToolBaseline struct {
	ToolName         string
	BaselinePassRate float64
}

// PromotedBaselines lists every promoted tool's baseline pass rate.
func (s *Store) PromotedBaselines(ctx context.Context) ([]PromotedToolBaseline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tool_name, COALESCE(baseline_pass_rate, 0) FROM tool_registry WHERE lifecycle_state = $1`, "promoted")
	if err != nil {
		return nil, fmt.Errorf("drift: promoted baselines query: %w", err)
	}
	defer rows.Close()

	var out []PromotedToolBaseline
	for rows.Next() {
		var b PromotedToolBaseline
		if err := rows.Scan(&b.ToolName, &b.BaselinePassRate); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
