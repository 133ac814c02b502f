package drift

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestRollingAverage(t *testing.T) {
	store, mock := newStore(t)
	rows := sqlmock.NewRows([]string{"pass_rate"}).AddRow(0.8).AddRow(0.8).AddRow(0.8).AddRow(0.8).AddRow(0.8)
	mock.ExpectQuery("SELECT pass_rate FROM").WillReturnRows(rows)

	avg, err := store.RollingAverage(context.Background(), "tool_a", 5)
	if err != nil {
		t.Fatalf("RollingAverage: %v", err)
	}
	if avg == nil || *avg != 0.8 {
		t.Fatalf("expected avg 0.8, got %v", avg)
	}
}

func TestRollingAverageNoRows(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery("SELECT pass_rate FROM").WillReturnRows(sqlmock.NewRows([]string{"pass_rate"}))

	avg, err := store.RollingAverage(context.Background(), "tool_a", 5)
	if err != nil {
		t.Fatalf("RollingAverage: %v", err)
	}
	if avg != nil {
		t.Fatalf("expected nil average, got %v", *avg)
	}
}

func TestCheckDriftS5Scenario(t *testing.T) {
	store, mock := newStore(t)
	rows := sqlmock.NewRows([]string{"pass_rate"})
	for i := 0; i < 5; i++ {
		rows.AddRow(0.80)
	}
	mock.ExpectQuery("SELECT pass_rate FROM").WillReturnRows(rows)
	mock.ExpectQuery("SELECT run_at FROM eval_runs").WillReturnRows(sqlmock.NewRows([]string{"run_at"}))
	mock.ExpectQuery("SELECT tool_name FROM tool_registry").WillReturnRows(sqlmock.NewRows([]string{"tool_name"}))

	result, err := store.CheckDrift(context.Background(), "tool_a", 0.95, 0.1, 5)
	if err != nil {
		t.Fatalf("CheckDrift: %v", err)
	}
	if !result.Drifting {
		t.Fatal("expected drifting=true")
	}
	if delta := result.Delta; delta < 0.149 || delta > 0.151 {
		t.Errorf("expected delta ~0.15, got %f", delta)
	}
}

func TestFlagIfDriftingIsIdempotent(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM drift_alert").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO drift_alert").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE tool_registry SET lifecycle_state").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	inserted, err := store.FlagIfDrifting(context.Background(), "tool_a", CheckResult{Drifting: true, Delta: 0.15, CurrentRate: 0.8})
	if err != nil {
		t.Fatalf("FlagIfDrifting (first): %v", err)
	}
	if !inserted {
		t.Fatal("expected first call to insert an alert")
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM drift_alert").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	inserted, err = store.FlagIfDrifting(context.Background(), "tool_a", CheckResult{Drifting: true, Delta: 0.15, CurrentRate: 0.8})
	if err != nil {
		t.Fatalf("FlagIfDrifting (second): %v", err)
	}
	if inserted {
		t.Fatal("expected second call to be a no-op: at most one open alert per tool")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestComputeSuspectsWindow(t *testing.T) {
	store, mock := newStore(t)
	lastClean := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	flaggedAt := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT run_at FROM eval_runs").WillReturnRows(sqlmock.NewRows([]string{"run_at"}).AddRow(lastClean))
	mock.ExpectQuery("SELECT tool_name FROM tool_registry").WillReturnRows(
		sqlmock.NewRows([]string{"tool_name"}).AddRow("suspect_one").AddRow("suspect_two"))

	suspects, err := store.ComputeSuspects(context.Background(), "tool_a", 0.95, flaggedAt)
	if err != nil {
		t.Fatalf("ComputeSuspects: %v", err)
	}
	if len(suspects) != 2 || suspects[0] != "suspect_one" {
		t.Fatalf("unexpected suspects: %v", suspects)
	}
}
