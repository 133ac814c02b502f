package registry

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestPromotedToolsSkipsMalformedSpec(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	cols := []string{"tool_name", "spec", "lifecycle_state", "promoted_at", "flagged_at", "retired_at", "baseline_pass_rate", "replaced_by"}
	rows := sqlmock.NewRows(cols).
		AddRow("get_weather", `{"description":"weather","inputSchema":{"city":{"type":"string"}},"mcpRouting":{"endpoint":"/api/weather","method":"GET","paramMap":{}}}`, "promoted", time.Now(), nil, nil, 0.9, nil).
		AddRow("broken_tool", `not json`, "promoted", nil, nil, nil, nil, nil)

	mock.ExpectQuery("SELECT tool_name, spec, lifecycle_state").WillReturnRows(rows)

	store := New(db, nil)
	tools, err := store.PromotedTools(context.Background())
	if err != nil {
		t.Fatalf("PromotedTools: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("expected 1 valid tool, got %d", len(tools))
	}
	if tools[0].ToolName != "get_weather" {
		t.Errorf("unexpected tool: %+v", tools[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetToolNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT tool_name, spec, lifecycle_state").WillReturnError(context.DeadlineExceeded)

	store := New(db, nil)
	_, err = store.GetTool(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestToLLMToolBuildsSchema(t *testing.T) {
	spec := ToolSpec{
		ToolName:    "get_weather",
		Description: "fetch weather",
		InputSchema: map[string]SchemaField{
			"city": {Type: "string"},
			"unit": {Type: "string", Optional: true},
		},
	}
	tool := spec.ToLLMTool()
	if tool.Name != "get_weather" || tool.Description != "fetch weather" {
		t.Errorf("unexpected tool: %+v", tool)
	}
	if len(tool.InputSchema) == 0 {
		t.Error("expected non-empty input schema")
	}
}

func TestAppendCallLogTruncatesAndSwallowsErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO mcp_call_log").WillReturnError(context.DeadlineExceeded)

	store := New(db, nil)
	store.AppendCallLog(context.Background(), CallLogEntry{
		ToolName:   "get_weather",
		Output:     []byte(`{"ok":true}`),
		StatusCode: 200,
		CalledAt:   time.Now(),
	})
	// No panic, no returned error: failure is swallowed.
}
