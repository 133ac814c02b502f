// Package registry provides the read-only tool-spec accessor and the
// append-only MCP call log backing the chat surface and the tool executor.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/forgehq/sidecar/internal/llm"
	"github.com/forgehq/sidecar/internal/observability"
)

// LifecycleState is a tool's position in the candidate→promoted→flagged→
// retired pipeline. Only promoted tools are exposed to the chat and MCP
// surfaces.
type LifecycleState string

const (
	LifecycleCandidate LifecycleState = "candidate"
	LifecyclePromoted  LifecycleState = "promoted"
	LifecycleFlagged   LifecycleState = "flagged"
	LifecycleRetired   LifecycleState = "retired"
)

// ParamMapping describes where a single tool argument lands in the outbound
// HTTP request built by the tool executor.
type ParamMapping struct {
	Path  string `json:"path,omitempty"`
	Query string `json:"query,omitempty"`
	Body  string `json:"body,omitempty"`
}

// McpRouting is the per-tool HTTP routing spec.
type McpRouting struct {
	Endpoint string                  `json:"endpoint"`
	Method   string                  `json:"method"`
	ParamMap map[string]ParamMapping `json:"paramMap"`
}

// SchemaField is one entry of a tool's input schema.
type SchemaField struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
}

// toolSpecBody is the shape stored in the `spec` JSON column; ToolSpec adds
// the columns that live outside it.
type toolSpecBody struct {
	Description          string                 `json:"description"`
	InputSchema          map[string]SchemaField `json:"inputSchema"`
	Routing              McpRouting             `json:"mcpRouting"`
	RequiresConfirmation bool                   `json:"requiresConfirmation"`
	Category             string                 `json:"category"`
}

// ToolSpec is a tool registry row.
type ToolSpec struct {
	ToolName             string
	Description          string
	InputSchema          map[string]SchemaField
	Routing              McpRouting
	RequiresConfirmation bool
	Category             string
	LifecycleState       LifecycleState
	PromotedAt           *time.Time
	FlaggedAt            *time.Time
	RetiredAt            *time.Time
	BaselinePassRate     *float64
	ReplacedBy           *string
}

// ToLLMTool converts the spec into the neutral shape the LLM transport
// consumes.
func (t ToolSpec) ToLLMTool() llm.Tool {
	properties := make(map[string]any, len(t.InputSchema))
	var required []string
	for name, field := range t.InputSchema {
		prop := map[string]any{"type": field.Type}
		if field.Description != "" {
			prop["description"] = field.Description
		}
		properties[name] = prop
		if !field.Optional {
			required = append(required, name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	raw, _ := json.Marshal(schema)
	return llm.Tool{Name: t.ToolName, Description: t.Description, InputSchema: raw}
}

// CallLogEntry is one row of the append-only MCP call log.
type CallLogEntry struct {
	ToolName   string
	Input      json.RawMessage
	Output     json.RawMessage
	StatusCode int
	LatencyMs  int64
	Error      string
	CalledAt   time.Time
}

const (
	maxCallLogOutput = 10000
	maxCallLogError  = 500
)

// Store is the Postgres-backed tool registry and call log. The same *sql.DB
// also backs internal/drift's eval-run and alert tables.
type Store struct {
	db     *sql.DB
	logger *observability.Logger
}

// New builds a Store. logger is used only to report non-fatal write
// failures; it may be nil.
func New(db *sql.DB, logger *observability.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// PromotedTools lists every tool with lifecycle_state = promoted. Rows whose
// spec column fails to parse are skipped and a warning logged; the call
// otherwise succeeds.
func (s *Store) PromotedTools(ctx context.Context) ([]ToolSpec, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tool_name, spec, lifecycle_state, promoted_at, flagged_at, retired_at, baseline_pass_rate, replaced_by
		FROM tool_registry WHERE lifecycle_state = $1`, LifecyclePromoted)
	if err != nil {
		return nil, fmt.Errorf("registry: list promoted tools: %w", err)
	}
	defer rows.Close()

	var out []ToolSpec
	for rows.Next() {
		spec, err := s.scanToolSpec(rows)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn(ctx, "registry: skipping malformed tool spec", "error", err)
			}
			continue
		}
		out = append(out, spec)
	}
	return out, rows.Err()
}

// GetTool looks up a tool by name regardless of lifecycle state; callers
// that require promotion (the chat/MCP surfaces, the executor) check
// LifecycleState themselves.
func (s *Store) GetTool(ctx context.Context, name string) (*ToolSpec, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tool_name, spec, lifecycle_state, promoted_at, flagged_at, retired_at, baseline_pass_rate, replaced_by
		FROM tool_registry WHERE tool_name = $1`, name)
	spec, err := s.scanToolSpec(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &spec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanToolSpec(row rowScanner) (ToolSpec, error) {
	var (
		name             string
		rawSpec          []byte
		lifecycle        string
		promotedAt       sql.NullTime
		flaggedAt        sql.NullTime
		retiredAt        sql.NullTime
		baselinePassRate sql.NullFloat64
		replacedBy       sql.NullString
	)
	if err := row.Scan(&name, &rawSpec, &lifecycle, &promotedAt, &flaggedAt, &retiredAt, &baselinePassRate, &replacedBy); err != nil {
		return ToolSpec{}, err
	}

	var body toolSpecBody
	if err := json.Unmarshal(rawSpec, &body); err != nil {
		return ToolSpec{}, fmt.Errorf("registry: tool %q has invalid spec JSON: %w", name, err)
	}

	spec := ToolSpec{
		ToolName:             name,
		Description:          body.Description,
		InputSchema:          body.InputSchema,
		Routing:              body.Routing,
		RequiresConfirmation: body.RequiresConfirmation,
		Category:             body.Category,
		LifecycleState:       LifecycleState(lifecycle),
	}
	if promotedAt.Valid {
		spec.PromotedAt = &promotedAt.Time
	}
	if flaggedAt.Valid {
		spec.FlaggedAt = &flaggedAt.Time
	}
	if retiredAt.Valid {
		spec.RetiredAt = &retiredAt.Time
	}
	if baselinePassRate.Valid {
		spec.BaselinePassRate = &baselinePassRate.Float64
	}
	if replacedBy.Valid {
		spec.ReplacedBy = &replacedBy.String
	}
	return spec, nil
}

// AppendCallLog inserts one MCP call log row. Failures are logged and
// swallowed: telemetry never fails the request that produced it.
func (s *Store) AppendCallLog(ctx context.Context, entry CallLogEntry) {
	output := truncateJSON(entry.Output, maxCallLogOutput)
	errMsg := truncateString(entry.Error, maxCallLogError)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mcp_call_log (tool_name, input, output, status_code, latency_ms, error, called_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ToolName, entry.Input, output, entry.StatusCode, entry.LatencyMs, nullIfEmpty(errMsg), entry.CalledAt)
	if err != nil && s.logger != nil {
		s.logger.Warn(ctx, "registry: call log write failed", "tool_name", entry.ToolName, "error", err)
	}
}

func truncateJSON(raw json.RawMessage, n int) json.RawMessage {
	if len(raw) <= n {
		return raw
	}
	return json.RawMessage(string(raw)[:n])
}

func truncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
