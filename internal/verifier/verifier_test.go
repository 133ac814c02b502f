package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func mustSpec(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal spec: %v", err)
	}
	return raw
}

func TestComposeDedupesAndOrders(t *testing.T) {
	toolDefs := []Def{
		{Name: "shared", AciruOrder: "A-0005", Enabled: true},
		{Name: "tool-only", AciruOrder: "A-0001", Enabled: true},
	}
	wildcardDefs := []Def{
		{Name: "shared", AciruOrder: "Z-9999", Enabled: true}, // should not override first-seen
		{Name: "wildcard-only", AciruOrder: "C-0001", Enabled: true},
		{Name: "no-order", Enabled: true},
	}

	merged := Compose(toolDefs, wildcardDefs)
	if len(merged) != 4 {
		t.Fatalf("expected 4 merged defs, got %d: %+v", len(merged), merged)
	}
	names := make([]string, len(merged))
	for i, d := range merged {
		names[i] = d.Name
	}
	want := []string{"tool-only", "shared", "wildcard-only", "no-order"}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("position %d: got %q, want %q (order: %v)", i, names[i], n, names)
		}
	}
	// first-seen wins: shared keeps the tool-specific order, not the wildcard's.
	for _, d := range merged {
		if d.Name == "shared" && d.AciruOrder != "A-0005" {
			t.Errorf("expected first-seen binding to win, got order %q", d.AciruOrder)
		}
	}
}

func TestVerifyShortCircuitsOnBlock(t *testing.T) {
	defs := []Def{
		{Name: "pass-check", Type: TypeSchema, AciruOrder: "A-0001", Enabled: true,
			Spec: mustSpec(t, SchemaSpec{Required: []string{}})},
		{Name: "block-check", Type: TypeSchema, AciruOrder: "A-0002", Enabled: true,
			Spec: mustSpec(t, SchemaSpec{Required: []string{"missing_field"}})},
		{Name: "never-runs", Type: TypeSchema, AciruOrder: "A-0003", Enabled: true,
			Spec: mustSpec(t, SchemaSpec{Required: []string{}})},
	}
	bindings := map[string][]string{"tool_c": {"pass-check", "block-check", "never-runs"}}

	runner := NewRunner(defs, bindings, "", nil, nil)
	worst, blockedBy, results := runner.Verify(context.Background(), "sess-1", "tool_c", map[string]any{}, []byte(`{"other":"data"}`))

	if worst != OutcomeBlock || blockedBy != "block-check" {
		t.Fatalf("expected block by block-check, got worst=%s blockedBy=%s", worst, blockedBy)
	}
	if len(results) != 2 {
		t.Fatalf("expected short-circuit after 2 verifiers, got %d: %+v", len(results), results)
	}
}

func TestVerifyPatternReject(t *testing.T) {
	defs := []Def{
		{Name: "no-secrets", Type: TypePattern, AciruOrder: "A-0001", Enabled: true,
			Spec: mustSpec(t, PatternSpec{Reject: "sk-[a-z0-9]+"})},
	}
	bindings := map[string][]string{"*": {"no-secrets"}}
	runner := NewRunner(defs, bindings, "", nil, nil)

	worst, _, results := runner.Verify(context.Background(), "sess-1", "any_tool", nil, []byte(`"leaked sk-abc123"`))
	if worst != OutcomeWarn {
		t.Fatalf("expected warn, got %s (%+v)", worst, results)
	}
}

func TestCustomVerifierOutsideDirBecomesStub(t *testing.T) {
	RegisterCustom("always_pass", func(string, map[string]any, json.RawMessage) (Outcome, string, error) {
		return OutcomePass, "", nil
	})
	defs := []Def{
		{Name: "custom-check", Type: TypeCustom, AciruOrder: "U-0001", Enabled: true,
			Spec: mustSpec(t, CustomSpec{FilePath: "/etc/passwd", ExportName: "always_pass"})},
	}
	bindings := map[string][]string{"tool_x": {"custom-check"}}
	runner := NewRunner(defs, bindings, "/var/forge/verifiers", nil, nil)

	worst, _, results := runner.Verify(context.Background(), "sess-1", "tool_x", nil, []byte(`{}`))
	if worst != OutcomeWarn {
		t.Fatalf("expected warn stub for out-of-dir verifier, got %s (%+v)", worst, results)
	}
}

func TestCustomVerifierPanicYieldsWarn(t *testing.T) {
	RegisterCustom("panics", func(string, map[string]any, json.RawMessage) (Outcome, string, error) {
		panic("boom")
	})
	defs := []Def{
		{Name: "panicking", Type: TypeCustom, AciruOrder: "U-0001", Enabled: true,
			Spec: mustSpec(t, CustomSpec{FilePath: "verifiers/panics.go", ExportName: "panics"})},
	}
	bindings := map[string][]string{"tool_y": {"panicking"}}
	runner := NewRunner(defs, bindings, "verifiers", nil, nil)

	worst, _, results := runner.Verify(context.Background(), "sess-1", "tool_y", nil, []byte(`{}`))
	if worst != OutcomeWarn || len(results) != 1 {
		t.Fatalf("expected single warn result, got worst=%s results=%+v", worst, results)
	}
}

type stubSink struct{ err error }

func (s stubSink) LogVerifierResult(context.Context, string, string, string, Outcome, string) error {
	return s.err
}

func TestLoggingFailureIsNonFatal(t *testing.T) {
	defs := []Def{{Name: "pass-check", Type: TypeSchema, AciruOrder: "A-0001", Enabled: true, Spec: mustSpec(t, SchemaSpec{})}}
	runner := NewRunner(defs, map[string][]string{"*": {"pass-check"}}, "", stubSink{err: errors.New("db down")}, nil)

	worst, _, _ := runner.Verify(context.Background(), "sess-1", "any_tool", nil, []byte(`{}`))
	if worst != OutcomePass {
		t.Fatalf("expected pass despite sink failure, got %s", worst)
	}
}
