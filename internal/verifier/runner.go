package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/forgehq/sidecar/internal/observability"
)

// ResultSink persists verifier_results rows. Implementations should treat
// failures as the caller's problem to log, not the runner's: Runner always
// swallows sink errors itself.
type ResultSink interface {
	LogVerifierResult(ctx context.Context, sessionID, toolName, verifierName string, outcome Outcome, message string) error
}

// Runner composes and executes the verifiers bound to a tool.
type Runner struct {
	defs             map[string]Def
	stubs            map[string]string // verifier name -> warn message, for custom verifiers that failed sandboxing
	toolBindings     map[string][]string
	wildcardBindings []string
	sink             ResultSink
	logger           *observability.Logger
}

// NewRunner builds a Runner from the full verifier registry and its
// tool bindings. verifiersDir gates custom verifiers: any whose recorded
// filePath resolves outside it becomes a warn stub, as do unregistered
// exportNames and malformed specs.
func NewRunner(defs []Def, bindings map[string][]string, verifiersDir string, sink ResultSink, logger *observability.Logger) *Runner {
	r := &Runner{
		defs:         make(map[string]Def, len(defs)),
		stubs:        make(map[string]string),
		toolBindings: make(map[string][]string),
		sink:         sink,
		logger:       logger,
	}

	for _, d := range defs {
		if d.Type == TypeCustom {
			r.sandboxCustom(d, verifiersDir)
		}
		r.defs[d.Name] = d
	}
	for tool, names := range bindings {
		if tool == WildcardTool {
			r.wildcardBindings = names
			continue
		}
		r.toolBindings[tool] = names
	}
	return r
}

func (r *Runner) sandboxCustom(d Def, verifiersDir string) {
	var spec CustomSpec
	if err := json.Unmarshal(d.Spec, &spec); err != nil {
		r.stubs[d.Name] = fmt.Sprintf("invalid custom verifier spec: %v", err)
		return
	}
	if spec.FilePath == "" || !pathContained(spec.FilePath, verifiersDir) {
		r.stubs[d.Name] = fmt.Sprintf("custom verifier file %q is outside verifiersDir", spec.FilePath)
		return
	}
	if _, ok := customRegistry[spec.ExportName]; !ok {
		r.stubs[d.Name] = fmt.Sprintf("custom verifier export %q is not registered", spec.ExportName)
	}
}

// pathContained reports whether filePath, once made absolute, lies under
// dir. It is a pure path computation: no file is ever opened, matching the
// compile-time custom-verifier registry (the recorded path is checked, not
// loaded).
func pathContained(filePath, dir string) bool {
	if filePath == "" || dir == "" {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absFile, err := filepath.Abs(filePath)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absFile)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (r *Runner) resolveDefs(names []string) []Def {
	out := make([]Def, 0, len(names))
	for _, name := range names {
		if d, ok := r.defs[name]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Verify composes the verifiers bound to toolName (tool-specific plus
// wildcard, deduped and ACIRU-ordered) and runs them in order. It returns
// the worst outcome seen and, on block, the name of the verifier that
// triggered the short-circuit.
func (r *Runner) Verify(ctx context.Context, sessionID, toolName string, args map[string]any, body json.RawMessage) (worst Outcome, blockedBy string, results []Result) {
	ordered := Compose(r.resolveDefs(r.toolBindings[toolName]), r.resolveDefs(r.wildcardBindings))

	worst = OutcomePass
	for _, d := range ordered {
		if !d.Enabled {
			continue
		}

		var outcome Outcome
		var message string
		if reason, stubbed := r.stubs[d.Name]; stubbed {
			outcome, message = OutcomeWarn, reason
		} else {
			outcome, message = r.runOne(d, toolName, args, body)
		}

		results = append(results, Result{VerifierName: d.Name, Outcome: outcome, Message: message})
		r.logResult(ctx, sessionID, toolName, d.Name, outcome, message)

		worst = worse(worst, outcome)
		if outcome == OutcomeBlock {
			return OutcomeBlock, d.Name, results
		}
	}
	return worst, "", results
}

func (r *Runner) runOne(d Def, toolName string, args map[string]any, body json.RawMessage) (Outcome, string) {
	switch d.Type {
	case TypeSchema:
		var spec SchemaSpec
		if err := json.Unmarshal(d.Spec, &spec); err != nil {
			return OutcomeWarn, fmt.Sprintf("invalid schema spec: %v", err)
		}
		return runSchema(spec, body)
	case TypePattern:
		var spec PatternSpec
		if err := json.Unmarshal(d.Spec, &spec); err != nil {
			return OutcomeWarn, fmt.Sprintf("invalid pattern spec: %v", err)
		}
		return runPattern(spec, body)
	case TypeCustom:
		var spec CustomSpec
		if err := json.Unmarshal(d.Spec, &spec); err != nil {
			return OutcomeWarn, fmt.Sprintf("invalid custom spec: %v", err)
		}
		return runCustom(spec, toolName, args, body)
	default:
		return OutcomeWarn, fmt.Sprintf("unknown verifier type %q", d.Type)
	}
}

func (r *Runner) logResult(ctx context.Context, sessionID, toolName, verifierName string, outcome Outcome, message string) {
	if r.sink == nil {
		return
	}
	if err := r.sink.LogVerifierResult(ctx, sessionID, toolName, verifierName, outcome, message); err != nil && r.logger != nil {
		r.logger.Warn(ctx, "verifier: result log write failed", "verifier_name", verifierName, "error", err)
	}
}
