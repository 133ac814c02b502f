package verifier

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// runSchema implements the `schema` verifier kind: block on any violation.
func runSchema(spec SchemaSpec, body json.RawMessage) (Outcome, string) {
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return OutcomeBlock, "result body is not a JSON object"
	}

	for _, name := range spec.Required {
		if _, ok := decoded[name]; !ok {
			return OutcomeBlock, fmt.Sprintf("missing required field %q", name)
		}
	}
	for key, def := range spec.Properties {
		value, present := decoded[key]
		if !present {
			continue
		}
		got := jsonType(value)
		if got != def.Type {
			return OutcomeBlock, fmt.Sprintf("field %q has type %q, expected %q", key, got, def.Type)
		}
	}
	return OutcomePass, ""
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "unknown"
	}
}

// runPattern implements the `pattern` verifier kind. Malformed regexes are
// non-fatal: they yield warn with the compile error as the message.
func runPattern(spec PatternSpec, body json.RawMessage) (Outcome, string) {
	text := bodyAsString(body)

	if spec.Reject != "" {
		re, err := regexp.Compile(spec.Reject)
		if err != nil {
			return OutcomeWarn, fmt.Sprintf("invalid reject pattern: %v", err)
		}
		if re.MatchString(text) {
			return spec.outcomeOrWarn(), fmt.Sprintf("matched reject pattern %q", spec.Reject)
		}
	}
	if spec.Match != "" {
		re, err := regexp.Compile(spec.Match)
		if err != nil {
			return OutcomeWarn, fmt.Sprintf("invalid match pattern: %v", err)
		}
		if !re.MatchString(text) {
			return spec.outcomeOrWarn(), fmt.Sprintf("did not match required pattern %q", spec.Match)
		}
	}
	return OutcomePass, ""
}

func bodyAsString(body json.RawMessage) string {
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s
	}
	return string(body)
}

// runCustom invokes the compiled-in function bound to spec.ExportName.
// Panics inside fn are recovered and surfaced as a warn, matching the
// "thrown exceptions yield warn" behavior of the source runtime.
func runCustom(spec CustomSpec, toolName string, args map[string]any, body json.RawMessage) (outcome Outcome, message string) {
	fn, ok := customRegistry[spec.ExportName]
	if !ok {
		return OutcomeWarn, fmt.Sprintf("custom verifier export %q is not registered", spec.ExportName)
	}

	defer func() {
		if r := recover(); r != nil {
			outcome, message = OutcomeWarn, fmt.Sprintf("custom verifier panicked: %v", r)
		}
	}()

	o, msg, err := fn(toolName, args, body)
	if err != nil {
		return OutcomeWarn, err.Error()
	}
	return o, msg
}
