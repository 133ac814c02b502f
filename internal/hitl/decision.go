// Package hitl implements human-in-the-loop pausing: a pure pause decision
// over a tool spec, and a one-time-use resume-token protocol with a choice
// of storage backends.
package hitl

import "github.com/forgehq/sidecar/internal/registry"

// Level is a user or default HITL confirmation posture.
type Level string

const (
	LevelAutonomous Level = "autonomous"
	LevelCautious   Level = "cautious"
	LevelStandard   Level = "standard"
	LevelParanoid   Level = "paranoid"
)

var writeMethods = map[string]bool{"POST": true, "PUT": true, "PATCH": true, "DELETE": true}

// ShouldPause is a pure function of the level and the tool's spec. It never
// touches storage or the clock.
func ShouldPause(level Level, spec registry.ToolSpec) bool {
	switch level {
	case LevelParanoid:
		return true
	case LevelStandard:
		method := spec.Routing.Method
		if method == "" {
			method = "GET"
		}
		return writeMethods[method]
	case LevelCautious:
		return spec.RequiresConfirmation
	default: // autonomous, or unrecognized
		return false
	}
}
