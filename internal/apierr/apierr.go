// Package apierr defines the typed error kinds surfaced by the sidecar's
// HTTP handlers and the shapes they render as.
package apierr

import "fmt"

// AuthError is returned when bearer/JWT authentication fails. The caller
// never sees the underlying reason.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "unauthorized: " + e.Reason }

// StatusCode implements the httpapi status-code lookup.
func (e *AuthError) StatusCode() int { return 401 }

// ValidationError is a 400: a malformed request body or an invalid config
// field. Message is safe to show to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) StatusCode() int { return 400 }

// NotFoundError is a 404: unknown route, tool not in registry, or a widget
// path outside the served directory.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

func (e *NotFoundError) StatusCode() int { return 404 }

// UpstreamError wraps a failure talking to an LLM provider: non-2xx,
// non-JSON body, or an explicit provider error field. Carries a 120/300-char
// preview per spec.
type UpstreamError struct {
	Provider string
	Status   int
	Preview  string
	Cause    error
}

func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("upstream error (%s, status %d): %v", e.Provider, e.Status, e.Cause)
	}
	return fmt.Sprintf("upstream error (%s, status %d): %s", e.Provider, e.Status, e.Preview)
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

// ToolExecutionError captures a tool-call failure (network, timeout,
// non-2xx). Unlike UpstreamError it never aborts the ReAct loop: it is
// surfaced to the model as a tool_result body and gated by the verifier
// runner.
type ToolExecutionError struct {
	ToolName string
	Status   int
	Message  string
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q execution error (status %d): %s", e.ToolName, e.Status, e.Message)
}

// VerifierBlockError indicates a verifier returned `block`; the ReAct loop
// stops and yields a hitl event rather than propagating an HTTP error.
type VerifierBlockError struct {
	VerifierName string
	Message      string
}

func (e *VerifierBlockError) Error() string {
	return fmt.Sprintf("verifier %q blocked: %s", e.VerifierName, e.Message)
}

// StatusCoder is implemented by error kinds that map onto a fixed HTTP
// status code.
type StatusCoder interface {
	StatusCode() int
}
