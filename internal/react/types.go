// Package react implements the ReAct loop: the agent's execution core,
// interleaving model turns with tool execution, HITL pausing, and verifier
// gating, as an asynchronous producer of typed events.
package react

import (
	"context"
	"encoding/json"

	"github.com/forgehq/sidecar/internal/llm"
	"github.com/forgehq/sidecar/internal/toolexec"
	"github.com/forgehq/sidecar/internal/verifier"
)

// DefaultMaxTurns bounds the number of tool_call/tool_result batches a loop
// run will emit before giving up.
const DefaultMaxTurns = 10

// EventType tags one Event.
type EventType string

const (
	EventText        EventType = "text"
	EventTextDelta   EventType = "text_delta"
	EventToolCall    EventType = "tool_call"
	EventToolResult  EventType = "tool_result"
	EventToolWarning EventType = "tool_warning"
	EventHITL        EventType = "hitl"
	EventDone        EventType = "done"
	EventError       EventType = "error"
)

// ToolCallPayload is the tool_call event body.
type ToolCallPayload struct {
	Tool string
	ID   string
	Args json.RawMessage
}

// ToolResultPayload is the tool_result event body.
type ToolResultPayload struct {
	ID     string
	Tool   string
	Result json.RawMessage
}

// ToolWarningPayload is the tool_warning event body.
type ToolWarningPayload struct {
	Tool     string
	Message  string
	Verifier string
}

// HITLPayload is the hitl event body. ResumeToken is deliberately absent:
// the loop only produces the snapshot, the caller issues the token via
// internal/hitl and attaches it to the outward event.
type HITLPayload struct {
	Tool                 string
	Args                 json.RawMessage
	Message              string
	PendingToolCalls     []llm.ToolCall
	ConversationMessages []llm.Message
	TurnIndex            int
	Verifier             string
}

// DonePayload is the done event body.
type DonePayload struct {
	Usage llm.Usage
}

// Event is one item on the channel Run returns.
type Event struct {
	Type EventType

	Text string // EventText, EventTextDelta

	ToolCall    *ToolCallPayload
	ToolResult  *ToolResultPayload
	ToolWarning *ToolWarningPayload
	HITL        *HITLPayload
	Done        *DonePayload

	Error string // EventError
}

// PauseDecision is the result of the shouldPause hook.
type PauseDecision struct {
	Pause   bool
	Message string
}

// Verdict is the result of the onAfterToolCall hook.
type Verdict struct {
	Outcome      verifier.Outcome
	Message      string
	VerifierName string
}

// Hooks lets the caller inject HITL pause decisions and verifier gating
// without the loop depending on internal/hitl or internal/verifier's full
// machinery.
type Hooks struct {
	ShouldPause     func(tc llm.ToolCall) PauseDecision
	OnAfterToolCall func(toolName string, args map[string]any, result *toolexec.Result) Verdict
}

// ToolExecutor is the subset of *toolexec.Executor the loop needs; defined
// here so tests can fake it without a registry-backed executor.
type ToolExecutor interface {
	Execute(ctx context.Context, toolName string, args map[string]any, userJWT string) (*toolexec.Result, error)
}

// Input is everything one Run call needs.
type Input struct {
	Provider     llm.Provider
	Model        string
	SystemPrompt string
	Tools        []llm.Tool
	Messages     []llm.Message
	MaxTurns     int // default DefaultMaxTurns
	MaxTokens    int // default llm.DefaultMaxTokens
	Stream       bool
	UserJWT      string

	Client   llm.Client
	Executor ToolExecutor
	Hooks    Hooks
}
