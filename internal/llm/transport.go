// Package llm implements the unified buffered and streaming LLM client over
// the four supported provider wire formats (anthropic, openai, google,
// deepseek).
package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Provider identifies which wire format and host a request targets.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
	ProviderDeepSeek  Provider = "deepseek"
)

// DetectProvider maps a model string to exactly one provider. Total over all
// inputs: unmatched prefixes default to anthropic.
func DetectProvider(model string) Provider {
	switch {
	case strings.HasPrefix(model, "claude-"):
		return ProviderAnthropic
	case strings.HasPrefix(model, "gemini-"):
		return ProviderGoogle
	case strings.HasPrefix(model, "deepseek-"):
		return ProviderDeepSeek
	case strings.HasPrefix(model, "gpt-"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"):
		return ProviderOpenAI
	default:
		return ProviderAnthropic
	}
}

// Tool is the neutral tool shape passed into a completion request; each
// provider client converts it to its wire format (anthropic: input_schema,
// openai-compatible: function.parameters).
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Attachment is an inline message attachment (currently only images are
// interpreted, for vision-capable models).
type Attachment struct {
	Type string // "image", etc.
	URL  string
}

// ToolCall is a single invocation the model asked for.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult is the outcome of executing a ToolCall, in the shape the
// conversation history carries it.
type ToolResult struct {
	ToolCallID string
	Content    string
}

// Message is one entry in the conversation sent to a provider.
type Message struct {
	Role        string // user | assistant | system | tool
	Content     string
	Attachments []Attachment
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// Usage is the normalized token accounting shape; anthropic's
// input_tokens/output_tokens and the OpenAI-compatible
// prompt_tokens/completion_tokens are both folded into this.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Add accumulates usage across turns.
func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
}

// CompletionRequest is the input to both Turn and TurnStreaming.
type CompletionRequest struct {
	Provider  Provider
	APIKey    string
	Model     string
	System    string
	Messages  []Message
	Tools     []Tool
	MaxTokens int // default 4096
	Timeout   time.Duration
}

// CompletionResult is the buffered Turn() return shape.
type CompletionResult struct {
	Text       string
	ToolCalls  []ToolCall
	RawContent json.RawMessage
	StopReason string
	Usage      Usage
}

// StreamEventType tags a StreamEvent.
type StreamEventType string

const (
	StreamEventTextDelta StreamEventType = "text_delta"
	StreamEventDone      StreamEventType = "done"
)

// StreamEvent is one item on the channel returned by TurnStreaming.
type StreamEvent struct {
	Type StreamEventType

	// TextDelta
	Text string

	// Done (authoritative for the whole turn)
	FullText   string
	ToolCalls  []ToolCall
	Usage      Usage
	StopReason string

	Err error
}

// Client is the unified LLM transport: one buffered and one streaming
// operation over any of the four supported wire formats.
type Client interface {
	// Turn performs a single buffered completion.
	Turn(ctx context.Context, req CompletionRequest) (*CompletionResult, error)

	// TurnStreaming performs a single streaming completion. The returned
	// channel is closed after the terminal event (Done, or an event
	// carrying Err) is sent.
	TurnStreaming(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
}

// DefaultMaxTokens is used when CompletionRequest.MaxTokens is unset.
const DefaultMaxTokens = 4096

// BufferedTimeout and StreamingTimeout are the per-call deadlines from the
// concurrency model (§5): 60s buffered, 120s streaming.
const (
	BufferedTimeout  = 60 * time.Second
	StreamingTimeout = 120 * time.Second
)
