// Package providers implements the four wire-format clients behind
// internal/llm's unified transport: anthropic and a shared OpenAI-compatible
// client reused for openai, google, and deepseek.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/forgehq/sidecar/internal/llm"
)

// AnthropicClient implements llm.Client over api.anthropic.com /v1/messages.
// The transport performs no retries of its own: the first result, success or
// failure, is returned to the caller.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient builds a client bound to a single API key. BaseURL
// override is used in tests against a fake server.
func NewAnthropicClient(apiKey string, baseURL string) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicClient{client: anthropic.NewClient(opts...)}
}

func maxTokensOrDefault(n int) int64 {
	if n <= 0 {
		return llm.DefaultMaxTokens
	}
	return int64(n)
}

func (c *AnthropicClient) buildParams(req llm.CompletionRequest) (anthropic.MessageNewParams, error) {
	messages, err := convertAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: maxTokensOrDefault(req.MaxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

// Turn performs a single buffered completion.
func (c *AnthropicClient) Turn(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapAnthropicError(err)
	}

	result := &llm.CompletionResult{
		StopReason: string(msg.StopReason),
		Usage: llm.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			tu := block.AsToolUse()
			input, _ := json.Marshal(tu.Input)
			result.ToolCalls = append(result.ToolCalls, llm.ToolCall{
				ID:    tu.ID,
				Name:  tu.Name,
				Input: input,
			})
		}
	}
	result.Text = text.String()
	result.RawContent, _ = json.Marshal(msg.Content)
	return result, nil
}

// TurnStreaming performs a single streaming completion.
func (c *AnthropicClient) TurnStreaming(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	out := make(chan llm.StreamEvent)

	go func() {
		defer close(out)

		var fullText strings.Builder
		var usage llm.Usage
		var stopReason string

		type pendingTool struct {
			id, name string
			input    strings.Builder
		}
		var currentTool *pendingTool
		var toolCalls []llm.ToolCall

		sawTerminal := false

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "message_start":
				ms := event.AsMessageStart()
				usage.InputTokens = int(ms.Message.Usage.InputTokens)

			case "content_block_start":
				cbs := event.AsContentBlockStart()
				if cbs.ContentBlock.Type == "tool_use" {
					tu := cbs.ContentBlock.AsToolUse()
					currentTool = &pendingTool{id: tu.ID, name: tu.Name}
				}

			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text != "" {
						fullText.WriteString(delta.Text)
						out <- llm.StreamEvent{Type: llm.StreamEventTextDelta, Text: delta.Text}
					}
				case "input_json_delta":
					if currentTool != nil && delta.PartialJSON != "" {
						currentTool.input.WriteString(delta.PartialJSON)
					}
				}

			case "content_block_stop":
				if currentTool != nil {
					input := currentTool.input.String()
					if input == "" {
						input = "{}"
					}
					var parsed json.RawMessage
					if json.Valid([]byte(input)) {
						parsed = json.RawMessage(input)
					} else {
						parsed = json.RawMessage("{}")
					}
					toolCalls = append(toolCalls, llm.ToolCall{ID: currentTool.id, Name: currentTool.name, Input: parsed})
					currentTool = nil
				}

			case "message_delta":
				md := event.AsMessageDelta()
				usage.OutputTokens = int(md.Usage.OutputTokens)
				stopReason = string(md.Delta.StopReason)

			case "message_stop":
				sawTerminal = true
				out <- llm.StreamEvent{
					Type:       llm.StreamEventDone,
					FullText:   fullText.String(),
					ToolCalls:  toolCalls,
					Usage:      usage,
					StopReason: stopReason,
				}
			}
		}

		if err := stream.Err(); err != nil {
			out <- llm.StreamEvent{Type: llm.StreamEventDone, Err: wrapAnthropicError(err)}
			return
		}
		if !sawTerminal {
			out <- llm.StreamEvent{
				Type: llm.StreamEventDone,
				Err:  errors.New("LLM stream ended without completion"),
			}
		}
	}()

	return out, nil
}

func convertAnthropicMessages(messages []llm.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tr := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, false))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if len(tc.Input) > 0 {
				if err := json.Unmarshal(tc.Input, &input); err != nil {
					return nil, fmt.Errorf("anthropic: invalid tool call input: %w", err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}

		if msg.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertAnthropicTools(tools []llm.Tool) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("anthropic: invalid tool schema for %s: %w", tool.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(tool.Description)
		}
		result = append(result, param)
	}
	return result, nil
}

func wrapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &llm.ApiError{
			Provider:   llm.ProviderAnthropic,
			StatusCode: apiErr.StatusCode,
			Preview:    truncateStr(apiErr.RawJSON(), 120),
			Cause:      err,
		}
	}
	return &llm.ApiError{Provider: llm.ProviderAnthropic, Cause: err}
}

func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
