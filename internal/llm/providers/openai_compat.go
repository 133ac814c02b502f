package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/forgehq/sidecar/internal/llm"
)

// Base URLs for the three non-anthropic providers, all speaking the OpenAI
// chat-completions wire format.
const (
	openAIBaseURL   = "https://api.openai.com/v1"
	googleBaseURL   = "https://generativelanguage.googleapis.com/v1beta/openai/"
	deepseekBaseURL = "https://api.deepseek.com/v1"
)

// OpenAICompatClient implements llm.Client for any provider that speaks the
// OpenAI chat-completions protocol: openai itself, google (Gemini's OpenAI
// compatibility endpoint), and deepseek. One client instance is bound to one
// provider/base-URL/key triple.
type OpenAICompatClient struct {
	provider llm.Provider
	client   *openai.Client
}

// NewOpenAICompatClient builds a client for the given provider. baseURL, when
// empty, defaults to the provider's standard host.
func NewOpenAICompatClient(provider llm.Provider, apiKey string, baseURL string) *OpenAICompatClient {
	if baseURL == "" {
		switch provider {
		case llm.ProviderGoogle:
			baseURL = googleBaseURL
		case llm.ProviderDeepSeek:
			baseURL = deepseekBaseURL
		default:
			baseURL = openAIBaseURL
		}
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAICompatClient{provider: provider, client: openai.NewClientWithConfig(cfg)}
}

func (c *OpenAICompatClient) buildRequest(req llm.CompletionRequest, stream bool) openai.ChatCompletionRequest {
	messages := convertOpenAIMessages(req.Messages, req.System)
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   stream,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	} else {
		chatReq.MaxTokens = llm.DefaultMaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}
	return chatReq
}

// Turn performs a single buffered completion.
func (c *OpenAICompatClient) Turn(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	chatReq := c.buildRequest(req, false)

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, c.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.ApiError{Provider: c.provider, Preview: "empty choices in response"}
	}

	choice := resp.Choices[0]
	result := &llm.CompletionResult{
		Text:       choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, llm.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	result.RawContent, _ = json.Marshal(choice.Message)
	return result, nil
}

// TurnStreaming performs a single streaming completion.
func (c *OpenAICompatClient) TurnStreaming(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
	chatReq := c.buildRequest(req, true)

	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, c.wrapError(err)
	}

	out := make(chan llm.StreamEvent)
	go func() {
		defer close(out)
		defer stream.Close()

		var fullText []byte
		var usage llm.Usage
		var stopReason string

		type pendingCall struct {
			id, name string
			args     []byte
		}
		calls := make(map[int]*pendingCall)
		order := make([]int, 0)

		for {
			resp, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				out <- llm.StreamEvent{Type: llm.StreamEventDone, Err: c.wrapError(err)}
				return
			}
			if resp.Usage != nil {
				usage.InputTokens = resp.Usage.PromptTokens
				usage.OutputTokens = resp.Usage.CompletionTokens
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]
			if choice.FinishReason != "" {
				stopReason = string(choice.FinishReason)
			}

			if choice.Delta.Content != "" {
				fullText = append(fullText, choice.Delta.Content...)
				out <- llm.StreamEvent{Type: llm.StreamEventTextDelta, Text: choice.Delta.Content}
			}

			for _, tc := range choice.Delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				pc, ok := calls[idx]
				if !ok {
					pc = &pendingCall{}
					calls[idx] = pc
					order = append(order, idx)
				}
				if tc.ID != "" {
					pc.id = tc.ID
				}
				if tc.Function.Name != "" {
					pc.name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					pc.args = append(pc.args, tc.Function.Arguments...)
				}
			}
		}

		var toolCalls []llm.ToolCall
		for _, idx := range order {
			pc := calls[idx]
			if pc.id == "" || pc.name == "" {
				continue
			}
			args := pc.args
			if len(args) == 0 || !json.Valid(args) {
				args = []byte("{}")
			}
			toolCalls = append(toolCalls, llm.ToolCall{ID: pc.id, Name: pc.name, Input: json.RawMessage(args)})
		}

		out <- llm.StreamEvent{
			Type:       llm.StreamEventDone,
			FullText:   string(fullText),
			ToolCalls:  toolCalls,
			Usage:      usage,
			StopReason: stopReason,
		}
	}()

	return out, nil
}

func convertOpenAIMessages(messages []llm.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case "tool":
			for _, tr := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		case "assistant":
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			result = append(result, oaiMsg)
		default:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content}
			if len(msg.Attachments) > 0 {
				var parts []openai.ChatMessagePart
				if msg.Content != "" {
					parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: msg.Content})
				}
				for _, att := range msg.Attachments {
					if att.Type == "image" {
						parts = append(parts, openai.ChatMessagePart{
							Type:     openai.ChatMessagePartTypeImageURL,
							ImageURL: &openai.ChatMessageImageURL{URL: att.URL, Detail: openai.ImageURLDetailAuto},
						})
					}
				}
				if len(parts) > 0 {
					oaiMsg.Content = ""
					oaiMsg.MultiContent = parts
				}
			}
			result = append(result, oaiMsg)
		}
	}
	return result
}

func convertOpenAITools(tools []llm.Tool) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		})
	}
	return result
}

func (c *OpenAICompatClient) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &llm.ApiError{
			Provider:   c.provider,
			StatusCode: apiErr.HTTPStatusCode,
			Preview:    truncateStr(apiErr.Message, 120),
			Cause:      err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &llm.ApiError{
			Provider:   c.provider,
			StatusCode: reqErr.HTTPStatusCode,
			Preview:    truncateStr(reqErr.Error(), 120),
			Cause:      err,
		}
	}
	return &llm.ApiError{Provider: c.provider, StatusCode: http.StatusBadGateway, Cause: err}
}
