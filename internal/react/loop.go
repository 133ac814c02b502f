package react

import (
	"context"
	"encoding/json"

	"github.com/forgehq/sidecar/internal/llm"
	"github.com/forgehq/sidecar/internal/verifier"
)

// Run starts one loop execution and returns the event channel. The channel
// is closed after exactly one of done/hitl/error has been sent. The loop
// owns conversation state for the duration of the call; nothing is shared
// across concurrent Run calls.
func Run(ctx context.Context, in Input) <-chan Event {
	normalizeInput(&in)
	out := make(chan Event)
	go func() {
		defer close(out)
		runLoop(ctx, in, out, 0, append([]llm.Message{}, in.Messages...))
	}()
	return out
}

// Resume continues a loop previously paused by a hitl event, after the
// caller has approved its pendingToolCalls. It executes those calls itself
// (the thing the pause deferred), appends the results to conversation, and
// carries on from turnIndex+1. A denial never reaches here: the caller
// simply never calls Resume for a denied pause.
func Resume(ctx context.Context, in Input, pendingToolCalls []llm.ToolCall, conversation []llm.Message, turnIndex int) <-chan Event {
	normalizeInput(&in)
	out := make(chan Event)
	go func() {
		defer close(out)

		executedResults, stopped := executeToolCalls(ctx, in, pendingToolCalls, conversation, turnIndex, out)
		if stopped {
			return
		}
		conversation = append(conversation, llm.Message{Role: "assistant", ToolCalls: pendingToolCalls})
		conversation = append(conversation, llm.Message{Role: "tool", ToolResults: executedResults})
		runLoop(ctx, in, out, turnIndex+1, conversation)
	}()
	return out
}

func normalizeInput(in *Input) {
	if in.MaxTurns <= 0 {
		in.MaxTurns = DefaultMaxTurns
	}
	if in.MaxTokens <= 0 {
		in.MaxTokens = llm.DefaultMaxTokens
	}
}

func runLoop(ctx context.Context, in Input, out chan<- Event, startTurn int, conversation []llm.Message) {
	var totalUsage llm.Usage

	for turn := startTurn; turn < in.MaxTurns; turn++ {
		if ctx.Err() != nil {
			return
		}

		req := llm.CompletionRequest{
			Provider: in.Provider,
			Model:    in.Model,
			System:   in.SystemPrompt,
			Messages: conversation,
			Tools:    in.Tools,
		}

		text, toolCalls, usage, ok := runTurn(ctx, in, req, out)
		if !ok {
			return
		}
		totalUsage.Add(usage)

		if len(toolCalls) == 0 {
			out <- Event{Type: EventDone, Done: &DonePayload{Usage: totalUsage}}
			return
		}

		executedResults, stopped := executeToolCalls(ctx, in, toolCalls, conversation, turn, out)
		if stopped {
			return
		}

		conversation = append(conversation, llm.Message{Role: "assistant", Content: text, ToolCalls: toolCalls})
		conversation = append(conversation, llm.Message{Role: "tool", ToolResults: executedResults})
	}

	emitError(out, "reached maxTurns")
}

// runTurn performs one LLM call, streaming or buffered, and returns the
// normalized (text, toolCalls, usage). ok is false when an error event was
// already emitted and the loop must stop.
func runTurn(ctx context.Context, in Input, req llm.CompletionRequest, out chan<- Event) (text string, toolCalls []llm.ToolCall, usage llm.Usage, ok bool) {
	if in.Stream {
		timeoutCtx, cancel := context.WithTimeout(ctx, llm.StreamingTimeout)
		defer cancel()

		events, err := in.Client.TurnStreaming(timeoutCtx, req)
		if err != nil {
			emitError(out, err.Error())
			return "", nil, llm.Usage{}, false
		}

		completed := false
		for ev := range events {
			switch ev.Type {
			case llm.StreamEventTextDelta:
				out <- Event{Type: EventTextDelta, Text: ev.Text}
			case llm.StreamEventDone:
				if ev.Err != nil {
					emitError(out, ev.Err.Error())
					return "", nil, llm.Usage{}, false
				}
				text, toolCalls, usage = ev.FullText, ev.ToolCalls, ev.Usage
				completed = true
			}
		}
		if !completed {
			emitError(out, "LLM stream ended without completion")
			return "", nil, llm.Usage{}, false
		}
		return text, toolCalls, usage, true
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, llm.BufferedTimeout)
	defer cancel()

	result, err := in.Client.Turn(timeoutCtx, req)
	if err != nil {
		emitError(out, err.Error())
		return "", nil, llm.Usage{}, false
	}
	if result.Text != "" {
		out <- Event{Type: EventText, Text: result.Text}
	}
	return result.Text, result.ToolCalls, result.Usage, true
}

// executeToolCalls runs the hitl/execute/verify sequence for each tool call
// in order. stopped is true when a hitl or error event ended the loop.
func executeToolCalls(ctx context.Context, in Input, toolCalls []llm.ToolCall, conversation []llm.Message, turn int, out chan<- Event) (executed []llm.ToolResult, stopped bool) {
	for _, tc := range toolCalls {
		out <- Event{Type: EventToolCall, ToolCall: &ToolCallPayload{Tool: tc.Name, ID: tc.ID, Args: tc.Input}}

		decision := PauseDecision{}
		if in.Hooks.ShouldPause != nil {
			decision = in.Hooks.ShouldPause(tc)
		}
		if decision.Pause {
			out <- Event{Type: EventHITL, HITL: &HITLPayload{
				Tool: tc.Name, Args: tc.Input, Message: decision.Message,
				PendingToolCalls: toolCalls, ConversationMessages: conversation, TurnIndex: turn,
			}}
			return nil, true
		}

		var args map[string]any
		_ = json.Unmarshal(tc.Input, &args)

		result, err := in.Executor.Execute(ctx, tc.Name, args, in.UserJWT)
		if err != nil {
			emitError(out, err.Error())
			return nil, true
		}

		out <- Event{Type: EventToolResult, ToolResult: &ToolResultPayload{ID: tc.ID, Tool: tc.Name, Result: result.Body}}

		verdict := Verdict{Outcome: verifier.OutcomePass}
		if in.Hooks.OnAfterToolCall != nil {
			verdict = in.Hooks.OnAfterToolCall(tc.Name, args, result)
		}
		if verdict.Outcome == verifier.OutcomeWarn {
			out <- Event{Type: EventToolWarning, ToolWarning: &ToolWarningPayload{Tool: tc.Name, Message: verdict.Message, Verifier: verdict.VerifierName}}
		}
		if verdict.Outcome == verifier.OutcomeBlock {
			out <- Event{Type: EventHITL, HITL: &HITLPayload{
				Tool: tc.Name, Args: tc.Input, Message: verdict.Message,
				PendingToolCalls: toolCalls, ConversationMessages: conversation, TurnIndex: turn,
				Verifier: verdict.VerifierName,
			}}
			return nil, true
		}

		executed = append(executed, llm.ToolResult{ToolCallID: tc.ID, Content: string(result.Body)})
	}
	return executed, false
}

func emitError(out chan<- Event, message string) {
	out <- Event{Type: EventError, Error: message}
}
