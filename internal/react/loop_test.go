package react

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/forgehq/sidecar/internal/llm"
	"github.com/forgehq/sidecar/internal/toolexec"
	"github.com/forgehq/sidecar/internal/verifier"
)

// fakeClient returns a scripted sequence of buffered turns, one per call.
type fakeClient struct {
	turns []*llm.CompletionResult
	calls int
}

func (f *fakeClient) Turn(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	r := f.turns[f.calls]
	f.calls++
	return r, nil
}

func (f *fakeClient) TurnStreaming(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
	panic("not used in these tests")
}

type fakeExecutor struct {
	result *toolexec.Result
	err    error
	calls  int
}

func (f *fakeExecutor) Execute(ctx context.Context, toolName string, args map[string]any, userJWT string) (*toolexec.Result, error) {
	f.calls++
	return f.result, f.err
}

func drain(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestS1TextOnly(t *testing.T) {
	client := &fakeClient{turns: []*llm.CompletionResult{
		{Text: "Hello! How can I help?", Usage: llm.Usage{InputTokens: 10, OutputTokens: 20}},
	}}
	in := Input{
		Client:   client,
		Executor: &fakeExecutor{},
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	}
	events := drain(t, Run(context.Background(), in))

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != EventText || events[0].Text != "Hello! How can I help?" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Type != EventDone || events[1].Done.Usage != (llm.Usage{InputTokens: 10, OutputTokens: 20}) {
		t.Errorf("unexpected done event: %+v", events[1])
	}
}

func TestS2OneToolRoundTrip(t *testing.T) {
	client := &fakeClient{turns: []*llm.CompletionResult{
		{ToolCalls: []llm.ToolCall{{ID: "tc1", Name: "get_weather", Input: json.RawMessage(`{"city":"NYC"}`)}}},
		{Text: "The weather is sunny."},
	}}
	executor := &fakeExecutor{result: &toolexec.Result{Status: 200, Body: json.RawMessage(`{"temp":72}`)}}
	in := Input{
		Client:   client,
		Executor: executor,
		Messages: []llm.Message{{Role: "user", Content: "what's the weather"}},
	}
	events := drain(t, Run(context.Background(), in))

	wantTypes := []EventType{EventToolCall, EventToolResult, EventText, EventDone}
	if len(events) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d: %+v", len(wantTypes), len(events), events)
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("event %d: got %s, want %s", i, events[i].Type, want)
		}
	}
	if events[0].ToolCall.ID != "tc1" || events[1].ToolResult.ID != "tc1" {
		t.Error("tool_call and tool_result must share the same id (invariant: tool_call precedes its tool_result)")
	}
}

func TestS3HITLPause(t *testing.T) {
	client := &fakeClient{turns: []*llm.CompletionResult{
		{ToolCalls: []llm.ToolCall{{ID: "tc1", Name: "delete_user", Input: json.RawMessage(`{"id":"123"}`)}}},
	}}
	in := Input{
		Client:   client,
		Executor: &fakeExecutor{},
		Messages: []llm.Message{{Role: "user", Content: "delete user 123"}},
		Hooks: Hooks{
			ShouldPause: func(tc llm.ToolCall) PauseDecision {
				return PauseDecision{Pause: true, Message: "Confirm: delete_user"}
			},
		},
	}
	events := drain(t, Run(context.Background(), in))

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != EventToolCall {
		t.Errorf("expected first event tool_call, got %s", events[0].Type)
	}
	if events[1].Type != EventHITL || events[1].HITL.Message != "Confirm: delete_user" {
		t.Errorf("unexpected hitl event: %+v", events[1])
	}
}

func TestS4MaxTurns(t *testing.T) {
	makeTurn := func() *llm.CompletionResult {
		return &llm.CompletionResult{ToolCalls: []llm.ToolCall{{ID: "tc", Name: "noop", Input: json.RawMessage(`{}`)}}}
	}
	client := &fakeClient{turns: []*llm.CompletionResult{makeTurn(), makeTurn(), makeTurn()}}
	executor := &fakeExecutor{result: &toolexec.Result{Status: 200, Body: json.RawMessage(`{}`)}}
	in := Input{
		Client:   client,
		Executor: executor,
		Messages: []llm.Message{{Role: "user", Content: "go"}},
		MaxTurns: 2,
	}
	events := drain(t, Run(context.Background(), in))

	toolCallCount := 0
	for _, ev := range events {
		if ev.Type == EventToolCall {
			toolCallCount++
		}
	}
	if toolCallCount != 2 {
		t.Errorf("expected exactly 2 tool_call events, got %d", toolCallCount)
	}
	last := events[len(events)-1]
	if last.Type != EventError {
		t.Fatalf("expected final event to be error, got %s", last.Type)
	}
}

func TestVerifierBlockEmitsHITL(t *testing.T) {
	client := &fakeClient{turns: []*llm.CompletionResult{
		{ToolCalls: []llm.ToolCall{{ID: "tc1", Name: "risky_tool", Input: json.RawMessage(`{}`)}}},
	}}
	executor := &fakeExecutor{result: &toolexec.Result{Status: 200, Body: json.RawMessage(`{"other":"data"}`)}}
	in := Input{
		Client:   client,
		Executor: executor,
		Messages: []llm.Message{{Role: "user", Content: "go"}},
		Hooks: Hooks{
			OnAfterToolCall: func(toolName string, args map[string]any, result *toolexec.Result) Verdict {
				return Verdict{Outcome: verifier.OutcomeBlock, Message: "blocked", VerifierName: "block-check"}
			},
		},
	}
	events := drain(t, Run(context.Background(), in))

	last := events[len(events)-1]
	if last.Type != EventHITL || last.HITL.Verifier != "block-check" {
		t.Fatalf("expected hitl event from verifier block, got %+v", last)
	}
}

func TestConversationProviderShapingSharesIDs(t *testing.T) {
	client := &fakeClient{turns: []*llm.CompletionResult{
		{ToolCalls: []llm.ToolCall{{ID: "tc1", Name: "get_weather", Input: json.RawMessage(`{}`)}}},
		{Text: "done"},
	}}
	executor := &fakeExecutor{result: &toolexec.Result{Status: 200, Body: json.RawMessage(`{"temp":72}`)}}

	var capturedConversation []llm.Message
	wrapped := &capturingClient{inner: client, onTurn: func(req llm.CompletionRequest) {
		if len(req.Messages) > 1 {
			capturedConversation = req.Messages
		}
	}}

	in := Input{Client: wrapped, Executor: executor, Messages: []llm.Message{{Role: "user", Content: "weather?"}}}
	drain(t, Run(context.Background(), in))

	if len(capturedConversation) < 3 {
		t.Fatalf("expected conversation to include assistant+tool messages, got %+v", capturedConversation)
	}
	var assistantMsg, toolMsg *llm.Message
	for i := range capturedConversation {
		if capturedConversation[i].Role == "assistant" {
			assistantMsg = &capturedConversation[i]
		}
		if capturedConversation[i].Role == "tool" {
			toolMsg = &capturedConversation[i]
		}
	}
	if assistantMsg == nil || toolMsg == nil {
		t.Fatalf("expected both assistant and tool messages in conversation: %+v", capturedConversation)
	}
	if len(assistantMsg.ToolCalls) != 1 || len(toolMsg.ToolResults) != 1 {
		t.Fatalf("expected one tool call and one tool result")
	}
	if assistantMsg.ToolCalls[0].ID != toolMsg.ToolResults[0].ToolCallID {
		t.Errorf("tool_use id %q does not match tool_result id %q", assistantMsg.ToolCalls[0].ID, toolMsg.ToolResults[0].ToolCallID)
	}
}

func TestResumeAfterApproval(t *testing.T) {
	pending := []llm.ToolCall{{ID: "tc1", Name: "delete_user", Input: json.RawMessage(`{"id":"123"}`)}}
	conversation := []llm.Message{{Role: "user", Content: "delete user 123"}}

	client := &fakeClient{turns: []*llm.CompletionResult{
		{Text: "Done, deleted."},
	}}
	executor := &fakeExecutor{result: &toolexec.Result{Status: 200, Body: json.RawMessage(`{"deleted":true}`)}}
	in := Input{Client: client, Executor: executor}

	events := drain(t, Resume(context.Background(), in, pending, conversation, 0))

	wantTypes := []EventType{EventToolResult, EventText, EventDone}
	if len(events) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d: %+v", len(wantTypes), len(events), events)
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("event %d: got %s, want %s", i, events[i].Type, want)
		}
	}
	if events[0].ToolResult.ID != "tc1" {
		t.Errorf("expected tool_result for tc1, got %+v", events[0].ToolResult)
	}
}

type capturingClient struct {
	inner  *fakeClient
	onTurn func(req llm.CompletionRequest)
}

func (c *capturingClient) Turn(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	c.onTurn(req)
	return c.inner.Turn(ctx, req)
}

func (c *capturingClient) TurnStreaming(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
	return c.inner.TurnStreaming(ctx, req)
}
