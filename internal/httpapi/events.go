package httpapi

import (
	"context"

	"github.com/forgehq/sidecar/internal/react"
)

// drainToSSE starts a fresh loop run and forwards its events.
func (s *Server) drainToSSE(ctx context.Context, sse *sseWriter, sessionID string, in react.Input, hitlLevel string) {
	s.forwardEvents(ctx, sse, sessionID, in, hitlLevel, react.Run(ctx, in))
}

// forwardEvents drains events, writing each as an SSE frame, persisting
// assistant/tool turns to the conversation store, and — on a hitl pause —
// issuing a resume token and attaching it to the outward event. Ordering
// is preserved: the channel is read sequentially and each Send blocks until
// flushed, so the client sees events in emission order.
func (s *Server) forwardEvents(ctx context.Context, sse *sseWriter, sessionID string, in react.Input, hitlLevel string, events <-chan react.Event) {
	for ev := range events {
		switch ev.Type {
		case react.EventText:
			if err := sse.Send("text", map[string]any{"text": ev.Text}); err != nil {
				return
			}
			s.persist(ctx, sessionID, "assistant", "chat", ev.Text)
		case react.EventTextDelta:
			if err := sse.Send("text_delta", map[string]any{"text": ev.Text}); err != nil {
				return
			}
		case react.EventToolCall:
			if err := sse.Send("tool_call", ev.ToolCall); err != nil {
				return
			}
		case react.EventToolResult:
			if err := sse.Send("tool_result", ev.ToolResult); err != nil {
				return
			}
		case react.EventToolWarning:
			if err := sse.Send("tool_warning", ev.ToolWarning); err != nil {
				return
			}
		case react.EventHITL:
			if !s.emitHITL(ctx, sse, sessionID, ev.HITL, in, hitlLevel) {
				return
			}
		case react.EventDone:
			_ = sse.Send("done", ev.Done)
		case react.EventError:
			_ = sse.Send("error", map[string]any{"message": ev.Error})
		}
	}
}

// emitHITL serializes everything Resume needs into a resumeState, issues a
// token for it, and sends the hitl event carrying that token.
func (s *Server) emitHITL(ctx context.Context, sse *sseWriter, sessionID string, payload *react.HITLPayload, in react.Input, hitlLevel string) bool {
	state := resumeState{
		SessionID:            sessionID,
		Provider:             in.Provider,
		Model:                in.Model,
		SystemPrompt:         in.SystemPrompt,
		HitlLevel:            hitlLevel,
		Stream:               in.Stream,
		MaxTurns:             in.MaxTurns,
		MaxTokens:            in.MaxTokens,
		PendingToolCalls:     payload.PendingToolCalls,
		ConversationMessages: payload.ConversationMessages,
		TurnIndex:            payload.TurnIndex,
	}

	token, err := s.deps.HITL.Pause(ctx, state)
	if err != nil {
		s.deps.Logger.Warn(ctx, "httpapi: hitl pause failed", "session_id", sessionID, "error", err)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordHITLPause(hitlLevel)
	}

	err = sse.Send("hitl", map[string]any{
		"tool":                 payload.Tool,
		"args":                 payload.Args,
		"message":              payload.Message,
		"resumeToken":          token,
		"pendingToolCalls":     payload.PendingToolCalls,
		"conversationMessages": payload.ConversationMessages,
		"turnIndex":            payload.TurnIndex,
		"verifier":             payload.Verifier,
	})
	return err == nil
}

// persist appends one turn to the conversation store, logging (not
// failing) on error — telemetry loss never fails a request.
func (s *Server) persist(ctx context.Context, sessionID, role, stage, content string) {
	if content == "" {
		return
	}
	if _, err := s.deps.Conversations.AppendMessage(ctx, sessionID, role, stage, content); err != nil {
		s.deps.Logger.Warn(ctx, "httpapi: append message failed", "session_id", sessionID, "role", role, "error", err)
	}
}
