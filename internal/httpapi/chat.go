package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/forgehq/sidecar/internal/apierr"
	"github.com/forgehq/sidecar/internal/hitl"
	"github.com/forgehq/sidecar/internal/llm"
	"github.com/forgehq/sidecar/internal/llm/providers"
	"github.com/forgehq/sidecar/internal/react"
	"github.com/forgehq/sidecar/internal/store"
	"github.com/forgehq/sidecar/internal/toolexec"
	"github.com/forgehq/sidecar/internal/verifier"
)

// chatRequest is the wire shape for POST /agent-api/chat: a new user
// message plus optional overrides gated by allowUserModelSelect /
// allowUserHitlConfig.
type chatRequest struct {
	SessionID    string `json:"sessionId"`
	Message      string `json:"message"`
	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
	HitlLevel    string `json:"hitlLevel,omitempty"`
	Stream       *bool  `json:"stream,omitempty"`
	MaxTurns     int    `json:"maxTurns,omitempty"`
	MaxTokens    int    `json:"maxTokens,omitempty"`
}

// resumeState is the opaque payload a hitl pause hands to internal/hitl:
// everything Resume needs to re-enter the loop without the caller having to
// resend the whole conversation.
type resumeState struct {
	SessionID            string         `json:"sessionId"`
	Provider             llm.Provider   `json:"provider"`
	Model                string         `json:"model"`
	SystemPrompt         string         `json:"systemPrompt"`
	HitlLevel            string         `json:"hitlLevel"`
	Stream               bool           `json:"stream"`
	MaxTurns             int            `json:"maxTurns"`
	MaxTokens            int            `json:"maxTokens"`
	PendingToolCalls     []llm.ToolCall `json:"pendingToolCalls"`
	ConversationMessages []llm.Message  `json:"conversationMessages"`
	TurnIndex            int            `json:"turnIndex"`
}

type chatResumeRequest struct {
	ResumeToken string `json:"resumeToken"`
	Decision    string `json:"decision"` // "approve" or "deny"
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, userJWT := userFromContext(ctx)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &apierr.ValidationError{Message: "invalid request body"})
		return
	}
	if req.Message == "" {
		writeError(w, &apierr.ValidationError{Message: "message is required"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	model, hitlLevel := s.resolvePreferences(r, userID, req.Model, req.HitlLevel)
	provider := llm.DetectProvider(model)
	if req.Provider != "" {
		provider = llm.Provider(req.Provider)
	}

	history, err := s.loadHistory(ctx, req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	history = append(history, llm.Message{Role: "user", Content: req.Message})

	if _, err := s.deps.Conversations.AppendMessage(ctx, req.SessionID, "user", "chat", req.Message); err != nil {
		s.deps.Logger.Warn(ctx, "httpapi: append user message failed", "session_id", req.SessionID, "error", err)
	}

	tools, err := s.promotedTools(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, &apierr.ValidationError{Message: "streaming unsupported by this transport"})
		return
	}

	stream := true
	if req.Stream != nil {
		stream = *req.Stream
	}

	in := react.Input{
		Provider:     provider,
		Model:        model,
		SystemPrompt: req.SystemPrompt,
		Tools:        tools,
		Messages:     history,
		MaxTurns:     req.MaxTurns,
		MaxTokens:    req.MaxTokens,
		Stream:       stream,
		UserJWT:      userJWT,
		Client:       providers.New(provider, s.apiKeyFor(provider), ""),
		Executor:     s.deps.Executor,
		Hooks: react.Hooks{
			ShouldPause:     s.shouldPause(ctx, hitlLevel),
			OnAfterToolCall: s.onAfterToolCall(ctx, req.SessionID),
		},
	}

	s.drainToSSE(ctx, sse, req.SessionID, in, hitlLevel)
}

func (s *Server) handleChatResume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, userJWT := userFromContext(ctx)

	var req chatResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &apierr.ValidationError{Message: "invalid request body"})
		return
	}
	if req.ResumeToken == "" {
		writeError(w, &apierr.ValidationError{Message: "resumeToken is required"})
		return
	}

	var state resumeState
	found, err := s.deps.HITL.Resume(ctx, req.ResumeToken, &state)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, &apierr.NotFoundError{Message: "resume token not found or expired"})
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, &apierr.ValidationError{Message: "streaming unsupported by this transport"})
		return
	}

	if req.Decision != "approve" {
		_ = sse.Send("error", map[string]any{"message": "decision denied; run aborted"})
		return
	}

	tools, err := s.promotedTools(ctx)
	if err != nil {
		_ = sse.Send("error", map[string]any{"message": err.Error()})
		return
	}

	in := react.Input{
		Provider:     state.Provider,
		Model:        state.Model,
		SystemPrompt: state.SystemPrompt,
		Tools:        tools,
		MaxTurns:     state.MaxTurns,
		MaxTokens:    state.MaxTokens,
		Stream:       state.Stream,
		UserJWT:      userJWT,
		Client:       providers.New(state.Provider, s.apiKeyFor(state.Provider), ""),
		Executor:     s.deps.Executor,
		Hooks: react.Hooks{
			ShouldPause:     s.shouldPause(ctx, state.HitlLevel),
			OnAfterToolCall: s.onAfterToolCall(ctx, state.SessionID),
		},
	}

	events := react.Resume(ctx, in, state.PendingToolCalls, state.ConversationMessages, state.TurnIndex)
	s.forwardEvents(ctx, sse, state.SessionID, in, state.HitlLevel, events)
}

// loadHistory returns the session's stored conversation translated into the
// neutral llm.Message shape; a brand-new session yields an empty slice.
func (s *Server) loadHistory(ctx context.Context, sessionID string) ([]llm.Message, error) {
	msgs, err := s.deps.Conversations.ListHistory(ctx, sessionID, s.config().Conversation.Window)
	if err != nil {
		return nil, err
	}
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == store.CompleteMarker {
			continue
		}
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

func (s *Server) promotedTools(ctx context.Context) ([]llm.Tool, error) {
	specs, err := s.deps.Registry.PromotedTools(ctx)
	if err != nil {
		return nil, err
	}
	tools := make([]llm.Tool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, spec.ToLLMTool())
	}
	return tools, nil
}

func (s *Server) apiKeyFor(provider llm.Provider) string {
	switch provider {
	case llm.ProviderAnthropic:
		return s.deps.Env.AnthropicAPIKey
	case llm.ProviderOpenAI:
		return s.deps.Env.OpenAIAPIKey
	case llm.ProviderGoogle:
		return s.deps.Env.GoogleAPIKey
	case llm.ProviderDeepSeek:
		return s.deps.Env.DeepSeekAPIKey
	default:
		return ""
	}
}

// shouldPause looks the called tool up in the registry and applies the
// pure hitl.ShouldPause classification for the session's effective level.
func (s *Server) shouldPause(ctx context.Context, hitlLevel string) func(tc llm.ToolCall) react.PauseDecision {
	level := hitl.Level(hitlLevel)
	return func(tc llm.ToolCall) react.PauseDecision {
		spec, err := s.deps.Registry.GetTool(ctx, tc.Name)
		if err != nil || spec == nil {
			return react.PauseDecision{}
		}
		if hitl.ShouldPause(level, *spec) {
			return react.PauseDecision{Pause: true, Message: "Confirm: " + tc.Name}
		}
		return react.PauseDecision{}
	}
}

// onAfterToolCall runs the verifier chain bound to toolName and folds its
// worst outcome into a react.Verdict.
func (s *Server) onAfterToolCall(ctx context.Context, sessionID string) func(toolName string, args map[string]any, result *toolexec.Result) react.Verdict {
	return func(toolName string, args map[string]any, result *toolexec.Result) react.Verdict {
		worst, blockedBy, _ := s.deps.Verifier.Verify(ctx, sessionID, toolName, args, result.Body)
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordVerifierOutcome(toolName, string(worst))
		}
		return react.Verdict{Outcome: worst, Message: verifierMessage(worst, blockedBy), VerifierName: blockedBy}
	}
}

func verifierMessage(outcome verifier.Outcome, blockedBy string) string {
	if outcome == verifier.OutcomePass {
		return ""
	}
	return "flagged by " + blockedBy
}
