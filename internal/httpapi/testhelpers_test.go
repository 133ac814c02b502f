package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/forgehq/sidecar/internal/auth"
	"github.com/forgehq/sidecar/internal/config"
	"github.com/forgehq/sidecar/internal/lifecycle"
	"github.com/forgehq/sidecar/internal/observability"
	"github.com/forgehq/sidecar/internal/store"
)

// fakeConversationStore is an in-memory store.ConversationStore for tests
// that never needs a real database.
type fakeConversationStore struct {
	messages map[string][]store.Message
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{messages: map[string][]store.Message{}}
}

func (f *fakeConversationStore) AppendMessage(ctx context.Context, sessionID, role, stage, content string) (int64, error) {
	f.messages[sessionID] = append(f.messages[sessionID], store.Message{Role: role, Stage: stage, Content: content})
	return int64(len(f.messages[sessionID])), nil
}

func (f *fakeConversationStore) ListHistory(ctx context.Context, sessionID string, limit int) ([]store.Message, error) {
	msgs := f.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeConversationStore) IncompleteSessions(ctx context.Context) ([]string, error) {
	return nil, nil
}

// fakePreferenceStore is an in-memory store.PreferenceStore for tests.
type fakePreferenceStore struct {
	prefs map[string]store.Preferences
}

func newFakePreferenceStore() *fakePreferenceStore {
	return &fakePreferenceStore{prefs: map[string]store.Preferences{}}
}

func (f *fakePreferenceStore) Get(ctx context.Context, userID string) (*store.Preferences, error) {
	p, ok := f.prefs[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakePreferenceStore) Upsert(ctx context.Context, prefs store.Preferences) error {
	f.prefs[prefs.UserID] = prefs
	return nil
}

// testDeps builds a minimal Deps with every DB-backed collaborator left
// nil; tests that exercise those paths (chat, mcp) construct their own.
func testDeps() Deps {
	return Deps{
		Config:        config.Default(),
		Env:           config.Env{},
		Logger:        observability.NewLogger(observability.LogConfig{Level: "error"}),
		JWTVerifier:   auth.NewVerifier(auth.ModeTrust, "", ""),
		AdminVerifier: auth.NewAdminVerifier("admin-secret"),
		MCPKey:        "mcp-secret",
		Conversations: newFakeConversationStore(),
		Preferences:   newFakePreferenceStore(),
		Queue:         lifecycle.NewQueue(),
		Shutdown:      lifecycle.NewShutdown(nil),
		StartedAt:     time.Now(),
	}
}

// trustToken builds an unsigned (ModeTrust) bearer JWT carrying {"sub": userID}.
func trustToken(userID string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload, _ := json.Marshal(map[string]string{"sub": userID})
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}
