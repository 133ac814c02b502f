package hitl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is the pause-state lifetime when the config doesn't override it.
const DefaultTTL = 5 * time.Minute

// Engine issues and redeems resume tokens against a single backend, chosen
// at construction by priority Redis > Postgres > SQLite > in-process map.
type Engine struct {
	backend Backend
	ttl     time.Duration
}

// NewEngine builds an Engine. ttl <= 0 selects DefaultTTL.
func NewEngine(backend Backend, ttl time.Duration) *Engine {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Engine{backend: backend, ttl: ttl}
}

// Pause serializes state to JSON, generates a fresh UUID token, and stores
// the pair with the engine's TTL.
func (e *Engine) Pause(ctx context.Context, state any) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("hitl: marshal state: %w", err)
	}
	token := uuid.NewString()
	expiresAt := time.Now().Add(e.ttl)
	if err := e.backend.Save(ctx, token, data, expiresAt); err != nil {
		return "", err
	}
	return token, nil
}

// Resume atomically consumes token. found is false both when the token was
// never issued and when it already expired; in neither case is out
// modified. A successful Resume always deletes the entry, so a repeated
// call with the same token returns found=false.
func (e *Engine) Resume(ctx context.Context, token string, out any) (found bool, err error) {
	data, found, err := e.backend.Consume(ctx, token)
	if err != nil || !found {
		return found, err
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return true, fmt.Errorf("hitl: unmarshal state: %w", err)
		}
	}
	return true, nil
}
