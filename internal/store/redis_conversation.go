package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisConvPrefix    = "forge:conv:"
	redisSessionsKey   = redisConvPrefix + "sessions"
	redisCompletedKey  = redisConvPrefix + "completed"
	redisSeqKeySuffix  = ":seq"
	redisMsgsKeySuffix = ":messages"
)

// RedisConversationStore is the windowed Redis-backed ConversationStore: each
// session's history is a capped list, trimmed to window entries on append.
type RedisConversationStore struct {
	client *redis.Client
	window int
}

// NewRedisConversationStore builds a store. window <= 0 falls back to 25.
func NewRedisConversationStore(client *redis.Client, window int) *RedisConversationStore {
	if window <= 0 {
		window = 25
	}
	return &RedisConversationStore{client: client, window: window}
}

type redisMessage struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Stage     string    `json:"stage"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *RedisConversationStore) AppendMessage(ctx context.Context, sessionID, role, stage, content string) (int64, error) {
	seqKey := redisConvPrefix + sessionID + redisSeqKeySuffix
	id, err := s.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return 0, fmt.Errorf("store: redis incr seq: %w", err)
	}

	msg := redisMessage{ID: id, SessionID: sessionID, Role: role, Stage: stage, Content: content, CreatedAt: time.Now()}
	raw, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("store: marshal message: %w", err)
	}

	msgsKey := redisConvPrefix + sessionID + redisMsgsKeySuffix
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, msgsKey, raw)
	pipe.LTrim(ctx, msgsKey, int64(-s.window), -1)
	pipe.SAdd(ctx, redisSessionsKey, sessionID)
	if role == "system" && strings.Contains(content, CompleteMarker) {
		pipe.SAdd(ctx, redisCompletedKey, sessionID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("store: redis append pipeline: %w", err)
	}
	return id, nil
}

func (s *RedisConversationStore) ListHistory(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = s.window
	}
	msgsKey := redisConvPrefix + sessionID + redisMsgsKeySuffix
	raws, err := s.client.LRange(ctx, msgsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis lrange: %w", err)
	}

	start := 0
	if limit < len(raws) {
		start = len(raws) - limit
	}

	out := make([]Message, 0, len(raws)-start)
	for _, raw := range raws[start:] {
		var m redisMessage
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("store: unmarshal message: %w", err)
		}
		out = append(out, Message{ID: m.ID, SessionID: m.SessionID, Role: m.Role, Stage: m.Stage, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	return out, nil
}

func (s *RedisConversationStore) IncompleteSessions(ctx context.Context) ([]string, error) {
	all, err := s.client.SMembers(ctx, redisSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis smembers sessions: %w", err)
	}
	completed, err := s.client.SMembers(ctx, redisCompletedKey).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis smembers completed: %w", err)
	}
	done := make(map[string]struct{}, len(completed))
	for _, id := range completed {
		done[id] = struct{}{}
	}

	var out []string
	for _, id := range all {
		if _, ok := done[id]; !ok {
			out = append(out, id)
		}
	}
	return out, nil
}
