package hitl

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "forge:hitl:"

// RedisBackend stores pending state under forge:hitl:{token} with an EX
// matching the TTL, rounded up to whole seconds.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps an existing client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Save(ctx context.Context, token string, state []byte, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	seconds := time.Duration(math.Ceil(ttl.Seconds())) * time.Second
	if err := b.client.Set(ctx, redisKeyPrefix+token, state, seconds).Err(); err != nil {
		return fmt.Errorf("hitl: redis save: %w", err)
	}
	return nil
}

// Consume performs a get-then-delete: the race window between the two calls
// is narrow and accepted (per the documented protocol) rather than relying
// on an atomic GETDEL, to keep the backend usable against older Redis.
func (b *RedisBackend) Consume(ctx context.Context, token string) ([]byte, bool, error) {
	key := redisKeyPrefix + token
	val, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("hitl: redis get: %w", err)
	}
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return nil, false, fmt.Errorf("hitl: redis del: %w", err)
	}
	return val, true, nil
}
