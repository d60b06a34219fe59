package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "board-op"

// RedisDeduper remembers Idempotency-Key values of board operations for ttl,
// shared by every instance behind the same Redis.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

// dedupeKey scopes key to the submitting user: userID:board-op:key.
func dedupeKey(userID, key string) string {
	return userID + ":" + dedupeKeyPrefix + ":" + key
}

// Add reports true when key was not seen before for userID.
func (r *RedisDeduper) Add(ctx context.Context, userID, key string) (bool, error) {
	return r.client.SetNX(ctx, dedupeKey(userID, key), time.Now().UnixMilli(), r.ttl).Result()
}

// Remove forgets key so the same submission can be retried after a failure.
func (r *RedisDeduper) Remove(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, dedupeKey(userID, key)).Err()
}
