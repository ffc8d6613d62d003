package artifact

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"certflow/pkg/platform/sentinel"
)

const (
	redisKeyPrefix  = "artifact:"
	redisBodyField  = "body"
	redisMetaPrefix = "meta:"
)

// RedisStore persists artifacts as hashes: one "body" field plus one
// "meta:<name>" field per metadata entry.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Put replaces the whole object: delete-then-set in a pipeline so stale
// metadata fields from a prior write cannot survive.
func (s *RedisStore) Put(ctx context.Context, key string, body []byte, metadata map[string]string) error {
	fields := map[string]any{redisBodyField: body}
	for k, v := range metadata {
		fields[redisMetaPrefix+k] = v
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisKeyPrefix+key)
	pipe.HSet(ctx, redisKeyPrefix+key, fields)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Object, error) {
	fields, err := s.client.HGetAll(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return Object{}, fmt.Errorf("redis get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return Object{}, fmt.Errorf("artifact %s: %w", key, sentinel.ErrNotFound)
	}

	obj := Object{Metadata: make(map[string]string)}
	for k, v := range fields {
		switch {
		case k == redisBodyField:
			obj.Body = []byte(v)
		case strings.HasPrefix(k, redisMetaPrefix):
			obj.Metadata[strings.TrimPrefix(k, redisMetaPrefix)] = v
		}
	}
	return obj, nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}
