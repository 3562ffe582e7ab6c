package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// TypedStore keeps JSON-encoded values of one type under a key prefix.
type TypedStore[T any] struct {
	client goredis.UniversalClient
	prefix string
}

func NewTypedStore[T any](client goredis.UniversalClient, prefix string) *TypedStore[T] {
	return &TypedStore[T]{client: client, prefix: prefix}
}

func (s *TypedStore[T]) key(k string) string {
	return s.prefix + k
}

// Get returns ok=false when the key is absent. A value that no longer
// decodes is treated as absent and deleted.
func (s *TypedStore[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		_ = s.client.Del(ctx, s.key(key)).Err()
		return zero, false, nil
	}
	return value, true, nil
}

func (s *TypedStore[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *TypedStore[T]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
