package authfront

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFlagStore implements FlagStore on a redis client. Durable flags live
// under "<prefix>:d:" with no TTL; ephemeral flags live under
// "<prefix>:e:<tab>:" and expire with the tab TTL so abandoned tab state does
// not accumulate.
type RedisFlagStore struct {
	redis  *redis.Client
	prefix string
	tabTTL time.Duration
}

// NewRedisFlagStore wires a FlagStore over client. prefix defaults to "af"
// and tabTTL to 12h when zero.
func NewRedisFlagStore(client *redis.Client, prefix string, tabTTL time.Duration) *RedisFlagStore {
	if prefix == "" {
		prefix = "af"
	}
	if tabTTL <= 0 {
		tabTTL = 12 * time.Hour
	}
	return &RedisFlagStore{redis: client, prefix: prefix, tabTTL: tabTTL}
}

func (s *RedisFlagStore) key(ctx context.Context, key string, scope FlagScope) string {
	if scope == ScopeDurable {
		return s.prefix + ":d:" + key
	}
	return s.prefix + ":e:" + tabIDFromContext(ctx) + ":" + key
}

// Get implements FlagStore.
func (s *RedisFlagStore) Get(ctx context.Context, key string, scope FlagScope) (string, bool, error) {
	value, err := s.redis.Get(ctx, s.key(ctx, key, scope)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrFlagBackend, err)
	}
	return value, true, nil
}

// Set implements FlagStore.
func (s *RedisFlagStore) Set(ctx context.Context, key, value string, scope FlagScope) error {
	ttl := time.Duration(0)
	if scope == ScopeEphemeral {
		ttl = s.tabTTL
	}
	if err := s.redis.Set(ctx, s.key(ctx, key, scope), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrFlagBackend, err)
	}
	return nil
}

// Clear implements FlagStore.
func (s *RedisFlagStore) Clear(ctx context.Context, key string, scope FlagScope) error {
	if err := s.redis.Del(ctx, s.key(ctx, key, scope)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrFlagBackend, err)
	}
	return nil
}

// ClearAll implements FlagStore. Uses SCAN rather than KEYS so a large
// durable namespace does not block the server.
func (s *RedisFlagStore) ClearAll(ctx context.Context, prefix string, scope FlagScope) error {
	pattern := s.key(ctx, prefix, scope) + "*"

	iter := s.redis.Scan(ctx, 0, pattern, 64).Iterator()
	for iter.Next(ctx) {
		if err := s.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrFlagBackend, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrFlagBackend, err)
	}
	return nil
}
