// Package states provides read access to the current state of entities
// referenced by state icon overlays.
package states

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultHashKey is the Redis hash mapping entity IDs to state strings
const DefaultHashKey = "entity_states"

// RedisStore reads entity states from a Redis hash
type RedisStore struct {
	client  *redis.Client
	key     string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRedisStore creates a store reading hash key (DefaultHashKey if empty)
func NewRedisStore(client *redis.Client, key string, logger *zap.Logger) *RedisStore {
	if key == "" {
		key = DefaultHashKey
	}
	return &RedisStore{
		client:  client,
		key:     key,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

// State returns the state of entityID. Lookup errors are logged and treated
// as an absent state.
func (s *RedisStore) State(ctx context.Context, entityID string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	state, err := s.client.HGet(ctx, s.key, entityID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("Failed to read entity state",
				zap.String("entity", entityID),
				zap.String("key", s.key),
				zap.Error(err))
		}
		return "", false
	}
	return state, true
}

// Set stores the state of entityID
func (s *RedisStore) Set(ctx context.Context, entityID, state string) error {
	return s.client.HSet(ctx, s.key, entityID, state).Err()
}

// Delete removes entityID from the hash
func (s *RedisStore) Delete(ctx context.Context, entityID string) error {
	return s.client.HDel(ctx, s.key, entityID).Err()
}

// StaticStore is an in-process state table
type StaticStore struct {
	mu     sync.RWMutex
	states map[string]string
}

// NewStaticStore creates a store seeded with initial states
func NewStaticStore(initial map[string]string) *StaticStore {
	s := &StaticStore{states: make(map[string]string, len(initial))}
	for k, v := range initial {
		s.states[k] = v
	}
	return s
}

// State returns the state of entityID
func (s *StaticStore) State(_ context.Context, entityID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[entityID]
	return state, ok
}

// Set stores the state of entityID
func (s *StaticStore) Set(_ context.Context, entityID, state string) error {
	s.mu.Lock()
	s.states[entityID] = state
	s.mu.Unlock()
	return nil
}

// Delete removes entityID
func (s *StaticStore) Delete(_ context.Context, entityID string) error {
	s.mu.Lock()
	delete(s.states, entityID)
	s.mu.Unlock()
	return nil
}
