// Package preference stores per-listener guide settings.
package preference

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

const audioGuideField = "audio_guide_enabled"

// Store persists the audio-guide switch per user
type Store interface {
	AudioGuideEnabled(ctx context.Context, userID string) (bool, error)
	SetAudioGuideEnabled(ctx context.Context, userID string, enabled bool) error
}

func prefsKey(userID string) string {
	return fmt.Sprintf("prefs:%s", userID)
}

// RedisStore keeps preferences in a hash per user
type RedisStore struct {
	client       *redis.Client
	defaultValue bool
}

// NewRedisStore creates a store; defaultValue applies to users with no stored value
func NewRedisStore(client *redis.Client, defaultValue bool) *RedisStore {
	return &RedisStore{client: client, defaultValue: defaultValue}
}

func (s *RedisStore) AudioGuideEnabled(ctx context.Context, userID string) (bool, error) {
	v, err := s.client.HGet(ctx, prefsKey(userID), audioGuideField).Result()
	if err == redis.Nil {
		return s.defaultValue, nil
	}
	if err != nil {
		return s.defaultValue, fmt.Errorf("failed to read preferences of %s: %w", userID, err)
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return s.defaultValue, nil
	}
	return enabled, nil
}

func (s *RedisStore) SetAudioGuideEnabled(ctx context.Context, userID string, enabled bool) error {
	return s.client.HSet(ctx, prefsKey(userID), audioGuideField, strconv.FormatBool(enabled)).Err()
}

// MemoryStore keeps preferences in process
type MemoryStore struct {
	mu           sync.RWMutex
	values       map[string]bool
	defaultValue bool
}

// NewMemoryStore creates an in-memory store
func NewMemoryStore(defaultValue bool) *MemoryStore {
	return &MemoryStore{values: make(map[string]bool), defaultValue: defaultValue}
}

func (s *MemoryStore) AudioGuideEnabled(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[userID]; ok {
		return v, nil
	}
	return s.defaultValue, nil
}

func (s *MemoryStore) SetAudioGuideEnabled(_ context.Context, userID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[userID] = enabled
	return nil
}
