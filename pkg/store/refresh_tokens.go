package store

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryRefreshTokenStore keeps refresh tokens in a mutex-guarded map.
type MemoryRefreshTokenStore struct {
	mu     sync.Mutex
	tokens map[string]refreshEntry
	now    func() time.Time
}

type refreshEntry struct {
	userID    string
	expiresAt time.Time
}

// NewMemoryRefreshTokenStore returns an empty refresh token store.
func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{
		tokens: make(map[string]refreshEntry),
		now:    time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *MemoryRefreshTokenStore) WithClock(now func() time.Time) *MemoryRefreshTokenStore {
	s.now = now
	return s
}

func (s *MemoryRefreshTokenStore) Put(token, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = refreshEntry{userID: userID, expiresAt: s.now().Add(ttl)}
	return nil
}

// Rotate swaps the presented token for a new one in a single critical
// section, so a replayed token observes the old entry already gone.
func (s *MemoryRefreshTokenStore) Rotate(token, newToken string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[token]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.tokens, token)
		return "", ErrInvalidRefreshToken
	}
	delete(s.tokens, token)
	s.tokens[newToken] = refreshEntry{userID: entry.userID, expiresAt: s.now().Add(ttl)}
	return entry.userID, nil
}

func (s *MemoryRefreshTokenStore) Delete(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

const refreshKeyPrefix = "refresh:"

// RedisRefreshTokenStore keeps refresh tokens in Redis with TTL.
type RedisRefreshTokenStore struct {
	client *redis.Client
}

// NewRedisRefreshTokenStore builds a Redis-backed refresh token store.
func NewRedisRefreshTokenStore(client *redis.Client) *RedisRefreshTokenStore {
	return &RedisRefreshTokenStore{client: client}
}

func refreshKey(token string) string { return refreshKeyPrefix + token }

func (s *RedisRefreshTokenStore) Put(token, userID string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.client.Set(ctx, refreshKey(token), userID, ttl).Err()
}

// Rotate consumes the old token and writes the replacement under WATCH so a
// concurrent rotation of the same token fails rather than forking.
func (s *RedisRefreshTokenStore) Rotate(token, newToken string, ttl time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var userID string
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, refreshKey(token)).Result()
		if err == redis.Nil {
			return ErrInvalidRefreshToken
		}
		if err != nil {
			return err
		}
		userID = val
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, refreshKey(token))
			pipe.Set(ctx, refreshKey(newToken), val, ttl)
			return nil
		})
		return err
	}, refreshKey(token))
	if err == redis.TxFailedErr {
		return "", ErrInvalidRefreshToken
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *RedisRefreshTokenStore) Delete(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, refreshKey(token)).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}
