package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"storyboard/pkg/domain"
)

const sessionKeyPrefix = "session:"

// RedisSessionStore keeps sessions in Redis with TTL. The key TTL handles
// most expiry; the read path still checks expires_at so a clock-skewed entry
// never resolves.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore builds a Redis-backed session store.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(token string) string { return sessionKeyPrefix + token }

// Put writes the session JSON under its access token with the session TTL.
func (s *RedisSessionStore) Put(session domain.Session) error {
	payload, err := json.Marshal(redisSession{
		Session: session,
		User:    session.User,
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Until(time.UnixMilli(session.ExpiresAt))
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.client.Set(ctx, sessionKey(session.AccessToken), payload, ttl).Err()
}

// Get resolves an access token. A key past its expires_at is deleted and
// treated as absent.
func (s *RedisSessionStore) Get(accessToken string) (domain.Session, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	raw, err := s.client.Get(ctx, sessionKey(accessToken)).Bytes()
	if err == redis.Nil {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, err
	}
	var stored redisSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return domain.Session{}, false, fmt.Errorf("unmarshal session: %w", err)
	}
	session := stored.Session
	session.User = stored.User
	if session.Expired(time.Now()) {
		_ = s.client.Del(ctx, sessionKey(accessToken)).Err()
		return domain.Session{}, false, nil
	}
	return session, true, nil
}

// Delete removes a session. Deleting an unknown token is a no-op.
func (s *RedisSessionStore) Delete(accessToken string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, sessionKey(accessToken)).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// redisSession carries the user snapshot alongside the token fields, which
// domain.Session excludes from its own JSON form.
type redisSession struct {
	domain.Session
	User domain.User `json:"user"`
}
