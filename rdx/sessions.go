package rdx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sessions is a session registry stored as expiring Redis keys.
type Sessions struct {
	Conn *redis.Client
}

func sessionKey(id string) string { return "session:" + id }

func (s *Sessions) Put(ctx context.Context, sessionID, owner string, ttl time.Duration) error {
	return s.Conn.Set(ctx, sessionKey(sessionID), owner, ttl).Err()
}

func (s *Sessions) Active(ctx context.Context, sessionID string) (bool, error) {
	_, err := s.Conn.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Sessions) Revoke(ctx context.Context, sessionID string) error {
	return s.Conn.Del(ctx, sessionKey(sessionID)).Err()
}
