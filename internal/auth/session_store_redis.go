package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisSessionKey = "gatekeeper:sessions"

// RedisSessionStore persists the session table as a single JSON value. The
// blob never reaches a client; tokens stay opaque end to end.
type RedisSessionStore struct {
	client  redis.UniversalClient
	timeout time.Duration
}

type storedSession struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	Admin     bool      `json:"admin"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewRedisSessionStore(client redis.UniversalClient) (*RedisSessionStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisSessionStore{client: client, timeout: 3 * time.Second}, nil
}

func (s *RedisSessionStore) Load() (map[string]Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	raw, err := s.client.Get(ctx, redisSessionKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return make(map[string]Session), nil
		}
		return nil, fmt.Errorf("read session state: %w", err)
	}

	var decoded []storedSession
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}

	out := make(map[string]Session, len(decoded))
	for _, d := range decoded {
		out[d.Token] = Session{
			ID:        d.ID,
			Token:     d.Token,
			Username:  d.Username,
			Claims:    Claims{Admin: d.Admin},
			CreatedAt: d.CreatedAt,
			ExpiresAt: d.ExpiresAt,
		}
	}
	return out, nil
}

func (s *RedisSessionStore) Save(sessions map[string]Session) error {
	out := make([]storedSession, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, storedSession{
			ID:        sess.ID,
			Token:     sess.Token,
			Username:  sess.Username,
			Admin:     sess.Claims.Admin,
			CreatedAt: sess.CreatedAt,
			ExpiresAt: sess.ExpiresAt,
		})
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.Set(ctx, redisSessionKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	return nil
}
