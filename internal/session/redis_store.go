package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jdhibberd/sticky/internal/store"
)

// sessionData is the payload stored per session key.
type sessionData struct {
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedisStore implements session storage using Redis. Expiry rides on the
// key TTL, so no sweeping is needed.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed session store and verifies the
// connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: "session:",
	}, nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "session:",
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *RedisStore) Create(ctx context.Context, userID, userName string, ttl time.Duration) (store.Session, error) {
	session := store.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		UserName:  userName,
		ExpiresAt: time.Now().Add(ttl),
	}

	data, err := json.Marshal(sessionData{
		UserID:    session.UserID,
		UserName:  session.UserName,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return store.Session{}, fmt.Errorf("marshal session data: %w", err)
	}

	if err := s.client.Set(ctx, s.key(session.ID), data, ttl).Err(); err != nil {
		return store.Session{}, fmt.Errorf("save session: %w", err)
	}

	return session, nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (store.Session, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err == redis.Nil {
		return store.Session{}, ErrNotFound
	}
	if err != nil {
		return store.Session{}, fmt.Errorf("lookup session: %w", err)
	}

	var data sessionData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return store.Session{}, fmt.Errorf("unmarshal session data: %w", err)
	}

	return store.Session{
		ID:        sessionID,
		UserID:    data.UserID,
		UserName:  data.UserName,
		ExpiresAt: data.ExpiresAt,
	}, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
