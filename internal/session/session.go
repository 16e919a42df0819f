// Package session provides storage backends for signed-in sessions.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/jdhibberd/sticky/internal/store"
)

// ErrNotFound is returned when a session id does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Store is the session backend. The Postgres backend keeps sessions in the
// relational store; the Redis backend keeps them in Redis with native TTL
// expiry. Both are interchangeable from the handlers' point of view.
type Store interface {
	Create(ctx context.Context, userID, userName string, ttl time.Duration) (store.Session, error)
	Get(ctx context.Context, sessionID string) (store.Session, error)
	Delete(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
}
