package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jdhibberd/sticky/internal/store"
)

// PostgresStore keeps sessions in the sessions table, expired rows filtered
// on read.
type PostgresStore struct {
	store *store.PostgresStore
}

func NewPostgresStore(s *store.PostgresStore) *PostgresStore {
	return &PostgresStore{store: s}
}

func (s *PostgresStore) Create(ctx context.Context, userID, userName string, ttl time.Duration) (store.Session, error) {
	session, err := s.store.CreateSession(ctx, userID, ttl)
	if err != nil {
		return store.Session{}, err
	}
	session.UserName = userName
	return session, nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) (store.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Session{}, ErrNotFound
	}
	if err != nil {
		return store.Session{}, err
	}
	return session, nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	return s.store.DeleteSession(ctx, sessionID)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
