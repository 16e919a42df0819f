package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (s *PostgresStore) CreateSession(ctx context.Context, userID string, ttl time.Duration) (Session, error) {
	session := Session{ID: uuid.NewString(), UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, user_id, expires_at)
		VALUES ($1, $2, NOW() + $3::interval)
		RETURNING expires_at
	`, session.ID, session.UserID, fmt.Sprintf("%d seconds", int(ttl.Seconds()))).Scan(&session.ExpiresAt)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// GetSession resolves a live session together with the owning user's name.
// Expired rows are treated as absent.
func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (Session, error) {
	var session Session
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.user_id, u.name, s.expires_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = $1 AND s.expires_at > NOW()
	`, sessionID).Scan(&session.ID, &session.UserID, &session.UserName, &session.ExpiresAt)
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE id = $1
	`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
