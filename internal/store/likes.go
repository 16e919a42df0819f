package store

import (
	"context"
	"fmt"
)

// InsertLike records that a user likes a note. Liking a note twice is a
// no-op rather than an error.
func (s *PostgresStore) InsertLike(ctx context.Context, userID, noteID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO likes (user_id, note_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, noteID)
	if err != nil {
		return fmt.Errorf("insert like: %w", err)
	}
	return nil
}

// DeleteLike removes a like if present. Unliking a note that was never liked
// is a no-op.
func (s *PostgresStore) DeleteLike(ctx context.Context, userID, noteID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM likes
		WHERE user_id = $1 AND note_id = $2
	`, userID, noteID)
	if err != nil {
		return fmt.Errorf("delete like: %w", err)
	}
	return nil
}

// SelectLikesByNoteIDs returns, for the given notes, the per-note like counts
// and the subset of those notes the given user has liked. Notes with no likes
// are simply absent from the counts.
func (s *PostgresStore) SelectLikesByNoteIDs(ctx context.Context, userID string, noteIDs []string) (NoteLikes, error) {
	likes := NoteLikes{Counts: []LikeCount{}, LikedByUser: []string{}}
	if len(noteIDs) == 0 {
		return likes, nil
	}

	args := make([]any, 0, len(noteIDs)+1)
	for _, id := range noteIDs {
		args = append(args, id)
	}
	query := fmt.Sprintf(`
		SELECT note_id, COUNT(*)
		FROM likes
		WHERE note_id IN (%s)
		GROUP BY note_id
	`, placeholders(1, len(noteIDs)))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return NoteLikes{}, fmt.Errorf("select like counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var count LikeCount
		if err := rows.Scan(&count.NoteID, &count.Count); err != nil {
			return NoteLikes{}, fmt.Errorf("scan like count: %w", err)
		}
		likes.Counts = append(likes.Counts, count)
	}
	if err := rows.Err(); err != nil {
		return NoteLikes{}, fmt.Errorf("iterate like counts: %w", err)
	}

	args = append(args, userID)
	query = fmt.Sprintf(`
		SELECT note_id
		FROM likes
		WHERE note_id IN (%s) AND user_id = %s
	`, placeholders(1, len(noteIDs)), placeholders(len(noteIDs)+1, 1))

	rows, err = s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return NoteLikes{}, fmt.Errorf("select user likes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var noteID string
		if err := rows.Scan(&noteID); err != nil {
			return NoteLikes{}, fmt.Errorf("scan user like: %w", err)
		}
		likes.LikedByUser = append(likes.LikedByUser, noteID)
	}
	if err := rows.Err(); err != nil {
		return NoteLikes{}, fmt.Errorf("iterate user likes: %w", err)
	}

	return likes, nil
}
