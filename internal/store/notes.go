package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jdhibberd/sticky/internal/notepath"
)

func (s *PostgresStore) InsertNote(ctx context.Context, authorID, content, path string) (Note, error) {
	note := Note{
		ID:       uuid.NewString(),
		AuthorID: authorID,
		Content:  content,
		Path:     path,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notes (id, author_id, content, path)
		VALUES ($1, $2, $3, $4)
		RETURNING modified
	`, note.ID, note.AuthorID, note.Content, note.Path).Scan(&note.Modified)
	if err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}
	return note, nil
}

func (s *PostgresStore) UpdateNoteContent(ctx context.Context, noteID, content string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notes
		SET content = $2, modified = NOW()
		WHERE id = $1
	`, noteID, content)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetNote(ctx context.Context, noteID string) (Note, error) {
	var note Note
	err := s.db.QueryRowContext(ctx, `
		SELECT id, author_id, content, path, modified
		FROM notes
		WHERE id = $1
	`, noteID).Scan(&note.ID, &note.AuthorID, &note.Content, &note.Path, &note.Modified)
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

// SelectNotesByPath retrieves, in a single query, every note needed to render
// a note page: the ancestor chain (the ids encoded in the path) plus all
// notes at or below the path. An empty path means root and returns
// everything.
func (s *PostgresStore) SelectNotesByPath(ctx context.Context, path string) ([]Note, error) {
	if path == "" {
		return s.selectAllNotes(ctx)
	}
	ancestorIDs := notepath.Split(path)
	args := make([]any, 0, len(ancestorIDs)+1)
	for _, id := range ancestorIDs {
		args = append(args, id)
	}
	args = append(args, path+"%")
	query := fmt.Sprintf(`
		SELECT id, author_id, content, path, modified
		FROM notes
		WHERE id IN (%s)
		UNION
		SELECT id, author_id, content, path, modified
		FROM notes
		WHERE path LIKE %s
	`, placeholders(1, len(ancestorIDs)), placeholders(len(ancestorIDs)+1, 1))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select notes by path: %w", err)
	}
	defer rows.Close()

	notes := make([]Note, 0)
	for rows.Next() {
		var note Note
		if err := rows.Scan(&note.ID, &note.AuthorID, &note.Content, &note.Path, &note.Modified); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}

func (s *PostgresStore) selectAllNotes(ctx context.Context) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, author_id, content, path, modified
		FROM notes
	`)
	if err != nil {
		return nil, fmt.Errorf("select notes: %w", err)
	}
	defer rows.Close()

	notes := make([]Note, 0)
	for rows.Next() {
		var note Note
		if err := rows.Scan(&note.ID, &note.AuthorID, &note.Content, &note.Path, &note.Modified); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}

// DeleteNoteRecursive removes a note and every descendant sharing its path
// prefix. The two statements are not wrapped in a transaction: a child
// inserted concurrently between them can escape deletion. Known, accepted
// race.
func (s *PostgresStore) DeleteNoteRecursive(ctx context.Context, note Note) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM notes
		WHERE id = $1
	`, note.ID); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	prefix := notepath.Append(note.Path, note.ID)
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM notes
		WHERE path LIKE $1
	`, prefix+"%"); err != nil {
		return fmt.Errorf("delete note descendants: %w", err)
	}
	return nil
}
