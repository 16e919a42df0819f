package store

import "time"

// Entity field bounds, mirrored in the table schemas.
const (
	NameMinLen    = 2
	NameMaxLen    = 32
	EmailMinLen   = 5
	EmailMaxLen   = 255
	ContentMaxLen = 512
	// PathMaxDepth is the maximum number of ancestors a note may have.
	PathMaxDepth = 5
)

// Note is a short piece of text in a shallow tree. Its location is the
// materialized path of ancestor ids plus its own id; a root note has an
// empty path.
type Note struct {
	ID       string
	AuthorID string
	Content  string
	Path     string
	Modified time.Time
}

type User struct {
	ID    string
	Name  string
	Email string
}

// Session references a signed-in user. The id travels in a signed cookie; a
// user may hold any number of concurrent sessions.
type Session struct {
	ID        string
	UserID    string
	UserName  string
	ExpiresAt time.Time
}

// LikeCount is the aggregate number of likes for one note.
type LikeCount struct {
	NoteID string
	Count  int
}

// NoteLikes carries, for a set of notes, the per-note like counts and the
// subset of those notes liked by the requesting user.
type NoteLikes struct {
	Counts      []LikeCount
	LikedByUser []string
}
