package app

import (
	"fmt"
	"sort"
	"time"

	"github.com/jdhibberd/sticky/internal/notepath"
	"github.com/jdhibberd/sticky/internal/store"
)

// Ancestor is a note on the chain between the root and the viewed note.
type Ancestor struct {
	ID         string    `json:"id"`
	AuthorName string    `json:"authorName"`
	Content    string    `json:"content"`
	Path       string    `json:"path"`
	Modified   time.Time `json:"modified"`
}

// PageNote is a direct child of the viewed note, decorated with the derived
// fields the client renders.
type PageNote struct {
	ID          string    `json:"id"`
	AuthorName  string    `json:"authorName"`
	Content     string    `json:"content"`
	Path        string    `json:"path"`
	Modified    time.Time `json:"modified"`
	HasChildren bool      `json:"hasChildren"`
	LikeCount   int       `json:"likeCount"`
	LikedByUser bool      `json:"likedByUser"`
}

// PageUser is the signed-in user as shown on the page.
type PageUser struct {
	Name string `json:"name"`
}

// NotePage is the structured data necessary to render a note view on the
// client.
type NotePage struct {
	Ancestors []Ancestor `json:"ancestors"`
	ParentID  *string    `json:"parentId"`
	Notes     []PageNote `json:"notes"`
	User      PageUser   `json:"user"`
}

// buildNotePage assembles the page model from the flat note set returned by
// the path-based read, the like aggregates, and the author records.
//
// An ancestor id that resolves to no note means the stored path references a
// note that no longer exists; that is corrupted path data and fails loudly
// rather than silently dropping the ancestor. The same goes for an author id
// with no user record.
func buildNotePage(path string, notes []store.Note, likes store.NoteLikes, authors []store.User, userName string) (*NotePage, error) {
	notesByID := make(map[string]store.Note, len(notes))
	for _, note := range notes {
		notesByID[note.ID] = note
	}
	authorsByID := make(map[string]store.User, len(authors))
	for _, author := range authors {
		authorsByID[author.ID] = author
	}
	authorName := func(note store.Note) (string, error) {
		author, ok := authorsByID[note.AuthorID]
		if !ok {
			return "", fmt.Errorf("note %s references unknown author %s", note.ID, note.AuthorID)
		}
		return author.Name, nil
	}

	ancestorIDs := notepath.Split(path)
	ancestors := make([]Ancestor, 0, len(ancestorIDs))
	for _, id := range ancestorIDs {
		note, ok := notesByID[id]
		if !ok {
			return nil, fmt.Errorf("path %q references missing ancestor %s", path, id)
		}
		name, err := authorName(note)
		if err != nil {
			return nil, err
		}
		ancestors = append(ancestors, Ancestor{
			ID:         note.ID,
			AuthorName: name,
			Content:    note.Content,
			Path:       note.Path,
			Modified:   note.Modified,
		})
	}

	var parentID *string
	if len(ancestors) > 0 {
		parentID = &ancestors[len(ancestors)-1].ID
	}

	// Notes that appear as the last path element of any other note have
	// children.
	parents := make(map[string]bool)
	for _, note := range notes {
		if id, ok := notepath.Parent(note.Path); ok {
			parents[id] = true
		}
	}

	likeCounts := make(map[string]int, len(likes.Counts))
	for _, entry := range likes.Counts {
		likeCounts[entry.NoteID] = entry.Count
	}
	likedByUser := make(map[string]bool, len(likes.LikedByUser))
	for _, id := range likes.LikedByUser {
		likedByUser[id] = true
	}

	children := make([]PageNote, 0)
	for _, note := range notes {
		if note.Path != path {
			continue
		}
		name, err := authorName(note)
		if err != nil {
			return nil, err
		}
		children = append(children, PageNote{
			ID:          note.ID,
			AuthorName:  name,
			Content:     note.Content,
			Path:        note.Path,
			Modified:    note.Modified,
			HasChildren: parents[note.ID],
			LikeCount:   likeCounts[note.ID],
			LikedByUser: likedByUser[note.ID],
		})
	}

	// Hot notes float to the top: like count desc, then most recently
	// modified first. Stable for equal keys.
	sort.SliceStable(children, func(i, j int) bool {
		if children[i].LikeCount != children[j].LikeCount {
			return children[i].LikeCount > children[j].LikeCount
		}
		return children[i].Modified.After(children[j].Modified)
	})

	return &NotePage{
		Ancestors: ancestors,
		ParentID:  parentID,
		Notes:     children,
		User:      PageUser{Name: userName},
	}, nil
}
