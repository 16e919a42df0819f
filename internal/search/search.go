// Package search provides full-text search over notes, served by
// Meilisearch when available and PostgreSQL full-text search otherwise.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	Snippet  string `json:"snippet"`
	Path     string `json:"path"`
	AuthorID string `json:"authorId"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// NoteRecord is the data we index for a note.
type NoteRecord struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Path     string `json:"path"`
	AuthorID string `json:"authorId"`
}
