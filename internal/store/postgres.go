package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// PostgresStore wraps the database pool with one narrow set of parameterized
// statements per table. No cross-table joins exist except the notes
// path-based read, the likes aggregate read, and the session user lookup.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// placeholders renders "$start, $start+1, ..." for binding a variable number
// of parameters.
func placeholders(start, count int) string {
	refs := make([]string, count)
	for i := 0; i < count; i++ {
		refs[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(refs, ", ")
}
