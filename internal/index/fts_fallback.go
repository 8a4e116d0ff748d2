//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; full-text search uses LIKE on records.body.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _ string) error {
	// Body is already stored in the records table.
	return nil
}

func ftsDelete(_ *sql.Tx, _ string) {}

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(q Query) ([]SearchResult, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	where, args := filterClause(q)
	if q.Text != "" {
		where += ` AND (r.path LIKE ? ESCAPE '\' OR r.body LIKE ? ESCAPE '\')`
		like := containsPattern(q.Text)
		args = append(args, like, like)
	}
	args = append(args, q.Limit)

	rows, err := db.conn.Query(`
		SELECT r.path, r.kind, r.status, substr(r.body, 1, 200)
		FROM records r
		WHERE 1 = 1`+where+`
		ORDER BY r.updated_at DESC, r.path
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}
