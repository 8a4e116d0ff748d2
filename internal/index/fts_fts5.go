//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
			path UNINDEXED,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, path, body string) error {
	_, _ = tx.Exec(`DELETE FROM records_fts WHERE path = ?`, path)
	if body == "" {
		return nil
	}
	if _, err := tx.Exec(`INSERT INTO records_fts (path, body) VALUES (?, ?)`, path, body); err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) {
	_, _ = tx.Exec(`DELETE FROM records_fts WHERE path = ?`, path)
}

// Search performs an FTS5 match on record bodies when Text is set, and a
// plain filtered listing otherwise.
func (db *DB) Search(q Query) ([]SearchResult, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	where, args := filterClause(q)

	var (
		rows *sql.Rows
		err  error
	)
	if q.Text == "" {
		rows, err = db.conn.Query(`
			SELECT r.path, r.kind, r.status, substr(r.body, 1, 200)
			FROM records r
			WHERE 1 = 1`+where+`
			ORDER BY r.updated_at DESC, r.path
			LIMIT ?
		`, append(args, q.Limit)...)
	} else {
		args = append([]any{q.Text}, args...)
		rows, err = db.conn.Query(`
			SELECT r.path, r.kind, r.status,
			       snippet(records_fts, 1, '<b>', '</b>', '...', 32)
			FROM records_fts
			JOIN records r ON r.path = records_fts.path
			WHERE records_fts MATCH ?`+where+`
			ORDER BY rank
			LIMIT ?
		`, append(args, q.Limit)...)
	}
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}
