package index

import (
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/starford/llamcomm/internal/checksum"
	"github.com/starford/llamcomm/internal/models"
)

// RecordRow represents a row in the records table.
type RecordRow struct {
	Path      string      `json:"path"`
	Folder    string      `json:"folder"`
	Kind      models.Kind `json:"kind"`
	Status    string      `json:"status,omitempty"`
	Checksum  string      `json:"checksum"`
	Size      int64       `json:"size"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Query filters a search. Empty fields match everything.
type Query struct {
	Text   string
	Folder string
	Kind   models.Kind
	Status string
	Limit  int
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string      `json:"path"`
	Kind    models.Kind `json:"kind"`
	Status  string      `json:"status,omitempty"`
	Snippet string      `json:"snippet"`
}

// RowFromFile derives the index row and searchable body of a stored file.
// Image bytes are never stored as body.
func RowFromFile(p string, data []byte) (RecordRow, string) {
	row := RecordRow{
		Path:      p,
		Folder:    path.Dir(p),
		Kind:      models.InferKind(p, data),
		Checksum:  checksum.Sum(data),
		Size:      int64(len(data)),
		UpdatedAt: time.Now(),
	}
	if row.Kind == models.KindImage {
		return row, ""
	}
	if row.Kind == models.KindTask {
		status, _, _ := models.SplitStatus(data)
		row.Status = strings.TrimSpace(status)
	}
	return row, string(data)
}

// IndexFile derives a row from data and upserts it.
func (db *DB) IndexFile(p string, data []byte) error {
	row, body := RowFromFile(p, data)
	return db.UpsertRecord(row, body)
}

// UpsertRecord inserts or replaces a record and its FTS entry within a transaction.
func (db *DB) UpsertRecord(r RecordRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO records (path, folder, kind, status, checksum, size, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			folder     = excluded.folder,
			kind       = excluded.kind,
			status     = excluded.status,
			checksum   = excluded.checksum,
			size       = excluded.size,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, r.Path, r.Folder, string(r.Kind), r.Status, r.Checksum, r.Size, body, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert record: %w", err)
	}

	if err := ftsUpsert(tx, r.Path, body); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteRecord removes a record and its FTS entry.
func (db *DB) DeleteRecord(p string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, p)
	if _, err := tx.Exec(`DELETE FROM records WHERE path = ?`, p); err != nil {
		return fmt.Errorf("index: delete record: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a record, or empty string if not found.
func (db *DB) GetChecksum(p string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM records WHERE path = ?`, p).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// GetRecord returns the row for p, or nil when it is not indexed.
func (db *DB) GetRecord(p string) (*RecordRow, error) {
	var (
		r    RecordRow
		kind string
	)
	err := db.conn.QueryRow(`
		SELECT path, folder, kind, status, checksum, size, updated_at
		FROM records WHERE path = ?
	`, p).Scan(&r.Path, &r.Folder, &kind, &r.Status, &r.Checksum, &r.Size, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get record: %w", err)
	}
	r.Kind = models.Kind(kind)
	return &r, nil
}

// AllChecksums returns path → checksum for every indexed record.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM records`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// TaskStatus is the status line of one task record.
type TaskStatus struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

// TaskStatuses lists the task records under folder and its subfolders,
// ordered by path. An empty folder means the whole store.
func (db *DB) TaskStatuses(folder string) ([]TaskStatus, error) {
	where, args := filterClause(Query{Folder: folder, Kind: models.KindTask})
	rows, err := db.conn.Query(`SELECT r.path, r.status FROM records r WHERE 1=1`+where+` ORDER BY r.path`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: task statuses: %w", err)
	}
	defer rows.Close()
	var out []TaskStatus
	for rows.Next() {
		var t TaskStatus
		if err := rows.Scan(&t.Path, &t.Status); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// filterClause renders the non-text filters of q as SQL conditions on the
// records table aliased r.
func filterClause(q Query) (string, []any) {
	where := ""
	var args []any
	add := func(cond string, v any) {
		where += " AND " + cond
		args = append(args, v)
	}
	if folder := strings.Trim(q.Folder, "/"); folder != "" {
		// Prefix compare rather than LIKE: folder names may contain % or _.
		add("(r.folder = ? OR substr(r.folder, 1, length(?) + 1) = ? || '/')", folder)
		args = append(args, folder, folder)
	}
	if q.Kind != "" {
		add("r.kind = ?", string(q.Kind))
	}
	if q.Status != "" {
		add("r.status = ?", q.Status)
	}
	return where, args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern returns a LIKE pattern (used with ESCAPE '\') matching
// text anywhere in a value.
func containsPattern(text string) string {
	return "%" + likeEscaper.Replace(text) + "%"
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	var out []SearchResult
	for rows.Next() {
		var (
			r    SearchResult
			kind string
		)
		if err := rows.Scan(&r.Path, &kind, &r.Status, &r.Snippet); err != nil {
			return nil, err
		}
		r.Kind = models.Kind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}
