//go:build sqlite_fts5

package index

import "testing"

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM records_fts`).Scan(&count); err != nil {
		t.Fatalf("records_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	if err := db.IndexFile("docs/fts.txt", []byte("The assistant provides powerful full-text search capabilities.")); err != nil {
		t.Fatalf("IndexFile: %v", err)
	}

	results, err := db.Search(Query{Text: "powerful", Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Path != "docs/fts.txt" {
		t.Errorf("path = %q", results[0].Path)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.IndexFile("gone.txt", []byte("vanishing content"))
	_ = db.DeleteRecord("gone.txt")

	results, _ := db.Search(Query{Text: "vanishing"})
	for _, r := range results {
		if r.Path == "gone.txt" {
			t.Error("deleted record still in FTS index")
		}
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	_ = db.IndexFile("evo.txt", []byte("original text"))
	_ = db.IndexFile("evo.txt", []byte("replacement text"))

	results, _ := db.Search(Query{Text: "original"})
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search(Query{Text: "replacement"})
	if len(results) != 1 {
		t.Errorf("FTS not updated: %+v", results)
	}
}
