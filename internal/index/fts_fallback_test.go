//go:build !sqlite_fts5

package index

import "testing"

func TestSearchFallback_TextWildcardsAreLiteral(t *testing.T) {
	db := testDB(t)
	_ = db.IndexFile("n/a.txt", []byte("progress 50% done"))
	_ = db.IndexFile("n/b.txt", []byte("progress 50 items done"))
	_ = db.IndexFile("n/c.txt", []byte("snake_case name"))
	_ = db.IndexFile("n/d.txt", []byte("snakeXcase name"))

	results, err := db.Search(Query{Text: "50%"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Path != "n/a.txt" {
		t.Errorf("50%% results = %+v", results)
	}

	results, _ = db.Search(Query{Text: "snake_case"})
	if len(results) != 1 || results[0].Path != "n/c.txt" {
		t.Errorf("snake_case results = %+v", results)
	}
}
