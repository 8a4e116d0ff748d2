package index

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/llamcomm/internal/models"
	"github.com/starford/llamcomm/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "llamcomm-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM records`).Scan(&count); err != nil {
		t.Fatalf("records table missing: %v", err)
	}
}

func TestUpsertAndGetChecksum(t *testing.T) {
	db := testDB(t)
	row := RecordRow{
		Path:      "alpha/notes.txt",
		Folder:    "alpha",
		Kind:      models.KindInfo,
		Checksum:  "abc123",
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertRecord(row, "hello"); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}
	cs, err := db.GetChecksum("alpha/notes.txt")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nope.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestIndexFile_InfersKindAndStatus(t *testing.T) {
	db := testDB(t)
	tests := []struct {
		path       string
		data       string
		wantKind   models.Kind
		wantStatus string
	}{
		{"proj/task1.txt", "STATUS: pending\nimplement login", models.KindTask, "pending"},
		{"proj/run.py", "print('hi')", models.KindScript, ""},
		{"proj/readme.txt", "plain notes", models.KindInfo, ""},
		{"proj/shot.png", "\x89PNG\r\n\x1a\n", models.KindImage, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if err := db.IndexFile(tt.path, []byte(tt.data)); err != nil {
				t.Fatalf("IndexFile: %v", err)
			}
			r, err := db.GetRecord(tt.path)
			if err != nil || r == nil {
				t.Fatalf("GetRecord: %v %v", r, err)
			}
			if r.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", r.Kind, tt.wantKind)
			}
			if r.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", r.Status, tt.wantStatus)
			}
			if r.Folder != "proj" {
				t.Errorf("folder = %q, want proj", r.Folder)
			}
		})
	}
}

func TestGetRecord_Missing(t *testing.T) {
	db := testDB(t)
	r, err := db.GetRecord("missing.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != nil {
		t.Errorf("expected nil, got %+v", r)
	}
}

func TestDeleteRecord(t *testing.T) {
	db := testDB(t)
	_ = db.IndexFile("del/x.txt", []byte("bye"))

	if err := db.DeleteRecord("del/x.txt"); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	cs, _ := db.GetChecksum("del/x.txt")
	if cs != "" {
		t.Errorf("deleted record still has checksum %q", cs)
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	_ = db.IndexFile("up/t.txt", []byte("STATUS: pending\nwork"))
	_ = db.IndexFile("up/t.txt", []byte("STATUS: done\nwork"))

	r, _ := db.GetRecord("up/t.txt")
	if r == nil || r.Status != "done" {
		t.Errorf("status not updated: %+v", r)
	}
	all, _ := db.AllChecksums()
	if len(all) != 1 {
		t.Errorf("expected 1 record, got %d", len(all))
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.IndexFile("s/a.txt", []byte("uniqueword appears here"))
	_ = db.IndexFile("s/b.txt", []byte("nothing to see"))

	results, err := db.Search(Query{Text: "uniqueword"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "s/a.txt" {
		t.Errorf("search results = %+v, want 1 hit for s/a.txt", results)
	}
}

func TestSearch_Filters(t *testing.T) {
	db := testDB(t)
	_ = db.IndexFile("p1/t1.txt", []byte("STATUS: pending\nfirst"))
	_ = db.IndexFile("p1/t2.txt", []byte("STATUS: done\nsecond"))
	_ = db.IndexFile("p1/sub/t3.txt", []byte("STATUS: pending\nthird"))
	_ = db.IndexFile("p2/t4.txt", []byte("STATUS: pending\nfourth"))
	_ = db.IndexFile("p1/info.txt", []byte("context"))

	results, err := db.Search(Query{Folder: "p1", Kind: models.KindTask, Status: "pending"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	got := map[string]bool{}
	for _, r := range results {
		got[r.Path] = true
	}
	if len(got) != 2 || !got["p1/t1.txt"] || !got["p1/sub/t3.txt"] {
		t.Errorf("filtered results = %+v", results)
	}
}

func TestSearch_ImagesHaveNoBody(t *testing.T) {
	db := testDB(t)
	_ = db.IndexFile("img/shot.png", []byte("\x89PNG secretword"))

	results, _ := db.Search(Query{Text: "secretword"})
	if len(results) != 0 {
		t.Errorf("image bytes should not be searchable: %+v", results)
	}
}

func TestSync(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)

	_ = os.MkdirAll(filepath.Join(dir, "alpha"), 0o755)
	_ = os.WriteFile(filepath.Join(dir, "alpha", "a.txt"), []byte("one"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "alpha", "b.txt"), []byte("STATUS: x\ntwo"), 0o644)
	_ = db.IndexFile("alpha/stale.txt", []byte("gone"))

	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	all, _ := db.AllChecksums()
	if len(all) != 2 {
		t.Fatalf("expected 2 records after sync, got %v", all)
	}
	if _, ok := all["alpha/stale.txt"]; ok {
		t.Error("stale record not removed")
	}
	r, _ := db.GetRecord("alpha/b.txt")
	if r == nil || r.Kind != models.KindTask {
		t.Errorf("b.txt not indexed as task: %+v", r)
	}
}

func TestSync_SkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	store, _ := storage.NewFS(dir)
	db := testDB(t)

	_ = os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("same"), 0o644)
	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}
	first, _ := db.GetRecord("keep.txt")

	time.Sleep(10 * time.Millisecond)
	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}
	second, _ := db.GetRecord("keep.txt")
	if first == nil || second == nil || !first.UpdatedAt.Equal(second.UpdatedAt) {
		t.Errorf("unchanged file re-indexed: %+v -> %+v", first, second)
	}
}

func TestTaskStatuses(t *testing.T) {
	db := testDB(t)
	_ = db.IndexFile("p1/b.txt", []byte("STATUS: done\nsecond"))
	_ = db.IndexFile("p1/a.txt", []byte("STATUS:pending\nfirst"))
	_ = db.IndexFile("p1/sub/c.txt", []byte("STATUS: blocked\nthird"))
	_ = db.IndexFile("p1/notes.txt", []byte("no status"))
	_ = db.IndexFile("p2/d.txt", []byte("STATUS: done\nother"))

	got, err := db.TaskStatuses("p1")
	if err != nil {
		t.Fatalf("TaskStatuses: %v", err)
	}
	want := []TaskStatus{
		{Path: "p1/a.txt", Status: "pending"},
		{Path: "p1/b.txt", Status: "done"},
		{Path: "p1/sub/c.txt", Status: "blocked"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	all, _ := db.TaskStatuses("")
	if len(all) != 4 {
		t.Errorf("whole store = %d tasks, want 4", len(all))
	}
}

func TestSync_ImagesFromMetadata(t *testing.T) {
	dir := t.TempDir()
	store, _ := storage.NewFS(dir)
	db := testDB(t)

	img := []byte("\x89PNG\r\n\x1a\nbytes")
	_ = os.MkdirAll(filepath.Join(dir, "shots"), 0o755)
	_ = os.WriteFile(filepath.Join(dir, "shots", "A.PNG"), img, 0o644)

	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}
	r, _ := db.GetRecord("shots/A.PNG")
	if r == nil || r.Kind != models.KindImage || r.Size != int64(len(img)) || r.Folder != "shots" {
		t.Errorf("image row = %+v", r)
	}
	if results, _ := db.Search(Query{Text: "bytes"}); len(results) != 0 {
		t.Errorf("image body searchable: %+v", results)
	}
}

func TestTaskStatuses_FolderWildcardsAreLiteral(t *testing.T) {
	db := testDB(t)
	_ = db.IndexFile("proj_1/a.txt", []byte("STATUS: done\nmine"))
	_ = db.IndexFile("proj_1/sub/c.txt", []byte("STATUS: todo\nnested"))
	_ = db.IndexFile("projX1/sub/b.txt", []byte("STATUS: todo\nsibling"))
	_ = db.IndexFile("100%/d.txt", []byte("STATUS: done\npercent"))
	_ = db.IndexFile("1000/e.txt", []byte("STATUS: done\nother"))

	got, err := db.TaskStatuses("proj_1")
	if err != nil {
		t.Fatalf("TaskStatuses: %v", err)
	}
	if len(got) != 2 || got[0].Path != "proj_1/a.txt" || got[1].Path != "proj_1/sub/c.txt" {
		t.Errorf("proj_1 tasks = %+v", got)
	}

	got, _ = db.TaskStatuses("100%")
	if len(got) != 1 || got[0].Path != "100%/d.txt" {
		t.Errorf("100%% tasks = %+v", got)
	}

	results, _ := db.Search(Query{Folder: "proj_1/", Kind: models.KindTask})
	if len(results) != 2 {
		t.Errorf("search folder proj_1/ = %+v", results)
	}
}
