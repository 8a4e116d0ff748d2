package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/llamcomm/internal/apperr"
)

func tempStore(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempStore(t)
	content := []byte("STATUS:open\nship it\n")
	if err := s.Write("tasks/t1.txt", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("tasks/t1.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestMkdirAllIdempotent(t *testing.T) {
	s := tempStore(t)
	for i := 0; i < 2; i++ {
		if err := s.MkdirAll("proj1/sub"); err != nil {
			t.Fatalf("MkdirAll #%d: %v", i, err)
		}
	}
	info, err := s.Stat("proj1/sub")
	if err != nil || !info.IsDir() {
		t.Fatalf("Stat: %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := tempStore(t)
	_ = s.Write("del.txt", []byte("bye"))
	if err := s.Delete("del.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.txt"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist reading deleted file, got %v", err)
	}
}

func TestReadDirSorted(t *testing.T) {
	s := tempStore(t)
	_ = s.Write("f/b.txt", []byte("b"))
	_ = s.Write("f/a.txt", []byte("a"))
	_ = s.MkdirAll("f/c")

	entries, err := s.ReadDir("f")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if len(names) != 3 || names[0] != "a.txt" || names[1] != "b.txt" || names[2] != "c" {
		t.Errorf("names = %v", names)
	}
}

func TestList(t *testing.T) {
	s := tempStore(t)
	_ = s.Write("a.txt", []byte("a"))
	_ = s.Write("sub/b.png", []byte("b"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	for _, it := range items {
		if it.Checksum == "" {
			t.Errorf("missing checksum for %s", it.Path)
		}
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempStore(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.txt",
		"proj/../../x.txt",
		"/etc/shadow",
		`..\evil.txt`,
	}
	for _, p := range cases {
		if _, err := s.Read(p); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Read(%q) err = %v, want ErrValidation", p, err)
		}
		if err := s.Write(p, []byte("x")); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Write(%q) err = %v, want ErrValidation", p, err)
		}
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempStore(t)
	_ = s.Write("atomic.txt", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("atomic.txt", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.txt")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.Root(), TempPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp(t.TempDir(), "llamcomm-test-*")
	_ = f.Close()
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
