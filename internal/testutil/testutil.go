// Package testutil provides shared test helpers for record stores and index
// databases.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/llamcomm/internal/filestore"
	"github.com/starford/llamcomm/internal/index"
	"github.com/starford/llamcomm/internal/storage"
)

// TestDB creates a temporary SQLite index that is removed after the test.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "llamcomm-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestFS creates a temporary base directory with a storage provider.
func TestFS(t *testing.T) (string, *storage.FS) {
	t.Helper()
	baseDir := t.TempDir()
	fs, err := storage.NewFS(baseDir)
	if err != nil {
		t.Fatal(err)
	}
	return baseDir, fs
}

// TestStore returns an unindexed record store over a temporary directory.
func TestStore(t *testing.T) (*filestore.Store, string) {
	t.Helper()
	baseDir, fs := TestFS(t)
	return filestore.New(fs), baseDir
}

// TestIndexedStore returns a record store that keeps a temporary index
// current, along with the index and base directory.
func TestIndexedStore(t *testing.T) (*filestore.Store, *index.DB, string) {
	t.Helper()
	baseDir, fs := TestFS(t)
	db := TestDB(t)
	return filestore.New(fs, filestore.WithIndex(db)), db, baseDir
}
