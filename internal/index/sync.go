package index

import (
	"log/slog"
	"path"

	"github.com/starford/llamcomm/internal/models"
	"github.com/starford/llamcomm/internal/storage"
)

// Sync reconciles the index with the store. Records whose checksum changed
// are re-indexed and rows without a file are dropped. Image records are
// indexed from their listing metadata without reading the bytes.
// Per-file failures are logged and skipped.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}
	known, err := db.AllChecksums()
	if err != nil {
		return err
	}

	var indexed, removed, failed int
	onDisk := make(map[string]bool, len(metas))
	for _, m := range metas {
		onDisk[m.Path] = true
		if known[m.Path] == m.Checksum {
			continue
		}
		if err := syncOne(db, store, m); err != nil {
			failed++
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		indexed++
	}

	for p := range known {
		if onDisk[p] {
			continue
		}
		if err := db.DeleteRecord(p); err != nil {
			failed++
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		removed++
	}

	logger.Info("sync: done",
		slog.Int("records", len(metas)),
		slog.Int("indexed", indexed),
		slog.Int("removed", removed),
		slog.Int("failed", failed))
	return nil
}

func syncOne(db *DB, store storage.Provider, m storage.FileMeta) error {
	if models.IsImageExt(path.Ext(m.Path)) {
		return db.UpsertRecord(RecordRow{
			Path:      m.Path,
			Folder:    path.Dir(m.Path),
			Kind:      models.KindImage,
			Checksum:  m.Checksum,
			Size:      m.Size,
			UpdatedAt: m.UpdatedAt,
		}, "")
	}
	data, err := store.Read(m.Path)
	if err != nil {
		return err
	}
	return db.IndexFile(m.Path, data)
}
