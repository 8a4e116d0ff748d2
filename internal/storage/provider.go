// Package storage defines the record store file-system abstraction.
package storage

import (
	"io/fs"
	"time"
)

// FileMeta is a lightweight description of a stored file.
type FileMeta struct {
	Path      string
	Checksum  string
	Size      int64
	UpdatedAt time.Time
}

// Provider is the interface for file operations under the store root.
// Every path is relative to the root.
type Provider interface {
	// Root returns the absolute base directory.
	Root() string
	// Stat describes the file or directory at path.
	Stat(path string) (fs.FileInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path, creating parent directories.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error
	// ReadDir returns the entries of dir sorted by name.
	ReadDir(dir string) ([]fs.DirEntry, error)
	// List returns metadata for every regular file under dir.
	List(dir string) ([]FileMeta, error)
}
