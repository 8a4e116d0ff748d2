package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

const treeIndent = "    "

// List renders folder as indented text. Non-recursive listings show the
// folder's immediate children; recursive listings show every directory once
// with its files indented beneath it. A missing folder yields a message, not
// an error, and is never created.
func (s *Store) List(_ context.Context, folder string, recursive bool) (string, error) {
	if err := requireFolder(folder); err != nil {
		return "", err
	}
	if err := checkRelative(folder); err != nil {
		return "", err
	}
	folder = path.Clean(strings.ReplaceAll(folder, `\`, "/"))

	info, err := s.fs.Stat(folder)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return fmt.Sprintf("Folder %s not found.", folder), nil
	}
	if err != nil {
		return "", err
	}

	var lines []string
	if recursive {
		if err := s.walkTree(folder, 0, &lines); err != nil {
			return "", err
		}
	} else {
		entries, err := s.fs.ReadDir(folder)
		if err != nil {
			return "", err
		}
		lines = append(lines, path.Base(folder)+"/")
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			lines = append(lines, treeIndent+name)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// walkTree appends dir at the given depth, then its files, then recurses
// into its subdirectories.
func (s *Store) walkTree(dir string, depth int, lines *[]string) error {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		return err
	}
	*lines = append(*lines, strings.Repeat(treeIndent, depth)+path.Base(dir)+"/")

	var subdirs []string
	for _, e := range entries {
		if e.IsDir() {
			subdirs = append(subdirs, e.Name())
			continue
		}
		*lines = append(*lines, strings.Repeat(treeIndent, depth+1)+e.Name())
	}
	for _, sub := range subdirs {
		if err := s.walkTree(path.Join(dir, sub), depth+1, lines); err != nil {
			return err
		}
	}
	return nil
}
