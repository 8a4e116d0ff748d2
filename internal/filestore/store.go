// Package filestore manages image, script, info and task records kept as
// plain files under a base directory, grouped into folders.
//
// The store does no locking. Concurrent writers to the same record race and
// the last write wins; callers that need ordering must serialise requests.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/llamcomm/internal/apperr"
	"github.com/starford/llamcomm/internal/models"
	"github.com/starford/llamcomm/internal/storage"
)

// Result messages.
const (
	MsgFileCreated  = "File created"
	MsgImageCreated = "Image created"
	MsgFileUpdated  = "File updated"
	MsgImageUpdated = "Image updated"
	MsgFileDeleted  = "File deleted"
	MsgFileNotFound = "File not found"
	MsgOK           = "ok"
)

// Indexer receives record changes made through the store.
type Indexer interface {
	IndexFile(path string, data []byte) error
	DeleteRecord(path string) error
}

// Response is the outcome of a store operation.
type Response struct {
	Message   string `json:"message,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Structure string `json:"structure,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CreateInput describes a new record. Naming is only consulted when
// Filename is empty.
type CreateInput struct {
	Filename string
	Payload  models.Payload
	Naming   models.Naming
}

// Store is the folder/record manager.
type Store struct {
	fs    storage.Provider
	index Indexer
}

// Option configures a Store.
type Option func(*Store)

// WithIndex keeps idx in step with every write and delete.
func WithIndex(idx Indexer) Option {
	return func(s *Store) {
		s.index = idx
	}
}

// New creates a Store over the given storage provider.
func New(fs storage.Provider, opts ...Option) *Store {
	s := &Store{fs: fs}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create writes a new record into folder, creating the folder if needed.
// An existing file with the same name is overwritten.
func (s *Store) Create(_ context.Context, folder string, in CreateInput) (Response, error) {
	if err := requireFolder(folder); err != nil {
		return Response{}, err
	}
	if in.Payload == nil {
		return Response{}, fmt.Errorf("%w: content payload is required", apperr.ErrValidation)
	}

	var (
		data []byte
		ext  string
		msg  = MsgFileCreated
	)
	switch p := in.Payload.(type) {
	case models.ImagePayload:
		src, err := readImageSource(p)
		if err != nil {
			return Response{}, err
		}
		data = src
		ext = strings.ToLower(filepath.Ext(p.Source))
		msg = MsgImageCreated
	case models.ScriptPayload:
		data = []byte(deref(p.Text))
		ext = p.ScriptExt()
	case models.InfoPayload:
		data = []byte(deref(p.Text))
		ext = models.DefaultTextExt
	case models.TaskPayload:
		data = []byte(deref(p.Text))
		if p.Status != "" {
			data = models.WithStatus(p.Status, data)
		}
		ext = models.DefaultTextExt
	default:
		return Response{}, apperr.ErrUnsupportedKind
	}

	name := in.Filename
	if name == "" {
		if err := in.Naming.Validate(); err != nil {
			return Response{}, err
		}
		name = in.Naming.Filename(ext)
	} else if path.Ext(name) == "" {
		name += ext
	}

	rel, err := joinRecord(folder, name)
	if err != nil {
		return Response{}, err
	}
	if err := s.fs.MkdirAll(folder); err != nil {
		return Response{}, err
	}
	if err := s.write(rel, data); err != nil {
		return Response{}, err
	}
	return Response{Message: msg, Filename: rel}, nil
}

// Update rewrites an existing record. For text kinds a payload without
// text keeps the stored body. A task status is prepended to whichever body
// is in effect, so a status-only update on a body that already carries a
// status line stacks a second one.
func (s *Store) Update(_ context.Context, folder, filename string, p models.Payload) (Response, error) {
	if err := requireFolder(folder); err != nil {
		return Response{}, err
	}
	if filename == "" {
		return Response{}, fmt.Errorf("%w: filename is required for update", apperr.ErrValidation)
	}
	if p == nil {
		return Response{}, fmt.Errorf("%w: content payload is required", apperr.ErrValidation)
	}
	rel, err := joinRecord(folder, filename)
	if err != nil {
		return Response{}, err
	}
	if err := s.requireFile(rel); err != nil {
		return Response{}, err
	}

	if img, ok := p.(models.ImagePayload); ok {
		data, err := readImageSource(img)
		if err != nil {
			return Response{}, err
		}
		if err := s.write(rel, data); err != nil {
			return Response{}, err
		}
		return Response{Message: MsgImageUpdated, Filename: rel}, nil
	}

	if err := p.Validate(); err != nil {
		return Response{}, err
	}
	old, err := s.fs.Read(rel)
	if err != nil {
		return Response{}, err
	}
	body := old
	switch p := p.(type) {
	case models.ScriptPayload:
		body = replaceBody(old, p.Text)
	case models.InfoPayload:
		body = replaceBody(old, p.Text)
	case models.TaskPayload:
		body = replaceBody(old, p.Text)
		if p.Status != "" {
			body = models.WithStatus(p.Status, body)
		}
	default:
		return Response{}, apperr.ErrUnsupportedKind
	}
	if err := s.write(rel, body); err != nil {
		return Response{}, err
	}
	return Response{Message: MsgFileUpdated, Filename: rel}, nil
}

// Delete removes a record. A missing record is reported in the response,
// not as an error.
func (s *Store) Delete(_ context.Context, folder, filename string) (Response, error) {
	if err := requireFolder(folder); err != nil {
		return Response{}, err
	}
	if filename == "" {
		return Response{}, fmt.Errorf("%w: filename is required for delete", apperr.ErrValidation)
	}
	rel, err := joinRecord(folder, filename)
	if err != nil {
		return Response{}, err
	}
	if err := s.requireFile(rel); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Response{Error: MsgFileNotFound}, nil
		}
		return Response{}, err
	}
	if err := s.fs.Delete(rel); err != nil {
		return Response{}, err
	}
	if s.index != nil {
		if err := s.index.DeleteRecord(rel); err != nil {
			return Response{}, fmt.Errorf("filestore: unindex %s: %w", rel, err)
		}
	}
	return Response{Message: MsgFileDeleted, Filename: rel}, nil
}

// Read returns a stored record. Kind is inferred, since it is not persisted.
func (s *Store) Read(_ context.Context, folder, filename string) (*models.Record, error) {
	if err := requireFolder(folder); err != nil {
		return nil, err
	}
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", apperr.ErrValidation)
	}
	rel, err := joinRecord(folder, filename)
	if err != nil {
		return nil, err
	}
	if err := s.requireFile(rel); err != nil {
		return nil, err
	}
	info, err := s.fs.Stat(rel)
	if err != nil {
		return nil, err
	}
	data, err := s.fs.Read(rel)
	if err != nil {
		return nil, err
	}
	rec := &models.Record{
		Path:      rel,
		Kind:      models.InferKind(rel, data),
		Content:   data,
		Size:      info.Size(),
		UpdatedAt: info.ModTime(),
	}
	if rec.Kind == models.KindTask {
		rec.Status, _, _ = models.SplitStatus(data)
	}
	return rec, nil
}

func (s *Store) write(rel string, data []byte) error {
	if err := s.fs.Write(rel, data); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.IndexFile(rel, data); err != nil {
			return fmt.Errorf("filestore: index %s: %w", rel, err)
		}
	}
	return nil
}

// requireFile reports ErrNotFound unless rel is an existing regular file.
func (s *Store) requireFile(rel string) error {
	info, err := s.fs.Stat(rel)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, MsgFileNotFound)
	case err != nil:
		return err
	case info.IsDir():
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, MsgFileNotFound)
	}
	return nil
}

// readImageSource checks the caller's source file before anything is
// written and returns its bytes.
func readImageSource(p models.ImagePayload) ([]byte, error) {
	if p.Source == "" {
		return nil, p.Validate()
	}
	info, err := os.Stat(p.Source)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: Invalid image content path", apperr.ErrInvalidInput)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p.Source)
	if err != nil {
		return nil, fmt.Errorf("filestore: read image source: %w", err)
	}
	return data, nil
}

// joinRecord joins folder and name after rejecting absolute paths, "." and
// ".." components in either part, and names that do not end in a file
// segment.
func joinRecord(folder, name string) (string, error) {
	for _, part := range []string{folder, name} {
		if err := checkRelative(part); err != nil {
			return "", err
		}
	}
	if strings.TrimSpace(name) == "" || strings.HasSuffix(name, "/") || strings.HasSuffix(name, `\`) {
		return "", fmt.Errorf("%w: invalid filename: %q", apperr.ErrValidation, name)
	}
	return path.Join(filepath.ToSlash(folder), filepath.ToSlash(name)), nil
}

func checkRelative(p string) error {
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) || filepath.VolumeName(p) != "" {
		return fmt.Errorf("%w: absolute paths not allowed: %s", apperr.ErrValidation, p)
	}
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		switch seg {
		case "..":
			return fmt.Errorf("%w: path traversal not allowed: %s", apperr.ErrValidation, p)
		case ".":
			return fmt.Errorf("%w: %q is not a valid path segment: %s", apperr.ErrValidation, seg, p)
		}
	}
	return nil
}

func requireFolder(folder string) error {
	if strings.TrimSpace(folder) == "" {
		return fmt.Errorf("%w: folder_name is required", apperr.ErrValidation)
	}
	return nil
}

func replaceBody(old []byte, text *string) []byte {
	if text == nil {
		return old
	}
	return []byte(*text)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
