// Package models defines the domain types for llamcomm.
package models

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/llamcomm/internal/apperr"
)

// Kind identifies what a record holds. It is supplied by the caller on
// every call and never persisted.
type Kind string

const (
	KindImage  Kind = "img"
	KindScript Kind = "script"
	KindInfo   Kind = "info"
	KindTask   Kind = "task"
)

const (
	// DefaultTextExt is used for info and task records and for scripts
	// without an explicit extension.
	DefaultTextExt = ".txt"
	// StatusPrefix marks the status line at the top of a task record.
	StatusPrefix = "STATUS:"
)

// ImageExtensions lists the accepted image source extensions.
var ImageExtensions = []string{".jpeg", ".jpg", ".png"}

// ParseKind maps a wire value onto a Kind. "image" is accepted as an alias
// of "img".
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.TrimSpace(s)); k {
	case KindImage, KindScript, KindInfo, KindTask:
		return k, nil
	case "image":
		return KindImage, nil
	default:
		return "", apperr.ErrUnsupportedKind
	}
}

// IsImageExt reports whether ext (with leading dot) is an accepted image
// extension. Comparison is case-insensitive.
func IsImageExt(ext string) bool {
	return slices.Contains(ImageExtensions, strings.ToLower(ext))
}

// Record is a stored file as seen by readers.
type Record struct {
	Path      string    `json:"path"`
	Kind      Kind      `json:"kind"`
	Content   []byte    `json:"-"`
	Status    string    `json:"status,omitempty"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Payload is the per-kind content of a create or update call.
// Exactly one concrete type exists per Kind.
type Payload interface {
	Kind() Kind
	Validate() error
}

// ImagePayload copies an existing image file into the store.
type ImagePayload struct {
	Source string
}

// ScriptPayload is free text stored with a caller-chosen extension.
type ScriptPayload struct {
	Text *string
	Ext  string
}

// InfoPayload is free text.
type InfoPayload struct {
	Text *string
}

// TaskPayload is free text with an optional status line.
type TaskPayload struct {
	Text   *string
	Status string
}

func (ImagePayload) Kind() Kind  { return KindImage }
func (ScriptPayload) Kind() Kind { return KindScript }
func (InfoPayload) Kind() Kind   { return KindInfo }
func (TaskPayload) Kind() Kind   { return KindTask }

var errNoImageSource = errors.New("Invalid image content path")

// Validate checks the source path is present and has an image extension.
// Existence on disk is checked by the store.
func (p ImagePayload) Validate() error {
	err := validation.Validate(p.Source,
		validation.Required.Error(errNoImageSource.Error()),
		validation.By(func(any) error {
			ext := strings.ToLower(filepath.Ext(p.Source))
			if !IsImageExt(ext) {
				return fmt.Errorf("Unsupported image extension: %s", ext)
			}
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: %s", apperr.ErrInvalidInput, err.Error())
	}
	return nil
}

// Validate checks the script extension is a bare suffix.
func (p ScriptPayload) Validate() error {
	err := validation.Validate(p.Ext, validation.By(func(any) error {
		if strings.ContainsAny(p.Ext, `/\`) || strings.Contains(p.Ext, "..") {
			return fmt.Errorf("invalid script extension: %q", p.Ext)
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("%w: %s", apperr.ErrValidation, err.Error())
	}
	return nil
}

func (p InfoPayload) Validate() error { return nil }

// Validate checks the status fits on a single line.
func (p TaskPayload) Validate() error {
	err := validation.Validate(p.Status, validation.By(func(any) error {
		if strings.ContainsAny(p.Status, "\r\n") {
			return errors.New("status must be a single line")
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("%w: %s", apperr.ErrValidation, err.Error())
	}
	return nil
}

// ScriptExt returns the extension a new script record gets.
func (p ScriptPayload) ScriptExt() string {
	ext := strings.TrimSpace(p.Ext)
	if ext == "" {
		return DefaultTextExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// NewPayload builds and validates the payload variant for kind. content is
// nil when the caller omitted it. status only applies to tasks and
// scriptExt only to scripts.
func NewPayload(kind Kind, content *string, status, scriptExt string) (Payload, error) {
	p, err := BuildPayload(kind, content, status, scriptExt)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// BuildPayload is NewPayload without validation.
func BuildPayload(kind Kind, content *string, status, scriptExt string) (Payload, error) {
	var p Payload
	switch kind {
	case KindImage:
		src := ""
		if content != nil {
			src = *content
		}
		p = ImagePayload{Source: src}
	case KindScript:
		p = ScriptPayload{Text: content, Ext: scriptExt}
	case KindInfo:
		p = InfoPayload{Text: content}
	case KindTask:
		p = TaskPayload{Text: content, Status: status}
	default:
		return nil, apperr.ErrUnsupportedKind
	}
	return p, nil
}

// Naming holds the fields used to generate a filename when none is given.
type Naming struct {
	Author string
	Date   string
	Title  string
	Type   string
}

const namingRequiredMsg = "autor, data, titulo, tipo are required to generate a new filename when filename is not provided."

// Validate requires all four fields.
func (n Naming) Validate() error {
	err := validation.ValidateStruct(&n,
		validation.Field(&n.Author, validation.Required),
		validation.Field(&n.Date, validation.Required),
		validation.Field(&n.Title, validation.Required),
		validation.Field(&n.Type, validation.Required),
	)
	if err != nil {
		return fmt.Errorf("%w: %s", apperr.ErrValidation, namingRequiredMsg)
	}
	return nil
}

// Filename renders "{author}_{date}_{title}_{type}{ext}".
func (n Naming) Filename(ext string) string {
	return fmt.Sprintf("%s_%s_%s_%s%s", n.Author, n.Date, n.Title, n.Type, ext)
}

// WithStatus prepends a status line to body.
func WithStatus(status string, body []byte) []byte {
	out := make([]byte, 0, len(StatusPrefix)+len(status)+1+len(body))
	out = append(out, StatusPrefix...)
	out = append(out, status...)
	out = append(out, '\n')
	return append(out, body...)
}

// SplitStatus returns the status held on the first line of body, if any,
// and the remainder after that line.
func SplitStatus(body []byte) (string, []byte, bool) {
	if !bytes.HasPrefix(body, []byte(StatusPrefix)) {
		return "", body, false
	}
	line, rest, _ := bytes.Cut(body, []byte("\n"))
	status := strings.TrimSuffix(string(line[len(StatusPrefix):]), "\r")
	return status, rest, true
}

// InferKind guesses the kind of a stored file from its name and content.
// Kind is not persisted, so this is only a best effort used for indexing.
func InferKind(name string, body []byte) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case IsImageExt(ext):
		return KindImage
	case bytes.HasPrefix(body, []byte(StatusPrefix)):
		return KindTask
	case ext != DefaultTextExt:
		return KindScript
	default:
		return KindInfo
	}
}
