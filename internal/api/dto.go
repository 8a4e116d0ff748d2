package api

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/llamcomm/internal/apperr"
	"github.com/starford/llamcomm/internal/filestore"
	"github.com/starford/llamcomm/internal/index"
)

const maxFilenameLen = 255

// singleLine rejects values that would break the STATUS line of a task.
var singleLine = validation.By(func(v any) error {
	s, _ := v.(string)
	if strings.ContainsAny(s, "\r\n") {
		return errors.New("must be a single line")
	}
	return nil
})

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
}

// CreateRecordRequest is the body of POST /api/folders/{folder}/records.
// When Filename is empty the name is built from autor, data, titulo, tipo.
type CreateRecordRequest struct {
	FileType  string  `json:"file_type"`
	Filename  string  `json:"filename,omitempty"`
	Content   *string `json:"content,omitempty"`
	Status    string  `json:"status,omitempty"`
	Author    string  `json:"autor,omitempty"`
	Date      string  `json:"data,omitempty"`
	Title     string  `json:"titulo,omitempty"`
	Type      string  `json:"tipo,omitempty"`
	ScriptExt string  `json:"script_ext,omitempty"`
}

// Validate checks the request shape. Kind names and naming rules are
// checked by the store.
func (r CreateRecordRequest) Validate() error {
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.FileType, validation.Required),
		validation.Field(&r.Filename, validation.Length(0, maxFilenameLen)),
		validation.Field(&r.Status, singleLine),
		validation.Field(&r.ScriptExt, validation.Length(0, 16)),
	))
}

// UpdateRecordRequest is the body of PUT /api/folders/{folder}/records/{filename}.
type UpdateRecordRequest struct {
	Content *string `json:"content,omitempty"`
	Status  string  `json:"status,omitempty"`
}

// Validate checks the request shape.
func (r UpdateRecordRequest) Validate() error {
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.Status, singleLine),
	))
}

// FilesManagerResponse is the success body of every store operation.
type FilesManagerResponse = filestore.Response

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results"`
}

// TasksResponse lists task statuses in a folder.
type TasksResponse struct {
	Tasks []index.TaskStatus `json:"tasks"`
}

// UploadResponse is returned after an image upload.
type UploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}
