package filestore

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/llamcomm/internal/apperr"
	"github.com/starford/llamcomm/internal/models"
)

// Operations accepted by Handle.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpList   = "list"
)

// Request is the flat request shape of the files-manager endpoint. The
// naming fields keep their established wire names (autor, data, titulo, tipo).
type Request struct {
	Operation  string  `json:"operation"`
	FolderName string  `json:"folder_name"`
	FileType   string  `json:"file_type"`
	Filename   string  `json:"filename,omitempty"`
	Content    *string `json:"content,omitempty"`
	Status     string  `json:"status,omitempty"`
	Author     string  `json:"autor,omitempty"`
	Date       string  `json:"data,omitempty"`
	Title      string  `json:"titulo,omitempty"`
	Type       string  `json:"tipo,omitempty"`
	Recursive  bool    `json:"recursive,omitempty"`
	ScriptExt  string  `json:"script_ext,omitempty"`
}

// Naming returns the auto-naming fields of the request.
func (r Request) Naming() models.Naming {
	return models.Naming{Author: r.Author, Date: r.Date, Title: r.Title, Type: r.Type}
}

// Handle dispatches a flat request to the matching store operation.
func (s *Store) Handle(ctx context.Context, req Request) (Response, error) {
	kind, err := models.ParseKind(req.FileType)
	if err != nil {
		return Response{}, err
	}
	if err := validation.Validate(req.Operation,
		validation.Required,
		validation.In(OpCreate, OpUpdate, OpDelete, OpList),
	); err != nil {
		return Response{}, fmt.Errorf("%w: Unsupported operation", apperr.ErrValidation)
	}
	if err := requireFolder(req.FolderName); err != nil {
		return Response{}, err
	}

	switch req.Operation {
	case OpCreate:
		p, err := models.NewPayload(kind, req.Content, req.Status, req.ScriptExt)
		if err != nil {
			return Response{}, err
		}
		return s.Create(ctx, req.FolderName, CreateInput{
			Filename: req.Filename,
			Payload:  p,
			Naming:   req.Naming(),
		})
	case OpUpdate:
		if req.Filename == "" {
			return Response{}, fmt.Errorf("%w: filename is required for update", apperr.ErrValidation)
		}
		// Validated by Update once the target is known to exist.
		p, err := models.BuildPayload(kind, req.Content, req.Status, req.ScriptExt)
		if err != nil {
			return Response{}, err
		}
		return s.Update(ctx, req.FolderName, req.Filename, p)
	case OpDelete:
		return s.Delete(ctx, req.FolderName, req.Filename)
	default:
		structure, err := s.List(ctx, req.FolderName, req.Recursive)
		if err != nil {
			return Response{}, err
		}
		return Response{Message: MsgOK, Structure: structure}, nil
	}
}
