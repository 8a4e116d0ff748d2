package api

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/llamcomm/internal/filestore"
	"github.com/starford/llamcomm/internal/models"
)

const maxUploadBytes = 50 << 20 // 50 MB

// UploadImage handles POST /api/folders/{folder}/images
// (multipart/form-data, field "file", optional field "filename").
//
// The upload is spooled to a temp file which then serves as the image
// source of a regular create.
//
//	@Summary		Upload an image record
//	@Tags			records
//	@Accept			mpfd
//	@Produce		json
//	@Param			file		formData	file	true	"PNG or JPEG"
//	@Param			filename	formData	string	false	"Target name"
//	@Success		201	{object}	UploadResponse
//	@Failure		400	{object}	errResponse
//	@Router			/folders/{folder}/images [post]
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	name := r.FormValue("filename")
	if name == "" {
		name = header.Filename
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(header.Filename))
	}
	if !models.IsImageExt(ext) {
		writeJSON(w, http.StatusBadRequest, errorBody("Unsupported image extension: "+ext))
		return
	}

	tmp, err := os.CreateTemp("", "llamcomm-upload-*"+ext)
	if err != nil {
		writeError(w, "upload image", err)
		return
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, file)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		writeError(w, "upload image", err)
		return
	}

	resp, err := h.store.Create(r.Context(), urlParam(r, "folder"), filestore.CreateInput{
		Filename: filepath.Base(name),
		Payload:  models.ImagePayload{Source: tmp.Name()},
	})
	if err != nil {
		writeError(w, "upload image", err)
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{
		Message:  resp.Message,
		Filename: resp.Filename,
		Size:     written,
	})
}
