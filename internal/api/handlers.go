package api

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/llamcomm/internal/apperr"
	"github.com/starford/llamcomm/internal/filestore"
	"github.com/starford/llamcomm/internal/index"
	"github.com/starford/llamcomm/internal/models"
)

const maxBodyBytes = 10 << 20

// Searcher runs index queries. *index.DB satisfies it.
type Searcher interface {
	Search(q index.Query) ([]index.SearchResult, error)
	TaskStatuses(folder string) ([]index.TaskStatus, error)
}

// Handler holds API route handlers.
type Handler struct {
	store  *filestore.Store
	search Searcher
}

// NewHandler creates a new Handler. search may be nil, in which case
// /search answers 503.
func NewHandler(store *filestore.Store, search Searcher) *Handler {
	return &Handler{store: store, search: search}
}

// urlParam returns a decoded route parameter. Nested folders arrive with
// encoded slashes (proj%2Fsub).
func urlParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// FilesManager handles POST /api/files-manager, the flat dispatch endpoint.
//
//	@Summary		Create, update, delete or list records
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			body	body		filestore.Request	true	"Operation"
//	@Success		200		{object}	FilesManagerResponse
//	@Failure		400		{object}	errResponse
//	@Router			/files-manager [post]
func (h *Handler) FilesManager(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req filestore.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	resp, err := h.store.Handle(r.Context(), req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(apperr.Message(err)))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListFolder handles GET /api/folders/{folder}.
//
//	@Summary		Render the folder tree
//	@Tags			folders
//	@Produce		json
//	@Param			folder		path	string	true	"Folder (slashes encoded)"
//	@Param			recursive	query	bool	false	"Walk subfolders"
//	@Success		200	{object}	FilesManagerResponse
//	@Router			/folders/{folder} [get]
func (h *Handler) ListFolder(w http.ResponseWriter, r *http.Request) {
	recursive, _ := strconv.ParseBool(r.URL.Query().Get("recursive"))
	structure, err := h.store.List(r.Context(), urlParam(r, "folder"), recursive)
	if err != nil {
		writeError(w, "list folder", err)
		return
	}
	writeJSON(w, http.StatusOK, filestore.Response{Message: filestore.MsgOK, Structure: structure})
}

// CreateRecord handles POST /api/folders/{folder}/records.
//
//	@Summary		Create a record
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateRecordRequest	true	"Record"
//	@Success		201		{object}	FilesManagerResponse
//	@Failure		400		{object}	errResponse
//	@Router			/folders/{folder}/records [post]
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, "create record", err)
		return
	}
	kind, err := models.ParseKind(req.FileType)
	if err != nil {
		writeError(w, "create record", err)
		return
	}
	p, err := models.NewPayload(kind, req.Content, req.Status, req.ScriptExt)
	if err != nil {
		writeError(w, "create record", err)
		return
	}
	resp, err := h.store.Create(r.Context(), urlParam(r, "folder"), filestore.CreateInput{
		Filename: req.Filename,
		Payload:  p,
		Naming:   models.Naming{Author: req.Author, Date: req.Date, Title: req.Title, Type: req.Type},
	})
	if err != nil {
		writeError(w, "create record", err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GetRecord handles GET /api/folders/{folder}/records/{filename}.
// The body is the raw file content.
//
//	@Summary		Read a record
//	@Tags			records
//	@Produce		octet-stream
//	@Success		200
//	@Header			200	{string}	X-Record-Kind	"img, script, info or task"
//	@Header			200	{string}	X-Record-Status	"task status"
//	@Failure		404	{object}	errResponse
//	@Router			/folders/{folder}/records/{filename} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Read(r.Context(), urlParam(r, "folder"), urlParam(r, "filename"))
	if err != nil {
		writeError(w, "get record", err)
		return
	}
	ct := mime.TypeByExtension(path.Ext(rec.Path))
	if ct == "" || rec.Kind != models.KindImage {
		ct = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("X-Record-Kind", string(rec.Kind))
	if rec.Status != "" {
		w.Header().Set("X-Record-Status", strings.TrimSpace(rec.Status))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rec.Content)
}

// UpdateRecord handles PUT /api/folders/{folder}/records/{filename}?file_type=.
//
//	@Summary		Update a record
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			file_type	query	string				true	"img, script, info or task"
//	@Param			body		body	UpdateRecordRequest	true	"New content and/or status"
//	@Success		200	{object}	FilesManagerResponse
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Router			/folders/{folder}/records/{filename} [put]
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req UpdateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, "update record", err)
		return
	}
	q := r.URL.Query()
	kind, err := models.ParseKind(q.Get("file_type"))
	if err != nil {
		writeError(w, "update record", err)
		return
	}
	p, err := models.BuildPayload(kind, req.Content, req.Status, q.Get("script_ext"))
	if err != nil {
		writeError(w, "update record", err)
		return
	}
	resp, err := h.store.Update(r.Context(), urlParam(r, "folder"), urlParam(r, "filename"), p)
	if err != nil {
		writeError(w, "update record", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteRecord handles DELETE /api/folders/{folder}/records/{filename}.
//
//	@Summary		Delete a record
//	@Tags			records
//	@Success		204	"Record deleted"
//	@Failure		404	{object}	errResponse
//	@Router			/folders/{folder}/records/{filename} [delete]
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	resp, err := h.store.Delete(r.Context(), urlParam(r, "folder"), urlParam(r, "filename"))
	if err != nil {
		writeError(w, "delete record", err)
		return
	}
	if resp.Error != "" {
		writeJSON(w, http.StatusNotFound, errorBody(resp.Error))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Search indexed records
//	@Tags			search
//	@Produce		json
//	@Param			q		query	string	false	"Text to match"
//	@Param			folder	query	string	false	"Folder prefix"
//	@Param			kind	query	string	false	"img, script, info or task"
//	@Param			status	query	string	false	"Task status"
//	@Param			limit	query	int		false	"Max results"
//	@Success		200	{object}	SearchResponse
//	@Failure		400	{object}	errResponse
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("search index unavailable"))
		return
	}
	v := r.URL.Query()
	q := index.Query{
		Text:   v.Get("q"),
		Folder: v.Get("folder"),
		Status: v.Get("status"),
	}
	q.Limit, _ = strconv.Atoi(v.Get("limit"))
	if k := v.Get("kind"); k != "" {
		kind, err := models.ParseKind(k)
		if err != nil {
			writeError(w, "search", err)
			return
		}
		q.Kind = kind
	}
	if q.Text == "" && q.Folder == "" && q.Kind == "" && q.Status == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' or a filter is required"))
		return
	}

	results, err := h.search.Search(q)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// ListTasks handles GET /api/folders/{folder}/tasks.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("search index unavailable"))
		return
	}
	tasks, err := h.search.TaskStatuses(urlParam(r, "folder"))
	if err != nil {
		writeError(w, "list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []index.TaskStatus{}
	}
	writeJSON(w, http.StatusOK, TasksResponse{Tasks: tasks})
}
