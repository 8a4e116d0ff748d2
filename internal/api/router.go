package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/llamcomm/internal/filestore"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(store *filestore.Store, search Searcher, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(store, search)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Post("/files-manager", h.FilesManager)

	r.Route("/folders/{folder}", func(r chi.Router) {
		r.Get("/", h.ListFolder)
		r.Post("/records", h.CreateRecord)
		r.Post("/images", h.UploadImage)
		r.Get("/tasks", h.ListTasks)
		r.Get("/records/{filename}", h.GetRecord)
		r.Put("/records/{filename}", h.UpdateRecord)
		r.Delete("/records/{filename}", h.DeleteRecord)
	})

	r.Get("/search", h.Search)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
