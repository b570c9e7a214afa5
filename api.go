package margin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/margin/export"
)

// Routes builds the HTTP API for the engine: annotation CRUD, sync
// trigger, markdown export, and the feature toggle.
func (e *Engine) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/status", e.handleStatus)
	r.Get("/annotations", e.handleList)
	r.Post("/annotations", e.handleCreate)
	r.Delete("/annotations/{id}", e.handleDelete)
	r.Post("/annotations/{id}/activate", e.handleActivate)
	r.Post("/sync", e.handleSync)
	r.Get("/export", e.handleExport)
	r.Post("/toggle", e.handleToggle)

	return r
}

func (e *Engine) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"url":         e.Location(),
		"annotations": len(e.Annotations()),
		"rendered":    e.RenderedCount(),
		"pending":     e.PendingCount(),
		"enabled":     e.Settings().Enabled(),
	})
}

func (e *Engine) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, e.Annotations())
}

func (e *Engine) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text    string `json:"text"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ann, err := e.Annotate(r.Context(), req.Text, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, ErrCommentRequired), errors.Is(err, ErrNoSelection):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, ErrTextNotFound):
			writeError(w, http.StatusNotFound, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, ann)
}

func (e *Engine) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := e.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *Engine) handleActivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !e.Activate(id) {
		writeError(w, http.StatusNotFound, errors.New("no rendered marker for id"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active": id})
}

func (e *Engine) handleSync(w http.ResponseWriter, r *http.Request) {
	delivered := e.SyncAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"delivered": delivered,
		"pending":   e.PendingCount(),
	})
}

func (e *Engine) handleExport(w http.ResponseWriter, r *http.Request) {
	htmlStr, err := e.HTML()
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	md, err := export.Markdown(htmlStr, e.Location())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(md))
}

func (e *Engine) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := e.Settings().SetEnabled(r.Context(), req.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
