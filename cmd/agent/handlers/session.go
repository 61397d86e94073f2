package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/melicheck/fieldsync/internal/models"
	"github.com/melicheck/fieldsync/internal/store"
)

// SessionHandler stores and clears the logged-in user. The UI performs the
// actual login against the backend and hands the resulting token to the
// agent so every sync request can carry it.
type SessionHandler struct {
	repo *store.Repository
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(repo *store.Repository) *SessionHandler {
	return &SessionHandler{repo: repo}
}

// RegisterRoutes mounts the session endpoints.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/session", h.Get)
	r.Post("/api/session", h.Save)
	r.Delete("/api/session", h.Clear)
}

// Get handles GET /api/session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.repo.GetSession()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"loggedIn": false})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"loggedIn": true,
		"id":       user.ID,
		"name":     user.Name,
		"role":     user.Role,
	})
}

// Save handles POST /api/session.
func (h *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	var user models.User
	if err := decodeBody(r, &user); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if user.ID == 0 || user.Token == "" {
		http.Error(w, "id and token are required", http.StatusBadRequest)
		return
	}
	if err := h.repo.SaveSession(&user); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"saved": true})
}

// Clear handles DELETE /api/session.
func (h *SessionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.ClearSession(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})
}
