package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/melicheck/fieldsync/internal/api"
	"github.com/melicheck/fieldsync/internal/cache"
	apperrors "github.com/melicheck/fieldsync/internal/errors"
	"github.com/melicheck/fieldsync/internal/store"
)

// ReadsHandler serves reference data to the UI: mirror tables for the
// offline-capable pages and the generic cached-read wrapper for everything
// else.
type ReadsHandler struct {
	repo   *store.Repository
	cache  *cache.Cache
	client *api.Client
}

// NewReadsHandler creates a ReadsHandler.
func NewReadsHandler(repo *store.Repository, c *cache.Cache, client *api.Client) *ReadsHandler {
	return &ReadsHandler{repo: repo, cache: c, client: client}
}

// RegisterRoutes mounts the read endpoints.
func (h *ReadsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/stores", h.Stores)
	r.Get("/api/stores/qr/{qrCode}", h.StoreByQR)
	r.Get("/api/products", h.Products)
	r.Get("/api/assignments", h.Assignments)
	r.Get("/api/read", h.CachedRead)
}

// Stores handles GET /api/stores from the local mirror.
func (h *ReadsHandler) Stores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.repo.ListStores()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": stores})
}

// StoreByQR handles GET /api/stores/qr/{qrCode}, the offline check-in
// validation lookup.
func (h *ReadsHandler) StoreByQR(w http.ResponseWriter, r *http.Request) {
	qr := chi.URLParam(r, "qrCode")
	s, err := h.repo.GetStoreByQR(qr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, apperrors.New(apperrors.ErrNotFound, "no store with that QR code in the local mirror"))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": s})
}

// Products handles GET /api/products from the local mirror. ?all=1 includes
// inactive products.
func (h *ReadsHandler) Products(w http.ResponseWriter, r *http.Request) {
	var err error
	var result interface{}
	if r.URL.Query().Get("all") == "1" {
		result, err = h.repo.ListProducts()
	} else {
		result, err = h.repo.ListActiveProducts()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

// Assignments handles GET /api/assignments from the local mirror.
func (h *ReadsHandler) Assignments(w http.ResponseWriter, r *http.Request) {
	var err error
	var result interface{}
	if r.URL.Query().Get("all") == "1" {
		result, err = h.repo.ListAssignments()
	} else {
		result, err = h.repo.ListActiveAssignments()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

// CachedRead handles GET /api/read?endpoint=/api/visits/today&cacheFirst=1.
// It proxies an idempotent backend read through the network-first-then-
// cache wrapper, so any UI list or detail page works offline once its data
// has been seen.
func (h *ReadsHandler) CachedRead(w http.ResponseWriter, r *http.Request) {
	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		http.Error(w, "endpoint is required", http.StatusBadRequest)
		return
	}

	params := url.Values{}
	for key, vals := range r.URL.Query() {
		if key == "endpoint" || key == "cacheFirst" {
			continue
		}
		params[key] = vals
	}

	fetch := func(ctx context.Context) (json.RawMessage, error) {
		return h.client.Get(ctx, endpoint, params)
	}

	var resp *cache.Response
	var err error
	if r.URL.Query().Get("cacheFirst") == "1" {
		resp, err = h.cache.GetCacheFirst(r.Context(), endpoint, params, fetch)
	} else {
		resp, err = h.cache.Get(r.Context(), endpoint, params, fetch)
	}
	if err != nil {
		status := http.StatusBadGateway
		if apperrors.Is(err, apperrors.ErrOfflineNoCache) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":    resp.Data,
		"fromCache": resp.FromCache,
		"cachedAt":  resp.CachedAt,
	})
}
