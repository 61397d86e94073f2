package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/melicheck/fieldsync/internal/models"
	"github.com/melicheck/fieldsync/internal/queue"
)

// WritesHandler exposes the two field-ops write actions. Neither ever
// fails for connectivity reasons: an unreachable backend turns the action
// into a queued record and a "queued" response.
type WritesHandler struct {
	queue *queue.Manager
}

// NewWritesHandler creates a WritesHandler.
func NewWritesHandler(q *queue.Manager) *WritesHandler {
	return &WritesHandler{queue: q}
}

// RegisterRoutes mounts the write endpoints.
func (h *WritesHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/check-in", h.CheckIn)
	r.Post("/api/orders", h.SubmitOrder)
}

type checkInRequest struct {
	QRCode    string  `json:"qrCode"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CheckIn handles POST /api/check-in.
func (h *WritesHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.QRCode == "" {
		http.Error(w, "qrCode is required", http.StatusBadRequest)
		return
	}

	outcome, err := h.queue.SubmitVisitCheckIn(r.Context(), req.QRCode, req.Latitude, req.Longitude)
	if err != nil {
		// Only a local storage failure reaches here; it must be loud.
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type orderRequest struct {
	VisitID *int64             `json:"visitId"`
	StoreID int64              `json:"storeId"`
	Items   []models.OrderItem `json:"items"`
	Notes   string             `json:"notes"`
}

// SubmitOrder handles POST /api/orders.
func (h *WritesHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Items) == 0 {
		http.Error(w, "items are required", http.StatusBadRequest)
		return
	}

	outcome, err := h.queue.SubmitOrder(r.Context(), req.VisitID, req.StoreID, req.Items, req.Notes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
