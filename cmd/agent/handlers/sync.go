package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/melicheck/fieldsync/internal/cache"
	"github.com/melicheck/fieldsync/internal/connectivity"
	apperrors "github.com/melicheck/fieldsync/internal/errors"
	"github.com/melicheck/fieldsync/internal/events"
	"github.com/melicheck/fieldsync/internal/models"
	"github.com/melicheck/fieldsync/internal/queue"
	"github.com/melicheck/fieldsync/internal/store"
	"github.com/melicheck/fieldsync/internal/syncer"
)

// SyncHandler exposes sync operations and the troubleshooting views: the
// manual "sync now" control, pull-only refresh, queue inspection with
// attempt/error metadata, maintenance sweeps and cache statistics.
type SyncHandler struct {
	repo    *store.Repository
	queue   *queue.Manager
	syncer  *syncer.Syncer
	watcher *connectivity.Watcher
	monitor *connectivity.Monitor
	cache   *cache.Cache
	bus     *events.Bus
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(repo *store.Repository, q *queue.Manager, s *syncer.Syncer,
	w *connectivity.Watcher, m *connectivity.Monitor, c *cache.Cache, bus *events.Bus) *SyncHandler {
	return &SyncHandler{repo: repo, queue: q, syncer: s, watcher: w, monitor: m, cache: c, bus: bus}
}

// RegisterRoutes mounts the sync endpoints.
func (h *SyncHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/sync", h.SyncNow)
	r.Post("/api/pull", h.PullNow)
	r.Post("/api/events/new-data", h.NewDataSignal)
	r.Post("/api/connectivity", h.SetConnectivity)
	r.Get("/api/sync/status", h.Status)
	r.Get("/api/queue/visits", h.PendingVisits)
	r.Get("/api/queue/orders", h.PendingOrders)
	r.Post("/api/queue/purge", h.Purge)
	r.Get("/api/cache/stats", h.CacheStats)
	r.Delete("/api/cache", h.ClearCache)
	r.Post("/api/cache/cleanup", h.CleanupCache)
}

// SyncNow handles POST /api/sync: drain the queues, then refresh mirrors.
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	drained, pulled, err := h.watcher.TriggerSync(r.Context())
	if err != nil {
		switch {
		case apperrors.Is(err, apperrors.ErrOffline):
			writeError(w, http.StatusServiceUnavailable, err)
		case apperrors.Is(err, apperrors.ErrSyncInProgress):
			writeError(w, http.StatusConflict, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sync": drained,
		"pull": pulled,
	})
}

// PullNow handles POST /api/pull: refresh mirrors without touching the
// outbound queues.
func (h *SyncHandler) PullNow(w http.ResponseWriter, r *http.Request) {
	if !h.monitor.Online() {
		writeError(w, http.StatusServiceUnavailable,
			apperrors.New(apperrors.ErrOffline, "no connectivity, cannot pull"))
		return
	}
	writeJSON(w, http.StatusOK, h.syncer.PullAll(r.Context()))
}

// NewDataSignal handles POST /api/events/new-data. The UI receives the push
// notification and forwards it here; the watcher reacts with a mirror
// refresh if online.
func (h *SyncHandler) NewDataSignal(w http.ResponseWriter, r *http.Request) {
	h.bus.Publish(events.TopicNewData, nil)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true})
}

type connectivityRequest struct {
	Online bool `json:"online"`
}

// SetConnectivity handles POST /api/connectivity. The host UI can report a
// network change it learned about before the next probe fires.
func (h *SyncHandler) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	var req connectivityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.monitor.SetOnline(req.Online)
	writeJSON(w, http.StatusOK, map[string]interface{}{"online": h.monitor.Online()})
}

// Status handles GET /api/sync/status: the data behind the offline
// indicator and the sync debug page.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	counts, err := h.repo.GetPendingCounts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	stores, products, assignments, err := h.repo.OfflineDataCounts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	lastSyncs := map[string]interface{}{}
	for _, key := range []string{models.SyncKeyAssignments, models.SyncKeyProducts, models.SyncKeyFull} {
		if meta, err := h.repo.GetLastSync(key); err == nil && meta != nil {
			lastSyncs[key] = meta
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"online":  h.monitor.Online(),
		"pending": counts,
		"offlineData": map[string]int{
			"stores":      stores,
			"products":    products,
			"assignments": assignments,
		},
		"lastSync": lastSyncs,
	})
}

// PendingVisits handles GET /api/queue/visits.
func (h *SyncHandler) PendingVisits(w http.ResponseWriter, r *http.Request) {
	visits, err := h.queue.ListPendingVisits()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": visits})
}

// PendingOrders handles GET /api/queue/orders.
func (h *SyncHandler) PendingOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.queue.ListPendingOrders()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": orders})
}

// Purge handles POST /api/queue/purge?threshold=N, the opt-in removal of
// records whose retries are exhausted.
func (h *SyncHandler) Purge(w http.ResponseWriter, r *http.Request) {
	threshold, err := strconv.Atoi(r.URL.Query().Get("threshold"))
	if err != nil || threshold < 1 {
		http.Error(w, "threshold must be a positive integer", http.StatusBadRequest)
		return
	}
	visits, orders, err := h.queue.PurgeExhausted(threshold)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"purgedVisits": visits,
		"purgedOrders": orders,
	})
}

// CacheStats handles GET /api/cache/stats.
func (h *SyncHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ClearCache handles DELETE /api/cache.
func (h *SyncHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})
}

// CleanupCache handles POST /api/cache/cleanup?days=N, dropping cache
// entries older than the given number of days (default 7).
func (h *SyncHandler) CleanupCache(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = parsed
	}
	removed, err := h.cache.ClearOlderThan(time.Duration(days) * 24 * time.Hour)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
}
