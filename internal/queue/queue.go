// Package queue manages the outbound write queues: check-ins and orders
// performed offline (or whose direct network attempt failed) are persisted
// locally and replayed against the server in dependency order.
package queue

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/melicheck/fieldsync/internal/events"
	"github.com/melicheck/fieldsync/internal/logging"
	"github.com/melicheck/fieldsync/internal/models"
	"github.com/melicheck/fieldsync/internal/store"
)

// Connectivity reports whether the backend is currently reachable.
type Connectivity interface {
	Online() bool
}

// Manager owns the pending_visits and pending_orders tables. It is the only
// component that deletes queue records.
type Manager struct {
	repo *store.Repository
	api  Backend
	conn Connectivity
	bus  *events.Bus

	// in-flight latch: two concurrent drains against the same queue could
	// double-submit a record before either deletes it
	syncInProgress atomic.Bool
}

// NewManager creates a queue Manager.
func NewManager(repo *store.Repository, backend Backend, conn Connectivity, bus *events.Bus) *Manager {
	return &Manager{
		repo: repo,
		api:  backend,
		conn: conn,
		bus:  bus,
	}
}

// EnqueueVisit persists a check-in for later replay. It never fails for
// connectivity reasons; an error here is a local storage failure and must
// be surfaced, since the queue is the last line of defense against losing
// the user's work.
func (m *Manager) EnqueueVisit(storeID int64, qrCode string, latitude, longitude float64) (*models.PendingVisit, error) {
	visit := &models.PendingVisit{
		StoreID:   storeID,
		QRCode:    qrCode,
		Latitude:  latitude,
		Longitude: longitude,
		Timestamp: time.Now().Unix(),
	}

	if _, err := m.repo.InsertPendingVisit(visit); err != nil {
		logging.Error("failed to enqueue visit", err, logging.Fields{"storeId": storeID})
		return nil, err
	}

	logging.Info("visit queued for sync", logging.Fields{"localId": visit.ID, "storeId": storeID})
	m.notifyQueueChanged()
	return visit, nil
}

// EnqueueOrder persists an order for later replay. The total is computed
// from the line items here, and the idempotency key is stamped once; every
// retry reuses it. A nil visitID means the parent visit has no server id
// yet and will be resolved during the drain.
func (m *Manager) EnqueueOrder(visitID *int64, storeID int64, items []models.OrderItem, notes string) (*models.PendingOrder, error) {
	return m.enqueueOrderWithKey(uuid.New().String(), visitID, storeID, items, notes)
}

func (m *Manager) enqueueOrderWithKey(key string, visitID *int64, storeID int64, items []models.OrderItem, notes string) (*models.PendingOrder, error) {
	order := &models.PendingOrder{
		OfflineUniqueID: key,
		VisitID:         visitID,
		StoreID:         storeID,
		Items:           items,
		Total:           models.ComputeTotal(items),
		Notes:           notes,
		CreatedAt:       time.Now().Unix(),
	}

	if _, err := m.repo.InsertPendingOrder(order); err != nil {
		logging.Error("failed to enqueue order", err, logging.Fields{"storeId": storeID})
		return nil, err
	}

	logging.Info("order queued for sync", logging.Fields{
		"localId": order.ID, "storeId": storeID, "total": order.Total,
	})
	m.notifyQueueChanged()
	return order, nil
}

// PendingCounts summarizes unsynced records per queue for the UI indicator.
func (m *Manager) PendingCounts() (*store.PendingCounts, error) {
	return m.repo.GetPendingCounts()
}

// ListPendingVisits enumerates every queued visit with its attempt and
// error metadata, for the sync debug view.
func (m *Manager) ListPendingVisits() ([]*models.PendingVisit, error) {
	return m.repo.ListPendingVisits()
}

// ListPendingOrders enumerates every queued order with its attempt and
// error metadata.
func (m *Manager) ListPendingOrders() ([]*models.PendingOrder, error) {
	return m.repo.ListPendingOrders()
}

// PurgeExhausted removes queue records whose attempt counter exceeds the
// threshold. Opt-in maintenance only; the drain never deletes a failed
// record on its own.
func (m *Manager) PurgeExhausted(threshold int) (visits, orders int64, err error) {
	visits, err = m.repo.PurgeExhaustedVisits(threshold)
	if err != nil {
		return
	}
	orders, err = m.repo.PurgeExhaustedOrders(threshold)
	if err != nil {
		return
	}
	if visits+orders > 0 {
		logging.Info("purged exhausted queue records", logging.Fields{
			"visits": visits, "orders": orders, "threshold": threshold,
		})
		m.notifyQueueChanged()
	}
	return
}

func (m *Manager) notifyQueueChanged() {
	if m.bus == nil {
		return
	}
	data := map[string]interface{}{}
	if counts, err := m.repo.GetPendingCounts(); err == nil {
		data["visits"] = counts.Visits
		data["orders"] = counts.Orders
		data["total"] = counts.Total
	}
	m.bus.Publish(events.TopicQueueUpdated, data)
}
