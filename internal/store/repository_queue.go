// Package store provides repository operations for the outbound queues.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/melicheck/fieldsync/internal/models"
)

// PendingCounts summarizes unsynced queue records for the UI indicator.
type PendingCounts struct {
	Visits int `json:"visits"`
	Orders int `json:"orders"`
	Total  int `json:"total"`
}

// =====================================================
// PendingVisit Operations
// =====================================================

// InsertPendingVisit persists a queued check-in and returns its local id.
func (r *Repository) InsertPendingVisit(v *models.PendingVisit) (int64, error) {
	res, err := r.db.Exec(`
	INSERT INTO pending_visits (store_id, qr_code, latitude, longitude, timestamp, synced, sync_attempts, error_message, last_attempt_at, failed_permanent)
	VALUES (?, ?, ?, ?, ?, 0, 0, '', 0, 0)`,
		v.StoreID, v.QRCode, v.Latitude, v.Longitude, v.Timestamp)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	v.ID = id
	return id, nil
}

// GetPendingVisit retrieves a queued visit by local id.
func (r *Repository) GetPendingVisit(id int64) (*models.PendingVisit, error) {
	row := r.db.QueryRow(selectPendingVisit+" WHERE id = ?", id)
	return scanPendingVisit(row)
}

const selectPendingVisit = `
	SELECT id, store_id, qr_code, latitude, longitude, timestamp, synced,
	       sync_attempts, error_message, last_attempt_at, failed_permanent
	FROM pending_visits`

// ListUnsyncedVisits returns queued visits eligible for draining, oldest
// first. Records parked as permanently failed are excluded.
func (r *Repository) ListUnsyncedVisits() ([]*models.PendingVisit, error) {
	return r.listPendingVisits(selectPendingVisit + " WHERE synced = 0 AND failed_permanent = 0 ORDER BY id")
}

// ListPendingVisits returns every queued visit, including parked ones, for
// the debug view.
func (r *Repository) ListPendingVisits() ([]*models.PendingVisit, error) {
	return r.listPendingVisits(selectPendingVisit + " ORDER BY id")
}

func (r *Repository) listPendingVisits(query string, args ...interface{}) ([]*models.PendingVisit, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var visits []*models.PendingVisit
	for rows.Next() {
		v, err := scanPendingVisit(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

func scanPendingVisit(row rowScanner) (*models.PendingVisit, error) {
	var v models.PendingVisit
	err := row.Scan(&v.ID, &v.StoreID, &v.QRCode, &v.Latitude, &v.Longitude,
		&v.Timestamp, &v.Synced, &v.SyncAttempts, &v.ErrorMessage,
		&v.LastAttemptAt, &v.FailedPermanent)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// DeletePendingVisit removes a queued visit after the server accepted it.
func (r *Repository) DeletePendingVisit(id int64) error {
	_, err := r.db.Exec("DELETE FROM pending_visits WHERE id = ?", id)
	return err
}

// MarkVisitAttemptFailed increments the attempt counter and records the
// error. When terminal is true the record is parked and excluded from
// future drains.
func (r *Repository) MarkVisitAttemptFailed(id int64, message string, terminal bool) error {
	permanent := 0
	if terminal {
		permanent = 1
	}
	_, err := r.db.Exec(`
	UPDATE pending_visits
	SET sync_attempts = sync_attempts + 1, error_message = ?, last_attempt_at = ?, failed_permanent = ?
	WHERE id = ?`,
		message, time.Now().Unix(), permanent, id)
	return err
}

// =====================================================
// PendingOrder Operations
// =====================================================

// InsertPendingOrder persists a queued order and returns its local id. The
// caller is expected to have computed the total and stamped the idempotency
// key already.
func (r *Repository) InsertPendingOrder(o *models.PendingOrder) (int64, error) {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return 0, fmt.Errorf("failed to encode order items: %w", err)
	}

	res, err := r.db.Exec(`
	INSERT INTO pending_orders (offline_unique_id, visit_id, store_id, items_json, total, notes, created_at, synced, sync_attempts, error_message, last_attempt_at, failed_permanent)
	VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, '', 0, 0)`,
		o.OfflineUniqueID, o.VisitID, o.StoreID, string(itemsJSON), o.Total, o.Notes, o.CreatedAt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	o.ID = id
	return id, nil
}

const selectPendingOrder = `
	SELECT id, offline_unique_id, visit_id, store_id, items_json, total, notes,
	       created_at, synced, sync_attempts, error_message, last_attempt_at, failed_permanent
	FROM pending_orders`

// GetPendingOrder retrieves a queued order by local id.
func (r *Repository) GetPendingOrder(id int64) (*models.PendingOrder, error) {
	row := r.db.QueryRow(selectPendingOrder+" WHERE id = ?", id)
	return scanPendingOrder(row)
}

// ListUnsyncedOrders returns queued orders eligible for draining, oldest
// first. Records parked as permanently failed are excluded.
func (r *Repository) ListUnsyncedOrders() ([]*models.PendingOrder, error) {
	return r.listPendingOrders(selectPendingOrder + " WHERE synced = 0 AND failed_permanent = 0 ORDER BY id")
}

// ListPendingOrders returns every queued order, including parked ones, for
// the debug view.
func (r *Repository) ListPendingOrders() ([]*models.PendingOrder, error) {
	return r.listPendingOrders(selectPendingOrder + " ORDER BY id")
}

func (r *Repository) listPendingOrders(query string, args ...interface{}) ([]*models.PendingOrder, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.PendingOrder
	for rows.Next() {
		o, err := scanPendingOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanPendingOrder(row rowScanner) (*models.PendingOrder, error) {
	var o models.PendingOrder
	var itemsJSON string
	err := row.Scan(&o.ID, &o.OfflineUniqueID, &o.VisitID, &o.StoreID, &itemsJSON,
		&o.Total, &o.Notes, &o.CreatedAt, &o.Synced, &o.SyncAttempts,
		&o.ErrorMessage, &o.LastAttemptAt, &o.FailedPermanent)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(itemsJSON), &o.Items); err != nil {
		return nil, fmt.Errorf("failed to decode order items: %w", err)
	}
	return &o, nil
}

// DeletePendingOrder removes a queued order after the server accepted it.
func (r *Repository) DeletePendingOrder(id int64) error {
	_, err := r.db.Exec("DELETE FROM pending_orders WHERE id = ?", id)
	return err
}

// SetOrderVisitID persists a resolved visit reference onto a queued order.
func (r *Repository) SetOrderVisitID(id, visitID int64) error {
	_, err := r.db.Exec("UPDATE pending_orders SET visit_id = ? WHERE id = ?", visitID, id)
	return err
}

// MarkOrderAttemptFailed increments the attempt counter and records the
// error. When terminal is true the record is parked.
func (r *Repository) MarkOrderAttemptFailed(id int64, message string, terminal bool) error {
	permanent := 0
	if terminal {
		permanent = 1
	}
	_, err := r.db.Exec(`
	UPDATE pending_orders
	SET sync_attempts = sync_attempts + 1, error_message = ?, last_attempt_at = ?, failed_permanent = ?
	WHERE id = ?`,
		message, time.Now().Unix(), permanent, id)
	return err
}

// MarkOrderSkipped records why an order could not be processed this pass
// without counting it as a failed attempt.
func (r *Repository) MarkOrderSkipped(id int64, message string) error {
	_, err := r.db.Exec(
		"UPDATE pending_orders SET error_message = ?, last_attempt_at = ? WHERE id = ?",
		message, time.Now().Unix(), id)
	return err
}

// =====================================================
// Queue Observability and Maintenance
// =====================================================

// GetPendingCounts summarizes unsynced records per queue.
func (r *Repository) GetPendingCounts() (*PendingCounts, error) {
	var c PendingCounts
	if err := r.db.QueryRow("SELECT COUNT(*) FROM pending_visits WHERE synced = 0").Scan(&c.Visits); err != nil {
		return nil, err
	}
	if err := r.db.QueryRow("SELECT COUNT(*) FROM pending_orders WHERE synced = 0").Scan(&c.Orders); err != nil {
		return nil, err
	}
	c.Total = c.Visits + c.Orders
	return &c, nil
}

// HasPendingData reports whether any queue record awaits sync.
func (r *Repository) HasPendingData() (bool, error) {
	counts, err := r.GetPendingCounts()
	if err != nil {
		return false, err
	}
	return counts.Total > 0, nil
}

// PurgeExhaustedVisits removes queued visits whose attempt counter exceeds
// the threshold. This is an explicit maintenance sweep, never run
// automatically.
func (r *Repository) PurgeExhaustedVisits(threshold int) (int64, error) {
	res, err := r.db.Exec("DELETE FROM pending_visits WHERE sync_attempts > ?", threshold)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeExhaustedOrders removes queued orders whose attempt counter exceeds
// the threshold.
func (r *Repository) PurgeExhaustedOrders(threshold int) (int64, error) {
	res, err := r.db.Exec("DELETE FROM pending_orders WHERE sync_attempts > ?", threshold)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
