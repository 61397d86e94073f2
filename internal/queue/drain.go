package queue

import (
	"context"

	"github.com/melicheck/fieldsync/internal/api"
	apperrors "github.com/melicheck/fieldsync/internal/errors"
	"github.com/melicheck/fieldsync/internal/events"
	"github.com/melicheck/fieldsync/internal/logging"
)

// RecordError is one per-record failure or skip from a drain pass.
type RecordError struct {
	RecordID int64  `json:"recordId"`
	Error    string `json:"error"`
	CanRetry bool   `json:"canRetry"`
}

// DrainResult aggregates the outcomes of one drain pass over a queue.
type DrainResult struct {
	Success int           `json:"success"`
	Failed  int           `json:"failed"`
	Skipped int           `json:"skipped"`
	Errors  []RecordError `json:"errors,omitempty"`
}

// SyncAllResult aggregates a full sync pass: visits first, then orders.
type SyncAllResult struct {
	Visits       *DrainResult `json:"visits"`
	Orders       *DrainResult `json:"orders"`
	TotalSuccess int          `json:"totalSuccess"`
	TotalFailed  int          `json:"totalFailed"`
	TotalSkipped int          `json:"totalSkipped"`
	Clean        bool         `json:"clean"`
}

// DrainVisits replays every unsynced visit against the check-in endpoint.
// A record that succeeds is deleted; one that fails has its attempt counter
// and error recorded and the loop moves on. One record's failure never
// aborts the batch.
func (m *Manager) DrainVisits(ctx context.Context) (*DrainResult, error) {
	visits, err := m.repo.ListUnsyncedVisits()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list pending visits", err)
	}

	result := &DrainResult{}
	if len(visits) == 0 {
		return result, nil
	}

	logging.Info("draining pending visits", logging.Fields{"count": len(visits)})

	for _, visit := range visits {
		serverVisit, err := m.api.CheckInByQR(ctx, &api.CheckInRequest{
			QRCode:    visit.QRCode,
			Latitude:  visit.Latitude,
			Longitude: visit.Longitude,
		})
		if err == nil || api.IsDuplicate(err) {
			// The server holds the durable record now; no local id survives.
			if delErr := m.repo.DeletePendingVisit(visit.ID); delErr != nil {
				logging.Error("failed to delete synced visit", delErr, logging.Fields{"localId": visit.ID})
			}
			result.Success++
			if serverVisit != nil {
				logging.Info("visit synced", logging.Fields{"localId": visit.ID, "visitId": serverVisit.ID})
			}
			continue
		}

		terminal := api.IsTerminal(err)
		if markErr := m.repo.MarkVisitAttemptFailed(visit.ID, err.Error(), terminal); markErr != nil {
			logging.Error("failed to record visit sync failure", markErr, logging.Fields{"localId": visit.ID})
		}
		result.Failed++
		result.Errors = append(result.Errors, RecordError{
			RecordID: visit.ID,
			Error:    err.Error(),
			CanRetry: !terminal,
		})
		logging.Warn("visit sync failed", logging.Fields{
			"localId": visit.ID, "terminal": terminal, "error": err.Error(),
		})
	}

	return result, nil
}

// DrainOrders replays every unsynced order. An order without a server visit
// id first tries to resolve one from today's visits for its store; if none
// is found the record is skipped this pass, which is not a failure and does
// not increment the attempt counter.
func (m *Manager) DrainOrders(ctx context.Context) (*DrainResult, error) {
	orders, err := m.repo.ListUnsyncedOrders()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list pending orders", err)
	}

	result := &DrainResult{}
	if len(orders) == 0 {
		return result, nil
	}

	logging.Info("draining pending orders", logging.Fields{"count": len(orders)})

	// Today's visits are fetched at most once per pass.
	var todayVisits []*api.Visit
	var todayFetched bool

	for _, order := range orders {
		visitID := order.VisitID

		if visitID == nil {
			if !todayFetched {
				todayFetched = true
				todayVisits, err = m.api.TodayVisits(ctx)
				if err != nil {
					logging.Warn("could not fetch today's visits for resolution", logging.Fields{"error": err.Error()})
					todayVisits = nil
				}
			}
			visitID = matchVisitForStore(todayVisits, order.StoreID)
			if visitID != nil {
				if err := m.repo.SetOrderVisitID(order.ID, *visitID); err != nil {
					logging.Error("failed to persist resolved visit id", err, logging.Fields{"localId": order.ID})
				}
				logging.Info("order linked to visit", logging.Fields{"localId": order.ID, "visitId": *visitID})
			}
		}

		if visitID == nil {
			msg := "no visit id available: the visit must sync first"
			if err := m.repo.MarkOrderSkipped(order.ID, msg); err != nil {
				logging.Error("failed to record order skip", err, logging.Fields{"localId": order.ID})
			}
			result.Skipped++
			result.Errors = append(result.Errors, RecordError{
				RecordID: order.ID,
				Error:    msg,
				CanRetry: true,
			})
			continue
		}

		serverOrder, err := m.api.CreateOrder(ctx, &api.CreateOrderRequest{
			VisitID:         *visitID,
			Items:           toItemRequests(order.Items),
			Total:           order.Total,
			Notes:           order.Notes,
			OfflineUniqueID: order.OfflineUniqueID,
		})
		if err == nil || api.IsDuplicate(err) {
			if delErr := m.repo.DeletePendingOrder(order.ID); delErr != nil {
				logging.Error("failed to delete synced order", delErr, logging.Fields{"localId": order.ID})
			}
			result.Success++
			if serverOrder != nil {
				logging.Info("order synced", logging.Fields{"localId": order.ID, "orderId": serverOrder.ID})
			}
			continue
		}

		terminal := api.IsTerminal(err)
		if markErr := m.repo.MarkOrderAttemptFailed(order.ID, err.Error(), terminal); markErr != nil {
			logging.Error("failed to record order sync failure", markErr, logging.Fields{"localId": order.ID})
		}
		result.Failed++
		result.Errors = append(result.Errors, RecordError{
			RecordID: order.ID,
			Error:    err.Error(),
			CanRetry: !terminal,
		})
		logging.Warn("order sync failed", logging.Fields{
			"localId": order.ID, "terminal": terminal, "error": err.Error(),
		})
	}

	return result, nil
}

func matchVisitForStore(visits []*api.Visit, storeID int64) *int64 {
	for _, v := range visits {
		if v.Store != nil && v.Store.ID == storeID {
			id := v.ID
			return &id
		}
	}
	return nil
}

// SyncAll drains visits to completion and then orders, in that order: order
// resolution depends on visits already having server-side records. Called
// while offline it short-circuits with an offline error rather than doing
// partial work, and a second concurrent call is rejected by the in-flight
// latch.
func (m *Manager) SyncAll(ctx context.Context) (*SyncAllResult, error) {
	if !m.conn.Online() {
		return nil, apperrors.New(apperrors.ErrOffline, "no connectivity, cannot sync")
	}

	if !m.syncInProgress.CompareAndSwap(false, true) {
		return nil, apperrors.New(apperrors.ErrSyncInProgress, "sync already in progress")
	}
	defer m.syncInProgress.Store(false)

	if m.bus != nil {
		m.bus.Publish(events.TopicSyncStarted, nil)
	}

	visits, err := m.DrainVisits(ctx)
	if err != nil {
		if m.bus != nil {
			m.bus.Publish(events.TopicSyncFailed, map[string]interface{}{"error": err.Error()})
		}
		return nil, err
	}

	orders, err := m.DrainOrders(ctx)
	if err != nil {
		if m.bus != nil {
			m.bus.Publish(events.TopicSyncFailed, map[string]interface{}{"error": err.Error()})
		}
		return nil, err
	}

	result := &SyncAllResult{
		Visits:       visits,
		Orders:       orders,
		TotalSuccess: visits.Success + orders.Success,
		TotalFailed:  visits.Failed + orders.Failed,
		TotalSkipped: orders.Skipped,
	}
	result.Clean = result.TotalFailed == 0 && result.TotalSkipped == 0

	logging.Info("sync pass finished", logging.Fields{
		"success": result.TotalSuccess, "failed": result.TotalFailed, "skipped": result.TotalSkipped,
	})

	m.notifyQueueChanged()
	if m.bus != nil {
		m.bus.Publish(events.TopicSyncCompleted, map[string]interface{}{
			"success": result.TotalSuccess,
			"failed":  result.TotalFailed,
			"skipped": result.TotalSkipped,
		})
	}

	return result, nil
}
