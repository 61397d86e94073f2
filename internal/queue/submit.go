package queue

import (
	"context"

	"github.com/google/uuid"

	"github.com/melicheck/fieldsync/internal/api"
	"github.com/melicheck/fieldsync/internal/logging"
	"github.com/melicheck/fieldsync/internal/models"
)

// Backend is the slice of the REST client the queue manager uses.
type Backend interface {
	CheckInByQR(ctx context.Context, req *api.CheckInRequest) (*api.Visit, error)
	TodayVisits(ctx context.Context) ([]*api.Visit, error)
	CreateOrder(ctx context.Context, req *api.CreateOrderRequest) (*api.Order, error)
}

// VisitOutcome is the result of a check-in attempt: either the server
// accepted it directly, or it was queued for later.
type VisitOutcome struct {
	Queued  bool                 `json:"queued"`
	Visit   *api.Visit           `json:"visit,omitempty"`
	Pending *models.PendingVisit `json:"pending,omitempty"`
}

// OrderOutcome is the result of an order submission attempt.
type OrderOutcome struct {
	Queued  bool                 `json:"queued"`
	Order   *api.Order           `json:"order,omitempty"`
	Pending *models.PendingOrder `json:"pending,omitempty"`
}

// SubmitVisitCheckIn tries the check-in endpoint directly when online, and
// on any failure (including being offline) falls back to the queue. The
// offline path is never an error to the caller; only a local storage
// failure is.
func (m *Manager) SubmitVisitCheckIn(ctx context.Context, qrCode string, latitude, longitude float64) (*VisitOutcome, error) {
	if m.conn.Online() {
		visit, err := m.api.CheckInByQR(ctx, &api.CheckInRequest{
			QRCode:    qrCode,
			Latitude:  latitude,
			Longitude: longitude,
		})
		if err == nil {
			logging.Info("check-in accepted by server", logging.Fields{"visitId": visit.ID})
			return &VisitOutcome{Visit: visit}, nil
		}
		logging.Warn("direct check-in failed, queuing", logging.Fields{"error": err.Error()})
	}

	// Resolve the store from the QR mirror so the queued record carries a
	// store reference even when created fully offline.
	var storeID int64
	if s, err := m.repo.GetStoreByQR(qrCode); err == nil {
		storeID = s.ID
	}

	pending, err := m.EnqueueVisit(storeID, qrCode, latitude, longitude)
	if err != nil {
		return nil, err
	}
	return &VisitOutcome{Queued: true, Pending: pending}, nil
}

// SubmitOrder tries the order endpoint directly when online and a server
// visit id is known, and otherwise queues the order. The idempotency key is
// generated before the direct attempt so a fallback enqueue reuses the key
// the server may already have seen.
func (m *Manager) SubmitOrder(ctx context.Context, visitID *int64, storeID int64, items []models.OrderItem, notes string) (*OrderOutcome, error) {
	key := uuid.New().String()

	if m.conn.Online() && visitID != nil {
		order, err := m.api.CreateOrder(ctx, &api.CreateOrderRequest{
			VisitID:         *visitID,
			Items:           toItemRequests(items),
			Total:           models.ComputeTotal(items),
			Notes:           notes,
			OfflineUniqueID: key,
		})
		if err == nil {
			logging.Info("order accepted by server", logging.Fields{"orderId": order.ID})
			return &OrderOutcome{Order: order}, nil
		}
		logging.Warn("direct order submission failed, queuing", logging.Fields{"error": err.Error()})
	}

	pending, err := m.enqueueOrderWithKey(key, visitID, storeID, items, notes)
	if err != nil {
		return nil, err
	}
	return &OrderOutcome{Queued: true, Pending: pending}, nil
}

func toItemRequests(items []models.OrderItem) []api.OrderItemRequest {
	reqs := make([]api.OrderItemRequest, 0, len(items))
	for _, item := range items {
		reqs = append(reqs, api.OrderItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.UnitPrice,
			Notes:     item.Notes,
		})
	}
	return reqs
}
