// Package syncer bulk-downloads server-authoritative reference data into
// the local mirrors for offline use.
package syncer

import (
	"context"
	"time"

	"github.com/melicheck/fieldsync/internal/api"
	"github.com/melicheck/fieldsync/internal/events"
	"github.com/melicheck/fieldsync/internal/logging"
	"github.com/melicheck/fieldsync/internal/models"
	"github.com/melicheck/fieldsync/internal/store"
)

// Backend is the slice of the REST client the syncer uses.
type Backend interface {
	MyAssignments(ctx context.Context) ([]*api.Assignment, error)
	ActiveProducts(ctx context.Context) ([]*api.Product, error)
}

// Syncer refreshes the local reference mirrors. It is the only component
// that clears and repopulates the assignment mirror.
type Syncer struct {
	repo *store.Repository
	api  Backend
	bus  *events.Bus
}

// NewSyncer creates a Syncer.
func NewSyncer(repo *store.Repository, backend Backend, bus *events.Bus) *Syncer {
	return &Syncer{repo: repo, api: backend, bus: bus}
}

// PullResult is the outcome of a single pull.
type PullResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

// PullAllResult aggregates both pulls; one failing does not stop the other.
type PullAllResult struct {
	Assignments *PullResult `json:"assignments"`
	Products    *PullResult `json:"products"`
}

// Success reports whether every pull succeeded.
func (r *PullAllResult) Success() bool {
	return r.Assignments.Success && r.Products.Success
}

// PullAssignments fetches the dealer's assignments and replaces the local
// assignment mirror wholesale. Embedded stores and products are written
// only if absent, so a locally fresher mirror row is not clobbered by a
// stale embedded copy.
func (s *Syncer) PullAssignments(ctx context.Context) (*PullResult, error) {
	remote, err := s.api.MyAssignments(ctx)
	if err != nil {
		logging.Error("assignment pull failed", err, nil)
		return &PullResult{Error: err.Error()}, err
	}

	now := time.Now().Unix()
	assignments := make([]*models.Assignment, 0, len(remote))
	for _, a := range remote {
		assignments = append(assignments, convertAssignment(a, now))
	}

	if err := s.repo.ReplaceAssignments(assignments); err != nil {
		logging.Error("failed to replace assignment mirror", err, nil)
		return &PullResult{Error: err.Error()}, err
	}

	// first-write-wins for embedded copies
	for _, a := range assignments {
		if a.Store != nil {
			if err := s.repo.InsertStoreIfAbsent(a.Store); err != nil {
				logging.Warn("failed to mirror embedded store", logging.Fields{"storeId": a.StoreID, "error": err.Error()})
			}
		}
		if a.Product != nil {
			if err := s.repo.InsertProductIfAbsent(a.Product); err != nil {
				logging.Warn("failed to mirror embedded product", logging.Fields{"productId": a.ProductID, "error": err.Error()})
			}
		}
	}

	if err := s.repo.UpdateLastSync(models.SyncKeyAssignments, "success"); err != nil {
		logging.Warn("failed to record assignment sync time", logging.Fields{"error": err.Error()})
	}

	logging.Info("assignments synced", logging.Fields{"count": len(assignments)})
	return &PullResult{Success: true, Count: len(assignments)}, nil
}

// PullProducts fetches the active catalog and upserts every product. This
// is the authoritative pull, so it is last-write-wins.
func (s *Syncer) PullProducts(ctx context.Context) (*PullResult, error) {
	remote, err := s.api.ActiveProducts(ctx)
	if err != nil {
		logging.Error("product pull failed", err, nil)
		return &PullResult{Error: err.Error()}, err
	}

	now := time.Now().Unix()
	for _, p := range remote {
		if err := s.repo.PutProduct(convertProduct(p, now)); err != nil {
			logging.Error("failed to mirror product", err, logging.Fields{"productId": p.ID})
			return &PullResult{Error: err.Error()}, err
		}
	}

	if err := s.repo.UpdateLastSync(models.SyncKeyProducts, "success"); err != nil {
		logging.Warn("failed to record product sync time", logging.Fields{"error": err.Error()})
	}

	logging.Info("products synced", logging.Fields{"count": len(remote)})
	return &PullResult{Success: true, Count: len(remote)}, nil
}

// PullAll composes both pulls, tolerating partial failure: if one pull
// fails the other still runs, and the aggregate reports each outcome. It
// does not retry; the connectivity layer re-triggers on the next relevant
// event.
func (s *Syncer) PullAll(ctx context.Context) *PullAllResult {
	result := &PullAllResult{}

	result.Assignments, _ = s.PullAssignments(ctx)
	result.Products, _ = s.PullProducts(ctx)

	if err := s.repo.UpdateLastSync(models.SyncKeyFull, pullStatus(result)); err != nil {
		logging.Warn("failed to record full sync time", logging.Fields{"error": err.Error()})
	}

	if s.bus != nil {
		s.bus.Publish(events.TopicDataRefreshed, map[string]interface{}{
			"assignments": result.Assignments.Count,
			"products":    result.Products.Count,
		})
	}

	return result
}

func pullStatus(r *PullAllResult) string {
	if r.Success() {
		return "success"
	}
	return "partial"
}

func convertAssignment(a *api.Assignment, now int64) *models.Assignment {
	m := &models.Assignment{
		AssignmentID: a.ID,
		Status:       api.StatusName(a.Status),
		LastSync:     now,
	}
	if a.AssignmentType != nil {
		m.AssignmentType = a.AssignmentType.TypeName
	}
	if a.Dealer != nil {
		m.DealerID = a.Dealer.ID
	}
	if a.Store != nil {
		m.StoreID = a.Store.ID
		m.Store = convertStore(a.Store, now)
	}
	if a.Product != nil {
		m.ProductID = a.Product.ID
		m.Product = convertProduct(a.Product, now)
	}
	return m
}

func convertStore(s *api.Store, now int64) *models.Store {
	return &models.Store{
		ID:        s.ID,
		Name:      s.Name,
		Address:   s.Address,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		QRCode:    s.QRCode,
		Phone:     s.Phone,
		Status:    api.StatusName(s.Status),
		LastSync:  now,
	}
}

func convertProduct(p *api.Product, now int64) *models.Product {
	return &models.Product{
		ID:       p.ID,
		Name:     p.Name,
		SKU:      p.SKU,
		Unit:     p.Unit,
		Price:    p.Price,
		Image:    p.Image,
		Status:   api.StatusName(p.Status),
		LastSync: now,
	}
}
