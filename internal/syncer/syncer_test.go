// Package syncer provides unit tests for the reference data pulls.
package syncer

import (
	"context"
	"testing"

	"github.com/melicheck/fieldsync/internal/api"
	apperrors "github.com/melicheck/fieldsync/internal/errors"
	"github.com/melicheck/fieldsync/internal/models"
	"github.com/melicheck/fieldsync/internal/store"
)

type fakeBackend struct {
	assignmentsFn func() ([]*api.Assignment, error)
	productsFn    func() ([]*api.Product, error)
}

func (f *fakeBackend) MyAssignments(ctx context.Context) ([]*api.Assignment, error) {
	if f.assignmentsFn != nil {
		return f.assignmentsFn()
	}
	return nil, nil
}

func (f *fakeBackend) ActiveProducts(ctx context.Context) ([]*api.Product, error) {
	if f.productsFn != nil {
		return f.productsFn()
	}
	return nil, nil
}

func newTestSyncer(t *testing.T) (*Syncer, *store.Repository, *fakeBackend) {
	t.Helper()

	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := store.NewRepository(db)
	backend := &fakeBackend{}
	return NewSyncer(repo, backend, nil), repo, backend
}

// TestPullAssignmentsReplacesMirror tests that each pull supersedes the
// assignment mirror and flattens nested status objects.
func TestPullAssignmentsReplacesMirror(t *testing.T) {
	s, repo, backend := newTestSyncer(t)

	backend.assignmentsFn = func() ([]*api.Assignment, error) {
		return []*api.Assignment{
			{
				ID:             10,
				Status:         &api.StatusRef{StatusName: "ACTIVE"},
				AssignmentType: &api.TypeRef{TypeName: "DELIVERY"},
				Dealer:         &api.Dealer{ID: 7},
				Store:          &api.Store{ID: 1, Name: "Shop A", QRCode: "QR-A", Status: &api.StatusRef{StatusName: "ACTIVE"}},
				Product:        &api.Product{ID: 100, Name: "Widget", Price: 2.5},
			},
		}, nil
	}

	result, err := s.PullAssignments(context.Background())
	if err != nil {
		t.Fatalf("PullAssignments failed: %v", err)
	}
	if !result.Success || result.Count != 1 {
		t.Fatalf("Unexpected result: %+v", result)
	}

	assignments, _ := repo.ListAssignments()
	if len(assignments) != 1 {
		t.Fatalf("Expected 1 mirrored assignment, got %d", len(assignments))
	}
	a := assignments[0]
	if a.Status != "ACTIVE" || a.AssignmentType != "DELIVERY" || a.DealerID != 7 {
		t.Errorf("Flattening wrong: %+v", a)
	}
	if a.Store == nil || a.Store.QRCode != "QR-A" {
		t.Errorf("Embedded store missing: %+v", a.Store)
	}

	// Embedded copies land in their own mirrors too.
	if st, err := repo.GetStoreByQR("QR-A"); err != nil || st.ID != 1 {
		t.Errorf("Embedded store not mirrored: %v %v", st, err)
	}
	if p, err := repo.GetProduct(100); err != nil || p.Name != "Widget" {
		t.Errorf("Embedded product not mirrored: %v %v", p, err)
	}

	meta, _ := repo.GetLastSync(models.SyncKeyAssignments)
	if meta == nil || meta.Status != "success" {
		t.Errorf("Sync metadata not recorded: %+v", meta)
	}

	// A second pull with a different set removes assignment 10.
	backend.assignmentsFn = func() ([]*api.Assignment, error) {
		return []*api.Assignment{{ID: 11, Store: &api.Store{ID: 2}}}, nil
	}
	if _, err := s.PullAssignments(context.Background()); err != nil {
		t.Fatalf("Second pull failed: %v", err)
	}
	assignments, _ = repo.ListAssignments()
	if len(assignments) != 1 || assignments[0].AssignmentID != 11 {
		t.Errorf("Mirror not superseded: %+v", assignments)
	}
}

// TestEmbeddedCopiesAreFirstWriteWins tests that a stale embedded store does
// not clobber a row the catalog pull already wrote.
func TestEmbeddedCopiesAreFirstWriteWins(t *testing.T) {
	s, repo, backend := newTestSyncer(t)

	repo.PutStore(&models.Store{ID: 1, Name: "Authoritative Name", QRCode: "QR-A", Status: models.StatusActive})

	backend.assignmentsFn = func() ([]*api.Assignment, error) {
		return []*api.Assignment{
			{ID: 10, Store: &api.Store{ID: 1, Name: "Stale Embedded Name", QRCode: "QR-A"}},
		}, nil
	}
	if _, err := s.PullAssignments(context.Background()); err != nil {
		t.Fatalf("PullAssignments failed: %v", err)
	}

	st, err := repo.GetStore(1)
	if err != nil {
		t.Fatalf("GetStore failed: %v", err)
	}
	if st.Name != "Authoritative Name" {
		t.Errorf("Embedded copy clobbered the mirror: %q", st.Name)
	}
}

// TestPullProductsUpserts tests the authoritative catalog pull.
func TestPullProductsUpserts(t *testing.T) {
	s, repo, backend := newTestSyncer(t)

	repo.PutProduct(&models.Product{ID: 100, Name: "Old Name", Price: 1, Status: models.StatusActive})

	backend.productsFn = func() ([]*api.Product, error) {
		return []*api.Product{
			{ID: 100, Name: "New Name", Price: 2, Status: &api.StatusRef{StatusName: "ACTIVE"}},
			{ID: 101, Name: "Fresh", Price: 3},
		}, nil
	}

	result, err := s.PullProducts(context.Background())
	if err != nil {
		t.Fatalf("PullProducts failed: %v", err)
	}
	if !result.Success || result.Count != 2 {
		t.Fatalf("Unexpected result: %+v", result)
	}

	p, _ := repo.GetProduct(100)
	if p.Name != "New Name" || p.Price != 2 {
		t.Errorf("Catalog pull must be last-write-wins: %+v", p)
	}

	active, _ := repo.ListActiveProducts()
	if len(active) != 2 {
		t.Errorf("Expected 2 active products, got %d", len(active))
	}
}

// TestPullAllToleratesPartialFailure tests that one failing pull does not
// stop the other, and the aggregate records a partial status.
func TestPullAllToleratesPartialFailure(t *testing.T) {
	s, repo, backend := newTestSyncer(t)

	backend.assignmentsFn = func() ([]*api.Assignment, error) {
		return nil, apperrors.New(apperrors.ErrNetwork, "timeout")
	}
	backend.productsFn = func() ([]*api.Product, error) {
		return []*api.Product{{ID: 1, Name: "Solo"}}, nil
	}

	result := s.PullAll(context.Background())
	if result.Success() {
		t.Fatal("Aggregate must not report success with a failed pull")
	}
	if result.Assignments.Success || result.Assignments.Error == "" {
		t.Errorf("Assignment failure not captured: %+v", result.Assignments)
	}
	if !result.Products.Success || result.Products.Count != 1 {
		t.Errorf("Product pull must still run: %+v", result.Products)
	}

	// The surviving pull's data is present.
	if p, err := repo.GetProduct(1); err != nil || p.Name != "Solo" {
		t.Errorf("Surviving pull's data missing: %v %v", p, err)
	}

	meta, _ := repo.GetLastSync(models.SyncKeyFull)
	if meta == nil || meta.Status != "partial" {
		t.Errorf("Expected partial full-sync status, got %+v", meta)
	}
}

// TestPullAllSuccessStatus tests the full-sync bookkeeping on a clean run.
func TestPullAllSuccessStatus(t *testing.T) {
	s, repo, _ := newTestSyncer(t)

	result := s.PullAll(context.Background())
	if !result.Success() {
		t.Fatalf("Expected success with empty remote data, got %+v", result)
	}

	meta, _ := repo.GetLastSync(models.SyncKeyFull)
	if meta == nil || meta.Status != "success" {
		t.Errorf("Expected success full-sync status, got %+v", meta)
	}
}
