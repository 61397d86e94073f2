// Package queue provides unit tests for the drain passes and SyncAll.
package queue

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/melicheck/fieldsync/internal/api"
	apperrors "github.com/melicheck/fieldsync/internal/errors"
	"github.com/melicheck/fieldsync/internal/models"
)

// TestDrainVisitsSuccessDeletes tests that accepted visits leave the queue.
func TestDrainVisitsSuccessDeletes(t *testing.T) {
	mgr, repo, backend, _ := newTestManager(t, true)

	mgr.EnqueueVisit(1, "QR-1", 0, 0)
	mgr.EnqueueVisit(2, "QR-2", 0, 0)
	backend.checkInFn = func(req *api.CheckInRequest) (*api.Visit, error) {
		return &api.Visit{ID: 10}, nil
	}

	result, err := mgr.DrainVisits(context.Background())
	if err != nil {
		t.Fatalf("DrainVisits failed: %v", err)
	}
	if result.Success != 2 || result.Failed != 0 {
		t.Errorf("Unexpected result: %+v", result)
	}

	remaining, _ := repo.ListPendingVisits()
	if len(remaining) != 0 {
		t.Errorf("Synced visits must be deleted, %d remain", len(remaining))
	}
}

// TestDrainVisitsDuplicateCountsAsSuccess tests that a 409 from the server
// means the record already exists there: the local copy is deleted, not
// retried forever.
func TestDrainVisitsDuplicateCountsAsSuccess(t *testing.T) {
	mgr, repo, backend, _ := newTestManager(t, true)

	mgr.EnqueueVisit(1, "QR-1", 0, 0)
	backend.checkInFn = func(req *api.CheckInRequest) (*api.Visit, error) {
		return nil, &api.StatusError{StatusCode: http.StatusConflict, Message: "already checked in"}
	}

	result, err := mgr.DrainVisits(context.Background())
	if err != nil {
		t.Fatalf("DrainVisits failed: %v", err)
	}
	if result.Success != 1 || result.Failed != 0 {
		t.Errorf("409 must count as success: %+v", result)
	}

	remaining, _ := repo.ListPendingVisits()
	if len(remaining) != 0 {
		t.Errorf("Duplicate record must be deleted, %d remain", len(remaining))
	}
}

// TestDrainVisitsPartialFailure tests that one record's failure never aborts
// the batch and leaves the failed record eligible for the next pass.
func TestDrainVisitsPartialFailure(t *testing.T) {
	mgr, repo, backend, _ := newTestManager(t, true)

	mgr.EnqueueVisit(1, "QR-FAIL", 0, 0)
	mgr.EnqueueVisit(2, "QR-OK", 0, 0)
	backend.checkInFn = func(req *api.CheckInRequest) (*api.Visit, error) {
		if req.QRCode == "QR-FAIL" {
			return nil, netErr()
		}
		return &api.Visit{ID: 20}, nil
	}

	result, err := mgr.DrainVisits(context.Background())
	if err != nil {
		t.Fatalf("DrainVisits failed: %v", err)
	}
	if result.Success != 1 || result.Failed != 1 {
		t.Fatalf("Unexpected result: %+v", result)
	}
	if len(result.Errors) != 1 || !result.Errors[0].CanRetry {
		t.Errorf("Transient failure must be reported retryable: %+v", result.Errors)
	}

	remaining, _ := repo.ListUnsyncedVisits()
	if len(remaining) != 1 || remaining[0].QRCode != "QR-FAIL" {
		t.Fatalf("Failed record must stay eligible: %+v", remaining)
	}
	if remaining[0].SyncAttempts != 1 || remaining[0].ErrorMessage == "" {
		t.Errorf("Attempt bookkeeping missing: %+v", remaining[0])
	}
}

// TestDrainVisitsTerminalParks tests that a permanent server rejection parks
// the record instead of retrying it forever.
func TestDrainVisitsTerminalParks(t *testing.T) {
	mgr, repo, backend, _ := newTestManager(t, true)

	mgr.EnqueueVisit(1, "QR-BAD", 0, 0)
	backend.checkInFn = func(req *api.CheckInRequest) (*api.Visit, error) {
		return nil, &api.StatusError{StatusCode: http.StatusBadRequest, Message: "invalid qr code"}
	}

	result, err := mgr.DrainVisits(context.Background())
	if err != nil {
		t.Fatalf("DrainVisits failed: %v", err)
	}
	if result.Failed != 1 || result.Errors[0].CanRetry {
		t.Errorf("Terminal failure must be reported non-retryable: %+v", result)
	}

	eligible, _ := repo.ListUnsyncedVisits()
	if len(eligible) != 0 {
		t.Errorf("Parked record still eligible for drain")
	}
	all, _ := repo.ListPendingVisits()
	if len(all) != 1 || all[0].FailedPermanent != 1 {
		t.Errorf("Parked record must remain visible with its flag: %+v", all)
	}

	// A later pass must not touch it.
	backend.calls = nil
	mgr.DrainVisits(context.Background())
	if len(backend.calls) != 0 {
		t.Errorf("Parked record was retried: %v", backend.calls)
	}
}

// TestDrainOrdersResolvesVisit tests that an unresolved order picks up its
// server visit id from today's visits for the same store, and that the
// lookup happens at most once per pass.
func TestDrainOrdersResolvesVisit(t *testing.T) {
	mgr, repo, backend, _ := newTestManager(t, true)

	mgr.EnqueueOrder(nil, 5, []models.OrderItem{{ProductID: 1, Quantity: 1, UnitPrice: 2}}, "")
	mgr.EnqueueOrder(nil, 5, []models.OrderItem{{ProductID: 2, Quantity: 1, UnitPrice: 3}}, "")

	backend.todayFn = func() ([]*api.Visit, error) {
		return []*api.Visit{{ID: 77, Store: &api.Store{ID: 5}}}, nil
	}

	result, err := mgr.DrainOrders(context.Background())
	if err != nil {
		t.Fatalf("DrainOrders failed: %v", err)
	}
	if result.Success != 2 || result.Skipped != 0 {
		t.Fatalf("Unexpected result: %+v", result)
	}
	if backend.todayCalls != 1 {
		t.Errorf("Today's visits must be fetched once per pass, got %d", backend.todayCalls)
	}
	for _, req := range backend.orders {
		if req.VisitID != 77 {
			t.Errorf("Order submitted under wrong visit: %+v", req)
		}
	}

	remaining, _ := repo.ListPendingOrders()
	if len(remaining) != 0 {
		t.Errorf("Synced orders must be deleted, %d remain", len(remaining))
	}
}

// TestDrainOrdersSkipsUnresolvable tests that an order whose visit has not
// synced yet is skipped this pass: no submission, no attempt increment, a
// recorded reason.
func TestDrainOrdersSkipsUnresolvable(t *testing.T) {
	mgr, repo, backend, _ := newTestManager(t, true)

	mgr.EnqueueOrder(nil, 5, []models.OrderItem{}, "")
	backend.todayFn = func() ([]*api.Visit, error) {
		return []*api.Visit{{ID: 77, Store: &api.Store{ID: 99}}}, nil // different store
	}

	result, err := mgr.DrainOrders(context.Background())
	if err != nil {
		t.Fatalf("DrainOrders failed: %v", err)
	}
	if result.Skipped != 1 || result.Success != 0 || result.Failed != 0 {
		t.Fatalf("Unexpected result: %+v", result)
	}
	if len(backend.orders) != 0 {
		t.Error("Unresolvable order must not be submitted")
	}

	remaining, _ := repo.ListUnsyncedOrders()
	if len(remaining) != 1 {
		t.Fatalf("Skipped order must stay queued")
	}
	if remaining[0].SyncAttempts != 0 {
		t.Errorf("Skip must not burn an attempt: %+v", remaining[0])
	}
	if remaining[0].ErrorMessage == "" {
		t.Error("Skip reason must be recorded for the debug view")
	}
}

// TestDrainOrdersStoredKeyOnReplay tests that the drain submits the key
// stamped at enqueue, not a fresh one.
func TestDrainOrdersStoredKeyOnReplay(t *testing.T) {
	mgr, _, backend, _ := newTestManager(t, true)

	visitID := int64(4)
	pending, _ := mgr.EnqueueOrder(&visitID, 1, []models.OrderItem{}, "")

	// First pass fails, second succeeds; both must carry the same key.
	fail := true
	backend.orderFn = func(req *api.CreateOrderRequest) (*api.Order, error) {
		if fail {
			return nil, netErr()
		}
		return &api.Order{ID: 1}, nil
	}

	mgr.DrainOrders(context.Background())
	fail = false
	mgr.DrainOrders(context.Background())

	if len(backend.orders) != 2 {
		t.Fatalf("Expected 2 submissions, got %d", len(backend.orders))
	}
	if backend.orders[0].OfflineUniqueID != pending.OfflineUniqueID ||
		backend.orders[1].OfflineUniqueID != pending.OfflineUniqueID {
		t.Errorf("Replay must reuse the stamped key %q, sent %q then %q",
			pending.OfflineUniqueID, backend.orders[0].OfflineUniqueID, backend.orders[1].OfflineUniqueID)
	}
}

// TestSyncAllDrainsVisitsBeforeOrders tests the dependency ordering: a visit
// queued offline syncs first, so the order for the same store can resolve
// against it within the same pass.
func TestSyncAllDrainsVisitsBeforeOrders(t *testing.T) {
	mgr, repo, backend, _ := newTestManager(t, true)

	mgr.EnqueueVisit(5, "QR-5", 0, 0)
	mgr.EnqueueOrder(nil, 5, []models.OrderItem{{ProductID: 1, Quantity: 1, UnitPrice: 1}}, "")

	backend.checkInFn = func(req *api.CheckInRequest) (*api.Visit, error) {
		return &api.Visit{ID: 88, Store: &api.Store{ID: 5}}, nil
	}
	backend.todayFn = func() ([]*api.Visit, error) {
		// The visit just synced is visible here.
		return []*api.Visit{{ID: 88, Store: &api.Store{ID: 5}}}, nil
	}

	result, err := mgr.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if result.TotalSuccess != 2 || !result.Clean {
		t.Fatalf("Expected clean pass, got %+v", result)
	}

	// Call order: check-in strictly before the order submission.
	var checkInAt, orderAt int
	for i, call := range backend.calls {
		switch call {
		case "checkIn":
			checkInAt = i
		case "createOrder":
			orderAt = i
		}
	}
	if checkInAt >= orderAt {
		t.Errorf("Visits must drain before orders: %v", backend.calls)
	}

	counts, _ := repo.GetPendingCounts()
	if counts.Total != 0 {
		t.Errorf("Expected empty queues after clean pass, got %+v", counts)
	}
}

// TestSyncAllOfflineShortCircuits tests that a pass started offline does no
// partial work.
func TestSyncAllOfflineShortCircuits(t *testing.T) {
	mgr, _, backend, conn := newTestManager(t, true)
	mgr.EnqueueVisit(1, "QR-1", 0, 0)
	conn.online = false

	_, err := mgr.SyncAll(context.Background())
	if !apperrors.Is(err, apperrors.ErrOffline) {
		t.Fatalf("Expected offline error, got %v", err)
	}
	if len(backend.calls) != 0 {
		t.Errorf("Offline pass must not touch the network: %v", backend.calls)
	}
}

// TestSyncAllRejectsConcurrentPass tests the in-flight latch.
func TestSyncAllRejectsConcurrentPass(t *testing.T) {
	mgr, _, _, _ := newTestManager(t, true)

	mgr.syncInProgress.Store(true)
	_, err := mgr.SyncAll(context.Background())
	if !apperrors.Is(err, apperrors.ErrSyncInProgress) {
		t.Fatalf("Expected sync-in-progress rejection, got %v", err)
	}

	mgr.syncInProgress.Store(false)
	if _, err := mgr.SyncAll(context.Background()); err != nil {
		t.Errorf("Latch must release after the pass: %v", err)
	}
}

// TestSyncAllPartialFailureIsolation tests a mostly-good batch: nine orders
// succeed, one fails, and the failure affects only its own record.
func TestSyncAllPartialFailureIsolation(t *testing.T) {
	mgr, repo, backend, _ := newTestManager(t, true)

	visitID := int64(1)
	var failKey string
	for i := 0; i < 10; i++ {
		o, err := mgr.EnqueueOrder(&visitID, int64(i), []models.OrderItem{}, fmt.Sprintf("order %d", i))
		if err != nil {
			t.Fatalf("EnqueueOrder failed: %v", err)
		}
		if i == 3 {
			failKey = o.OfflineUniqueID
		}
	}

	backend.orderFn = func(req *api.CreateOrderRequest) (*api.Order, error) {
		if req.OfflineUniqueID == failKey {
			return nil, &api.StatusError{StatusCode: http.StatusInternalServerError}
		}
		return &api.Order{ID: 1}, nil
	}

	result, err := mgr.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if result.TotalSuccess != 9 || result.TotalFailed != 1 || result.Clean {
		t.Fatalf("Unexpected result: %+v", result)
	}

	remaining, _ := repo.ListUnsyncedOrders()
	if len(remaining) != 1 {
		t.Fatalf("Exactly the failed order must remain, got %d", len(remaining))
	}
	if remaining[0].OfflineUniqueID != failKey {
		t.Errorf("Wrong record survived: %+v", remaining[0])
	}
	if remaining[0].SyncAttempts != 1 || remaining[0].FailedPermanent != 0 {
		t.Errorf("5xx must stay retryable: %+v", remaining[0])
	}
}
