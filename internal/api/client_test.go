// Package api provides unit tests for the backend REST client.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/melicheck/fieldsync/internal/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, func() string { return "test-token" })
}

// TestClientEnvelopeDecoding tests that the result payload is unwrapped from
// the backend's response envelope.
func TestClientEnvelopeDecoding(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Expected bearer token header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result": [{"id": 5, "store": {"id": 1, "qrCode": "QR-1"}}], "message": ""}`))
	})

	visits, err := client.TodayVisits(context.Background())
	if err != nil {
		t.Fatalf("TodayVisits failed: %v", err)
	}
	if len(visits) != 1 || visits[0].ID != 5 {
		t.Fatalf("Unexpected visits: %+v", visits)
	}
	if visits[0].Store == nil || visits[0].Store.QRCode != "QR-1" {
		t.Errorf("Embedded store not decoded: %+v", visits[0].Store)
	}
}

// TestClientStatusError tests that a non-2xx response becomes a StatusError
// carrying the envelope message.
func TestClientStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"result": null, "message": "invalid qr code"}`))
	})

	_, err := client.CheckInByQR(context.Background(), &CheckInRequest{QRCode: "bogus"})
	if err == nil {
		t.Fatal("Expected error for 400 response")
	}

	se, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("Expected *StatusError, got %T", err)
	}
	if se.StatusCode != http.StatusBadRequest || se.Message != "invalid qr code" {
		t.Errorf("Unexpected status error: %+v", se)
	}
}

// TestClientNetworkError tests that a transport failure is classified as a
// network error, not a server rejection.
func TestClientNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on

	client := NewClient(srv.URL, 2*time.Second, nil)
	_, err := client.TodayVisits(context.Background())
	if err == nil {
		t.Fatal("Expected error against closed server")
	}
	if !IsNetworkError(err) {
		t.Errorf("Expected network error classification, got %v", err)
	}
	if !apperrors.Is(err, apperrors.ErrNetwork) {
		t.Errorf("Expected ErrNetwork code, got %v", err)
	}
	if IsTerminal(err) {
		t.Error("Network failure must never be terminal")
	}
}

// TestIsTerminalClassification tests the retryable-versus-terminal split.
func TestIsTerminalClassification(t *testing.T) {
	cases := []struct {
		status   int
		terminal bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusUnauthorized, true},
		{http.StatusForbidden, true},
		{http.StatusNotFound, true},
		{http.StatusUnprocessableEntity, true},
		{http.StatusRequestTimeout, false},
		{http.StatusConflict, false},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusBadGateway, false},
		{http.StatusServiceUnavailable, false},
	}

	for _, tc := range cases {
		err := &StatusError{StatusCode: tc.status}
		if got := IsTerminal(err); got != tc.terminal {
			t.Errorf("IsTerminal(%d) = %v, want %v", tc.status, got, tc.terminal)
		}
	}
}

// TestIsDuplicate tests that only a 409 counts as an idempotency-key
// collision.
func TestIsDuplicate(t *testing.T) {
	if !IsDuplicate(&StatusError{StatusCode: http.StatusConflict}) {
		t.Error("409 must be a duplicate")
	}
	if IsDuplicate(&StatusError{StatusCode: http.StatusBadRequest}) {
		t.Error("400 must not be a duplicate")
	}
	if IsDuplicate(apperrors.New(apperrors.ErrNetwork, "down")) {
		t.Error("Network failure must not be a duplicate")
	}
}

// TestCreateOrderPayload tests that the order request carries the
// idempotency key over the wire.
func TestCreateOrderPayload(t *testing.T) {
	var got CreateOrderRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/orders/" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		w.Write([]byte(`{"result": {"id": 99}}`))
	})

	order, err := client.CreateOrder(context.Background(), &CreateOrderRequest{
		VisitID:         5,
		Items:           []OrderItemRequest{{ProductID: 1, Quantity: 2, Price: 3}},
		Total:           6,
		OfflineUniqueID: "key-abc",
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.ID != 99 {
		t.Errorf("Expected order id 99, got %d", order.ID)
	}
	if got.OfflineUniqueID != "key-abc" {
		t.Errorf("Idempotency key not transmitted: %+v", got)
	}
}

// TestStatusNameFlattening tests the nested status default.
func TestStatusNameFlattening(t *testing.T) {
	if StatusName(nil) != "ACTIVE" {
		t.Error("Nil status must default to ACTIVE")
	}
	if StatusName(&StatusRef{}) != "ACTIVE" {
		t.Error("Empty status must default to ACTIVE")
	}
	if StatusName(&StatusRef{StatusName: "INACTIVE"}) != "INACTIVE" {
		t.Error("Explicit status must pass through")
	}
}
