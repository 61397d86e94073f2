package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/melicheck/fieldsync/internal/events"
)

// TestSetOnlinePublishesTransitions tests that only state changes produce
// bus events.
func TestSetOnlinePublishesTransitions(t *testing.T) {
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(events.TopicOnline, events.TopicOffline)
	defer cancel()

	m := NewMonitor("http://localhost:0", time.Minute, bus)
	if !m.Online() {
		t.Fatal("Initial state must be online")
	}

	// No transition, no event.
	m.SetOnline(true)
	select {
	case evt := <-ch:
		t.Fatalf("Unexpected event for unchanged state: %+v", evt)
	default:
	}

	m.SetOnline(false)
	select {
	case evt := <-ch:
		if evt.Topic != events.TopicOffline {
			t.Errorf("Expected offline event, got %s", evt.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for offline event")
	}
	if m.Online() {
		t.Error("State not updated")
	}

	m.SetOnline(true)
	select {
	case evt := <-ch:
		if evt.Topic != events.TopicOnline {
			t.Errorf("Expected online event, got %s", evt.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for online event")
	}
}

// TestProbeClassification tests that any HTTP response counts as reachable
// while a transport failure does not.
func TestProbeClassification(t *testing.T) {
	bus := events.NewBus()

	// A 500 still proves the network path works.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := NewMonitor(srv.URL, time.Minute, bus)
	m.SetOnline(false)
	m.probe(context.Background())
	if !m.Online() {
		t.Error("An HTTP response must count as online")
	}

	// A closed server is a transport failure.
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	m2 := NewMonitor(dead.URL, time.Minute, bus)
	m2.probe(context.Background())
	if m2.Online() {
		t.Error("A transport failure must flip the state offline")
	}
}
