// Package events provides unit tests for the in-process pub/sub bus.
package events

import (
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
		return Event{}
	}
}

// TestSubscribeReceivesPublished tests basic delivery with a timestamp.
func TestSubscribeReceivesPublished(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(TopicQueueUpdated)
	defer cancel()

	bus.Publish(TopicQueueUpdated, map[string]interface{}{"total": 3})

	evt := receive(t, ch)
	if evt.Topic != TopicQueueUpdated {
		t.Errorf("Unexpected topic %s", evt.Topic)
	}
	if evt.Data["total"] != 3 {
		t.Errorf("Unexpected payload: %+v", evt.Data)
	}
	if evt.Timestamp == 0 {
		t.Error("Expected timestamp to be set")
	}
}

// TestTopicFiltering tests that a subscriber only sees its topics.
func TestTopicFiltering(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(TopicOnline)
	defer cancel()

	bus.Publish(TopicOffline, nil)
	bus.Publish(TopicOnline, nil)

	evt := receive(t, ch)
	if evt.Topic != TopicOnline {
		t.Errorf("Filtered topic leaked through: %s", evt.Topic)
	}

	select {
	case extra := <-ch:
		t.Errorf("Unexpected extra event: %+v", extra)
	default:
	}
}

// TestSubscribeAllTopics tests that a bare subscription sees everything.
func TestSubscribeAllTopics(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(TopicSyncStarted, nil)
	bus.Publish(TopicDataRefreshed, nil)

	if evt := receive(t, ch); evt.Topic != TopicSyncStarted {
		t.Errorf("Unexpected first topic %s", evt.Topic)
	}
	if evt := receive(t, ch); evt.Topic != TopicDataRefreshed {
		t.Errorf("Unexpected second topic %s", evt.Topic)
	}
}

// TestPublishNeverBlocks tests that a full subscriber drops events instead
// of stalling the publisher.
func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe(TopicQueueUpdated)
	defer cancel()

	done := make(chan struct{})
	go func() {
		// Well past the buffer size; nobody is reading.
		for i := 0; i < 100; i++ {
			bus.Publish(TopicQueueUpdated, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

// TestCancelClosesChannel tests that cancelling a subscription closes its
// channel and stops delivery.
func TestCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(TopicOnline)

	cancel()

	if _, ok := <-ch; ok {
		t.Error("Expected closed channel after cancel")
	}

	// A second cancel is a no-op, and publishing after cancel must not panic.
	cancel()
	bus.Publish(TopicOnline, nil)
}
