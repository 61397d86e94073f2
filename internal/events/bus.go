// Package events provides the in-process publish/subscribe bus wiring the
// sync components together.
package events

import (
	"sync"
	"time"
)

// Topic identifies a class of cross-component signal.
type Topic string

const (
	// Connectivity transitions
	TopicOnline  Topic = "connectivity.online"
	TopicOffline Topic = "connectivity.offline"

	// Application-level signals
	TopicNewData       Topic = "data.available"  // push notification said the server has news
	TopicDataRefreshed Topic = "data.refreshed"  // mirrors were just overwritten
	TopicQueueUpdated  Topic = "queue.updated"   // pending counts changed
	TopicSyncStarted   Topic = "sync.started"
	TopicSyncCompleted Topic = "sync.completed"
	TopicSyncFailed    Topic = "sync.failed"
)

// Event is one published signal.
type Event struct {
	Topic     Topic                  `json:"topic"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

type subscriber struct {
	topics map[Topic]bool
	ch     chan Event
}

// Bus is a minimal in-process pub/sub hub. Publish never blocks: a
// subscriber that falls behind loses events rather than stalling a drain.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
}

// NewBus creates a Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers interest in the given topics (all topics when none
// are named) and returns the event channel plus a cancel function.
func (b *Bus) Subscribe(topics ...Topic) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{ch: make(chan Event, 32)}
	if len(topics) > 0 {
		sub.topics = make(map[Topic]bool, len(topics))
		for _, t := range topics {
			sub.topics[t] = true
		}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
	}
	return sub.ch, cancel
}

// Publish delivers an event to every interested subscriber.
func (b *Bus) Publish(topic Topic, data map[string]interface{}) {
	evt := Event{
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.topics != nil && !sub.topics[topic] {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// slow subscriber, drop
		}
	}
}
