// Package connectivity observes network reachability and turns transitions
// into sync triggers.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/melicheck/fieldsync/internal/events"
	"github.com/melicheck/fieldsync/internal/logging"
)

// Monitor tracks whether the backend is reachable. It probes a health URL
// on an interval and publishes online/offline transitions on the bus. Any
// HTTP response counts as reachable; only transport failures mean offline.
type Monitor struct {
	probeURL string
	interval time.Duration
	bus      *events.Bus
	http     *http.Client

	online  atomic.Bool
	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewMonitor creates a Monitor. The initial state is online; the first
// probe corrects it if the backend is unreachable.
func NewMonitor(probeURL string, interval time.Duration, bus *events.Bus) *Monitor {
	m := &Monitor{
		probeURL: probeURL,
		interval: interval,
		bus:      bus,
		http:     &http.Client{Timeout: 5 * time.Second},
		stopCh:   make(chan struct{}),
	}
	m.online.Store(true)
	return m
}

// Online reports the last observed reachability state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// SetOnline forces the reachability state, publishing a transition event if
// it changed. The host runtime calls this when it has better information
// than the probe (e.g. an OS-level network-change notification).
func (m *Monitor) SetOnline(online bool) {
	prev := m.online.Swap(online)
	if prev == online {
		return
	}
	if online {
		logging.Info("connection restored", nil)
		m.bus.Publish(events.TopicOnline, nil)
	} else {
		logging.Warn("connection lost, offline mode active", nil)
		m.bus.Publish(events.TopicOffline, nil)
	}
}

// Start begins periodic probing until Stop is called or ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.probe(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.probe(ctx)
			}
		}
	}()
}

// Stop halts probing and waits for the probe goroutine to exit.
func (m *Monitor) Stop() {
	m.stopped.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Monitor) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		return
	}
	resp, err := m.http.Do(req)
	if err != nil {
		m.SetOnline(false)
		return
	}
	resp.Body.Close()
	m.SetOnline(true)
}
