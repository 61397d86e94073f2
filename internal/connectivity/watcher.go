package connectivity

import (
	"context"
	"sync"
	"sync/atomic"

	apperrors "github.com/melicheck/fieldsync/internal/errors"
	"github.com/melicheck/fieldsync/internal/events"
	"github.com/melicheck/fieldsync/internal/logging"
	"github.com/melicheck/fieldsync/internal/queue"
	"github.com/melicheck/fieldsync/internal/syncer"
)

// Drainer replays the outbound queues.
type Drainer interface {
	SyncAll(ctx context.Context) (*queue.SyncAllResult, error)
}

// Puller refreshes the reference mirrors.
type Puller interface {
	PullAll(ctx context.Context) *syncer.PullAllResult
}

// Watcher is pure event wiring: it translates connectivity transitions and
// application-level "new data" signals into sync operations. It holds no
// state beyond an in-flight latch that debounces reentrant triggers.
type Watcher struct {
	bus     *events.Bus
	conn    Connectivity
	drainer Drainer
	puller  Puller

	inFlight atomic.Bool
	stopCh   chan struct{}
	stopped  sync.Once
	wg       sync.WaitGroup
}

// Connectivity reports current reachability.
type Connectivity interface {
	Online() bool
}

// NewWatcher creates a Watcher.
func NewWatcher(bus *events.Bus, conn Connectivity, drainer Drainer, puller Puller) *Watcher {
	return &Watcher{
		bus:     bus,
		conn:    conn,
		drainer: drainer,
		puller:  puller,
		stopCh:  make(chan struct{}),
	}
}

// Start subscribes to the bus and reacts to events until Stop is called or
// ctx is done.
func (w *Watcher) Start(ctx context.Context) {
	ch, cancel := w.bus.Subscribe(events.TopicOnline, events.TopicNewData)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				w.handle(ctx, evt)
			}
		}
	}()
}

// Stop halts event handling and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.stopped.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Watcher) handle(ctx context.Context, evt events.Event) {
	switch evt.Topic {
	case events.TopicOnline:
		// Drain local writes before overwriting mirrors, so a stale mirror
		// read never races an in-flight resolution.
		if _, _, err := w.TriggerSync(ctx); err != nil {
			if !apperrors.Is(err, apperrors.ErrSyncInProgress) {
				logging.Error("auto-sync after reconnect failed", err, nil)
			}
		}
	case events.TopicNewData:
		if !w.conn.Online() {
			return
		}
		// Refresh mirrors only; the outbound queues are untouched.
		if !w.inFlight.CompareAndSwap(false, true) {
			return
		}
		defer w.inFlight.Store(false)
		w.puller.PullAll(ctx)
	}
}

// TriggerSync runs a full pass: drain the queues, then refresh the
// mirrors. It is also what a manual "sync now" control invokes. A pass
// already in flight is rejected rather than doubled.
func (w *Watcher) TriggerSync(ctx context.Context) (*queue.SyncAllResult, *syncer.PullAllResult, error) {
	if !w.inFlight.CompareAndSwap(false, true) {
		return nil, nil, apperrors.New(apperrors.ErrSyncInProgress, "sync already in progress")
	}
	defer w.inFlight.Store(false)

	drained, err := w.drainer.SyncAll(ctx)
	if err != nil {
		return nil, nil, err
	}

	pulled := w.puller.PullAll(ctx)
	return drained, pulled, nil
}
