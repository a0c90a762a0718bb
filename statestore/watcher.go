package statestore

import (
	"context"
	"sync"
	"time"

	"github.com/teranos/loom/db"
	"github.com/teranos/loom/logger"
)

const (
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100
)

// Event describes one foreign write observed by the watcher.
type Event struct {
	Key      string
	Value    string
	Origin   string
	Revision int64
}

// Watcher polls the store for writes made by other processes and fans them
// out to subscribers. Writes carrying the watcher's own origin advance the
// cursor silently, so a process never reacts to its own persistence.
type Watcher struct {
	store    *Store
	interval time.Duration

	mu          sync.RWMutex
	subscribers []chan Event

	lastSeen int64 // touched only by the watch loop after Start

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher polling at the given interval. Zero or
// negative intervals fall back to DefaultWatchInterval.
func NewWatcher(store *Store, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		store:       store,
		interval:    interval,
		subscribers: make([]chan Event, 0),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start baselines the cursor at the current revision and begins polling.
// Existing rows never replay; only writes after Start are observed.
func (w *Watcher) Start() error {
	rev, err := w.store.CurrentRevision()
	if err != nil {
		return err
	}
	w.lastSeen = rev

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				w.poll()
			}
		}
	}()

	logger.SyncDebugw("State watcher started",
		"origin", w.store.Origin(),
		"interval", w.interval,
	)
	return nil
}

// Stop halts polling and waits for the watch loop to exit. Subscriber
// channels stay open; callers manage their lifecycle.
func (w *Watcher) Stop() {
	w.cancel()
	w.wg.Wait()
}

// Subscribe returns a channel receiving foreign-write events. The channel
// is buffered; slow consumers drop events rather than stalling the watcher.
func (w *Watcher) Subscribe() chan Event {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan Event, SubscriberChannelBufferSize)
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel from the watcher.
// The channel is NOT closed by this method - callers should close it themselves
// after unsubscribing if needed. This prevents double-close panics.
func (w *Watcher) Unsubscribe(ch chan Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, sub := range w.subscribers {
		if sub == ch {
			// Remove from slice without closing - caller manages channel lifecycle
			w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
			return
		}
	}
}

// poll reads writes past the cursor and notifies subscribers of foreign ones.
func (w *Watcher) poll() {
	entries, err := w.store.ChangedSince(w.lastSeen)
	if err != nil {
		if db.IsDatabaseClosed(err) {
			// Shutting down; the next tick will be cancelled.
			return
		}
		logger.SyncWarnw("State watcher poll failed", "error", err)
		return
	}

	for _, e := range entries {
		if e.Revision > w.lastSeen {
			w.lastSeen = e.Revision
		}

		// Own writes advance the cursor but never notify.
		if e.Origin == w.store.Origin() {
			continue
		}

		logger.SyncDebugw("State watcher observed foreign write",
			"key", e.Key,
			"origin", e.Origin,
			"revision", e.Revision,
		)

		w.mu.RLock()
		w.notifySubscribers(Event{
			Key:      e.Key,
			Value:    e.Value,
			Origin:   e.Origin,
			Revision: e.Revision,
		})
		w.mu.RUnlock()
	}
}

// notifySubscribers sends an event to all subscribers.
// REQUIRES: w.mu must be held by caller (either Lock or RLock).
// Uses non-blocking send to avoid stalling if a subscriber is slow.
func (w *Watcher) notifySubscribers(ev Event) {
	for _, ch := range w.subscribers {
		select {
		case ch <- ev:
			// Sent successfully
		default:
			// Channel full, skip (non-blocking)
		}
	}
}
