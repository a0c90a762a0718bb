// Package monitor owns the pipeline run-monitor: the supervisor poll loop,
// progress and termination derivation, the bounded run history, and
// cross-instance state replication over the shared store.
//
// One Controller tracks at most one active run. Every poll tick applies
// atomically under the controller lock: status update, progress
// recomputation, and (on a terminal edge) the history commit are never
// observable half-done.
package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/loom/pipeline"
	"github.com/teranos/loom/statestore"
	"github.com/teranos/loom/supervisor"
	"github.com/teranos/loom/sym"
)

const (
	// DefaultPollInterval is the supervisor status/log poll cadence.
	DefaultPollInterval = 2 * time.Second

	// DefaultPersistDebounce coalesces snapshot writes to the shared
	// store under rapid state changes.
	DefaultPersistDebounce = 200 * time.Millisecond

	// DefaultReconcileInterval rate-limits the missed-run backfill pass.
	DefaultReconcileInterval = 5 * time.Minute

	// DefaultPollTailLines bounds the log tail fetched on each poll.
	DefaultPollTailLines = 500

	// HistoryLogTailLines is the extended fetch for a terminal record.
	HistoryLogTailLines = 2000

	// HistoryFallbackTailLines is the reduced fetch when the extended
	// one fails.
	HistoryFallbackTailLines = 500

	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100
)

// EventKind tags controller notifications for the push layer.
type EventKind string

const (
	EventSnapshot     EventKind = "snapshot"
	EventHistory      EventKind = "history"
	EventRunCompleted EventKind = "run_completed"
)

// Event is one controller notification. Record is set for
// EventRunCompleted only.
type Event struct {
	Kind   EventKind
	Record *RunRecord
}

// Config wires a Controller.
type Config struct {
	Client  *supervisor.Client
	Store   *statestore.Store
	Watcher *statestore.Watcher // nil disables cross-instance sync
	Logger  *zap.SugaredLogger

	PollInterval       time.Duration
	PersistDebounce    time.Duration
	ReconcileInterval  time.Duration
	LogFetchTimeout    time.Duration // terminal-edge extended history fetch
	LogFallbackTimeout time.Duration // reduced retry when the extended fetch fails
	PollTailLines      int
	History            HistoryOptions
}

// Controller orchestrates polling, classification, history commits, and
// state replication for the pipeline run-monitor.
type Controller struct {
	client  *supervisor.Client
	store   *statestore.Store
	watcher *statestore.Watcher
	logger  *zap.SugaredLogger
	history *HistoryStore

	pollInterval       time.Duration
	persistDebounce    time.Duration
	pollTailLines      int
	logFetchTimeout    time.Duration
	logFallbackTimeout time.Duration

	mu            sync.Mutex
	lifecycle     RunLifecycle
	snapshot      LiveSnapshot
	status        supervisor.JobStatus
	options       pipeline.StartOptions
	restoredStart *time.Time // active-run start time inherited from a previous process life

	subMu       sync.RWMutex
	subscribers []chan Event

	persistMu    sync.Mutex
	persistTimer *time.Timer

	reconcileLimiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController creates a controller. Zero durations take the defaults.
func NewController(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PersistDebounce <= 0 {
		cfg.PersistDebounce = DefaultPersistDebounce
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = DefaultReconcileInterval
	}
	if cfg.PollTailLines <= 0 {
		cfg.PollTailLines = DefaultPollTailLines
	}
	if cfg.LogFetchTimeout <= 0 {
		cfg.LogFetchTimeout = supervisor.DefaultLogFetchTimeout
	}
	if cfg.LogFallbackTimeout <= 0 {
		cfg.LogFallbackTimeout = supervisor.DefaultLogFallbackTimeout
	}

	return &Controller{
		client:             cfg.Client,
		store:              cfg.Store,
		watcher:            cfg.Watcher,
		logger:             cfg.Logger,
		history:            NewHistoryStore(cfg.Store, cfg.Logger, cfg.History),
		pollInterval:       cfg.PollInterval,
		persistDebounce:    cfg.PersistDebounce,
		pollTailLines:      cfg.PollTailLines,
		logFetchTimeout:    cfg.LogFetchTimeout,
		logFallbackTimeout: cfg.LogFallbackTimeout,
		reconcileLimiter:   rate.NewLimiter(rate.Every(cfg.ReconcileInterval), 1),
		subscribers:        make([]chan Event, 0),
	}
}

// Start restores persisted state and launches the poll loop, the duration
// ticker, and (when a watcher is configured) the sync loop. The supervisor
// version handshake runs in the background and only ever warns.
func (c *Controller) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.loadPersisted(); err != nil {
		c.logger.Warnw("Could not restore persisted monitor state",
			"symbol", sym.Sync,
			"error", err,
		)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.client.CheckVersion(c.ctx); err != nil {
			c.logger.Warnw("Supervisor version check failed",
				"symbol", sym.Net,
				"error", err,
			)
		}
	}()

	c.wg.Add(1)
	go c.runPollLoop()

	c.wg.Add(1)
	go c.runDurationTicker()

	if c.watcher != nil {
		if err := c.watcher.Start(); err != nil {
			return err
		}
		c.wg.Add(1)
		go c.runSyncLoop()
	}

	c.logger.Infow("Run monitor started",
		"symbol", sym.Run,
		"poll_interval", c.pollInterval,
	)
	return nil
}

// Stop cancels the loops, waits for them, and flushes the final snapshot
// so a restart resumes from current state.
func (c *Controller) Stop() {
	c.cancel()
	if c.watcher != nil {
		c.watcher.Stop()
	}
	c.wg.Wait()

	c.persistMu.Lock()
	if c.persistTimer != nil {
		c.persistTimer.Stop()
		c.persistTimer = nil
	}
	c.persistMu.Unlock()
	c.persistSnapshot()

	c.logger.Infow("Run monitor stopped", "symbol", sym.Run)
}

// Snapshot returns a copy of the live state.
func (c *Controller) Snapshot() LiveSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Status returns the last known-good supervisor job status.
func (c *Controller) Status() supervisor.JobStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Options returns the last-used start options.
func (c *Controller) Options() pipeline.StartOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.options
}

// History returns the run history, most recent first.
func (c *Controller) History() []RunRecord {
	return c.history.List()
}

// Run returns one history record by ID.
func (c *Controller) Run(id string) (*RunRecord, error) {
	return c.history.Get(id)
}

// Subscribe returns a channel receiving controller events. The channel is
// buffered; slow consumers drop events rather than stalling the monitor.
func (c *Controller) Subscribe() chan Event {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	ch := make(chan Event, SubscriberChannelBufferSize)
	c.subscribers = append(c.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel. The channel is not closed;
// callers manage its lifecycle.
func (c *Controller) Unsubscribe(ch chan Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for i, sub := range c.subscribers {
		if sub == ch {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			return
		}
	}
}

// notify sends an event to all subscribers without blocking.
func (c *Controller) notify(ev Event) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, ch := range c.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// loadPersisted restores the snapshot, options, and history from the
// shared store. A restored active-run start time is kept aside: the first
// poll decides whether it belongs to a still-running job (resume tracking)
// or a run that ended unobserved (reconciliation input).
func (c *Controller) loadPersisted() error {
	var snap LiveSnapshot
	found, err := c.store.GetJSON(statestore.KeyPipelineState, &snap)
	if err != nil {
		return err
	}
	if found {
		c.mu.Lock()
		c.snapshot = snap
		c.lifecycle.ManuallyStopped = snap.ManuallyStopped
		if snap.ActiveRunStartTime != nil {
			t := *snap.ActiveRunStartTime
			c.restoredStart = &t
		}
		c.mu.Unlock()
	}

	var opts pipeline.StartOptions
	if found, err := c.store.GetJSON(statestore.KeyPipelineOptions, &opts); err != nil {
		return err
	} else if found {
		c.mu.Lock()
		c.options = opts
		c.mu.Unlock()
	}

	return c.history.Load()
}

// schedulePersist arms the debounced snapshot write. Calls landing inside
// the window collapse into one durable write.
func (c *Controller) schedulePersist() {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	if c.persistTimer != nil {
		c.persistTimer.Stop()
	}
	c.persistTimer = time.AfterFunc(c.persistDebounce, c.persistSnapshot)
}

// persistSnapshot writes the current snapshot to the shared store.
func (c *Controller) persistSnapshot() {
	c.mu.Lock()
	snap := c.snapshot
	c.mu.Unlock()

	if _, err := c.store.SetJSON(statestore.KeyPipelineState, snap); err != nil {
		c.logger.Warnw("Failed to persist run snapshot",
			"symbol", sym.Sync,
			"error", err,
		)
	}
}

// persistOptions writes the last-used start options to the shared store.
func (c *Controller) persistOptions() {
	c.mu.Lock()
	opts := c.options
	c.mu.Unlock()

	if _, err := c.store.SetJSON(statestore.KeyPipelineOptions, opts); err != nil {
		c.logger.Warnw("Failed to persist start options",
			"symbol", sym.Sync,
			"error", err,
		)
	}
}
