package monitor

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/loom/errors"
	"github.com/teranos/loom/internal/util"
	"github.com/teranos/loom/pipeline"
	"github.com/teranos/loom/statestore"
	"github.com/teranos/loom/sym"
)

const (
	// DefaultHistoryLimit caps the run history; the oldest record is
	// evicted when a new one pushes past it.
	DefaultHistoryLimit = 50

	// DefaultLogRetentionChars is the log suffix kept on completed and
	// stopped records.
	DefaultLogRetentionChars = 10_000

	// DefaultFailedLogRetentionChars is the larger suffix kept on failed
	// records, where the tail is usually the part worth debugging.
	DefaultFailedLogRetentionChars = 50_000
)

// RunRecord is one finished pipeline run. Immutable once appended; only
// explicit clearing or FIFO eviction removes it.
type RunRecord struct {
	ID        string              `json:"id"`
	Timestamp time.Time           `json:"timestamp"`
	Duration  float64             `json:"duration_seconds"`
	Status    pipeline.RunStatus  `json:"status"`
	Summary   pipeline.RunSummary `json:"summary"`
	Logs      string              `json:"logs"`
}

// HistoryStore keeps the bounded most-recent-first run history and mirrors
// every mutation to the shared store. The sticky cleared flag survives
// until a new record is appended and blocks recovered-run backfill while
// set.
type HistoryStore struct {
	store  *statestore.Store
	logger *zap.SugaredLogger

	limit           int
	retention       int
	retentionFailed int

	mu      sync.Mutex
	records []RunRecord
	cleared bool
}

// HistoryOptions tunes the store; zero values take the defaults.
type HistoryOptions struct {
	Limit                int
	RetentionChars       int
	RetentionFailedChars int
}

// NewHistoryStore creates a history store persisting through the given
// state store.
func NewHistoryStore(store *statestore.Store, logger *zap.SugaredLogger, opts HistoryOptions) *HistoryStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultHistoryLimit
	}
	if opts.RetentionChars <= 0 {
		opts.RetentionChars = DefaultLogRetentionChars
	}
	if opts.RetentionFailedChars <= 0 {
		opts.RetentionFailedChars = DefaultFailedLogRetentionChars
	}
	return &HistoryStore{
		store:           store,
		logger:          logger,
		limit:           opts.Limit,
		retention:       opts.RetentionChars,
		retentionFailed: opts.RetentionFailedChars,
	}
}

// Load restores the persisted history list and cleared flag.
func (h *HistoryStore) Load() error {
	var records []RunRecord
	if _, err := h.store.GetJSON(statestore.KeyPipelineRunHistory, &records); err != nil {
		return err
	}

	var cleared bool
	if _, err := h.store.GetJSON(statestore.KeyPipelineHistoryCleared, &cleared); err != nil {
		return err
	}

	h.mu.Lock()
	h.records = records
	h.cleared = cleared
	h.mu.Unlock()
	return nil
}

// Append prepends a run record, truncating its logs to the retention
// budget for its status and evicting the oldest record past the cap.
// Appending a genuine record lifts the cleared flag.
func (h *HistoryStore) Append(record RunRecord) error {
	record.Logs = util.TailString(record.Logs, h.retentionFor(record.Status))

	h.mu.Lock()
	h.records = append([]RunRecord{record}, h.records...)
	if len(h.records) > h.limit {
		h.records = h.records[:h.limit]
	}
	h.cleared = false
	records := h.snapshotLocked()
	h.mu.Unlock()

	h.logger.Infow("Run recorded",
		"symbol", sym.Run,
		"run_id", record.ID,
		"status", record.Status,
		"duration_seconds", record.Duration,
	)
	return h.persist(records, false)
}

// Clear empties the history and sets the sticky cleared flag.
func (h *HistoryStore) Clear() error {
	h.mu.Lock()
	h.records = nil
	h.cleared = true
	h.mu.Unlock()

	h.logger.Infow("Run history cleared", "symbol", sym.Run)
	return h.persist([]RunRecord{}, true)
}

// List returns the history, most recent first.
func (h *HistoryStore) List() []RunRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// Get returns the record with the given ID, or errors.ErrNotFound.
func (h *HistoryStore) Get(id string) (*RunRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.records {
		if h.records[i].ID == id {
			record := h.records[i]
			return &record, nil
		}
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "run %s", id)
}

// Cleared reports whether the user has wiped history since the last
// appended record.
func (h *HistoryStore) Cleared() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cleared
}

// adoptRemote replaces the in-memory view with state written by another
// instance. No re-persist: echoing the write back would ping-pong between
// instances forever.
func (h *HistoryStore) adoptRemote(records []RunRecord) {
	h.mu.Lock()
	h.records = records
	h.mu.Unlock()
}

func (h *HistoryStore) adoptRemoteCleared(cleared bool) {
	h.mu.Lock()
	h.cleared = cleared
	if cleared {
		h.records = nil
	}
	h.mu.Unlock()
}

func (h *HistoryStore) retentionFor(status pipeline.RunStatus) int {
	if status == pipeline.StatusFailed {
		return h.retentionFailed
	}
	return h.retention
}

// snapshotLocked copies the record slice so callers cannot alias the
// internal one. REQUIRES: h.mu held.
func (h *HistoryStore) snapshotLocked() []RunRecord {
	out := make([]RunRecord, len(h.records))
	copy(out, h.records)
	return out
}

func (h *HistoryStore) persist(records []RunRecord, cleared bool) error {
	if _, err := h.store.SetJSON(statestore.KeyPipelineRunHistory, records); err != nil {
		return err
	}
	if _, err := h.store.SetJSON(statestore.KeyPipelineHistoryCleared, cleared); err != nil {
		return err
	}
	return nil
}
