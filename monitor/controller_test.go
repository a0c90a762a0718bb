package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/loom/errors"
	loomtesting "github.com/teranos/loom/internal/testing"
	"github.com/teranos/loom/internal/util"
	"github.com/teranos/loom/pipeline"
	"github.com/teranos/loom/statestore"
	"github.com/teranos/loom/supervisor"
)

// fakeSupervisor is a scriptable stand-in for the pipeline supervisor.
type fakeSupervisor struct {
	mu         sync.Mutex
	status     supervisor.JobStatus
	logs       string
	statusCode int // non-zero forces the status route to fail with this code
	logsCode   int // same for the logs route
	stopCode   int // same for the stop route
	startCalls int
	stopCalls  int
	clearCalls int
	lastStart  pipeline.StartRequest

	srv *httptest.Server
}

func newFakeSupervisor(t *testing.T) *fakeSupervisor {
	t.Helper()
	f := &fakeSupervisor{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/pipeline/status", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.statusCode != 0 {
			http.Error(w, "no healthy upstream", f.statusCode)
			return
		}
		_ = json.NewEncoder(w).Encode(f.status)
	})
	mux.HandleFunc("/api/pipeline/logs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.logsCode != 0 {
			http.Error(w, "no healthy upstream", f.logsCode)
			return
		}
		fmt.Fprint(w, f.logs)
	})
	mux.HandleFunc("/api/pipeline/start", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.startCalls++
		_ = json.NewDecoder(r.Body).Decode(&f.lastStart)
	})
	mux.HandleFunc("/api/pipeline/stop", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stopCalls++
		if f.stopCode != 0 {
			http.Error(w, "stop failed", f.stopCode)
		}
	})
	mux.HandleFunc("/api/pipeline/clear_logs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.clearCalls++
	})
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"version":"1.2.3"}`)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSupervisor) setStatus(running bool, returncode *int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = supervisor.JobStatus{Running: running, Returncode: returncode}
	f.statusCode = 0
}

func (f *fakeSupervisor) setLogs(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = text
	f.logsCode = 0
}

func (f *fakeSupervisor) failStatus(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCode = code
}

func (f *fakeSupervisor) failLogs(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logsCode = code
}

func (f *fakeSupervisor) lastStartRequest() pipeline.StartRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastStart
}

func newTestController(t *testing.T, f *fakeSupervisor) (*Controller, *statestore.Store) {
	t.Helper()
	conn := loomtesting.CreateTestDB(t)
	store := statestore.NewStore(conn, "test-local")
	client := supervisor.NewClient(supervisor.Config{
		BaseURL:        f.srv.URL,
		PollTimeout:    2 * time.Second,
		ControlTimeout: 2 * time.Second,
	})
	return NewController(Config{
		Client:          client,
		Store:           store,
		PersistDebounce: 50 * time.Millisecond,
	}), store
}

func drainEvents(ch chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestControllerExactlyOnceCommit(t *testing.T) {
	f := newFakeSupervisor(t)
	c, _ := newTestController(t, f)
	ctx := context.Background()

	f.setStatus(true, nil)
	f.setLogs("PHASE 1: Entity Extraction\nIngesting article 1 [1/10]")
	c.pollOnce(ctx)
	c.pollOnce(ctx) // running again: still one active run, no commit

	require.NotNil(t, c.Snapshot().ActiveRunStartTime)
	assert.Empty(t, c.History())

	f.setStatus(false, util.Ptr(0))
	f.setLogs("PHASE 4: Post-Processing\nPIPELINE COMPLETE")
	c.pollOnce(ctx) // falling edge commits
	c.pollOnce(ctx) // still down: no second commit
	c.pollOnce(ctx)

	records := c.History()
	require.Len(t, records, 1)
	assert.Equal(t, pipeline.StatusCompleted, records[0].Status)
	assert.Nil(t, c.Snapshot().ActiveRunStartTime)
}

func TestControllerCleanCompletionScenario(t *testing.T) {
	f := newFakeSupervisor(t)
	c, _ := newTestController(t, f)
	ctx := context.Background()

	f.setStatus(true, nil)
	f.setLogs("PHASE 4: Post-Processing\nwrapping up")
	c.pollOnce(ctx)

	f.setStatus(false, util.Ptr(0))
	f.setLogs("PHASE 4: Post-Processing\nPOST-PROCESSING COMPLETE")
	c.pollOnce(ctx)

	records := c.History()
	require.Len(t, records, 1)
	assert.Equal(t, pipeline.StatusCompleted, records[0].Status)
	assert.Contains(t, records[0].Logs, "POST-PROCESSING COMPLETE")

	snap := c.Snapshot()
	require.NotNil(t, snap.LastRunSummary)
	assert.Equal(t, "Post-Processing", snap.LastRunSummary.Phase)
}

func TestControllerManualStopScenario(t *testing.T) {
	f := newFakeSupervisor(t)
	c, _ := newTestController(t, f)
	ctx := context.Background()

	f.setStatus(true, nil)
	f.setLogs("PHASE 2: Relationship Building")
	c.pollOnce(ctx)

	require.NoError(t, c.StopRun(ctx))
	assert.True(t, c.Snapshot().ManuallyStopped)

	// Even a completion-looking log with returncode 0 stays Stopped.
	f.setStatus(false, util.Ptr(0))
	f.setLogs("PHASE 4: Post-Processing\nPOST-PROCESSING COMPLETE")
	c.pollOnce(ctx)

	records := c.History()
	require.Len(t, records, 1)
	assert.Equal(t, pipeline.StatusStopped, records[0].Status)
}

func TestControllerFailureScenario(t *testing.T) {
	f := newFakeSupervisor(t)
	c, _ := newTestController(t, f)
	ctx := context.Background()

	f.setStatus(true, nil)
	f.setLogs("PHASE 1: Entity Extraction")
	c.pollOnce(ctx)

	f.setStatus(false, util.Ptr(1))
	f.setLogs("PHASE 1: Entity Extraction\nError: LLM request failed")
	c.pollOnce(ctx)

	records := c.History()
	require.Len(t, records, 1)
	assert.Equal(t, pipeline.StatusFailed, records[0].Status)
	require.NotNil(t, records[0].Summary.Errors)
	assert.Greater(t, *records[0].Summary.Errors, 0)
}

func TestControllerTransientFailureKeepsLastGood(t *testing.T) {
	f := newFakeSupervisor(t)
	c, _ := newTestController(t, f)
	ctx := context.Background()

	f.setStatus(true, nil)
	f.setLogs("PHASE 1: Entity Extraction\nIngesting article 2 [2/10]")
	c.pollOnce(ctx)
	require.True(t, c.Status().Running)

	f.failStatus(http.StatusServiceUnavailable)
	f.failLogs(http.StatusServiceUnavailable)
	c.pollOnce(ctx)

	// The flapping gateway must not flip the view or commit a record.
	assert.True(t, c.Status().Running)
	assert.Contains(t, c.Snapshot().Logs, "Ingesting article 2")
	assert.Empty(t, c.History())
	require.NotNil(t, c.Snapshot().ActiveRunStartTime)
}

func TestControllerLogFailureIndependentOfStatus(t *testing.T) {
	f := newFakeSupervisor(t)
	c, _ := newTestController(t, f)
	ctx := context.Background()

	f.setStatus(true, nil)
	f.setLogs("first tail")
	c.pollOnce(ctx)

	f.setStatus(true, util.Ptr(0)) // pretend returncode surfaces early
	f.failLogs(http.StatusServiceUnavailable)
	c.pollOnce(ctx)

	// Status advanced, logs kept.
	require.NotNil(t, c.Status().Returncode)
	assert.Equal(t, "first tail", c.Snapshot().Logs)
}

func TestControllerProgressTracksLogs(t *testing.T) {
	f := newFakeSupervisor(t)
	c, _ := newTestController(t, f)
	ctx := context.Background()

	f.setStatus(true, nil)
	f.setLogs("PHASE 1: Entity Extraction\nIngesting article 3 [3/10]")
	c.pollOnce(ctx)

	snap := c.Snapshot()
	require.NotNil(t, snap.Progress)
	assert.Equal(t, "Entity Extraction", snap.Progress.Phase)
	assert.Equal(t, 3, snap.Progress.Current)
	assert.Equal(t, 30.0, snap.Progress.Percentage)

	// Unrecognizable text keeps the previous progress instead of blanking.
	f.setLogs("chatter with no patterns")
	c.pollOnce(ctx)
	snap = c.Snapshot()
	require.NotNil(t, snap.Progress)
	assert.Equal(t, 3, snap.Progress.Current)
}

func TestControllerClearLogsGate(t *testing.T) {
	f := newFakeSupervisor(t)
	c, _ := newTestController(t, f)
	ctx := context.Background()

	f.setStatus(false, util.Ptr(0))
	f.setLogs("leftover logs from the last run")
	c.pollOnce(ctx)
	assert.Contains(t, c.Snapshot().Logs, "leftover")

	require.NoError(t, c.ClearLogs(ctx))
	assert.True(t, c.Snapshot().LogsManuallyCleared)
	assert.Empty(t, c.Snapshot().Logs)

	// While the job stays down, fetched logs must not repopulate the view.
	c.pollOnce(ctx)
	assert.Empty(t, c.Snapshot().Logs)

	// A new run resets the gate and logs flow again.
	f.setStatus(true, nil)
	f.setLogs("PHASE 0: Crawl")
	c.pollOnce(ctx)
	assert.False(t, c.Snapshot().LogsManuallyCleared)
	assert.Contains(t, c.Snapshot().Logs, "PHASE 0")
}

func TestControllerStartRun(t *testing.T) {
	t.Run("submits options and resets flags", func(t *testing.T) {
		f := newFakeSupervisor(t)
		c, _ := newTestController(t, f)
		ctx := context.Background()

		c.mu.Lock()
		c.snapshot.LogsManuallyCleared = true
		c.snapshot.ManuallyStopped = true
		c.lifecycle.ManuallyStopped = true
		c.mu.Unlock()

		opts := pipeline.StartOptions{Category: "technology", PageLimit: 5, SkipEnrichment: true}
		require.NoError(t, c.StartRun(ctx, opts))

		sent := f.lastStartRequest()
		assert.Equal(t, "technology", sent.Category)
		assert.Equal(t, 5, sent.PageLimit)
		assert.True(t, sent.SkipEnrichment)

		snap := c.Snapshot()
		assert.False(t, snap.LogsManuallyCleared)
		assert.False(t, snap.ManuallyStopped)
		assert.Equal(t, "technology", c.Options().Category)
	})

	t.Run("rejected while running", func(t *testing.T) {
		f := newFakeSupervisor(t)
		c, _ := newTestController(t, f)
		ctx := context.Background()

		f.setStatus(true, nil)
		c.pollOnce(ctx)

		err := c.StartRun(ctx, pipeline.StartOptions{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrAlreadyRunning))
		assert.Equal(t, 0, f.startCalls)
	})

	t.Run("invalid options rejected before the wire", func(t *testing.T) {
		f := newFakeSupervisor(t)
		c, _ := newTestController(t, f)

		err := c.StartRun(context.Background(), pipeline.StartOptions{PageLimit: -1})
		require.Error(t, err)
		assert.True(t, errors.IsInvalidRequestError(err))
		assert.Equal(t, 0, f.startCalls)
	})
}

func TestControllerStopRun(t *testing.T) {
	t.Run("rejected while idle", func(t *testing.T) {
		f := newFakeSupervisor(t)
		c, _ := newTestController(t, f)

		err := c.StopRun(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrNotRunning))
		assert.Equal(t, 0, f.stopCalls)
	})

	t.Run("manual-stop flag survives a failed stop request", func(t *testing.T) {
		f := newFakeSupervisor(t)
		c, _ := newTestController(t, f)
		ctx := context.Background()

		f.setStatus(true, nil)
		c.pollOnce(ctx)

		f.mu.Lock()
		f.stopCode = http.StatusInternalServerError
		f.mu.Unlock()

		err := c.StopRun(ctx)
		require.Error(t, err)
		assert.True(t, c.Snapshot().ManuallyStopped, "flag must be set before the request")
	})
}

func TestControllerDebouncedPersist(t *testing.T) {
	f := newFakeSupervisor(t)
	c, store := newTestController(t, f)

	before, err := store.CurrentRevision()
	require.NoError(t, err)

	c.schedulePersist()
	time.Sleep(10 * time.Millisecond)
	c.schedulePersist()
	c.schedulePersist()

	time.Sleep(200 * time.Millisecond)

	after, err := store.CurrentRevision()
	require.NoError(t, err)
	assert.Equal(t, before+1, after, "writes inside the window must collapse into one")
}

func TestControllerSubscribeReceivesRunCompleted(t *testing.T) {
	f := newFakeSupervisor(t)
	c, _ := newTestController(t, f)
	ctx := context.Background()

	ch := c.Subscribe()
	defer c.Unsubscribe(ch)

	f.setStatus(true, nil)
	f.setLogs("PHASE 1: Entity Extraction")
	c.pollOnce(ctx)

	f.setStatus(false, util.Ptr(0))
	f.setLogs("PIPELINE COMPLETE")
	c.pollOnce(ctx)

	events := drainEvents(ch)
	var kinds []EventKind
	var record *RunRecord
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventRunCompleted {
			record = ev.Record
		}
	}
	assert.Contains(t, kinds, EventSnapshot)
	assert.Contains(t, kinds, EventHistory)
	require.NotNil(t, record)
	assert.Equal(t, pipeline.StatusCompleted, record.Status)
}
