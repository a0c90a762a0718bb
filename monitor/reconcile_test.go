package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/loom/internal/util"
	"github.com/teranos/loom/pipeline"
	"github.com/teranos/loom/statestore"
)

// seedPersistedRun writes a snapshot left behind by a process that died
// mid-run: an active start time, accumulated duration, and log text.
func seedPersistedRun(t *testing.T, store *statestore.Store, start time.Time, duration float64, logs string) {
	t.Helper()
	_, err := store.SetJSON(statestore.KeyPipelineState, LiveSnapshot{
		ActiveRunStartTime: &start,
		CurrentDuration:    duration,
		Logs:               logs,
	})
	require.NoError(t, err)
}

func TestReconcileBackfillsMissedRun(t *testing.T) {
	f := newFakeSupervisor(t)
	c, store := newTestController(t, f)
	ctx := context.Background()

	start := time.Now().Add(-10 * time.Minute).UTC()
	terminalLog := "PHASE 4: Post-Processing\nPIPELINE COMPLETE"
	seedPersistedRun(t, store, start, 123.5, terminalLog)
	require.NoError(t, c.loadPersisted())

	f.setStatus(false, nil)
	f.setLogs(terminalLog)
	c.pollOnce(ctx)

	records := c.History()
	require.Len(t, records, 1)
	assert.Equal(t, pipeline.StatusCompleted, records[0].Status)
	assert.True(t, records[0].Summary.BestEffort, "a backfilled record must be marked best-effort")
	assert.True(t, records[0].Timestamp.Equal(start), "backfill keeps the restored start, not the discovery time")
	assert.Equal(t, 123.5, records[0].Duration)

	snap := c.Snapshot()
	assert.Nil(t, snap.ActiveRunStartTime)
	assert.Zero(t, snap.CurrentDuration)
	require.NotNil(t, snap.LastRunSummary)
	assert.True(t, snap.LastRunSummary.BestEffort)
}

func TestReconcileHonorsClearedHistory(t *testing.T) {
	f := newFakeSupervisor(t)
	c, store := newTestController(t, f)
	ctx := context.Background()

	start := time.Now().Add(-10 * time.Minute).UTC()
	seedPersistedRun(t, store, start, 60, "PIPELINE COMPLETE")
	_, err := store.SetJSON(statestore.KeyPipelineHistoryCleared, true)
	require.NoError(t, err)
	require.NoError(t, c.loadPersisted())

	f.setStatus(false, nil)
	f.setLogs("PIPELINE COMPLETE")
	c.pollOnce(ctx)

	// The user wiped history: no resurrection, and the stale marker is gone.
	assert.Empty(t, c.History())
	assert.Nil(t, c.Snapshot().ActiveRunStartTime)

	c.pollOnce(ctx)
	assert.Empty(t, c.History())
}

func TestReconcileRateLimited(t *testing.T) {
	f := newFakeSupervisor(t)
	c, store := newTestController(t, f)
	ctx := context.Background()

	start := time.Now().Add(-10 * time.Minute).UTC()
	seedPersistedRun(t, store, start, 60, "PIPELINE COMPLETE")
	require.NoError(t, c.loadPersisted())

	f.setStatus(false, nil)
	f.setLogs("PIPELINE COMPLETE")
	c.pollOnce(ctx)
	require.Len(t, c.History(), 1)

	// A second stale marker inside the rate window stays unprocessed.
	again := time.Now().Add(-5 * time.Minute).UTC()
	c.mu.Lock()
	c.restoredStart = &again
	c.mu.Unlock()

	c.pollOnce(ctx)
	assert.Len(t, c.History(), 1)
}

func TestReconcileSkippedWhileJobRuns(t *testing.T) {
	f := newFakeSupervisor(t)
	c, store := newTestController(t, f)
	ctx := context.Background()

	start := time.Now().Add(-10 * time.Minute).UTC()
	_, err := store.SetJSON(statestore.KeyPipelineState, LiveSnapshot{
		ActiveRunStartTime: &start,
		CurrentDuration:    600,
		Logs:               "PHASE 1: Entity Extraction",
		ManuallyStopped:    true,
	})
	require.NoError(t, err)
	require.NoError(t, c.loadPersisted())

	// The job is still alive: tracking resumes with the restored start and
	// the manual-stop flag intact, and nothing is backfilled.
	f.setStatus(true, nil)
	f.setLogs("PHASE 1: Entity Extraction")
	c.pollOnce(ctx)

	assert.Empty(t, c.History())
	snap := c.Snapshot()
	require.NotNil(t, snap.ActiveRunStartTime)
	assert.True(t, snap.ActiveRunStartTime.Equal(start))
	assert.True(t, snap.ManuallyStopped)

	// When the resumed run ends, the restored flag still decides the status.
	f.setStatus(false, util.Ptr(0))
	f.setLogs("PIPELINE COMPLETE")
	c.pollOnce(ctx)

	records := c.History()
	require.Len(t, records, 1)
	assert.Equal(t, pipeline.StatusStopped, records[0].Status)
}

func TestReconcileWaitsForLogs(t *testing.T) {
	f := newFakeSupervisor(t)
	c, store := newTestController(t, f)
	ctx := context.Background()

	start := time.Now().Add(-10 * time.Minute).UTC()
	seedPersistedRun(t, store, start, 60, "")
	require.NoError(t, c.loadPersisted())

	f.setStatus(false, nil)
	f.setLogs("")
	c.pollOnce(ctx)

	// Nothing to classify yet; the marker survives for a later pass.
	assert.Empty(t, c.History())
	c.mu.Lock()
	marker := c.restoredStart
	c.mu.Unlock()
	require.NotNil(t, marker)

	f.setLogs("PIPELINE COMPLETE")
	c.pollOnce(ctx)
	require.Len(t, c.History(), 1)
	assert.True(t, c.History()[0].Summary.BestEffort)
}
