package monitor

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/loom/errors"
	loomtesting "github.com/teranos/loom/internal/testing"
	"github.com/teranos/loom/pipeline"
	"github.com/teranos/loom/statestore"
)

func newTestHistory(t *testing.T) (*HistoryStore, *statestore.Store) {
	t.Helper()
	conn := loomtesting.CreateTestDB(t)
	store := statestore.NewStore(conn, "test-local")
	return NewHistoryStore(store, nil, HistoryOptions{}), store
}

func testRecord(id string, status pipeline.RunStatus) RunRecord {
	return RunRecord{
		ID:        id,
		Timestamp: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
		Duration:  60,
		Status:    status,
		Logs:      "log tail for " + id,
	}
}

func TestHistoryAppendOrdersMostRecentFirst(t *testing.T) {
	h, _ := newTestHistory(t)

	require.NoError(t, h.Append(testRecord("RUN_a", pipeline.StatusCompleted)))
	require.NoError(t, h.Append(testRecord("RUN_b", pipeline.StatusStopped)))
	require.NoError(t, h.Append(testRecord("RUN_c", pipeline.StatusFailed)))

	records := h.List()
	require.Len(t, records, 3)
	assert.Equal(t, "RUN_c", records[0].ID)
	assert.Equal(t, "RUN_a", records[2].ID)
}

func TestHistoryCapEvictsOldest(t *testing.T) {
	h, _ := newTestHistory(t)

	for i := 1; i <= 60; i++ {
		require.NoError(t, h.Append(testRecord(fmt.Sprintf("RUN_%d", i), pipeline.StatusCompleted)))
	}

	records := h.List()
	require.Len(t, records, DefaultHistoryLimit)
	assert.Equal(t, "RUN_60", records[0].ID)
	assert.Equal(t, "RUN_11", records[len(records)-1].ID)
}

func TestHistoryRetentionAsymmetry(t *testing.T) {
	h, _ := newTestHistory(t)

	// 60k characters ending in a recognizable suffix; truncation must
	// keep the end of the log, where the failure evidence lives.
	longLog := strings.Repeat("x", 60_000-9) + "THE END__"

	failed := testRecord("RUN_failed", pipeline.StatusFailed)
	failed.Logs = longLog
	require.NoError(t, h.Append(failed))

	completed := testRecord("RUN_completed", pipeline.StatusCompleted)
	completed.Logs = longLog
	require.NoError(t, h.Append(completed))

	stopped := testRecord("RUN_stopped", pipeline.StatusStopped)
	stopped.Logs = longLog
	require.NoError(t, h.Append(stopped))

	records := h.List()
	require.Len(t, records, 3)

	byID := map[string]RunRecord{}
	for _, r := range records {
		byID[r.ID] = r
	}

	assert.Len(t, byID["RUN_failed"].Logs, DefaultFailedLogRetentionChars)
	assert.Len(t, byID["RUN_completed"].Logs, DefaultLogRetentionChars)
	assert.Len(t, byID["RUN_stopped"].Logs, DefaultLogRetentionChars)
	for id, r := range byID {
		assert.True(t, strings.HasSuffix(r.Logs, "THE END__"), "%s must keep the log suffix", id)
	}
}

func TestHistoryShortLogsKeptWhole(t *testing.T) {
	h, _ := newTestHistory(t)

	record := testRecord("RUN_short", pipeline.StatusFailed)
	record.Logs = "brief"
	require.NoError(t, h.Append(record))

	records := h.List()
	require.Len(t, records, 1)
	assert.Equal(t, "brief", records[0].Logs)
}

func TestHistoryClearedFlagStickiness(t *testing.T) {
	h, _ := newTestHistory(t)

	require.NoError(t, h.Append(testRecord("RUN_a", pipeline.StatusCompleted)))
	assert.False(t, h.Cleared())

	require.NoError(t, h.Clear())
	assert.True(t, h.Cleared())
	assert.Empty(t, h.List())

	// Only a genuinely appended record lifts the flag.
	require.NoError(t, h.Append(testRecord("RUN_b", pipeline.StatusStopped)))
	assert.False(t, h.Cleared())
	assert.Len(t, h.List(), 1)
}

func TestHistoryLoadRoundTrip(t *testing.T) {
	h, store := newTestHistory(t)

	require.NoError(t, h.Append(testRecord("RUN_a", pipeline.StatusFailed)))
	require.NoError(t, h.Append(testRecord("RUN_b", pipeline.StatusCompleted)))

	reloaded := NewHistoryStore(store, nil, HistoryOptions{})
	require.NoError(t, reloaded.Load())

	records := reloaded.List()
	require.Len(t, records, 2)
	assert.Equal(t, "RUN_b", records[0].ID)
	assert.False(t, reloaded.Cleared())

	require.NoError(t, h.Clear())
	require.NoError(t, reloaded.Load())
	assert.True(t, reloaded.Cleared())
	assert.Empty(t, reloaded.List())
}

func TestHistoryGet(t *testing.T) {
	h, _ := newTestHistory(t)

	require.NoError(t, h.Append(testRecord("RUN_a", pipeline.StatusCompleted)))

	record, err := h.Get("RUN_a")
	require.NoError(t, err)
	assert.Equal(t, "RUN_a", record.ID)

	_, err = h.Get("RUN_missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestHistoryAdoptRemoteDoesNotRePersist(t *testing.T) {
	h, store := newTestHistory(t)

	before, err := store.CurrentRevision()
	require.NoError(t, err)

	h.adoptRemote([]RunRecord{testRecord("RUN_remote", pipeline.StatusCompleted)})
	h.adoptRemoteCleared(false)

	after, err := store.CurrentRevision()
	require.NoError(t, err)
	assert.Equal(t, before, after, "adopting peer state must not write back")
	assert.Len(t, h.List(), 1)
}

func TestNewRunID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewRunID()
		assert.True(t, strings.HasPrefix(id, "RUN_"), "id %q must carry the RUN_ prefix", id)
		assert.False(t, seen[id], "id %q repeated", id)
		seen[id] = true
	}
}
