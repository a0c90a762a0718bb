package statestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	loomtesting "github.com/teranos/loom/internal/testing"
)

func waitForEvent(t *testing.T, ch chan Event, timeout time.Duration) (Event, bool) {
	t.Helper()
	select {
	case ev := <-ch:
		return ev, true
	case <-time.After(timeout):
		return Event{}, false
	}
}

func TestWatcherDeliversForeignWrites(t *testing.T) {
	db := loomtesting.CreateTestDB(t)
	daemon := NewStore(db, "daemon-1")
	cli := NewStore(db, "cli-1")

	w := NewWatcher(daemon, 20*time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	ch := w.Subscribe()
	defer w.Unsubscribe(ch)

	rev, err := cli.Set(KeyPipelineState, `{"isRunning":true}`)
	require.NoError(t, err)

	ev, ok := waitForEvent(t, ch, 2*time.Second)
	require.True(t, ok, "expected foreign write to be delivered")
	assert.Equal(t, KeyPipelineState, ev.Key)
	assert.Equal(t, `{"isRunning":true}`, ev.Value)
	assert.Equal(t, "cli-1", ev.Origin)
	assert.Equal(t, rev, ev.Revision)
}

func TestWatcherSkipsOwnWrites(t *testing.T) {
	db := loomtesting.CreateTestDB(t)
	daemon := NewStore(db, "daemon-1")
	cli := NewStore(db, "cli-1")

	w := NewWatcher(daemon, 20*time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	ch := w.Subscribe()
	defer w.Unsubscribe(ch)

	// Own write: cursor advances, no event
	_, err := daemon.Set(KeyPipelineState, `{"isRunning":true}`)
	require.NoError(t, err)

	_, ok := waitForEvent(t, ch, 300*time.Millisecond)
	assert.False(t, ok, "own writes must not notify")

	// A foreign write afterwards still comes through, proving the cursor
	// moved past the skipped row instead of stalling on it
	_, err = cli.Set(KeyPipelineOptions, `{}`)
	require.NoError(t, err)

	ev, ok := waitForEvent(t, ch, 2*time.Second)
	require.True(t, ok, "foreign write after own write must be delivered")
	assert.Equal(t, KeyPipelineOptions, ev.Key)
	assert.Equal(t, "cli-1", ev.Origin)
}

func TestWatcherBaselinesAtStart(t *testing.T) {
	db := loomtesting.CreateTestDB(t)
	daemon := NewStore(db, "daemon-1")
	cli := NewStore(db, "cli-1")

	// Writes before Start are history, not events
	_, err := cli.Set(KeyPipelineRunHistory, `[]`)
	require.NoError(t, err)

	w := NewWatcher(daemon, 20*time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	ch := w.Subscribe()
	defer w.Unsubscribe(ch)

	_, ok := waitForEvent(t, ch, 300*time.Millisecond)
	assert.False(t, ok, "pre-existing rows must not replay")
}

func TestWatcherMultipleSubscribers(t *testing.T) {
	db := loomtesting.CreateTestDB(t)
	daemon := NewStore(db, "daemon-1")
	cli := NewStore(db, "cli-1")

	w := NewWatcher(daemon, 20*time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	ch1 := w.Subscribe()
	ch2 := w.Subscribe()
	defer w.Unsubscribe(ch1)

	_, err := cli.Set(KeyPipelineState, `{}`)
	require.NoError(t, err)

	_, ok1 := waitForEvent(t, ch1, 2*time.Second)
	_, ok2 := waitForEvent(t, ch2, 2*time.Second)
	assert.True(t, ok1, "first subscriber should receive event")
	assert.True(t, ok2, "second subscriber should receive event")

	// After unsubscribing, ch2 stops receiving
	w.Unsubscribe(ch2)
	_, err = cli.Set(KeyPipelineState, `{"isRunning":true}`)
	require.NoError(t, err)

	_, ok1 = waitForEvent(t, ch1, 2*time.Second)
	assert.True(t, ok1)
	_, ok2 = waitForEvent(t, ch2, 300*time.Millisecond)
	assert.False(t, ok2, "unsubscribed channel must not receive events")
}

func TestWatcherStopIsIdempotentAndPrompt(t *testing.T) {
	db := loomtesting.CreateTestDB(t)
	store := NewStore(db, "daemon-1")

	w := NewWatcher(store, 20*time.Millisecond)
	require.NoError(t, w.Start())

	done := make(chan struct{})
	go func() {
		w.Stop()
		w.Stop() // second Stop must not panic or hang
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return promptly")
	}
}
