package statestore

import "time"

// Well-known state keys shared between the daemon, the CLI, and any other
// monitor instance pointed at the same database. Values are whole JSON
// documents; a write replaces the previous value for its key.
const (
	// KeyPipelineOptions holds the persisted StartOptions form state.
	KeyPipelineOptions = "pipeline-options"

	// KeyPipelineState holds the live RunState snapshot.
	KeyPipelineState = "pipeline-state"

	// KeyPipelineRunHistory holds the bounded run history list.
	KeyPipelineRunHistory = "pipeline-run-history"

	// KeyPipelineHistoryCleared holds the sticky cleared flag. Once set it
	// blocks recovered-run backfill until a new run record is appended.
	KeyPipelineHistoryCleared = "pipeline-history-cleared"
)

// DefaultWatchInterval is how often the watcher checks for foreign writes.
const DefaultWatchInterval = 500 * time.Millisecond
