package monitor

import (
	"time"

	"github.com/teranos/loom/pipeline"
)

// LiveSnapshot is the currently-displayed run state and the unit replicated
// between monitor instances through the shared store. Pointer fields are
// replaced whole on update, never mutated in place, so a copied snapshot
// stays stable after the controller moves on.
type LiveSnapshot struct {
	ActiveRunStartTime  *time.Time              `json:"active_run_start_time,omitempty"`
	CurrentDuration     float64                 `json:"current_duration_seconds"`
	Logs                string                  `json:"logs"`
	Progress            *pipeline.ProgressState `json:"progress,omitempty"`
	LastRunSummary      *pipeline.RunSummary    `json:"last_run_summary,omitempty"`
	LogsManuallyCleared bool                    `json:"logs_manually_cleared"`
	ManuallyStopped     bool                    `json:"manually_stopped"`
}
