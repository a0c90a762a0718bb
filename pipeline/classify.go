package pipeline

// RunStatus classifies how a run terminated.
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusStopped   RunStatus = "stopped"
	StatusFailed    RunStatus = "failed"
)

// Termination bundles the classifier verdict with the summary distilled
// from the full run log.
type Termination struct {
	Status  RunStatus
	Summary RunSummary
}

// Classify decides how a run ended. It fires only on a running→not-running
// edge and returns nil otherwise.
//
// Decision order:
//
//  1. A manual stop wins over everything, including a zero return code and
//     completion text: the user asked for it, so the run is Stopped.
//  2. A non-zero return code is Failed.
//  3. Otherwise the full log is searched for a final completion marker.
//     Found means Completed; absent means Stopped. A truncated tail can
//     lose the marker and misclassify a legitimate success as Stopped,
//     which is accepted over fabricating completions.
func Classify(wasRunning, isRunning bool, returncode *int, manuallyStopped bool, fullLog string) *Termination {
	if !wasRunning || isRunning {
		return nil
	}

	var status RunStatus
	switch {
	case manuallyStopped:
		status = StatusStopped
	case returncode != nil && *returncode != 0:
		status = StatusFailed
	case hasTerminalMarker(fullLog):
		status = StatusCompleted
	default:
		status = StatusStopped
	}

	return &Termination{Status: status, Summary: Summarize(fullLog)}
}
