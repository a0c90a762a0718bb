package monitor

// MergeSnapshot folds a snapshot written by another monitor instance into
// the local one. The policy protects whichever instance has the better
// vantage point:
//
//   - Run identity (start time, duration) transfers only while the local
//     instance also observes the job as running, so a stale peer cannot
//     resurrect a finished run. A peer that has not seen the run yet
//     (nil start time) contributes nothing.
//   - Live log text transfers only while the local instance observes the
//     job as NOT running; a locally watched run trusts its own poller.
//   - Everything else (progress, last run summary, the manual flags) is
//     last-write-wins.
//
// Pure function; both inputs are left untouched.
func MergeSnapshot(local, remote LiveSnapshot, localRunning bool) LiveSnapshot {
	merged := local

	if localRunning && remote.ActiveRunStartTime != nil {
		merged.ActiveRunStartTime = remote.ActiveRunStartTime
		merged.CurrentDuration = remote.CurrentDuration
	}

	if !localRunning {
		merged.Logs = remote.Logs
	}

	merged.Progress = remote.Progress
	merged.LastRunSummary = remote.LastRunSummary
	merged.LogsManuallyCleared = remote.LogsManuallyCleared
	merged.ManuallyStopped = remote.ManuallyStopped

	return merged
}
