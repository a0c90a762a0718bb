package monitor

import "time"

// RunLifecycle tracks the identity of the active run between poll ticks:
// whether the job was running at the last observation, whether the user
// asked for the current run to stop, and when the run started. The
// controller owns exactly one value and mutates it only under its lock,
// so run-edge decisions never depend on state outside the tick.
type RunLifecycle struct {
	WasRunning      bool
	ManuallyStopped bool
	StartTime       *time.Time
}

// Duration reports seconds since the run started, zero when no run is
// being tracked.
func (l RunLifecycle) Duration(now time.Time) float64 {
	if l.StartTime == nil {
		return 0
	}
	return now.Sub(*l.StartTime).Seconds()
}

// Reset clears all tracking, ready for the next run.
func (l *RunLifecycle) Reset() {
	*l = RunLifecycle{}
}
