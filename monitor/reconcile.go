package monitor

import (
	"github.com/teranos/loom/pipeline"
	"github.com/teranos/loom/sym"
)

// maybeReconcile backfills a history record for a run that ended while no
// monitor was alive to see the falling edge. It fires only when all of
// these hold:
//
//   - the persisted snapshot carried an active-run start time from a
//     previous process life,
//   - the job is currently observed as not running,
//   - accumulated log text exists to classify,
//   - the user has not cleared history since (sticky flag), and
//   - the rate limiter grants a token (default one pass per 5 minutes).
//
// The resulting record is best-effort: the real return code is unknown and
// the log may be incomplete, so the summary is flagged accordingly.
func (c *Controller) maybeReconcile() {
	c.mu.Lock()
	start := c.restoredStart
	logs := c.snapshot.Logs
	duration := c.snapshot.CurrentDuration
	running := c.status.Running
	c.mu.Unlock()

	if start == nil || running || logs == "" {
		return
	}

	if c.history.Cleared() {
		// The user wiped history; honor it and drop the stale marker so
		// this run can never be resurrected.
		c.mu.Lock()
		c.restoredStart = nil
		c.snapshot.ActiveRunStartTime = nil
		c.snapshot.CurrentDuration = 0
		c.mu.Unlock()
		c.schedulePersist()
		return
	}

	if !c.reconcileLimiter.Allow() {
		return
	}

	term := pipeline.Classify(true, false, nil, false, logs)
	term.Summary.BestEffort = true

	record := RunRecord{
		ID:        NewRunID(),
		Timestamp: *start,
		Duration:  duration,
		Status:    term.Status,
		Summary:   term.Summary,
		Logs:      logs,
	}
	if err := c.history.Append(record); err != nil {
		c.logger.Errorw("Failed to persist backfilled run record",
			"symbol", sym.Run,
			"run_id", record.ID,
			"error", err,
		)
	}

	c.mu.Lock()
	c.restoredStart = nil
	c.snapshot.ActiveRunStartTime = nil
	c.snapshot.CurrentDuration = 0
	summary := term.Summary
	c.snapshot.LastRunSummary = &summary
	c.mu.Unlock()

	c.logger.Warnw("Backfilled a run that ended while no monitor was watching",
		"symbol", sym.Run,
		"run_id", record.ID,
		"status", record.Status,
	)

	c.notify(Event{Kind: EventRunCompleted, Record: &record})
	c.notify(Event{Kind: EventHistory})
	c.notify(Event{Kind: EventSnapshot})
	c.schedulePersist()
}
