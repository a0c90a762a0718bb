package monitor

import (
	"context"
	"time"

	"github.com/teranos/loom/errors"
	"github.com/teranos/loom/pipeline"
	"github.com/teranos/loom/supervisor"
	"github.com/teranos/loom/sym"
)

// runPollLoop drives the status/log poll until the controller context is
// cancelled. Ticks run serially on this goroutine, so a slow tick delays
// the next instead of overlapping it.
func (c *Controller) runPollLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(c.ctx)
		}
	}
}

// runDurationTicker advances the active run's duration once a second.
func (c *Controller) runDurationTicker() {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case now := <-ticker.C:
			c.tickDuration(now)
		}
	}
}

func (c *Controller) tickDuration(now time.Time) {
	c.mu.Lock()
	if !c.lifecycle.WasRunning || c.lifecycle.StartTime == nil {
		c.mu.Unlock()
		return
	}
	c.snapshot.CurrentDuration = c.lifecycle.Duration(now)
	c.mu.Unlock()

	c.notify(Event{Kind: EventSnapshot})
	c.schedulePersist()
}

// pollOnce fetches supervisor status and a bounded log tail, absorbing
// transient failures so the last known-good view survives a flapping
// gateway. Status and log failures are handled independently: a dead log
// route must not block status updates, and vice versa.
func (c *Controller) pollOnce(ctx context.Context) {
	status, err := c.client.GetStatus(ctx)
	if err != nil {
		status = nil
		if errors.IsTransientError(err) {
			c.logger.Debugw("Skipping status update, supervisor unavailable",
				"symbol", sym.Net,
				"error", err,
			)
		} else {
			c.logger.Errorw("Pipeline status poll failed",
				"symbol", sym.Net,
				"error", err,
			)
		}
	}

	var logs *string
	text, err := c.client.FetchLogs(ctx, c.pollTailLines, 0)
	if err != nil {
		if errors.IsTransientError(err) {
			c.logger.Debugw("Keeping previous logs, supervisor unavailable",
				"symbol", sym.Net,
				"error", err,
			)
		} else {
			c.logger.Errorw("Pipeline log fetch failed",
				"symbol", sym.Net,
				"error", err,
			)
		}
	} else {
		logs = &text
	}

	// A falling edge needs the fullest log the supervisor will give us
	// for the history record; fetch it before taking the lock so readers
	// never wait on the network.
	var historyLogs string
	if status != nil && !status.Running && c.trackingRun() {
		historyLogs = c.fetchRunLogsForHistory(ctx)
	}

	c.applyObservation(status, logs, historyLogs, time.Now())

	if status != nil && !status.Running {
		c.maybeReconcile()
	}
}

func (c *Controller) trackingRun() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lifecycle.WasRunning
}

// fetchRunLogsForHistory grabs the log text stored on a terminal record:
// an extended fetch first, a reduced one on failure, empty when both fail
// (the caller then falls back to the in-memory tail).
func (c *Controller) fetchRunLogsForHistory(ctx context.Context) string {
	text, err := c.client.FetchLogs(ctx, HistoryLogTailLines, c.logFetchTimeout)
	if err == nil && text != "" {
		return text
	}
	if err != nil {
		c.logger.Warnw("Extended history log fetch failed, retrying reduced",
			"symbol", sym.Run,
			"error", err,
		)
	}

	text, err = c.client.FetchLogs(ctx, HistoryFallbackTailLines, c.logFallbackTimeout)
	if err == nil && text != "" {
		return text
	}
	if err != nil {
		c.logger.Warnw("Fallback history log fetch failed, will store in-memory tail",
			"symbol", sym.Run,
			"error", err,
		)
	}
	return ""
}

// applyObservation folds one poll's worth of supervisor state into the
// snapshot under the controller lock. nil status or logs mean "no update"
// (the fetch failed); the previous view stays.
func (c *Controller) applyObservation(status *supervisor.JobStatus, logs *string, historyLogs string, now time.Time) {
	c.mu.Lock()

	changed := false
	var completed *RunRecord

	if status != nil {
		wasRunning := c.lifecycle.WasRunning
		isRunning := status.Running

		if !wasRunning && isRunning {
			c.beginRunLocked(now)
			changed = true
		}

		if wasRunning && !isRunning {
			record := c.commitTerminalLocked(status, historyLogs, now)
			completed = &record
			changed = true
		}

		if !statusEqual(c.status, *status) {
			changed = true
		}
		c.lifecycle.WasRunning = isRunning
		c.status = *status
	}

	if logs != nil {
		blocked := c.snapshot.LogsManuallyCleared && !c.status.Running
		if !blocked && c.snapshot.Logs != *logs {
			c.snapshot.Logs = *logs
			if p := pipeline.Extract(*logs); p != nil {
				c.snapshot.Progress = p
			}
			changed = true
		}
	}

	if c.lifecycle.WasRunning && c.lifecycle.StartTime != nil {
		c.snapshot.CurrentDuration = c.lifecycle.Duration(now)
	}

	c.mu.Unlock()

	if completed != nil {
		c.notify(Event{Kind: EventRunCompleted, Record: completed})
		c.notify(Event{Kind: EventHistory})
	}
	if changed {
		c.notify(Event{Kind: EventSnapshot})
		c.schedulePersist()
	}
}

// beginRunLocked handles the rising edge. A start time restored from a
// previous process life means this run predates the process: tracking
// resumes without resetting the manual flags. REQUIRES: c.mu held.
func (c *Controller) beginRunLocked(now time.Time) {
	start := now
	if c.restoredStart != nil {
		start = *c.restoredStart
		c.restoredStart = nil
		c.logger.Infow("Resumed tracking a run from a previous process life",
			"symbol", sym.Run,
			"started_at", start,
		)
	} else {
		c.lifecycle.ManuallyStopped = false
		c.snapshot.ManuallyStopped = false
		c.snapshot.LogsManuallyCleared = false
		c.logger.Infow("Pipeline run started", "symbol", sym.Run)
	}

	c.lifecycle.StartTime = &start
	c.snapshot.ActiveRunStartTime = &start
	c.snapshot.CurrentDuration = now.Sub(start).Seconds()
}

// commitTerminalLocked turns the falling edge into an immutable RunRecord:
// classify the fullest available log, append to history, reset active-run
// tracking. REQUIRES: c.mu held.
func (c *Controller) commitTerminalLocked(status *supervisor.JobStatus, historyLogs string, now time.Time) RunRecord {
	fullLog := historyLogs
	if fullLog == "" {
		fullLog = c.snapshot.Logs
	}

	term := pipeline.Classify(true, false, status.Returncode, c.lifecycle.ManuallyStopped, fullLog)

	record := RunRecord{
		ID:        NewRunID(),
		Timestamp: now,
		Duration:  c.lifecycle.Duration(now),
		Status:    term.Status,
		Summary:   term.Summary,
		Logs:      fullLog,
	}
	if record.Duration == 0 {
		record.Duration = c.snapshot.CurrentDuration
	}

	if err := c.history.Append(record); err != nil {
		c.logger.Errorw("Failed to persist run record",
			"symbol", sym.Run,
			"run_id", record.ID,
			"error", err,
		)
	}

	summary := term.Summary
	c.snapshot.LastRunSummary = &summary
	c.snapshot.ActiveRunStartTime = nil
	c.snapshot.CurrentDuration = 0
	c.snapshot.ManuallyStopped = false
	c.lifecycle.Reset()

	c.logger.Infow("Pipeline run finished",
		"symbol", sym.Run,
		"run_id", record.ID,
		"status", record.Status,
		"duration_seconds", record.Duration,
	)
	return record
}

func statusEqual(a, b supervisor.JobStatus) bool {
	if a.Running != b.Running {
		return false
	}
	if (a.PID == nil) != (b.PID == nil) {
		return false
	}
	if a.PID != nil && *a.PID != *b.PID {
		return false
	}
	if (a.Returncode == nil) != (b.Returncode == nil) {
		return false
	}
	if a.Returncode != nil && *a.Returncode != *b.Returncode {
		return false
	}
	return true
}
