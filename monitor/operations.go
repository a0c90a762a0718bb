package monitor

import (
	"context"

	"github.com/teranos/loom/errors"
	"github.com/teranos/loom/pipeline"
	"github.com/teranos/loom/sym"
)

// StartRun submits a start request to the supervisor. Rejected while a run
// is already tracked or observed; on success the manual-stop and
// logs-cleared flags reset and the options persist as the new defaults.
// A failed request leaves run state untouched.
func (c *Controller) StartRun(ctx context.Context, opts pipeline.StartOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.status.Running || c.lifecycle.WasRunning {
		c.mu.Unlock()
		return errors.Wrap(errors.ErrAlreadyRunning, "start rejected")
	}
	c.mu.Unlock()

	if err := c.client.Start(ctx, opts); err != nil {
		return errors.Wrap(err, "failed to start pipeline")
	}

	c.mu.Lock()
	c.lifecycle.ManuallyStopped = false
	c.snapshot.ManuallyStopped = false
	c.snapshot.LogsManuallyCleared = false
	c.options = opts
	c.mu.Unlock()

	c.logger.Infow("Pipeline start requested",
		"symbol", sym.Run,
		"category", opts.Category,
	)
	c.persistOptions()
	c.notify(Event{Kind: EventSnapshot})
	c.schedulePersist()
	return nil
}

// StopRun submits a stop request. The manual-stop flag is set before the
// request goes out, so the eventual falling edge classifies as Stopped
// even when the stop response itself fails.
func (c *Controller) StopRun(ctx context.Context) error {
	c.mu.Lock()
	if !c.status.Running && !c.lifecycle.WasRunning {
		c.mu.Unlock()
		return errors.Wrap(errors.ErrNotRunning, "stop rejected")
	}
	c.lifecycle.ManuallyStopped = true
	c.snapshot.ManuallyStopped = true
	c.mu.Unlock()

	c.logger.Infow("Pipeline stop requested", "symbol", sym.Run)
	c.notify(Event{Kind: EventSnapshot})
	c.schedulePersist()

	if err := c.client.Stop(ctx); err != nil {
		return errors.Wrap(err, "failed to stop pipeline")
	}
	return nil
}

// Refresh forces an immediate poll. Best-effort: failures are logged by
// the poll path and never returned.
func (c *Controller) Refresh(ctx context.Context) {
	c.pollOnce(ctx)
}

// ClearLogs asks the supervisor to drop its log buffer, then empties the
// displayed logs. The cleared flag keeps later fetches from repopulating
// the view until a new run starts. History is untouched.
func (c *Controller) ClearLogs(ctx context.Context) error {
	if err := c.client.ClearLogs(ctx); err != nil {
		return errors.Wrap(err, "failed to clear pipeline logs")
	}

	c.mu.Lock()
	c.snapshot.Logs = ""
	c.snapshot.Progress = nil
	c.snapshot.LogsManuallyCleared = true
	c.mu.Unlock()

	c.logger.Infow("Pipeline logs cleared", "symbol", sym.Run)
	c.notify(Event{Kind: EventSnapshot})
	c.schedulePersist()
	return nil
}

// ClearHistory wipes the run history and sets the sticky cleared flag that
// blocks recovered-run backfill. Confirmation is the caller's concern.
func (c *Controller) ClearHistory() error {
	if err := c.history.Clear(); err != nil {
		return err
	}
	c.notify(Event{Kind: EventHistory})
	return nil
}
