package monitor

import (
	"encoding/json"

	"github.com/teranos/loom/pipeline"
	"github.com/teranos/loom/statestore"
	"github.com/teranos/loom/sym"
)

// runSyncLoop merges foreign state writes into the local view. The watcher
// already filters out this instance's own writes, so everything arriving
// here was written by a peer.
func (c *Controller) runSyncLoop() {
	defer c.wg.Done()

	events := c.watcher.Subscribe()
	defer c.watcher.Unsubscribe(events)

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-events:
			c.handleRemoteWrite(ev)
		}
	}
}

// handleRemoteWrite applies one peer write. Adopted state is never
// re-persisted: echoing it back would bounce between instances forever.
func (c *Controller) handleRemoteWrite(ev statestore.Event) {
	switch ev.Key {
	case statestore.KeyPipelineState:
		var remote LiveSnapshot
		if err := json.Unmarshal([]byte(ev.Value), &remote); err != nil {
			c.logger.Warnw("Discarding undecodable remote snapshot",
				"symbol", sym.Sync,
				"origin", ev.Origin,
				"error", err,
			)
			return
		}

		c.mu.Lock()
		c.snapshot = MergeSnapshot(c.snapshot, remote, c.status.Running)
		c.lifecycle.ManuallyStopped = c.snapshot.ManuallyStopped
		c.mu.Unlock()

		c.notify(Event{Kind: EventSnapshot})

	case statestore.KeyPipelineRunHistory:
		var records []RunRecord
		if err := json.Unmarshal([]byte(ev.Value), &records); err != nil {
			c.logger.Warnw("Discarding undecodable remote history",
				"symbol", sym.Sync,
				"origin", ev.Origin,
				"error", err,
			)
			return
		}
		c.history.adoptRemote(records)
		c.notify(Event{Kind: EventHistory})

	case statestore.KeyPipelineHistoryCleared:
		var cleared bool
		if err := json.Unmarshal([]byte(ev.Value), &cleared); err != nil {
			return
		}
		c.history.adoptRemoteCleared(cleared)
		c.notify(Event{Kind: EventHistory})

	case statestore.KeyPipelineOptions:
		var opts pipeline.StartOptions
		if err := json.Unmarshal([]byte(ev.Value), &opts); err != nil {
			return
		}
		c.mu.Lock()
		c.options = opts
		c.mu.Unlock()

		c.logger.Debugw("Adopted start options from peer",
			"symbol", sym.Sync,
			"origin", ev.Origin,
		)
	}
}
