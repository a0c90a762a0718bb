package server

import (
	"time"

	"github.com/teranos/loom/monitor"
)

// runEventBridge subscribes to controller events and forwards them to
// WebSocket clients as typed messages.
func (s *LoomServer) runEventBridge() {
	defer s.wg.Done()

	events := s.controller.Subscribe()
	defer s.controller.Unsubscribe(events)

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-events:
			s.forwardEvent(ev)
		}
	}
}

func (s *LoomServer) forwardEvent(ev monitor.Event) {
	switch ev.Kind {
	case monitor.EventSnapshot:
		sent := s.broadcastMessage(s.snapshotMessage())
		s.logger.Debugw("Broadcasted snapshot", "clients", sent)

	case monitor.EventHistory:
		sent := s.broadcastMessage(s.historyMessage())
		s.logger.Debugw("Broadcasted history", "clients", sent)

	case monitor.EventRunCompleted:
		msg := RunCompletedMessage{
			Type:      "run_completed",
			Record:    ev.Record,
			Timestamp: time.Now().Unix(),
		}
		sent := s.broadcastMessage(msg)
		if ev.Record != nil {
			s.logger.Infow("Broadcasted run completion",
				"run_id", ev.Record.ID,
				"status", ev.Record.Status,
				"clients", sent,
			)
		}
	}
}

// sendInitialState seeds a newly registered client with the current
// snapshot and history so its view is live before the first change event.
func (s *LoomServer) sendInitialState(client *Client) {
	for _, msg := range []interface{}{s.snapshotMessage(), s.historyMessage()} {
		select {
		case client.sendMsg <- msg:
		default:
			s.broadcastDrops.Add(1)
			return
		}
	}
}
