package server

import (
	"time"

	"github.com/teranos/loom/monitor"
)

const (
	// MaxClients is the maximum number of concurrent WebSocket clients
	MaxClients = 100

	// MaxClientMessageQueueSize is the size of per-client message queues
	MaxClientMessageQueueSize = 256

	// ShutdownTimeout is how long to wait for graceful shutdown
	ShutdownTimeout = 30 * time.Second
)

// ServerState tracks the server lifecycle for shutdown coordination.
type ServerState int32

const (
	ServerStateRunning ServerState = iota
	ServerStateDraining
	ServerStateStopped
)

func stateString(state ServerState) string {
	switch state {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SnapshotMessage pushes the live run view to WebSocket clients.
type SnapshotMessage struct {
	Type      string               `json:"type"` // "snapshot"
	Snapshot  monitor.LiveSnapshot `json:"snapshot"`
	Running   bool                 `json:"running"`
	Timestamp int64                `json:"timestamp"`
}

// HistoryMessage pushes the full run history after any history change.
type HistoryMessage struct {
	Type      string              `json:"type"` // "history"
	Records   []monitor.RunRecord `json:"records"`
	Timestamp int64               `json:"timestamp"`
}

// RunCompletedMessage announces one freshly committed run record.
type RunCompletedMessage struct {
	Type      string             `json:"type"` // "run_completed"
	Record    *monitor.RunRecord `json:"record"`
	Timestamp int64              `json:"timestamp"`
}

// VersionMessage is sent once on WebSocket connect.
type VersionMessage struct {
	Type      string `json:"type"` // "version"
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// ClientMessage is the envelope for messages arriving from clients.
type ClientMessage struct {
	Type      string `json:"type"`      // "refresh", "ping", "set_verbosity"
	Verbosity int    `json:"verbosity"` // Verbosity level for set_verbosity
}

// StatusResponse is the GET /api/status payload: daemon health plus
// system metrics.
type StatusResponse struct {
	Status        string        `json:"status"`
	Version       string        `json:"version"`
	Commit        string        `json:"commit"`
	BuildTime     string        `json:"build_time"`
	Clients       int           `json:"clients"`
	ServerState   string        `json:"server_state"`
	Running       bool          `json:"pipeline_running"`
	UptimeSeconds float64       `json:"uptime_seconds"`
	System        SystemMetrics `json:"system"`
}
