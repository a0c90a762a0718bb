package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/teranos/loom/pipeline"
	"github.com/teranos/loom/sym"
	"github.com/teranos/loom/version"
)

// HandleWebSocket upgrades the connection and attaches the client to the
// hub. Current state is pushed right after registration so the client
// renders without waiting for a change.
func (s *LoomServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("WebSocket upgrade failed",
			"symbol", sym.Net,
			"error", err,
		)
		return
	}

	client := &Client{
		server:  s,
		conn:    conn,
		sendMsg: make(chan interface{}, MaxClientMessageQueueSize),
		id:      fmt.Sprintf("%s_%d", r.RemoteAddr, time.Now().UnixNano()),
	}

	// Version handshake goes out before the pumps start, so this write
	// cannot race the write pump.
	info := version.Get()
	if err := conn.WriteJSON(VersionMessage{
		Type:      "version",
		Version:   info.Version,
		Commit:    info.Short(),
		BuildTime: info.BuildTime,
	}); err != nil {
		s.logger.Debugw("Failed to send version info",
			"client_id", client.id,
			"error", err,
		)
	}

	s.register <- client

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
}

// HandleHealth serves the liveness endpoint with version info.
func (s *LoomServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	info := version.Get()
	health := map[string]interface{}{
		"status":     "ok",
		"version":    info.Version,
		"commit":     info.CommitHash,
		"build_time": info.BuildTime,
		"clients":    s.clientCount(),
	}
	writeJSON(w, http.StatusOK, health)
}

// HandleStatus serves daemon health plus system metrics.
func (s *LoomServer) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	info := version.Get()
	resp := StatusResponse{
		Status:        "ok",
		Version:       info.Version,
		Commit:        info.CommitHash,
		BuildTime:     info.BuildTime,
		Clients:       s.clientCount(),
		ServerState:   stateString(s.getState()),
		Running:       s.controller.Status().Running,
		UptimeSeconds: time.Since(s.started).Seconds(),
		System:        s.collectSystemMetrics(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleSnapshot serves the live run view.
func (s *LoomServer) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.snapshotMessage())
}

// HandleHistory serves the run history, most recent first.
func (s *LoomServer) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.historyMessage())
}

// HandleHistoryRecord serves one run record by ID, retained log included.
func (s *LoomServer) HandleHistoryRecord(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/pipeline/history/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}

	record, err := s.controller.Run(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// HandleStart submits a pipeline start request through the controller.
func (s *LoomServer) HandleStart(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var opts pipeline.StartOptions
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &opts); err != nil {
			return
		}
	}

	if err := s.controller.StartRun(r.Context(), opts); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "started",
		"options": opts,
	})
}

// HandleStop submits a pipeline stop request through the controller.
func (s *LoomServer) HandleStop(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.controller.StopRun(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

// HandleRefresh forces an immediate poll and returns the refreshed view.
func (s *LoomServer) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	s.controller.Refresh(r.Context())
	writeJSON(w, http.StatusOK, s.snapshotMessage())
}

// HandleClearLogs clears the live log view.
func (s *LoomServer) HandleClearLogs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.controller.ClearLogs(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// HandleClearHistory wipes the run history and sets the sticky flag.
func (s *LoomServer) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.controller.ClearHistory(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *LoomServer) snapshotMessage() SnapshotMessage {
	return SnapshotMessage{
		Type:      "snapshot",
		Snapshot:  s.controller.Snapshot(),
		Running:   s.controller.Status().Running,
		Timestamp: time.Now().Unix(),
	}
}

func (s *LoomServer) historyMessage() HistoryMessage {
	return HistoryMessage{
		Type:      "history",
		Records:   s.controller.History(),
		Timestamp: time.Now().Unix(),
	}
}
