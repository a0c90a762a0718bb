// Package server exposes the run monitor over HTTP and WebSocket: REST
// handlers for snapshot/history/control operations, plus a push channel
// that forwards controller events to connected clients.
package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/loom/config"
	"github.com/teranos/loom/monitor"
	"github.com/teranos/loom/sym"
)

// LoomServer serves the monitor daemon API.
type LoomServer struct {
	controller *monitor.Controller
	cfg        *config.Config
	logger     *zap.SugaredLogger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	mux        *http.ServeMux
	httpServer *http.Server

	started        time.Time
	state          atomic.Int32
	broadcastDrops atomic.Int64
	verbosity      atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer wires a daemon API server around a controller. The controller
// is expected to be started and stopped by the caller.
func NewServer(controller *monitor.Controller, cfg *config.Config, logger *zap.SugaredLogger) *LoomServer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &LoomServer{
		controller: controller,
		cfg:        cfg,
		logger:     logger,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		mux:        http.NewServeMux(),
		started:    time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.state.Store(int32(ServerStateRunning))
	s.setupRoutes()
	return s
}

// Handler returns the server's route tree, mainly for tests.
func (s *LoomServer) Handler() http.Handler {
	return s.mux
}

// SetVerbosity sets the output verbosity for per-message traffic logging.
// Safe to call while the server is running.
func (s *LoomServer) SetVerbosity(v int) {
	s.verbosity.Store(int32(v))
}

// ReloadConfig swaps the server's configuration. New requests see the
// updated allow list; established WebSocket connections keep their
// original origin decision.
func (s *LoomServer) ReloadConfig(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.logger.Infow("Server configuration reloaded",
		"allowed_origins", cfg.GetServerAllowedOrigins(),
	)
}

// run is the hub event loop: client registration and deregistration are
// serialized here so the clients map has a single writer.
func (s *LoomServer) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		}
	}
}

func (s *LoomServer) handleClientRegister(client *Client) {
	s.mu.Lock()
	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Max clients reached, rejecting connection",
			"client_id", client.id,
			"max_clients", MaxClients,
		)
		client.close()
		return
	}
	s.clients[client] = true
	totalClients := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client connected",
		"symbol", sym.Net,
		"client_id", client.id,
		"total_clients", totalClients,
	)

	// A fresh client renders from nothing; seed it with current state so
	// the UI is live before the first change event.
	s.sendInitialState(client)
}

func (s *LoomServer) handleClientUnregister(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, client)
	totalClients := len(s.clients)
	s.mu.Unlock()

	client.close()

	s.logger.Infow("Client disconnected",
		"symbol", sym.Net,
		"client_id", client.id,
		"total_clients", totalClients,
	)
}

// broadcastMessage sends a message to all connected clients. Slow clients
// skip the message rather than stalling the broadcaster; returns how many
// clients accepted it.
func (s *LoomServer) broadcastMessage(msg interface{}) int {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		select {
		case client.sendMsg <- msg:
			sent++
		default:
			s.broadcastDrops.Add(1)
		}
	}
	return sent
}

func (s *LoomServer) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *LoomServer) getState() ServerState {
	return ServerState(s.state.Load())
}

func (s *LoomServer) setState(state ServerState) {
	s.state.Store(int32(state))
	s.logger.Infow("Server state changed", "new_state", stateString(state))
}
