package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/teranos/loom/errors"
	"github.com/teranos/loom/sym"
)

// isPortAvailable checks if a port is available for binding
func isPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}

// findAvailablePort tries the requested port first, then a small
// high-range fallback window so a second loom instance still comes up.
func findAvailablePort(requestedPort int) (int, error) {
	if isPortAvailable(requestedPort) {
		return requestedPort, nil
	}

	fallbackStart := 58787
	for i := 0; i < 10; i++ {
		port := fallbackStart + i
		if isPortAvailable(port) {
			return port, nil
		}
	}

	return 0, errors.Newf("no available ports found (tried %d and range %d-%d)",
		requestedPort, fallbackStart, fallbackStart+9)
}

// Start binds the listener, launches the hub and the event bridge, and
// serves until Stop or a listener failure. Blocks; run it from the daemon
// command's main goroutine.
func (s *LoomServer) Start(port int) error {
	actualPort, err := findAvailablePort(port)
	if err != nil {
		return errors.Wrap(err, "failed to find available port")
	}
	if actualPort != port {
		s.logger.Infow("Port in use, using alternative",
			"requested_port", port,
			"actual_port", actualPort,
		)
	}

	s.wg.Add(1)
	go s.run()

	s.wg.Add(1)
	go s.runEventBridge()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", actualPort),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infow("Daemon API listening",
		"symbol", sym.Open,
		"url", fmt.Sprintf("http://localhost:%d", actualPort),
		"port", actualPort,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server failed")
	}
	return nil
}

// Stop drains clients and shuts the listener down gracefully.
func (s *LoomServer) Stop() error {
	s.logger.Infow("Initiating server shutdown", "symbol", sym.Close)
	s.setState(ServerStateDraining)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warnw("HTTP shutdown did not complete cleanly", "error", err)
		}
	}

	// Close all client connections before cancelling the context, so the
	// read pumps unblock and deregister cleanly.
	s.mu.Lock()
	clientsToClose := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clientsToClose = append(clientsToClose, client)
		delete(s.clients, client)
	}
	s.mu.Unlock()

	for _, client := range clientsToClose {
		client.conn.Close()
	}
	if len(clientsToClose) > 0 {
		s.logger.Infow("Closed client connections", "count", len(clientsToClose))
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infow("All goroutines stopped cleanly")
	case <-time.After(ShutdownTimeout):
		s.logger.Warnw("Goroutine shutdown timed out, forcing exit",
			"timeout", ShutdownTimeout,
		)
	}

	s.setState(ServerStateStopped)
	s.logger.Infow("Server shutdown complete",
		"symbol", sym.Close,
		"broadcast_drops", s.broadcastDrops.Load(),
	)
	return nil
}
