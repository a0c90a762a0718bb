package server

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// setupRoutes registers the daemon API on the server's mux.
func (s *LoomServer) setupRoutes() {
	s.mux.HandleFunc("/ws", s.corsMiddleware(s.HandleWebSocket))
	s.mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))
	s.mux.HandleFunc("/api/status", s.corsMiddleware(s.HandleStatus))
	s.mux.HandleFunc("/api/pipeline/snapshot", s.corsMiddleware(s.HandleSnapshot))
	s.mux.HandleFunc("/api/pipeline/history", s.corsMiddleware(s.HandleHistory))
	s.mux.HandleFunc("/api/pipeline/history/", s.corsMiddleware(s.HandleHistoryRecord))
	s.mux.HandleFunc("/api/pipeline/start", s.corsMiddleware(s.HandleStart))
	s.mux.HandleFunc("/api/pipeline/stop", s.corsMiddleware(s.HandleStop))
	s.mux.HandleFunc("/api/pipeline/refresh", s.corsMiddleware(s.HandleRefresh))
	s.mux.HandleFunc("/api/pipeline/logs/clear", s.corsMiddleware(s.HandleClearLogs))
	s.mux.HandleFunc("/api/pipeline/history/clear", s.corsMiddleware(s.HandleClearHistory))
}

// corsMiddleware adds CORS headers using the configured allowed origins.
// Origin validation matches the WebSocket upgrade check.
func (s *LoomServer) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *LoomServer) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin validates a request origin against the configured allow
// list. No origin header (direct clients, curl, tests) is allowed; listed
// origins are prefix-matched so any port passes.
func (s *LoomServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	allowed := []string{"http://localhost", "https://localhost"}
	if cfg != nil {
		allowed = cfg.GetServerAllowedOrigins()
	}

	for _, prefix := range allowed {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}
