// Package server exposes the push-subscriber HTTP/WebSocket endpoint
// alongside status and recent-alert JSON endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/duetto/duetto/internal/broadcast"
	"github.com/duetto/duetto/internal/buildinfo"
	"github.com/duetto/duetto/internal/engine"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the HTTP front door: a websocket push endpoint backed by
// the broadcast hub, plus status and recent-alert JSON endpoints.
type Server struct {
	address string
	port    int
	hub     *broadcast.Hub
	sup     *engine.Supervisor
	logger  *slog.Logger

	server *http.Server
}

// NewServer builds a Server bound to address:port, broadcasting from
// hub and reporting status from sup.
func NewServer(address string, port int, hub *broadcast.Hub, sup *engine.Supervisor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{address: address, port: port, hub: hub, sup: sup, logger: logger}
}

// Start begins serving HTTP requests. It blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /alerts/recent", s.handleRecent)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.withLogging(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting push-subscriber server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", "error", err)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"name":    "Duetto",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.sup.Status()
	status := "stopped"
	if st.Running {
		status = "running"
	}
	writeJSON(w, map[string]any{
		"status":       status,
		"connections":  st.SubscriberCount,
		"alerts_count": st.RecentAlertCount,
		"started_at":   st.StartedAt,
		"collectors":   st.Collectors,
	}, s.logger)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.hub.Recent(), s.logger)
}

// wsSink adapts a gorilla websocket connection to broadcast.Sink.
// gorilla connections are not safe for concurrent writes, so sends are
// serialized with a mutex.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsSink) Send(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sink := &wsSink{conn: conn}
	handle := s.hub.Attach(sink)
	defer s.hub.Detach(handle)

	for _, a := range s.hub.Recent() {
		payload, err := json.Marshal(a)
		if err != nil {
			continue
		}
		if err := sink.Send(payload); err != nil {
			return
		}
	}

	// Drain client frames (pings, close) until the connection drops.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
