package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skyfence/utm/internal/config"
	"github.com/skyfence/utm/pkg/logger"
)

// Server fans out live-feed messages to all connected subscribers.
// Subscribe/unsubscribe serialize on the subscriber set; delivery to each
// subscriber goes through that subscriber's own queue and writer, so one
// slow connection never delays the others.
type Server struct {
	upgrader     websocket.Upgrader
	bufferSize   int
	pingInterval time.Duration
	logger       *logger.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
}

// NewServer creates a new live-feed server
func NewServer(cfg config.WebSocketConfig, corsAllowedOrigins []string, log *logger.Logger) *Server {
	checkOrigin := func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(corsAllowedOrigins) == 0 {
			return true
		}
		for _, allowed := range corsAllowedOrigins {
			if allowed == "*" || allowed == origin {
				return true
			}
		}
		return false
	}

	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		bufferSize:   cfg.SendBufferSize,
		pingInterval: time.Duration(cfg.PingIntervalSec) * time.Second,
		logger:       log.Named("websocket"),
		clients:      make(map[*Client]struct{}),
	}
}

// HandleConnection upgrades an HTTP request to a live-feed subscription.
// A new subscriber starts with an empty backlog: there is no replay.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("WebSocket upgrade failed", logger.Error(err))
		return
	}

	client := newClient(s, conn, s.bufferSize, s.logger)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[client] = struct{}{}
	count := len(s.clients)
	s.mu.Unlock()

	s.logger.Info("Subscriber connected",
		logger.String("remote_addr", r.RemoteAddr),
		logger.Int("subscribers", count),
	)

	go client.writePump(s.pingInterval)
	go client.readPump()
}

// Broadcast delivers a message to every currently connected subscriber.
// Delivery is at-most-once and best-effort; the call never blocks on any
// subscriber's send latency.
func (s *Server) Broadcast(msg *Message) {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.enqueue(msg)
	}
}

// ClientCount returns the number of connected subscribers
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// unregister removes a client from the subscriber set and closes it. A
// disconnected subscriber receives nothing retroactively.
func (s *Server) unregister(c *Client) {
	s.mu.Lock()
	_, present := s.clients[c]
	delete(s.clients, c)
	count := len(s.clients)
	s.mu.Unlock()

	c.close()

	if present {
		s.logger.Info("Subscriber disconnected", logger.Int("subscribers", count))
	}
}

// Shutdown disconnects all subscribers and refuses new ones
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closed = true
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[*Client]struct{})
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}

	s.logger.Info("WebSocket server shut down")
}
