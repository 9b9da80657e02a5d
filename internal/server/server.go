package server

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// Server owns the WebSocket and HTTP surface over the game registry.
type Server struct {
	addr        string
	upgrader    websocket.Upgrader
	connections map[*Connection]bool
	register    chan *Connection
	unregister  chan *Connection
	logger      *log.Logger
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	registry    *Registry
	broadcaster *Broadcaster
}

// NewServer creates a new WebSocket server over a registry and its
// broadcaster.
func NewServer(addr string, registry *Registry, broadcaster *Broadcaster, logger *log.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// For development, allow all origins
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		logger:      logger.WithPrefix("server"),
		ctx:         ctx,
		cancel:      cancel,
		registry:    registry,
		broadcaster: broadcaster,
	}
	go s.run()
	return s
}

// Start starts the WebSocket and HTTP server. Blocks until the listener
// fails.
func (s *Server) Start() error {
	s.logger.Info("Starting server", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}

// Handler builds the route table. Split out so tests can mount it on
// httptest servers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/game/{id}", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /games", s.handleListGames)
	mux.HandleFunc("GET /games/{id}/snapshot", s.handleGetSnapshot)
	mux.HandleFunc("POST /games/{id}/actions", s.handlePostAction)
	mux.HandleFunc("POST /games/{id}/step", s.handlePostStep)
	mux.HandleFunc("POST /games/{id}/resume", s.handlePostResume)
	return mux
}

// Stop stops the server and closes all connections.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.Close()
	}
	s.mu.Unlock()

	return nil
}

// run handles connection lifecycle
func (s *Server) run() {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.connections[conn] = true
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("Client connected", "game", conn.gameID, "seat", conn.seat, "total", total)

		case conn := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.connections[conn]; ok {
				delete(s.connections, conn)
				_ = conn.Close()
			}
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("Client disconnected", "game", conn.gameID, "total", total)

		case <-s.ctx.Done():
			return
		}
	}
}

// handleWebSocket upgrades a request to the push channel for one seat of
// one game. Seat comes from the query string; 0 or absent means the
// operator view.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	entry, ok := s.registry.GetGame(gameID)
	if !ok {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}

	seat := 0
	if raw := r.URL.Query().Get("seat"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid seat", http.StatusBadRequest)
			return
		}
		seat = n
	}
	if seat != 0 {
		state := entry.Session.Snapshot()
		if state.SeatByID(seat) == nil {
			http.Error(w, "unknown seat", http.StatusNotFound)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, gameID, seat, s.registry, s.broadcaster, s.logger)
	s.register <- client
	client.Start()

	// Watch for the connection ending to unregister it.
	go func() {
		<-client.ctx.Done()
		select {
		case s.unregister <- client:
		case <-s.ctx.Done():
		}
	}()
}

// handleHealth responds to health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
