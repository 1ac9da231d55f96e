package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/calvinhq/calvin/internal/observability"
	"github.com/calvinhq/calvin/pkg/chat"
	"github.com/calvinhq/calvin/pkg/llm"
	"github.com/calvinhq/calvin/pkg/provider"
)

// Client message types
const (
	MsgPing         = "ping"
	MsgPong         = "pong"
	MsgServerStatus = "server_status"
	MsgChat         = "chat"
	MsgChatResponse = "chat_response"
	MsgToolCall     = "tool_call"
	MsgToolResult   = "tool_result"
	MsgClear        = "clear"
	MsgEvent        = "event"
	MsgError        = "error"
)

// ClientMessage is an inbound websocket message
type ClientMessage struct {
	Type     string                 `json:"type"`
	Text     string                 `json:"text,omitempty"`
	Provider string                 `json:"provider,omitempty"`
	Tool     string                 `json:"tool,omitempty"`
	Args     map[string]interface{} `json:"args,omitempty"`
}

// ServerMessage is an outbound websocket message
type ServerMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
}

const toolCallTimeout = 30 * time.Second

// StatusReport is the payload of a server_status response
type StatusReport struct {
	Providers []provider.ProviderStatus `json:"providers"`
	Backend   string                    `json:"backend"`
	Healthy   bool                      `json:"healthy"`
	History   int                       `json:"history"`
}

// Server is the UI-facing websocket server. It exposes the session over /ws,
// liveness over /healthz, and metrics over /metrics.
type Server struct {
	host         string
	port         int
	sharedSecret string

	session   *chat.Manager
	registry  *provider.Registry
	generator llm.Generator
	logger    zerolog.Logger

	server   *http.Server
	upgrader websocket.Upgrader

	mu             sync.RWMutex
	clients        map[string]*client
	isShuttingDown bool
}

type client struct {
	id   string
	conn *websocket.Conn

	// gorilla allows one concurrent writer per connection
	writeMu sync.Mutex
}

func (c *client) send(msg ServerMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	SharedSecret string
	Session      *chat.Manager
	Registry     *provider.Registry
	Generator    llm.Generator
	Logger       zerolog.Logger
}

// NewServer creates a gateway server and subscribes it to session and
// provider events so connected clients see availability and turn changes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}

	s := &Server{
		host:         cfg.Host,
		port:         cfg.Port,
		sharedSecret: cfg.SharedSecret,
		session:      cfg.Session,
		registry:     cfg.Registry,
		generator:    cfg.Generator,
		logger:       cfg.Logger,
		clients:      make(map[string]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	cfg.Registry.On(provider.EventProviderStateChanged, func(e provider.Event) {
		s.broadcast(provider.EventProviderStateChanged, map[string]interface{}{
			"provider": e.Provider,
			"data":     e.Data,
		})
	})
	for _, eventType := range []string{chat.EventMessageAppended, chat.EventTurnBusy, chat.EventTurnComplete} {
		eventType := eventType
		cfg.Session.On(eventType, func(e chat.Event) {
			s.broadcast(eventType, e.Data)
		})
	}

	return s, nil
}

// Start starts the server. It returns once the listener goroutine is running.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: mux,
	}

	s.logger.Info().Str("host", s.host).Int("port", s.port).Msg("Starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server and closes every client connection
func (s *Server) Stop() error {
	s.mu.Lock()
	s.isShuttingDown = true
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	for _, c := range clients {
		_ = c.conn.Close()
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	if s.isShuttingDown {
		s.mu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.mu.RUnlock()

	if s.sharedSecret != "" && r.URL.Query().Get("secret") != s.sharedSecret {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	c := &client{id: clientID, conn: conn}

	s.mu.Lock()
	s.clients[clientID] = c
	s.mu.Unlock()

	s.logger.Info().Str("clientId", clientID).Str("ip", r.RemoteAddr).Msg("Client connected")

	go s.handleClient(c)
}

func (s *Server) handleClient(c *client) {
	defer func() {
		c.conn.Close()
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		s.logger.Info().Str("clientId", c.id).Msg("Client disconnected")
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("clientId", c.id).Msg("WebSocket error")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(c, "malformed message")
			continue
		}

		s.handleMessage(c, msg)
	}
}

func (s *Server) handleMessage(c *client, msg ClientMessage) {
	switch msg.Type {
	case MsgPing:
		_ = c.send(ServerMessage{Type: MsgPong, Timestamp: time.Now()})

	case MsgServerStatus:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		report := StatusReport{
			Providers: s.registry.Status(),
			Backend:   s.generator.Backend(),
			Healthy:   s.generator.Healthy(ctx),
			History:   len(s.session.History()),
		}
		cancel()
		_ = c.send(ServerMessage{Type: MsgServerStatus, Timestamp: time.Now(), Data: report})

	case MsgChat:
		if msg.Text == "" {
			s.sendError(c, "chat message requires text")
			return
		}
		// The session serializes turns itself; an overlapping chat comes
		// back as a busy error
		go func() {
			reply, err := s.session.Send(context.Background(), msg.Text)
			if err == chat.ErrBusy {
				s.sendError(c, "a turn is already in flight")
				return
			}
			if reply == nil {
				s.sendError(c, "turn produced no reply")
				return
			}
			_ = c.send(ServerMessage{Type: MsgChatResponse, Timestamp: time.Now(), Data: reply})
		}()

	case MsgToolCall:
		if msg.Provider == "" || msg.Tool == "" {
			s.sendError(c, "tool_call requires provider and tool")
			return
		}
		go func() {
			result := s.registry.Invoke(context.Background(), msg.Provider, msg.Tool, msg.Args, toolCallTimeout)
			_ = c.send(ServerMessage{Type: MsgToolResult, Timestamp: time.Now(), Data: result})
		}()

	case MsgClear:
		s.session.Clear()
		_ = c.send(ServerMessage{Type: MsgClear, Timestamp: time.Now()})

	default:
		s.sendError(c, fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func (s *Server) sendError(c *client, message string) {
	if err := c.send(ServerMessage{Type: MsgError, Timestamp: time.Now(), Message: message}); err != nil {
		s.logger.Error().Err(err).Str("clientId", c.id).Msg("Failed to send error response")
	}
}

// broadcast fans an event out to every connected client
func (s *Server) broadcast(event string, data interface{}) {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	msg := ServerMessage{Type: MsgEvent, Timestamp: time.Now(), Data: map[string]interface{}{
		"event": event,
		"data":  data,
	}}
	for _, c := range clients {
		if err := c.send(msg); err != nil {
			s.logger.Debug().Err(err).Str("clientId", c.id).Msg("Failed to broadcast event")
		}
	}
}
