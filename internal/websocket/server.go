// Package websocket fans renderable state out to connected map UIs.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mikemorandi/flightradar/pkg/logger"
)

// Message types pushed to map clients
const (
	MessageTypeAircraftAdded   = "aircraft_added"
	MessageTypeAircraftUpdate  = "aircraft_update"
	MessageTypeAircraftRemoved = "aircraft_removed"
	MessageTypeFrame           = "frame"
	MessageTypeStatus          = "status"
)

// Message represents a WebSocket message
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Client represents one connected map UI
type Client struct {
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
}

// Server is the broadcast hub for map clients
type Server struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	upgrader   websocket.Upgrader
	logger     *logger.Logger
	mu         sync.RWMutex
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewServer creates a new WebSocket hub
func NewServer(log *logger.Logger) *Server {
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 64),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // local UI, any origin
			},
		},
		logger: log.Named("web-socket"),
		stopCh: make(chan struct{}),
	}
}

// Run starts the hub loop. It returns when Stop is called.
func (s *Server) Run() {
	s.logger.Info("Starting WebSocket hub")

	for {
		select {
		case <-s.stopCh:
			s.mu.Lock()
			for client := range s.clients {
				client.mu.Lock()
				if !client.closed {
					client.closed = true
					close(client.send)
				}
				client.mu.Unlock()
			}
			s.clients = make(map[*Client]bool)
			s.mu.Unlock()
			return

		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered", logger.Int("client_count", clientCount))

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.mu.Lock()
				client.closed = true
				client.mu.Unlock()
				close(client.send)
			}
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client unregistered", logger.Int("client_count", clientCount))

		case message := <-s.broadcast:
			s.deliver(message)
		}
	}
}

// Stop shuts the hub loop down and disconnects every client.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// deliver sends one message to every client, dropping clients whose send
// queue is full.
func (s *Server) deliver(message *Message) {
	s.mu.RLock()
	var failed []*Client
	for client := range s.clients {
		client.mu.Lock()
		closed := client.closed
		client.mu.Unlock()
		if closed {
			failed = append(failed, client)
			continue
		}

		select {
		case client.send <- message:
		default:
			// Send queue full, the client is too slow to keep
			failed = append(failed, client)
		}
	}
	s.mu.RUnlock()

	if len(failed) == 0 {
		return
	}
	s.mu.Lock()
	for _, client := range failed {
		if _, ok := s.clients[client]; ok {
			delete(s.clients, client)
			client.mu.Lock()
			if !client.closed {
				client.closed = true
				close(client.send)
			}
			client.mu.Unlock()
		}
	}
	s.mu.Unlock()
}

// HandleConnection upgrades an HTTP request and attaches the client to
// the hub.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		return
	}

	s.logger.Debug("Client connected", logger.String("remote_addr", r.RemoteAddr))

	client := &Client{
		conn:      conn,
		send:      make(chan *Message, 256),
		server:    s,
		closeChan: make(chan struct{}),
	}

	select {
	case s.register <- client:
	case <-s.stopCh:
		conn.Close()
		return
	}

	go client.readPump()
	go client.writePump()
}

// Broadcast queues a message for every connected client.
func (s *Server) Broadcast(message *Message) {
	select {
	case s.broadcast <- message:
	case <-s.stopCh:
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// readPump drains the connection. Clients send nothing the hub acts on;
// reading is what detects the disconnect.
func (c *Client) readPump() {
	defer func() {
		c.mu.Lock()
		if !c.closed {
			c.closed = true
		}
		c.mu.Unlock()

		// closeChan is the writer's exit signal. The unregister below can
		// no-op when deliver already evicted this client, so the send
		// channel is not guaranteed to be closed for us.
		close(c.closeChan)

		select {
		case c.server.unregister <- c:
		case <-c.server.stopCh:
		}
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", logger.Error(err))
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		c.mu.Lock()
		if !c.closed {
			c.closed = true
		}
		c.mu.Unlock()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.server.logger.Error("Failed to marshal message", logger.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}
