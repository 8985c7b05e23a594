package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trade-dashboard/internal/auth"
	"trade-dashboard/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers authenticate with a bearer token in the query, not cookies
	CheckOrigin: func(r *http.Request) bool { return true },
}

// UserWSClient is one authenticated websocket connection
type UserWSClient struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *UserWSHub
	userID    string
	isAdmin   bool
	closeChan chan struct{}
}

// UserWSHub routes bus events to the connections of the user they concern
type UserWSHub struct {
	clients     map[*UserWSClient]bool
	userClients map[string]map[*UserWSClient]bool
	userCast    chan userMessage
	register    chan *UserWSClient
	unregister  chan *UserWSClient
	done        chan struct{}
	stopOnce    sync.Once
	mu          sync.RWMutex
	logger      zerolog.Logger
}

type userMessage struct {
	userID string // empty means every admin connection
	data   []byte
}

// NewUserWSHub creates a new user-aware WebSocket hub
func NewUserWSHub(logger zerolog.Logger) *UserWSHub {
	return &UserWSHub{
		clients:     make(map[*UserWSClient]bool),
		userClients: make(map[string]map[*UserWSClient]bool),
		userCast:    make(chan userMessage, 256),
		register:    make(chan *UserWSClient),
		unregister:  make(chan *UserWSClient),
		done:        make(chan struct{}),
		logger:      logger.With().Str("component", "ws").Logger(),
	}
}

// Subscribe forwards user-facing events from bus to connected clients.
// Metric and KYC status updates go to their user; new submissions and
// accounts go to admins.
func (h *UserWSHub) Subscribe(bus *events.EventBus) {
	if bus == nil {
		return
	}
	toUser := func(ev events.Event) {
		if ev.UserID != "" {
			h.BroadcastToUser(ev.UserID, ev)
		}
	}
	bus.Subscribe(events.EventMetricsUpdated, toUser)
	bus.Subscribe(events.EventKYCStatusChanged, toUser)
	bus.Subscribe(events.EventKYCSubmitted, h.BroadcastToAdmins)
	bus.Subscribe(events.EventUserCreated, h.BroadcastToAdmins)
}

// Run processes registrations and deliveries until Stop is called
func (h *UserWSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if h.userClients[client.userID] == nil {
				h.userClients[client.userID] = make(map[*UserWSClient]bool)
			}
			h.userClients[client.userID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client)
			h.mu.Unlock()

		case msg := <-h.userCast:
			h.mu.Lock()
			for _, client := range h.targets(msg.userID) {
				select {
				case client.send <- msg.data:
				default:
					// Slow consumer
					h.drop(client)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// targets lists the recipients of a message. Callers hold mu.
func (h *UserWSHub) targets(userID string) []*UserWSClient {
	var out []*UserWSClient
	if userID != "" {
		for client := range h.userClients[userID] {
			out = append(out, client)
		}
		return out
	}
	for client := range h.clients {
		if client.isAdmin {
			out = append(out, client)
		}
	}
	return out
}

// drop forgets a client and closes its send channel. Callers hold mu.
func (h *UserWSHub) drop(client *UserWSClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	if userClients, ok := h.userClients[client.userID]; ok {
		delete(userClients, client)
		if len(userClients) == 0 {
			delete(h.userClients, client.userID)
		}
	}
	close(client.send)
}

// Stop ends Run and closes every connection
func (h *UserWSHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *UserWSHub) cast(msg userMessage) {
	select {
	case h.userCast <- msg:
	default:
		h.logger.Warn().Str("user_id", msg.userID).Msg("User broadcast channel full, dropping message")
	}
}

// BroadcastToUser sends an event to a specific user's connections
func (h *UserWSHub) BroadcastToUser(userID string, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("event", string(event.Type)).Msg("Failed to marshal user event")
		return
	}
	h.cast(userMessage{userID: userID, data: data})
}

// BroadcastToAdmins sends an event to every admin connection
func (h *UserWSHub) BroadcastToAdmins(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("event", string(event.Type)).Msg("Failed to marshal admin event")
		return
	}
	h.cast(userMessage{data: data})
}

// GetUserClientCount returns the number of connected clients for a user
func (h *UserWSHub) GetUserClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID])
}

// GetTotalClientCount returns the total number of connected clients
func (h *UserWSHub) GetTotalClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// add registers a client unless the hub has stopped
func (h *UserWSHub) add(client *UserWSClient) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// remove unregisters a client unless the hub has stopped
func (h *UserWSHub) remove(client *UserWSClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *UserWSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

// readPump discards client messages and keeps the read deadline alive
func (c *UserWSClient) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		close(c.closeChan)
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug().Err(err).Str("user_id", c.userID).Msg("WebSocket read error")
			}
			return
		}
	}
}

// handleUserWebSocket upgrades an authenticated request to a live event stream
// GET /api/ws
func (s *Server) handleUserWebSocket(c *gin.Context) {
	userID := auth.GetUserID(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to upgrade connection")
		return
	}

	client := &UserWSClient{
		conn:      conn,
		send:      make(chan []byte, 256),
		hub:       s.hub,
		userID:    userID,
		isAdmin:   auth.IsAdmin(c),
		closeChan: make(chan struct{}),
	}

	// Queued before registration so the hub never races a closed channel
	welcome, _ := json.Marshal(gin.H{
		"type":      "CONNECTED",
		"timestamp": time.Now(),
		"user_id":   userID,
	})
	client.send <- welcome

	if !s.hub.add(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
