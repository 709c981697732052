// Package gateway is the WebSocket transport boundary: it frames
// named events to and from clients and feeds them to the session
// controller.
package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/quizwire/quizwire/internal/quiz/events"
	"github.com/quizwire/quizwire/internal/quiz/models"
)

// Controller is the session layer the gateway feeds.
type Controller interface {
	HandleNewUser(roomID string, conn models.Sender, data json.RawMessage) (*models.Participant, error)
	HandleEvent(roomID, participantID, event string, data json.RawMessage)
	HandleDisconnect(roomID, participantID string)
}

// Config holds WebSocket transport tuning.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	DefaultRoom     string
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns the default WebSocket configuration.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		DefaultRoom:     "main",
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins; the relay sits behind its own CORS policy.
			return true
		},
	}
}

// Gateway upgrades HTTP connections and pumps frames between clients
// and the session controller.
type Gateway struct {
	controller Controller
	upgrader   websocket.Upgrader
	config     Config

	mu    sync.Mutex
	conns map[*Connection]bool
}

// NewGateway creates a gateway over the given controller.
func NewGateway(controller Controller, config Config) *Gateway {
	return &Gateway{
		controller: controller,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		conns:  make(map[*Connection]bool),
	}
}

// Connection is one client transport. It implements models.Sender:
// TrySend enqueues on a bounded buffer and never blocks, so one slow
// client cannot stall a broadcast.
type Connection struct {
	ID            string
	RoomID        string
	participantID string

	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	gw   *Gateway

	ConnectedAt time.Time
	closeOnce   sync.Once
}

// TrySend queues a frame for delivery. Returns false when the send
// buffer is full or the connection is closed.
func (c *Connection) TrySend(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// HandleWS upgrades an HTTP request to a WebSocket connection and
// joins the room named by the `room` query parameter.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = g.config.DefaultRoom
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	c := &Connection{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		conn:        conn,
		send:        make(chan []byte, g.config.SendBuffer),
		done:        make(chan struct{}),
		gw:          g,
		ConnectedAt: time.Now(),
	}

	g.mu.Lock()
	g.conns[c] = true
	g.mu.Unlock()

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.ID).
		Str("room_id", roomID).
		Msg("WebSocket connection established")
}

// ConnectionCount returns the number of open connections.
func (g *Gateway) ConnectionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

func (g *Gateway) remove(c *Connection) {
	g.mu.Lock()
	delete(g.conns, c)
	g.mu.Unlock()
}

// readPump reads client frames and routes them: newUserRequest goes to
// registration, everything else to event dispatch. A read error is the
// disconnect notification.
func (c *Connection) readPump() {
	defer func() {
		c.gw.remove(c)
		c.close()
		c.gw.controller.HandleDisconnect(c.RoomID, c.participantID)
	}()

	c.conn.SetReadLimit(c.gw.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.gw.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.gw.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.gw.config.ReadTimeout))
		c.dispatch(message)
	}
}

func (c *Connection) dispatch(message []byte) {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("malformed frame, dropping")
		return
	}

	if env.Event == events.NewUserRequest {
		// A repeated request mints a fresh identity; the previous one
		// leaves the room first so clients drop its list entry.
		if c.participantID != "" {
			c.gw.controller.HandleDisconnect(c.RoomID, c.participantID)
			c.participantID = ""
		}
		p, err := c.gw.controller.HandleNewUser(c.RoomID, c, env.Data)
		if err != nil {
			log.Error().Err(err).Str("connection_id", c.ID).Msg("registration failed")
			return
		}
		c.participantID = p.ID
		return
	}

	c.gw.controller.HandleEvent(c.RoomID, c.participantID, env.Event, env.Data)
}

// writePump drains the send buffer to the socket and keeps the
// connection alive with pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.gw.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.gw.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write frame")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.gw.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}
