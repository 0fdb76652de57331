package ws

import (
	"net/http"
	"time"

	"bookingsync-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Observers are other backends, not browsers; no origin policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one observer connection. The hub writes into send; writePump is
// the only goroutine touching the connection for writes.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	log  logger.Logger
}

// ServeWS upgrades the request to a websocket observer connection and
// registers it with the hub. sendBuffer bounds the per-observer queue; an
// observer that lets it fill up is disconnected.
func ServeWS(hub *Hub, log logger.Logger, sendBuffer int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("websocket upgrade failed", "error", err)
			return
		}
		if sendBuffer < 1 {
			sendBuffer = 1
		}
		c := &Client{
			id:   uuid.New().String(),
			hub:  hub,
			conn: conn,
			send: make(chan []byte, sendBuffer),
			log:  log.With("observer", conn.RemoteAddr().String()),
		}
		hub.Register(c)
		go c.writePump()
		go c.readPump()
	}
}

// readPump drains inbound messages. The observer channel is push-only:
// whatever a client sends is logged and has no effect on engine state.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("observer read error", "error", err)
			}
			return
		}
		c.log.Info("received message from observer", "message", string(msg))
	}
}

// writePump pushes queued notifications to the connection and keeps it alive
// with pings. It exits when the hub closes the send channel or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
