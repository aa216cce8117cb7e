// Package dashboard bridges browser clients onto the broadcast hub
// over WebSocket. Dashboards are read-only observers: every line the
// hub publishes to students is mirrored to them verbatim.
package dashboard

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/broadcast"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = 50 * time.Second

	sendQueueSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// Client is one dashboard connection, registered with the hub as a
// subscriber.
type Client struct {
	id     string
	hub    *broadcast.Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger
}

// ID implements broadcast.Subscriber.
func (c *Client) ID() string { return c.id }

// Send implements broadcast.Subscriber. It queues one protocol line and
// never blocks; a full queue drops the line.
func (c *Client) Send(line []byte) error {
	select {
	case c.send <- line:
		return nil
	default:
		c.logger.Warn("dashboard send queue full, dropping message",
			zap.String("client_id", c.id))
		return nil
	}
}

// ServeWs handles GET /ws: upgrades the connection and mirrors hub
// traffic until the browser goes away.
func ServeWs(hub *broadcast.Hub, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("dashboard upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			id:     uuid.New().String(),
			hub:    hub,
			conn:   conn,
			send:   make(chan []byte, sendQueueSize),
			logger: logger,
		}
		hub.Subscribe(client)
		logger.Info("dashboard connected", zap.String("client_id", client.id))

		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unsubscribe(c.id)
		c.conn.Close()
		c.logger.Info("dashboard disconnected", zap.String("client_id", c.id))
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Dashboards only listen; inbound messages are drained and dropped.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case line := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, line); err != nil {
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
