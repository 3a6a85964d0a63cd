package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"shiftoffer_backend/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// IncomingWSMessage - сообщение от клиента
type IncomingWSMessage struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type Client struct {
	UserID       string
	DepartmentID string

	conn *websocket.Conn
	send chan []byte
	// replay - отложенные сообщения от хаба; send закрывает только хаб
	replay chan [][]byte
	done   chan struct{}
	hub    *Hub

	logger *zap.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, user *models.User) *Client {
	return &Client{
		UserID:       user.ID,
		DepartmentID: user.DepartmentID,
		conn:         conn,
		send:         make(chan []byte, sendBufferSize),
		replay:       make(chan [][]byte, 1),
		done:         make(chan struct{}),
		hub:          hub,
		logger:       hub.logger.With(zap.String("user_id", user.ID)),
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.heartbeat(c.UserID)
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		var msg IncomingWSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Debug("Failed to parse message", zap.Error(err))
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg IncomingWSMessage) {
	switch msg.Action {
	case "heartbeat":
		c.hub.heartbeat(c.UserID)

	case "presence":
		var payload struct {
			Status models.PresenceStatus `json:"status"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.logger.Debug("Invalid presence payload", zap.Error(err))
			return
		}
		c.hub.choosePresence(c.UserID, payload.Status)

	default:
		c.logger.Debug("Unhandled action", zap.String("action", msg.Action))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.done)
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("WebSocket write error", zap.Error(err))
				return
			}

		case batch := <-c.replay:
			for _, msg := range batch {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					c.logger.Debug("WebSocket write error", zap.Error(err))
					return
				}
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
