package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 256
)

type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	Session Session
}

func NewClient(hub *Hub, conn *websocket.Conn, userID primitive.ObjectID, role string) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		Session: Session{
			ID:     newSessionID(),
			UserID: userID,
			Role:   role,
		},
	}
}

type locationPayload struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.heartbeat()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).WithField("session_id", c.Session.ID).Warn("WebSocket read error")
			}
			break
		}

		c.handleMessage(message)
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
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage accepts only the small client vocabulary; clients never publish to topics.
func (c *Client) handleMessage(raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.hub.logger.WithError(err).WithField("session_id", c.Session.ID).Debug("Ignoring malformed client message")
		return
	}

	switch msg.Type {
	case "location_update":
		var loc locationPayload
		if err := json.Unmarshal(msg.Data, &loc); err != nil || loc.Lat == nil || loc.Lng == nil {
			c.reply("error", map[string]interface{}{"message": "location_update requires lat and lng"})
			return
		}
		if c.hub.listener != nil {
			c.hub.listener.OnLocation(c.Session, *loc.Lat, *loc.Lng)
		}

	case "ping":
		c.heartbeat()
		c.reply("pong", nil)

	default:
		c.reply("error", map[string]interface{}{"message": "unsupported message type"})
	}
}

func (c *Client) heartbeat() {
	if c.hub.listener != nil {
		c.hub.listener.OnHeartbeat(c.Session)
	}
}

func (c *Client) reply(msgType string, data interface{}) {
	c.hub.sendToClient(c, Message{
		Type:      msgType,
		Timestamp: getCurrentTimestamp(),
		Data:      data,
	})
}
