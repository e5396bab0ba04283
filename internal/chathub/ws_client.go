package chathub

import (
	"encoding/json"
	"sync"
	"time"

	"voicechat/backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	// SendBufferSize is the outbound queue length per connection.
	SendBufferSize = 64
)

// WebSocketClient implements Client over a gorilla connection.
type WebSocketClient struct {
	ID      string
	Session models.SessionStatus
	Conn    *websocket.Conn
	Hub     *ManagerService
	Send    chan models.Envelope

	closeOnce sync.Once
}

func NewWebSocketClient(id string, session models.SessionStatus, conn *websocket.Conn, hub *ManagerService) *WebSocketClient {
	return &WebSocketClient{
		ID:      id,
		Session: session,
		Conn:    conn,
		Hub:     hub,
		Send:    make(chan models.Envelope, SendBufferSize),
	}
}

func (c *WebSocketClient) GetClientID() string                    { return c.ID }
func (c *WebSocketClient) GetSession() models.SessionStatus       { return c.Session }
func (c *WebSocketClient) GetSendChannel() chan<- models.Envelope { return c.Send }

func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes Send, which makes writePump send a close frame and drop the
// connection. readPump then fails its next read and exits.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.Hub.UnregisterCh <- c:
		case <-c.Hub.Done():
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "ws").Str("client", c.ID).Msg("read failed")
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
			log.Debug().Str("module", "ws").Str("client", c.ID).Msg("malformed frame ignored")
			continue
		}

		select {
		case c.Hub.IncomingCh <- models.InboundEvent{ClientID: c.ID, Envelope: env}:
		case <-c.Hub.Done():
			return
		}
	}
}

// writePump writes one envelope per frame so the receiving side can decode
// each frame independently.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteJSON(env); err != nil {
				log.Debug().Err(err).Str("module", "ws").Str("client", c.ID).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
