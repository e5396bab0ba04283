package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"voicechat/backend/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected = errors.New("client: not connected to gateway")
	ErrAuthRequired = errors.New("client: gateway requires phone verification")
)

// TransportState describes the connection to the gateway, independent of any call.
type TransportState string

const (
	TransportConnected    TransportState = "connected"
	TransportDisconnected TransportState = "disconnected"
	TransportReconnecting TransportState = "reconnecting"
	TransportReconnected  TransportState = "reconnected"
)

// GatewayEvent is either an inbound envelope or a transport state change.
type GatewayEvent struct {
	Envelope  *models.Envelope
	Transport TransportState
}

// Gateway is the part of the signaling client a CallSession depends on.
type Gateway interface {
	Send(env models.Envelope) error
	Events() <-chan GatewayEvent
}

const (
	clientWriteWait = 10 * time.Second
	clientReadWait  = 90 * time.Second
)

// SignalingClient keeps a WebSocket to the gateway open, redialing with
// exponential backoff for as long as Run's context lives. It never rejoins
// a queue or room on its own.
type SignalingClient struct {
	URL    string
	Token  string
	Dialer *websocket.Dialer

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	events chan GatewayEvent

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewSignalingClient(url, token string) *SignalingClient {
	return &SignalingClient{
		URL:            url,
		Token:          token,
		Dialer:         websocket.DefaultDialer,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		events:         make(chan GatewayEvent, 64),
	}
}

func (c *SignalingClient) Events() <-chan GatewayEvent { return c.events }

// Send writes one envelope. It fails fast with ErrNotConnected while the
// transport is down.
func (c *SignalingClient) Send(env models.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	return nil
}

// Run connects and reconnects until ctx is done or the gateway rejects the
// session, in which case it returns ErrAuthRequired. The events channel is
// closed when Run returns.
func (c *SignalingClient) Run(ctx context.Context) error {
	defer close(c.events)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.InitialBackoff
	bo.MaxInterval = c.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	everConnected := false
	for {
		conn, err := c.dial(ctx)
		if err == nil {
			bo.Reset()
			c.setConn(conn)
			if everConnected {
				c.emit(ctx, GatewayEvent{Transport: TransportReconnected})
			} else {
				c.emit(ctx, GatewayEvent{Transport: TransportConnected})
			}
			everConnected = true

			err = c.readLoop(ctx, conn)
			c.setConn(nil)
			conn.Close()

			if errors.Is(err, ErrAuthRequired) {
				c.emit(ctx, GatewayEvent{Transport: TransportDisconnected})
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Str("module", "signaling").Msg("gateway connection lost")
			c.emit(ctx, GatewayEvent{Transport: TransportDisconnected})
		} else if ctx.Err() != nil {
			return ctx.Err()
		} else {
			log.Debug().Err(err).Str("module", "signaling").Msg("gateway dial failed")
		}

		c.emit(ctx, GatewayEvent{Transport: TransportReconnecting})
		wait := time.NewTimer(bo.NextBackOff())
		select {
		case <-ctx.Done():
			wait.Stop()
			return ctx.Err()
		case <-wait.C:
		}
	}
}

func (c *SignalingClient) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.Token != "" {
		header.Set("Authorization", "Bearer "+c.Token)
	}
	conn, _, err := c.Dialer.DialContext(ctx, c.URL, header)
	return conn, err
}

func (c *SignalingClient) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetReadDeadline(time.Now().Add(clientReadWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(clientReadWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(clientWriteWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(clientReadWait))

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			log.Debug().Str("module", "signaling").Msg("malformed frame ignored")
			continue
		}

		c.emit(ctx, GatewayEvent{Envelope: &env})
		if env.Type == models.EventAuthRequired {
			return ErrAuthRequired
		}
	}
}

func (c *SignalingClient) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *SignalingClient) emit(ctx context.Context, ev GatewayEvent) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}
