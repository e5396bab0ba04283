package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"voicechat/backend/internal/auth"
	"voicechat/backend/internal/chathub"
	"voicechat/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	msgVerificationRequired = "Phone verification required"
	msgAuthError            = "Authentication error"
)

// ServeWebSocket upgrades the request, checks the session and hands the
// connection to the hub. Rejected connections receive auth-required and are
// closed without ever being registered.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	token := tokenFromRequest(c.Request)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Str("module", "handler").Msg("websocket upgrade failed")
		return
	}

	status, err := h.authenticate(c.Request.Context(), token)
	if err != nil || !status.Valid {
		msg := msgVerificationRequired
		if err != nil && !errors.Is(err, auth.ErrMissingToken) && !errors.Is(err, auth.ErrInvalidToken) {
			msg = msgAuthError
			log.Error().Err(err).Str("module", "handler").Msg("session validation failed")
		} else {
			log.Info().Str("module", "handler").Str("remote", c.ClientIP()).Msg("connection rejected: unverified session")
		}
		reject(conn, msg)
		return
	}

	client := chathub.NewWebSocketClient(uuid.New().String(), status, conn, h.Hub)
	select {
	case h.Hub.RegisterCh <- client:
	case <-h.Hub.Done():
		conn.Close()
		return
	}
	client.Run()
}

func (h *Handler) authenticate(ctx context.Context, token string) (models.SessionStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, h.ValidateTimeout)
	defer cancel()
	return h.Validator.Validate(ctx, token)
}

func reject(conn *websocket.Conn, message string) {
	defer conn.Close()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	env := models.MustEnvelope(models.EventAuthRequired, models.AuthRequiredPayload{Message: message})
	if err := conn.WriteJSON(env); err != nil {
		return
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
}

// tokenFromRequest reads the session token from the Authorization header or,
// for browsers that cannot set headers on WebSocket requests, the query string.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	q := r.URL.Query()
	if t := q.Get("session_id"); t != "" {
		return t
	}
	return q.Get("token")
}
