package handler

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"voicechat/backend/internal/auth"
	"voicechat/backend/internal/chathub"

	"github.com/gorilla/websocket"
)

const defaultValidateTimeout = 5 * time.Second

// Handler serves the gateway's HTTP surface on top of a running hub.
type Handler struct {
	Hub       *chathub.ManagerService
	Validator auth.Validator

	// Issuer enables GET /dev/token when set.
	Issuer *auth.TokenIssuer
	// ValidateTimeout bounds a single session check.
	ValidateTimeout time.Duration

	upgrader websocket.Upgrader
}

// NewHandler builds a handler. allowedOrigin restricts WebSocket upgrades to
// one browser origin; empty accepts any origin.
func NewHandler(hub *chathub.ManagerService, validator auth.Validator, allowedOrigin string) *Handler {
	return &Handler{
		Hub:             hub,
		Validator:       validator,
		ValidateTimeout: defaultValidateTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigin),
		},
	}
}

func originChecker(allowed string) func(r *http.Request) bool {
	if allowed == "" {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients do not send Origin.
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Scheme+"://"+u.Host, allowed)
	}
}
