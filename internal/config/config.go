// Package config loads gateway settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	// Gateway
	SessionValidateTimeout = 5 * time.Second
	SessionCacheTTL        = 5 * time.Minute
	DevTokenTTL            = 72 * time.Hour
	ShutdownTimeout        = 10 * time.Second

	// Client
	AutoRedialDelay       = 3 * time.Second
	SearchTimeout         = 30 * time.Second
	MediaAcquireTimeout   = 15 * time.Second
	ReconnectInitialDelay = 500 * time.Millisecond
	ReconnectMaxDelay     = 10 * time.Second
)

// Session validation backends.
const (
	SessionBackendDB  = "db"
	SessionBackendJWT = "jwt"
)

// Config holds everything cmd/main.go needs to wire the gateway.
type Config struct {
	Addr string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// BypassVerification admits every connection without a session check.
	BypassVerification bool
	SessionBackend     string
	JWTSecret          string
	JWTIssuer          string
	DevTokens          bool

	// FrontendURL restricts WebSocket origins; empty allows any origin.
	FrontendURL string

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Str("module", "config").Msg("no .env file loaded")
	}

	return Config{
		Addr:               getenv("ADDR", ":3001"),
		DatabaseDSN:        os.Getenv("DATABASE_DSN"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getint("REDIS_DB", 0),
		BypassVerification: getbool("BYPASS_PHONE_VERIFICATION", false),
		SessionBackend:     strings.ToLower(getenv("SESSION_BACKEND", SessionBackendDB)),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTIssuer:          getenv("JWT_ISSUER", "voicechat-gateway"),
		DevTokens:          getbool("DEV_TOKENS", false),
		FrontendURL:        strings.TrimRight(os.Getenv("FRONTEND_URL"), "/"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogFormat:          getenv("LOG_FORMAT", "console"),
	}
}

func getenv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getbool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("module", "config").Str("key", key).Str("value", v).Msg("invalid boolean, using default")
		return fallback
	}
	return b
}

func getint(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("module", "config").Str("key", key).Str("value", v).Msg("invalid integer, using default")
		return fallback
	}
	return n
}
