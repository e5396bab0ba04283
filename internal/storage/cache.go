package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"voicechat/backend/internal/auth"
	"voicechat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// CachedValidator remembers positive answers of Inner in Redis so that
// reconnect storms do not hit the identity store. Negative answers and errors
// are never cached.
type CachedValidator struct {
	Redis *redis.Client
	Inner auth.Validator
	TTL   time.Duration
}

func NewCachedValidator(rdb *redis.Client, inner auth.Validator, ttl time.Duration) *CachedValidator {
	return &CachedValidator{Redis: rdb, Inner: inner, TTL: ttl}
}

func sessionKey(token string) string { return "session:" + token }

func (v *CachedValidator) Validate(ctx context.Context, token string) (models.SessionStatus, error) {
	if v.Redis == nil || token == "" {
		return v.Inner.Validate(ctx, token)
	}

	raw, err := v.Redis.Get(ctx, sessionKey(token)).Bytes()
	switch {
	case err == nil:
		var status models.SessionStatus
		if jerr := json.Unmarshal(raw, &status); jerr == nil && status.Valid {
			return status, nil
		}
	case !errors.Is(err, redis.Nil):
		log.Warn().Err(err).Str("module", "storage").Msg("session cache read failed")
	}

	status, err := v.Inner.Validate(ctx, token)
	if err != nil || !status.Valid {
		return status, err
	}

	if data, jerr := json.Marshal(status); jerr == nil {
		if werr := v.Redis.Set(ctx, sessionKey(token), data, v.TTL).Err(); werr != nil {
			log.Warn().Err(werr).Str("module", "storage").Msg("session cache write failed")
		}
	}
	return status, nil
}
