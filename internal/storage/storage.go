package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"voicechat/backend/internal/auth"
	"voicechat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	// StatsKey is the Redis hash holding the latest hub snapshot.
	StatsKey = "voicechat:stats"
	// StatsChannel receives every snapshot as JSON for dashboards.
	StatsChannel = "voicechat:stats:updates"
)

// ErrNoDatabase is returned by Validate when no database is configured.
var ErrNoDatabase = errors.New("storage: database not configured")

// Service reads sessions from PostgreSQL and mirrors hub state to Redis.
// Either handle may be nil.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{DB: db, Redis: rdb}
}

// Validate looks the token up in the sessions table. Unknown tokens and
// sessions without a verified phone are reported as not valid.
func (s *Service) Validate(ctx context.Context, token string) (models.SessionStatus, error) {
	if token == "" {
		return models.SessionStatus{}, auth.ErrMissingToken
	}
	if s.DB == nil {
		return models.SessionStatus{}, ErrNoDatabase
	}

	var sess models.Session
	err := s.DB.WithContext(ctx).
		Select("session_id", "phone_verified", "country", "scopes").
		Where("session_id = ?", token).
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.SessionStatus{Valid: false}, nil
	}
	if err != nil {
		return models.SessionStatus{}, fmt.Errorf("lookup session: %w", err)
	}

	return models.SessionStatus{
		Valid:     sess.PhoneVerified,
		SessionID: sess.SessionID,
		Country:   sess.Country,
		Scopes:    sess.Scopes,
	}, nil
}

// ReportStats stores the snapshot in a hash and publishes it in one round trip.
func (s *Service) ReportStats(ctx context.Context, stats models.HubStats) error {
	if s.Redis == nil {
		return nil
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		return err
	}

	pipe := s.Redis.TxPipeline()
	pipe.HSet(ctx, StatsKey, map[string]any{
		"online":              stats.Online,
		"waiting":             stats.Waiting,
		"rooms":               stats.Rooms,
		"oldest_wait_seconds": stats.OldestWaitSeconds,
	})
	pipe.Publish(ctx, StatsChannel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("report stats: %w", err)
	}
	return nil
}
