package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voicechat/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// The methods below back the admin CLI. The gateway itself never writes sessions.

// Migrate creates the sessions table for local development databases.
func (s *Service) Migrate() error {
	if s.DB == nil {
		return ErrNoDatabase
	}
	return s.DB.AutoMigrate(&models.Session{})
}

// VerifySession creates or updates a session with a verified phone.
func (s *Service) VerifySession(ctx context.Context, sessionID, country string) error {
	if s.DB == nil {
		return ErrNoDatabase
	}
	now := time.Now()
	sess := models.Session{
		SessionID:       sessionID,
		PhoneVerified:   true,
		PhoneVerifiedAt: &now,
		Country:         country,
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"phone_verified", "phone_verified_at", "country"}),
	}).Create(&sess).Error
}

// RevokeSession clears the verified flag and evicts any cached answer.
func (s *Service) RevokeSession(ctx context.Context, sessionID string) error {
	if s.DB == nil {
		return ErrNoDatabase
	}
	res := s.DB.WithContext(ctx).Model(&models.Session{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{"phone_verified": false, "phone_verified_at": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %s: %w", sessionID, gorm.ErrRecordNotFound)
	}
	if s.Redis != nil {
		if err := s.Redis.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
			return fmt.Errorf("evict cached session: %w", err)
		}
	}
	return nil
}

// ErrNoStats is returned when no gateway has reported yet.
var ErrNoStats = errors.New("storage: no stats reported")

// ReadStats returns the last snapshot a gateway mirrored to Redis.
func (s *Service) ReadStats(ctx context.Context) (models.HubStats, error) {
	var stats models.HubStats
	if s.Redis == nil {
		return stats, errors.New("storage: redis not configured")
	}
	res := s.Redis.HGetAll(ctx, StatsKey)
	if err := res.Err(); err != nil {
		return stats, err
	}
	if len(res.Val()) == 0 {
		return stats, ErrNoStats
	}
	if err := res.Scan(&stats); err != nil {
		return stats, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}
