package models

import (
	"time"

	"github.com/lib/pq"
)

// Session mirrors a row of the sessions table owned by the identity service.
// The gateway only reads it.
type Session struct {
	ID              uint           `gorm:"primaryKey"`
	SessionID       string         `gorm:"uniqueIndex;not null"`
	PhoneVerified   bool           `gorm:"not null;default:false"`
	PhoneVerifiedAt *time.Time
	// Country is the ISO code of the verified phone number, when known.
	Country   string
	Scopes    pq.StringArray `gorm:"type:text[]"`
	CreatedAt time.Time
}

// TableName pins the table name used by the identity service.
func (Session) TableName() string { return "sessions" }

// SessionStatus is what a session validator reports about a token.
type SessionStatus struct {
	Valid     bool     `json:"valid"`
	SessionID string   `json:"session_id,omitempty"`
	Country   string   `json:"country,omitempty"`
	Scopes    []string `json:"scopes,omitempty"`
}

// HubStats is a point-in-time snapshot of the matchmaking hub.
type HubStats struct {
	Online            int     `json:"online" redis:"online"`
	Waiting           int     `json:"waiting" redis:"waiting"`
	Rooms             int     `json:"rooms" redis:"rooms"`
	OldestWaitSeconds float64 `json:"oldest_wait_seconds" redis:"oldest_wait_seconds"`
}
