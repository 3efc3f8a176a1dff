package domain

import (
	"time"

	"gorm.io/datatypes"
)

// EventInbox is the best-effort cross-backend fan-out table. Each backend
// polls for rows addressed to other instances' matches and re-emits locally.
type EventInbox struct {
	ID        int64          `json:"id" gorm:"primaryKey;autoIncrement"`
	EventType string         `json:"eventType" gorm:"not null"`
	Data      datatypes.JSON `json:"data" gorm:"type:jsonb"`
	MatchID   int64          `json:"matchId" gorm:"index"`
	BackendID string         `json:"backendId" gorm:"not null"`
	CreatedAt time.Time      `json:"createdAt"`
	Processed bool           `json:"processed" gorm:"not null;default:false;index"`
}

func (EventInbox) TableName() string {
	return "event_inbox"
}
