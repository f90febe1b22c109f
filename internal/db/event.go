package db

import (
	"time"

	"gorm.io/datatypes"
)

// Event is the durable change feed. Rows are ordered per session by Seq and
// consumed at-least-once through the events endpoint.
type Event struct {
	ID        uint           `gorm:"primaryKey"`
	SessionID uint           `gorm:"index;not null;uniqueIndex:idx_events_session_seq"`
	Seq       int64          `gorm:"not null;uniqueIndex:idx_events_session_seq"`
	TurnID    *uint          `gorm:"index"`
	PlayerID  *uint          `gorm:"index"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
