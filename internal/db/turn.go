package db

import (
	"time"

	"gorm.io/datatypes"
)

type Turn struct {
	ID             uint           `gorm:"primaryKey"`
	SessionID      uint           `gorm:"index;not null;uniqueIndex:idx_turns_session_number"`
	Number         int            `gorm:"not null;uniqueIndex:idx_turns_session_number"`
	StorytellerID  uint           `gorm:"index;not null"`
	ThemeID        string         `gorm:"size:64"`
	Secret         string         `gorm:"size:140"`
	ClueElements   datatypes.JSON `gorm:"type:jsonb"`
	ClueMediaURL   string         `gorm:"size:512"`
	ClueAudio      []byte         `gorm:"type:bytea"`
	Phase          string         `gorm:"size:32;not null"`
	WinnerPlayerID *uint          `gorm:"index"`
	ResolvedBy     string         `gorm:"size:32"`
	CompletedAt    *time.Time
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
	Guesses        []Guess
}
