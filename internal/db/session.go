package db

import (
	"time"

	"gorm.io/datatypes"
)

type Session struct {
	ID               uint           `gorm:"primaryKey"`
	JoinCode         string         `gorm:"size:12;uniqueIndex;not null"`
	Status           string         `gorm:"size:32;not null"`
	HostIdentity     string         `gorm:"size:64;not null"`
	HostToken        string         `gorm:"size:64;not null;default:''"`
	Packs            datatypes.JSON `gorm:"type:jsonb"`
	ThemeID          string         `gorm:"size:64"`
	CurrentRound     int            `gorm:"not null;default:0"`
	TotalRounds      int            `gorm:"not null;default:0"`
	CompletionPolicy string         `gorm:"size:32;not null"`
	ClueSeconds      int            `gorm:"not null;default:0"`
	GuessSeconds     int            `gorm:"not null;default:0"`
	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"not null"`
	Players          []Player
	Turns            []Turn
	Events           []Event
}
