package db

import "time"

type Guess struct {
	ID        uint      `gorm:"primaryKey"`
	TurnID    uint      `gorm:"index;not null;uniqueIndex:idx_guesses_turn_player"`
	PlayerID  uint      `gorm:"index;not null;uniqueIndex:idx_guesses_turn_player"`
	Value     string    `gorm:"size:140;not null"`
	Correct   bool      `gorm:"not null;default:false"`
	Points    int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
