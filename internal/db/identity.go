package db

import "time"

// Identity is the durable record behind a player identity cookie. One row per
// device; the same identity can appear in many sessions over time.
type Identity struct {
	ID         string    `gorm:"primaryKey;size:64"`
	PlayerName string    `gorm:"size:64"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}
