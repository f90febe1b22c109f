package db

import "time"

type Player struct {
	ID        uint      `gorm:"primaryKey"`
	SessionID uint      `gorm:"index;not null;uniqueIndex:idx_players_session_rank;uniqueIndex:idx_players_session_identity"`
	Identity  string    `gorm:"size:64;not null;uniqueIndex:idx_players_session_identity"`
	Name      string    `gorm:"size:64;not null"`
	Rank      int       `gorm:"not null;uniqueIndex:idx_players_session_rank"`
	Score     int       `gorm:"not null;default:0"`
	IsHost    bool      `gorm:"not null;default:false"`
	JoinedAt  time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
	Guesses   []Guess
	Events    []Event
}
