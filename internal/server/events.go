package server

import "time"

// Broadcast event catalogue. Broadcasts are hints: receivers refetch full
// state rather than trusting payloads for scores or secrets.
const (
	eventPlayerJoined      = "player_joined"
	eventPlayerLeft        = "player_left"
	eventGameStarted       = "game_started"
	eventLobbyEnded        = "lobby_ended"
	eventThemeSelected     = "theme_selected"
	eventSecretSelected    = "secret_selected"
	eventRecordingUploaded = "recording_uploaded"
	eventPlayerAnswered    = "player_answered"
	eventRefreshState      = "refresh_state"
)

type EventPayload struct {
	SessionID   string `json:"session_id,omitempty"`
	JoinCode    string `json:"join_code,omitempty"`
	PlayerName  string `json:"player,omitempty"`
	PlayerID    int    `json:"player_id,omitempty"`
	RoundNumber int    `json:"round_number,omitempty"`
	Phase       string `json:"phase,omitempty"`
	Status      string `json:"status,omitempty"`
	Reason      string `json:"reason,omitempty"`
	ThemeID     string `json:"theme_id,omitempty"`
	AudioURL    string `json:"audio_url,omitempty"`
	Guess       string `json:"guess,omitempty"`
	IsCorrect   bool   `json:"is_correct,omitempty"`
	Points      int    `json:"points,omitempty"`
}

// Envelope is the broadcast wire format. Sender identity and timestamp let
// receivers drop self-originated events and tolerate out-of-order arrival.
type Envelope struct {
	Type       string       `json:"type"`
	Payload    EventPayload `json:"payload"`
	SenderID   string       `json:"sender_id,omitempty"`
	SenderName string       `json:"sender_name,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// FeedEvent is one durable change-feed entry as served by the events
// endpoint, ordered by Seq and delivered at least once.
type FeedEvent struct {
	Seq       int64        `json:"seq"`
	Type      string       `json:"type"`
	Payload   EventPayload `json:"payload"`
	CreatedAt time.Time    `json:"created_at"`
}
