package client

import "time"

// Session mirrors the session block of the full-state payload.
type Session struct {
	ID               string    `json:"id"`
	JoinCode         string    `json:"join_code"`
	Status           string    `json:"status"`
	HostID           int       `json:"host_id"`
	Packs            []string  `json:"packs"`
	ThemeID          string    `json:"theme_id"`
	CurrentRound     int       `json:"current_round"`
	TotalRounds      int       `json:"total_rounds"`
	CompletionPolicy string    `json:"completion_policy"`
	PhaseStartedAt   time.Time `json:"phase_started_at"`
}

type Player struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Rank   int    `json:"rank"`
	Score  int    `json:"score"`
	IsHost bool   `json:"is_host"`
}

type Guess struct {
	PlayerID    int       `json:"player_id"`
	Guess       string    `json:"guess"`
	IsCorrect   bool      `json:"is_correct"`
	Points      int       `json:"points"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Turn struct {
	Number        int      `json:"number"`
	StorytellerID int      `json:"storyteller_id"`
	ThemeID       string   `json:"theme_id"`
	Phase         string   `json:"phase"`
	ClueMode      string   `json:"clue_mode"`
	ClueMediaURL  string   `json:"clue_media_url"`
	ClueElements  []string `json:"clue_elements"`
	WinnerID      int      `json:"winner_id"`
	ResolvedBy    string   `json:"resolved_by"`
	Secret        string   `json:"secret"`
	Guesses       []Guess  `json:"guesses"`
}

// State is the local snapshot of one session. It is only ever replaced
// wholesale by a full-state refetch, never patched from broadcast payloads.
type State struct {
	Session     Session  `json:"session"`
	Players     []Player `json:"players"`
	ActiveTurn  *Turn    `json:"active_turn"`
	Status      string   `json:"status"`
	Phase       string   `json:"phase"`
	RoundNumber int      `json:"round_number"`
}

// GuessResult is the submit-guess contract as returned by the server.
type GuessResult struct {
	Accepted          bool   `json:"accepted"`
	Correct           bool   `json:"correct"`
	Points            int    `json:"points_earned"`
	AlreadyResolved   bool   `json:"already_resolved"`
	RoundNumber       int    `json:"round_number"`
	NextRound         int    `json:"next_round"`
	NextStorytellerID int    `json:"next_storyteller_id"`
	SessionStatus     string `json:"session_status"`
}

// EventPayload carries the hint fields a broadcast or feed event may set.
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

// Envelope is one broadcast message.
type Envelope struct {
	Type       string       `json:"type"`
	Payload    EventPayload `json:"payload"`
	SenderID   string       `json:"sender_id"`
	SenderName string       `json:"sender_name"`
	Timestamp  time.Time    `json:"timestamp"`
}

// FeedEvent is one durable change-feed entry.
type FeedEvent struct {
	Seq       int64        `json:"seq"`
	Type      string       `json:"type"`
	Payload   EventPayload `json:"payload"`
	CreatedAt time.Time    `json:"created_at"`
}

// Identity is the one identity value resolved at session entry and passed
// explicitly everywhere; handlers never re-derive it.
type Identity struct {
	ID       string
	PlayerID int
	Name     string
	// AuthToken is issued by the server at join and accompanies every
	// subsequent authenticated call.
	AuthToken string
}

type effect int

const (
	effectNone effect = iota
	effectRefetch
	effectExit
)

// eventEffect is the pure dispatch table: every broadcast is a hint, so almost
// everything maps to a refetch of authoritative state.
func eventEffect(eventType string) effect {
	switch eventType {
	case "lobby_ended":
		return effectExit
	case "player_joined", "player_left", "game_started", "theme_selected",
		"secret_selected", "recording_uploaded", "player_answered", "refresh_state":
		return effectRefetch
	default:
		return effectNone
	}
}
