package server

import "time"

const (
	statusWaiting   = "waiting"
	statusActive    = "active"
	statusCompleted = "completed"
)

const (
	phaseThemeSelection  = "theme_selection"
	phaseSecretSelection = "secret_selection"
	phaseClueCapture     = "clue_capture"
	phaseGuessing        = "guessing"
	phaseRoundResolved   = "round_resolved"
)

const (
	resolvedByCorrectGuess = "correct_guess"
	resolvedByAllAnswered  = "all_answered"
	resolvedByTimeout      = "timeout"
)

const (
	clueModeAudio    = "audio"
	clueModeElements = "elements"
)

type SessionSummary struct {
	ID       string
	JoinCode string
	Status   string
	Players  int
}

type Session struct {
	ID               string
	DBID             uint
	JoinCode         string
	Status           string
	PhaseStartedAt   time.Time
	HostID           int
	// HostToken survives restarts; host verbs stay usable after a restore.
	HostToken        string
	Packs            []string
	ThemeID          string
	CurrentRound     int
	TotalRounds      int
	CompletionPolicy string
	// Per-session timer presets; zero falls back to the server defaults.
	ClueSeconds   int
	GuessSeconds  int
	KickedPlayers map[string]struct{}
	// AuthTokens holds the per-player credentials issued at join. In-memory
	// only; restored sessions re-issue on identity rejoin.
	AuthTokens map[int]string
	Players    []Player
	Turns      []TurnState
	EventSeq   int64
}

type Player struct {
	ID       int
	DBID     uint
	Identity string
	Name     string
	Rank     int
	Score    int
	IsHost   bool
}

type TurnState struct {
	Number        int
	DBID          uint
	StorytellerID int
	ThemeID       string
	Secret        string
	ClueElements  []string
	ClueMediaURL  string
	ClueAudio     []byte
	Phase         string
	WinnerID      int
	ResolvedBy    string
	CompletedAt   time.Time
	Guesses       []GuessEntry
}

type GuessEntry struct {
	PlayerID    int
	Value       string
	Correct     bool
	Points      int
	DBID        uint
	SubmittedAt time.Time
}

// GuessResult is the submit-guess contract. A duplicate submission returns the
// stored first result with Accepted=false rather than an error.
type GuessResult struct {
	Accepted          bool   `json:"accepted"`
	Correct           bool   `json:"correct"`
	Points            int    `json:"points_earned"`
	AlreadyResolved   bool   `json:"already_resolved"`
	RoundNumber       int    `json:"round_number"`
	NextRound         int    `json:"next_round,omitempty"`
	NextStorytellerID int    `json:"next_storyteller_id,omitempty"`
	SessionStatus     string `json:"session_status,omitempty"`
}
