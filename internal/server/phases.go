package server

import (
	"errors"
	"time"

	"whispbox/internal/config"
)

type transitionMode int

const (
	transitionPreview transitionMode = iota
	transitionManual
	transitionAuto
)

type phaseTransition struct {
	advance func(s *Server, session *Session, mode transitionMode, at time.Time) (string, error)
}

var phaseTransitions = map[string]phaseTransition{
	phaseThemeSelection: {
		advance: func(s *Server, session *Session, mode transitionMode, at time.Time) (string, error) {
			turn := currentTurn(session)
			if turn == nil {
				return "", errors.New("round not started")
			}
			if turn.ThemeID == "" {
				return "", errors.New("theme not selected")
			}
			applyPhase(session, turn, phaseSecretSelection, mode, at)
			return phaseSecretSelection, nil
		},
	},
	phaseSecretSelection: {
		advance: func(s *Server, session *Session, mode transitionMode, at time.Time) (string, error) {
			turn := currentTurn(session)
			if turn == nil {
				return "", errors.New("round not started")
			}
			if turn.Secret == "" {
				return "", errors.New("secret not selected")
			}
			applyPhase(session, turn, phaseClueCapture, mode, at)
			return phaseClueCapture, nil
		},
	},
	phaseClueCapture: {
		advance: func(s *Server, session *Session, mode transitionMode, at time.Time) (string, error) {
			turn := currentTurn(session)
			if turn == nil {
				return "", errors.New("round not started")
			}
			if !clueCaptured(turn) {
				// The capture window expired with nothing recorded; the round
				// cannot be guessed and resolves without a winner.
				if mode == transitionAuto {
					resolveTurn(session, turn, 0, resolvedByTimeout, mode, at)
					return phaseRoundResolved, nil
				}
				return "", errors.New("clue not captured")
			}
			if mode != transitionPreview && turn.CompletedAt.IsZero() {
				turn.CompletedAt = transitionTime(at)
			}
			applyPhase(session, turn, phaseGuessing, mode, at)
			return phaseGuessing, nil
		},
	},
	phaseGuessing: {
		advance: func(s *Server, session *Session, mode transitionMode, at time.Time) (string, error) {
			turn := currentTurn(session)
			if turn == nil {
				return "", errors.New("round not started")
			}
			switch {
			case turn.WinnerID != 0:
				resolveTurn(session, turn, turn.WinnerID, resolvedByCorrectGuess, mode, at)
			case allGuessersAnswered(session, turn):
				resolveTurn(session, turn, 0, resolvedByAllAnswered, mode, at)
			case mode == transitionAuto:
				resolveTurn(session, turn, 0, resolvedByTimeout, mode, at)
			default:
				return "", errors.New("round not resolved")
			}
			return phaseRoundResolved, nil
		},
	},
	phaseRoundResolved: {
		advance: func(s *Server, session *Session, mode transitionMode, at time.Time) (string, error) {
			turn := currentTurn(session)
			if turn == nil {
				return "", errors.New("round not started")
			}
			if sessionComplete(session) {
				if mode != transitionPreview {
					session.Status = statusCompleted
					session.PhaseStartedAt = transitionTime(at)
				}
				return statusCompleted, nil
			}
			if mode != transitionPreview {
				storyteller, ok := nextStoryteller(session, turn.StorytellerID)
				if !ok {
					return "", errors.New("no storyteller available")
				}
				beginTurn(session, storyteller.ID, at)
			}
			return phaseThemeSelection, nil
		},
	},
}

func (s *Server) nextPhase(session *Session) (string, bool, error) {
	next, err := s.advancePhase(session, transitionPreview, time.Time{})
	if err != nil || next == "" {
		return "", false, err
	}
	return next, true, nil
}

func (s *Server) advancePhase(session *Session, mode transitionMode, at time.Time) (string, error) {
	if session == nil {
		return "", errSessionNotFound
	}
	if session.Status != statusActive {
		return "", errors.New("game not active")
	}
	turn := currentTurn(session)
	if turn == nil {
		return "", errors.New("round not started")
	}
	transition, ok := phaseTransitions[turn.Phase]
	if !ok {
		return "", errors.New("no next phase")
	}
	return transition.advance(s, session, mode, at)
}

// startSession moves waiting→active and opens round one with the rank-1
// player as storyteller.
func startSession(session *Session, at time.Time) error {
	if session.Status == statusCompleted {
		return errSessionEnded
	}
	if session.Status != statusWaiting {
		return errors.New("game already started")
	}
	if len(session.Players) < 2 {
		return errors.New("need at least two players")
	}
	storyteller, ok := firstStoryteller(session)
	if !ok {
		return errors.New("no storyteller available")
	}
	session.Status = statusActive
	beginTurn(session, storyteller.ID, at)
	return nil
}

func beginTurn(session *Session, storytellerID int, at time.Time) {
	session.CurrentRound++
	session.Turns = append(session.Turns, TurnState{
		Number:        session.CurrentRound,
		StorytellerID: storytellerID,
		ThemeID:       session.ThemeID,
		Phase:         phaseThemeSelection,
	})
	session.PhaseStartedAt = transitionTime(at)
}

func resolveTurn(session *Session, turn *TurnState, winnerID int, reason string, mode transitionMode, at time.Time) {
	if mode == transitionPreview {
		return
	}
	if turn.Phase == phaseRoundResolved {
		return
	}
	turn.WinnerID = winnerID
	turn.ResolvedBy = reason
	applyPhase(session, turn, phaseRoundResolved, mode, at)
}

func currentTurn(session *Session) *TurnState {
	if len(session.Turns) == 0 {
		return nil
	}
	return &session.Turns[len(session.Turns)-1]
}

func turnByNumber(session *Session, number int) *TurnState {
	if session == nil || number <= 0 {
		return nil
	}
	for i := range session.Turns {
		if session.Turns[i].Number == number {
			return &session.Turns[i]
		}
	}
	return nil
}

func applyPhase(session *Session, turn *TurnState, phase string, mode transitionMode, at time.Time) {
	if mode == transitionPreview {
		return
	}
	turn.Phase = phase
	session.PhaseStartedAt = transitionTime(at)
}

func transitionTime(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}
	return at
}

func clueCaptured(turn *TurnState) bool {
	if turn == nil {
		return false
	}
	return turn.ClueMediaURL != "" || len(turn.ClueElements) > 0
}

func clueMode(turn *TurnState) string {
	if turn != nil && len(turn.ClueElements) > 0 && turn.ClueMediaURL == "" {
		return clueModeElements
	}
	return clueModeAudio
}

func allGuessersAnswered(session *Session, turn *TurnState) bool {
	if session == nil || turn == nil {
		return false
	}
	guessers := 0
	for _, player := range session.Players {
		if player.ID == turn.StorytellerID {
			continue
		}
		guessers++
	}
	return guessers > 0 && len(turn.Guesses) >= guessers
}

func firstStoryteller(session *Session) (*Player, bool) {
	best := -1
	for i := range session.Players {
		if best < 0 || session.Players[i].Rank < session.Players[best].Rank {
			best = i
		}
	}
	if best < 0 {
		return nil, false
	}
	return &session.Players[best], true
}

// nextStoryteller advances round-robin by turn-order rank, skipping gaps left
// by departed players and wrapping at the end of the roster.
func nextStoryteller(session *Session, priorStorytellerID int) (*Player, bool) {
	prior, ok := findPlayer(session, priorStorytellerID)
	priorRank := 0
	if ok {
		priorRank = prior.Rank
	}
	var wrap, next *Player
	for i := range session.Players {
		player := &session.Players[i]
		if wrap == nil || player.Rank < wrap.Rank {
			wrap = player
		}
		if player.Rank > priorRank && (next == nil || player.Rank < next.Rank) {
			next = player
		}
	}
	if next != nil {
		return next, true
	}
	if wrap != nil {
		return wrap, true
	}
	return nil, false
}

func sessionComplete(session *Session) bool {
	if session == nil {
		return false
	}
	switch session.CompletionPolicy {
	case config.CompletionPolicyStorytellers:
		told := make(map[int]struct{}, len(session.Turns))
		for _, turn := range session.Turns {
			told[turn.StorytellerID] = struct{}{}
		}
		for _, player := range session.Players {
			if _, ok := told[player.ID]; !ok {
				return false
			}
		}
		return len(session.Players) > 0
	default:
		return session.TotalRounds > 0 && session.CurrentRound >= session.TotalRounds
	}
}
