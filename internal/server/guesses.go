package server

import (
	"errors"
	"log"
	"strings"
	"time"
)

var (
	errNotGuessing      = errors.New("round not accepting guesses")
	errStorytellerGuess = errors.New("storyteller may not guess")
	errStaleRound       = errors.New("round already advanced")
)

// submitGuess is the authoritative guess resolution path. All score mutation
// funnels through here; the winner gate is the in-memory turn under the store
// mutex plus the winner_player_id compare-and-set at the database layer.
func (s *Server) submitGuess(sessionID string, roundNumber, playerID int, value string) (GuessResult, *Session, error) {
	now := time.Now().UTC()
	var result GuessResult
	var entryIndex int
	var winnerCandidate bool
	var playerDBID uint

	session, err := s.store.UpdateSession(sessionID, func(session *Session) error {
		if session.Status == statusCompleted {
			return errSessionEnded
		}
		turn := currentTurn(session)
		if turn == nil || turn.Number != roundNumber {
			return errStaleRound
		}
		player, ok := findPlayer(session, playerID)
		if !ok {
			return errors.New("player not found")
		}
		playerDBID = player.DBID
		if player.ID == turn.StorytellerID {
			return errStorytellerGuess
		}
		for i := range turn.Guesses {
			if turn.Guesses[i].PlayerID == playerID {
				// Idempotent retry: hand back the stored first result.
				prior := turn.Guesses[i]
				result = GuessResult{
					Accepted:        false,
					Correct:         prior.Correct,
					Points:          prior.Points,
					AlreadyResolved: turn.Phase == phaseRoundResolved,
					RoundNumber:     turn.Number,
				}
				entryIndex = -1
				return nil
			}
		}
		if turn.Phase == phaseRoundResolved || turn.WinnerID != 0 {
			result = GuessResult{
				Accepted:        false,
				AlreadyResolved: true,
				RoundNumber:     turn.Number,
			}
			entryIndex = -1
			return nil
		}
		if turn.Phase != phaseGuessing {
			return errNotGuessing
		}

		correct := guessMatches(turn, value)
		turn.Guesses = append(turn.Guesses, GuessEntry{
			PlayerID:    playerID,
			Value:       value,
			Correct:     correct,
			SubmittedAt: now,
		})
		entryIndex = len(turn.Guesses) - 1
		result = GuessResult{
			Accepted:    true,
			Correct:     correct,
			RoundNumber: turn.Number,
		}
		if correct {
			// Tentative claim; points land only once the durable CAS confirms.
			turn.WinnerID = playerID
			winnerCandidate = true
		} else if allGuessersAnswered(session, turn) {
			resolveTurn(session, turn, 0, resolvedByAllAnswered, transitionManual, now)
			result.AlreadyResolved = true
		}
		return nil
	})
	if err != nil {
		return GuessResult{}, session, err
	}
	if entryIndex < 0 {
		return result, session, nil
	}

	turn := turnByNumber(session, roundNumber)
	if err := s.persistTurn(session); err != nil {
		log.Printf("persist turn failed session_id=%s round=%d error=%v", session.ID, roundNumber, err)
	}
	if turn != nil {
		duplicate, err := s.insertGuess(turn, playerDBID, &turn.Guesses[entryIndex])
		if err != nil {
			log.Printf("persist guess failed session_id=%s player_id=%d error=%v", session.ID, playerID, err)
		}
		if duplicate {
			// Another writer already holds the (turn, player) row; the stored
			// row is the first result and this submission awards nothing.
			winnerCandidate = false
			result.Accepted = false
		}
	}

	if winnerCandidate {
		won, err := s.claimTurnWinner(turn.DBID, playerDBID, now)
		if err != nil {
			return GuessResult{}, session, err
		}
		if won {
			points := s.cfg.CorrectGuessPoints
			if err := s.awardPoints(playerDBID, points); err != nil {
				log.Printf("award points failed session_id=%s player_id=%d error=%v", session.ID, playerID, err)
			}
			session, err = s.store.UpdateSession(sessionID, func(session *Session) error {
				turn := turnByNumber(session, roundNumber)
				if turn == nil {
					return errStaleRound
				}
				turn.Guesses[entryIndex].Points = points
				if player, ok := findPlayer(session, playerID); ok {
					player.Score += points
				}
				resolveTurn(session, turn, playerID, resolvedByCorrectGuess, transitionManual, now)
				return nil
			})
			if err != nil {
				return GuessResult{}, session, err
			}
			result.Points = points
		} else {
			// Lost the durable race to a concurrent correct guess.
			var guessDBID uint
			session, guessDBID = s.demoteLosingGuess(sessionID, roundNumber, playerID, entryIndex)
			if err := s.demoteGuessRow(guessDBID); err != nil {
				log.Printf("demote losing guess failed session_id=%s player_id=%d error=%v", sessionID, playerID, err)
			}
			result.Correct = false
			result.AlreadyResolved = true
		}
	}

	turn = turnByNumber(session, roundNumber)
	if turn != nil && turn.Phase == phaseRoundResolved {
		result.AlreadyResolved = result.AlreadyResolved || !result.Correct
		s.fillAdvancePreview(session, turn, &result)
		if err := s.persistStatus(session, eventPlayerAnswered, EventPayload{
			PlayerID:    playerID,
			Guess:       value,
			IsCorrect:   result.Correct,
			Points:      result.Points,
			RoundNumber: roundNumber,
		}); err != nil {
			log.Printf("persist round resolution failed session_id=%s error=%v", session.ID, err)
		}
		s.schedulePhaseTimer(session)
	} else if err := s.persistEvent(session, eventPlayerAnswered, EventPayload{
		PlayerID:    playerID,
		Guess:       value,
		IsCorrect:   result.Correct,
		RoundNumber: roundNumber,
	}); err != nil {
		log.Printf("persist guess event failed session_id=%s error=%v", session.ID, err)
	}
	return result, session, nil
}

// demoteLosingGuess rolls back a tentative winner claim whose durable
// compare-and-set lost: the in-memory entry flips to incorrect and the row id
// is handed back so the guesses table can be corrected to match.
func (s *Server) demoteLosingGuess(sessionID string, roundNumber, playerID, entryIndex int) (*Session, uint) {
	var guessDBID uint
	session, _ := s.store.UpdateSession(sessionID, func(session *Session) error {
		turn := turnByNumber(session, roundNumber)
		if turn == nil || entryIndex < 0 || entryIndex >= len(turn.Guesses) {
			return nil
		}
		if turn.WinnerID == playerID {
			turn.WinnerID = 0
		}
		turn.Guesses[entryIndex].Correct = false
		guessDBID = turn.Guesses[entryIndex].DBID
		return nil
	})
	return session, guessDBID
}

// fillAdvancePreview reports where the session goes after the resolve delay:
// the next round and storyteller, or completion.
func (s *Server) fillAdvancePreview(session *Session, turn *TurnState, result *GuessResult) {
	if sessionComplete(session) {
		result.SessionStatus = statusCompleted
		return
	}
	if storyteller, ok := nextStoryteller(session, turn.StorytellerID); ok {
		result.NextRound = turn.Number + 1
		result.NextStorytellerID = storyteller.ID
	}
}

func guessMatches(turn *TurnState, value string) bool {
	if turn == nil || turn.Secret == "" {
		return false
	}
	if clueMode(turn) == clueModeElements {
		// Element-selection mode compares element identity, not text.
		return strings.TrimSpace(value) == turn.Secret
	}
	return strings.EqualFold(normalizeText(value), normalizeText(turn.Secret))
}
