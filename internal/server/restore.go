package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"whispbox/internal/db"
)

// restoreSessionFromDB rebuilds a live session from its durable rows after a
// process restart. The durable store is the source of truth; the in-memory
// copy is derived state.
func (s *Server) restoreSessionFromDB(sessionID string) (*Session, error) {
	if s.db == nil {
		return nil, errors.New("database not configured")
	}
	dbID := sessionSortKey(sessionID)
	if dbID <= 0 {
		return nil, errSessionNotFound
	}

	var record db.Session
	if err := s.db.First(&record, dbID).Error; err != nil {
		return nil, errSessionNotFound
	}
	if record.Status == statusCompleted {
		return nil, errSessionEnded
	}

	if existing, ok := s.store.GetSession(fmt.Sprintf("sess-%d", record.ID)); ok {
		return existing, nil
	}
	if existing, ok := s.store.FindSessionByJoinCode(record.JoinCode); ok {
		return existing, nil
	}

	players, err := s.loadPlayers(record.ID)
	if err != nil {
		return nil, err
	}
	turns, err := s.loadTurns(record.ID)
	if err != nil {
		return nil, err
	}
	turnIDs := make([]uint, 0, len(turns))
	for _, turn := range turns {
		turnIDs = append(turnIDs, turn.ID)
	}
	guesses, err := s.loadGuesses(turnIDs)
	if err != nil {
		return nil, err
	}

	var packs []string
	if len(record.Packs) > 0 {
		_ = json.Unmarshal(record.Packs, &packs)
	}
	session := &Session{
		ID:               fmt.Sprintf("sess-%d", record.ID),
		DBID:             record.ID,
		JoinCode:         record.JoinCode,
		Status:           record.Status,
		PhaseStartedAt:   time.Now().UTC(),
		Packs:            packs,
		ThemeID:          record.ThemeID,
		CurrentRound:     record.CurrentRound,
		TotalRounds:      record.TotalRounds,
		CompletionPolicy: record.CompletionPolicy,
		ClueSeconds:      record.ClueSeconds,
		GuessSeconds:     record.GuessSeconds,
		HostToken:        record.HostToken,
		KickedPlayers:    make(map[string]struct{}),
		EventSeq:         s.maxEventSeq(record.ID),
	}
	session.Players = buildPlayers(players, session)
	session.Turns = buildTurns(turns, players, guesses)

	if turn := currentTurn(session); turn != nil && turn.Number > session.CurrentRound {
		session.CurrentRound = turn.Number
	}

	if err := s.store.RestoreSession(session); err != nil {
		return nil, err
	}
	s.schedulePhaseTimer(session)
	return session, nil
}

func (s *Server) loadPlayers(sessionDBID uint) ([]db.Player, error) {
	var players []db.Player
	if err := s.db.Where("session_id = ?", sessionDBID).Order("rank asc").Find(&players).Error; err != nil {
		return nil, err
	}
	return players, nil
}

func (s *Server) loadTurns(sessionDBID uint) ([]db.Turn, error) {
	var turns []db.Turn
	if err := s.db.Where("session_id = ?", sessionDBID).Order("number asc").Find(&turns).Error; err != nil {
		return nil, err
	}
	return turns, nil
}

func (s *Server) loadGuesses(turnIDs []uint) ([]db.Guess, error) {
	if len(turnIDs) == 0 {
		return nil, nil
	}
	var guesses []db.Guess
	if err := s.db.Where("turn_id IN ?", turnIDs).Order("id asc").Find(&guesses).Error; err != nil {
		return nil, err
	}
	return guesses, nil
}

func (s *Server) maxEventSeq(sessionDBID uint) int64 {
	var seq int64
	s.db.Model(&db.Event{}).Where("session_id = ?", sessionDBID).
		Select("COALESCE(MAX(seq), 0)").Scan(&seq)
	return seq
}

func buildPlayers(records []db.Player, session *Session) []Player {
	players := make([]Player, 0, len(records))
	for _, record := range records {
		player := Player{
			ID:       int(record.ID),
			DBID:     record.ID,
			Identity: record.Identity,
			Name:     record.Name,
			Rank:     record.Rank,
			Score:    record.Score,
			IsHost:   record.IsHost,
		}
		players = append(players, player)
		if record.IsHost {
			session.HostID = player.ID
		}
	}
	return players
}

func buildTurns(turns []db.Turn, players []db.Player, guesses []db.Guess) []TurnState {
	guessesByTurn := map[uint][]db.Guess{}
	for _, guess := range guesses {
		guessesByTurn[guess.TurnID] = append(guessesByTurn[guess.TurnID], guess)
	}
	playerIDByDBID := map[uint]int{}
	for _, player := range players {
		playerIDByDBID[player.ID] = int(player.ID)
	}

	states := make([]TurnState, 0, len(turns))
	for _, turn := range turns {
		state := TurnState{
			Number:        turn.Number,
			DBID:          turn.ID,
			StorytellerID: playerIDByDBID[turn.StorytellerID],
			ThemeID:       turn.ThemeID,
			Secret:        turn.Secret,
			ClueMediaURL:  turn.ClueMediaURL,
			ClueAudio:     turn.ClueAudio,
			Phase:         turn.Phase,
			ResolvedBy:    turn.ResolvedBy,
		}
		if len(turn.ClueElements) > 0 {
			_ = json.Unmarshal(turn.ClueElements, &state.ClueElements)
		}
		if turn.WinnerPlayerID != nil {
			state.WinnerID = playerIDByDBID[*turn.WinnerPlayerID]
		}
		if turn.CompletedAt != nil {
			state.CompletedAt = *turn.CompletedAt
		}
		records := guessesByTurn[turn.ID]
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		})
		for _, guess := range records {
			state.Guesses = append(state.Guesses, GuessEntry{
				PlayerID:    playerIDByDBID[guess.PlayerID],
				Value:       guess.Value,
				Correct:     guess.Correct,
				Points:      guess.Points,
				DBID:        guess.ID,
				SubmittedAt: guess.CreatedAt,
			})
		}
		states = append(states, state)
	}
	return states
}
