package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"whispbox/internal/db"

	"github.com/jackc/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Server) persistSession(session *Session) error {
	if s.db == nil {
		return nil
	}
	packs, err := json.Marshal(session.Packs)
	if err != nil {
		return err
	}
	record := db.Session{
		JoinCode:         session.JoinCode,
		HostToken:        session.HostToken,
		Status:           session.Status,
		Packs:            datatypes.JSON(packs),
		ThemeID:          session.ThemeID,
		CurrentRound:     session.CurrentRound,
		TotalRounds:      session.TotalRounds,
		CompletionPolicy: session.CompletionPolicy,
		ClueSeconds:      session.ClueSeconds,
		GuessSeconds:     session.GuessSeconds,
	}
	if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		return err
	}
	session.DBID = record.ID
	newID := fmt.Sprintf("sess-%d", record.ID)
	if session.ID != newID {
		s.store.UpdateSessionID(session, newID)
	}
	return s.persistEvent(session, "session_created", EventPayload{
		SessionID: session.ID,
		JoinCode:  session.JoinCode,
	})
}

func (s *Server) persistPlayer(session *Session, player *Player) (int, error) {
	if s.db == nil {
		return player.ID, nil
	}
	if player.DBID != 0 {
		return player.ID, nil
	}
	if session.DBID == 0 {
		if err := s.ensureSessionDBID(session); err != nil {
			return 0, err
		}
		if session.DBID == 0 {
			return 0, errSessionNotFound
		}
	}
	record := db.Player{
		SessionID: session.DBID,
		Identity:  player.Identity,
		Name:      player.Name,
		Rank:      player.Rank,
		IsHost:    player.IsHost,
		JoinedAt:  time.Now().UTC(),
	}
	if err := s.db.Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			existing, lookupErr := s.findPlayerDBID(session.DBID, player.Identity)
			if lookupErr == nil && existing != 0 {
				player.DBID = existing
				return player.ID, nil
			}
		}
		return 0, err
	}
	player.DBID = record.ID
	if player.IsHost {
		// The host is the first player to join; backfill the session row.
		_ = s.db.Model(&db.Session{}).Where("id = ?", session.DBID).
			Update("host_identity", player.Identity).Error
	}
	if err := s.persistEvent(session, eventPlayerJoined, EventPayload{
		PlayerName: player.Name,
		PlayerID:   player.ID,
	}); err != nil {
		return player.ID, err
	}
	return player.ID, nil
}

func (s *Server) persistPlayerRemoval(session *Session, player *Player, eventType string) error {
	if s.db == nil {
		return nil
	}
	if player.DBID != 0 {
		if err := s.db.Delete(&db.Player{}, player.DBID).Error; err != nil {
			return err
		}
	}
	return s.persistEvent(session, eventType, EventPayload{
		PlayerName: player.Name,
		PlayerID:   player.ID,
	})
}

func (s *Server) persistStatus(session *Session, eventType string, payload EventPayload) error {
	if s.db == nil {
		return nil
	}
	if session.DBID == 0 {
		if err := s.ensureSessionDBID(session); err != nil {
			return err
		}
	}
	if session.DBID == 0 {
		return errSessionNotFound
	}
	updates := map[string]any{
		"status":        session.Status,
		"current_round": session.CurrentRound,
		"theme_id":      session.ThemeID,
	}
	if err := s.db.Model(&db.Session{}).Where("id = ?", session.DBID).Updates(updates).Error; err != nil {
		return err
	}
	if turn := currentTurn(session); turn != nil && turn.DBID != 0 {
		if err := s.db.Model(&db.Turn{}).Where("id = ?", turn.DBID).Update("phase", turn.Phase).Error; err != nil {
			return err
		}
	}
	return s.persistEvent(session, eventType, payload)
}

func (s *Server) persistTurn(session *Session) error {
	if s.db == nil {
		return nil
	}
	turn := currentTurn(session)
	if turn == nil || turn.DBID != 0 {
		return nil
	}
	if session.DBID == 0 {
		if err := s.ensureSessionDBID(session); err != nil {
			return err
		}
	}
	if session.DBID == 0 {
		return errSessionNotFound
	}
	storyteller, ok := s.store.FindPlayer(session, turn.StorytellerID)
	if !ok || storyteller.DBID == 0 {
		return errors.New("storyteller not found")
	}
	record := db.Turn{
		SessionID:     session.DBID,
		Number:        turn.Number,
		StorytellerID: storyteller.DBID,
		ThemeID:       turn.ThemeID,
		Phase:         turn.Phase,
	}
	if err := s.db.Create(&record).Error; err != nil {
		// The (session, number) uniqueness gate: a concurrent create means the
		// turn already exists, so adopt it instead of failing.
		if isUniqueViolation(err) {
			var existing db.Turn
			lookupErr := s.db.Where("session_id = ? AND number = ?", session.DBID, turn.Number).
				First(&existing).Error
			if lookupErr == nil {
				turn.DBID = existing.ID
				return nil
			}
		}
		return err
	}
	turn.DBID = record.ID
	return nil
}

func (s *Server) persistTurnTheme(session *Session, turn *TurnState) error {
	if s.db == nil {
		return nil
	}
	if turn.DBID == 0 {
		if err := s.persistTurn(session); err != nil {
			return err
		}
	}
	if turn.DBID == 0 {
		return errors.New("turn not persisted")
	}
	return s.db.Model(&db.Turn{}).Where("id = ?", turn.DBID).
		Updates(map[string]any{"theme_id": turn.ThemeID, "phase": turn.Phase}).Error
}

func (s *Server) persistTurnSecret(session *Session, turn *TurnState) error {
	if s.db == nil {
		return nil
	}
	if turn.DBID == 0 {
		if err := s.persistTurn(session); err != nil {
			return err
		}
	}
	if turn.DBID == 0 {
		return errors.New("turn not persisted")
	}
	return s.db.Model(&db.Turn{}).Where("id = ?", turn.DBID).
		Updates(map[string]any{"secret": turn.Secret, "phase": turn.Phase}).Error
}

func (s *Server) persistTurnClue(session *Session, turn *TurnState) error {
	if s.db == nil {
		return nil
	}
	if turn.DBID == 0 {
		if err := s.persistTurn(session); err != nil {
			return err
		}
	}
	if turn.DBID == 0 {
		return errors.New("turn not persisted")
	}
	elements, err := json.Marshal(turn.ClueElements)
	if err != nil {
		return err
	}
	updates := map[string]any{
		"clue_media_url": turn.ClueMediaURL,
		"clue_elements":  datatypes.JSON(elements),
		"phase":          turn.Phase,
	}
	if len(turn.ClueAudio) > 0 {
		updates["clue_audio"] = turn.ClueAudio
	}
	if !turn.CompletedAt.IsZero() {
		updates["completed_at"] = turn.CompletedAt
	}
	return s.db.Model(&db.Turn{}).Where("id = ?", turn.DBID).Updates(updates).Error
}

// insertGuess writes the guess row. The unique (turn, player) index is the
// race gate for duplicate submissions across processes.
func (s *Server) insertGuess(turn *TurnState, playerDBID uint, entry *GuessEntry) (bool, error) {
	if s.db == nil || turn.DBID == 0 || playerDBID == 0 {
		return false, nil
	}
	record := db.Guess{
		TurnID:   turn.DBID,
		PlayerID: playerDBID,
		Value:    entry.Value,
		Correct:  entry.Correct,
		Points:   entry.Points,
	}
	if err := s.db.Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			return true, nil
		}
		return false, err
	}
	entry.DBID = record.ID
	return false, nil
}

// claimTurnWinner is the compare-and-set that enforces at-most-one winner per
// turn: the update only lands while winner_player_id is still null.
func (s *Server) claimTurnWinner(turnDBID, playerDBID uint, at time.Time) (bool, error) {
	if s.db == nil || turnDBID == 0 || playerDBID == 0 {
		return true, nil
	}
	result := s.db.Model(&db.Turn{}).
		Where("id = ? AND winner_player_id IS NULL", turnDBID).
		Updates(map[string]any{
			"winner_player_id": playerDBID,
			"resolved_by":      resolvedByCorrectGuess,
			"phase":            phaseRoundResolved,
			"updated_at":       at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// persistHostToken writes the host credential to the session row so host
// verbs keep working after a restart restores the session.
func (s *Server) persistHostToken(session *Session) error {
	if s.db == nil || session.DBID == 0 || session.HostToken == "" {
		return nil
	}
	return s.db.Model(&db.Session{}).Where("id = ?", session.DBID).
		Update("host_token", session.HostToken).Error
}

// demoteGuessRow flips a guess row back to incorrect after its writer lost
// the winner compare-and-set. Without it a second process would read two
// correct rows for one turn.
func (s *Server) demoteGuessRow(guessDBID uint) error {
	if s.db == nil || guessDBID == 0 {
		return nil
	}
	return s.db.Model(&db.Guess{}).Where("id = ?", guessDBID).
		Update("correct", false).Error
}

// awardPoints increments the score atomically in the store; clients never
// read-modify-write scores.
func (s *Server) awardPoints(playerDBID uint, points int) error {
	if s.db == nil || playerDBID == 0 {
		return nil
	}
	return s.db.Model(&db.Player{}).Where("id = ?", playerDBID).
		Update("score", gorm.Expr("score + ?", points)).Error
}

func (s *Server) persistEvent(session *Session, eventType string, payload EventPayload) error {
	if s.db == nil {
		return nil
	}
	if session.DBID == 0 {
		if err := s.ensureSessionDBID(session); err != nil {
			return err
		}
	}
	if session.DBID == 0 {
		return errSessionNotFound
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	seq := s.nextEventSeq(session)
	event := db.Event{
		SessionID: session.DBID,
		Seq:       seq,
		TurnID:    s.resolveEventTurnID(session),
		PlayerID:  s.resolveEventPlayerID(session, payload),
		Type:      eventType,
		Payload:   datatypes.JSON(data),
	}
	return s.db.Create(&event).Error
}

func (s *Server) nextEventSeq(session *Session) int64 {
	seq := int64(0)
	_, _ = s.store.UpdateSession(session.ID, func(session *Session) error {
		session.EventSeq++
		seq = session.EventSeq
		return nil
	})
	if seq == 0 {
		session.EventSeq++
		seq = session.EventSeq
	}
	return seq
}

func (s *Server) resolveEventTurnID(session *Session) *uint {
	turn := currentTurn(session)
	if turn == nil {
		return nil
	}
	if turn.DBID == 0 {
		if err := s.persistTurn(session); err != nil {
			return nil
		}
	}
	if turn.DBID == 0 {
		return nil
	}
	id := turn.DBID
	return &id
}

func (s *Server) resolveEventPlayerID(session *Session, payload EventPayload) *uint {
	if payload.PlayerID <= 0 {
		return nil
	}
	player, found := s.store.FindPlayer(session, payload.PlayerID)
	if found && player.DBID != 0 {
		value := player.DBID
		return &value
	}
	return nil
}

func (s *Server) ensureSessionDBID(session *Session) error {
	if s.db == nil || session.DBID != 0 {
		return nil
	}
	var record db.Session
	if err := s.db.Where("join_code = ?", session.JoinCode).First(&record).Error; err != nil {
		return nil
	}
	session.DBID = record.ID
	return nil
}

func (s *Server) findPlayerDBID(sessionDBID uint, identity string) (uint, error) {
	var record db.Player
	if err := s.db.Where("session_id = ? AND identity = ?", sessionDBID, identity).First(&record).Error; err != nil {
		return 0, err
	}
	return record.ID, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
