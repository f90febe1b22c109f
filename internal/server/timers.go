package server

import (
	"errors"
	"log"
	"time"
)

func (s *Server) schedulePhaseTimer(session *Session) {
	duration := s.phaseDuration(session)
	if duration <= 0 {
		s.cancelPhaseTimer(session.ID)
		return
	}
	phase := ""
	if turn := currentTurn(session); turn != nil {
		phase = turn.Phase
	}
	s.timersMu.Lock()
	if existing, ok := s.timers[session.ID]; ok {
		existing.Stop()
	}
	timer := time.AfterFunc(duration, func() {
		s.autoAdvancePhase(session.ID, phase)
	})
	s.timers[session.ID] = timer
	s.timersMu.Unlock()
}

func (s *Server) cancelPhaseTimer(sessionID string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if timer, ok := s.timers[sessionID]; ok {
		timer.Stop()
		delete(s.timers, sessionID)
	}
}

func (s *Server) phaseDuration(session *Session) time.Duration {
	if session == nil || session.Status != statusActive {
		return 0
	}
	turn := currentTurn(session)
	if turn == nil {
		return 0
	}
	switch turn.Phase {
	case phaseThemeSelection:
		return time.Duration(s.cfg.ThemeDurationSeconds) * time.Second
	case phaseSecretSelection:
		return time.Duration(s.cfg.SecretDurationSeconds) * time.Second
	case phaseClueCapture:
		// Ceiling on clue length; expiry finalizes rather than blocking.
		return phasePreset(session.ClueSeconds, s.cfg.ClueDurationSeconds)
	case phaseGuessing:
		return phasePreset(session.GuessSeconds, s.cfg.GuessDurationSeconds)
	case phaseRoundResolved:
		// Short pause so every client can display the outcome first.
		return time.Duration(s.cfg.ResolveDelaySeconds) * time.Second
	default:
		return 0
	}
}

// phasePreset prefers the preset chosen at session creation, which also holds
// after a restore rebuilds the session from its durable row.
func phasePreset(sessionSeconds, defaultSeconds int) time.Duration {
	if sessionSeconds > 0 {
		return time.Duration(sessionSeconds) * time.Second
	}
	return time.Duration(defaultSeconds) * time.Second
}

func (s *Server) autoAdvancePhase(sessionID string, expectedPhase string) {
	now := time.Now().UTC()
	session, err := s.store.UpdateSession(sessionID, func(session *Session) error {
		turn := currentTurn(session)
		if turn == nil || turn.Phase != expectedPhase {
			return errors.New("phase changed")
		}
		_, err := s.advancePhase(session, transitionAuto, now)
		return err
	})
	if err != nil {
		return
	}
	if session.Status == statusActive {
		if err := s.persistTurn(session); err != nil {
			log.Printf("auto-advance persist turn failed session_id=%s error=%v", session.ID, err)
		}
	}
	phase := ""
	if turn := currentTurn(session); turn != nil {
		phase = turn.Phase
	}
	if err := s.persistStatus(session, eventRefreshState, EventPayload{
		Phase:       phase,
		Status:      session.Status,
		RoundNumber: session.CurrentRound,
		Reason:      "timeout",
	}); err != nil {
		log.Printf("auto-advance persist failed session_id=%s error=%v", session.ID, err)
		return
	}
	log.Printf("session auto-advanced session_id=%s from=%s to=%s status=%s", session.ID, expectedPhase, phase, session.Status)
	if session.Status == statusCompleted {
		s.cancelPhaseTimer(session.ID)
	} else {
		s.schedulePhaseTimer(session)
	}
	s.broadcastEnvelope(session, eventRefreshState, EventPayload{
		RoundNumber: session.CurrentRound,
		Phase:       phase,
		Status:      session.Status,
	}, nil)
}
