package server

import "sort"

// snapshot builds the authoritative full-state payload for one requesting
// player. Applying it twice with no intervening write yields identical state;
// clients repair any missed broadcast by refetching it.
func snapshot(session *Session, requesterID int) map[string]any {
	payload := map[string]any{
		"session":     sessionPayload(session),
		"players":     playersPayload(session.Players),
		"active_turn": nil,
		"status":      session.Status,
	}
	if turn := currentTurn(session); turn != nil {
		payload["active_turn"] = turnPayload(session, turn, requesterID)
		payload["phase"] = turn.Phase
		payload["round_number"] = turn.Number
	}
	return payload
}

func sessionPayload(session *Session) map[string]any {
	return map[string]any{
		"id":                session.ID,
		"join_code":         session.JoinCode,
		"status":            session.Status,
		"host_id":           session.HostID,
		"packs":             append([]string(nil), session.Packs...),
		"theme_id":          session.ThemeID,
		"clue_seconds":      session.ClueSeconds,
		"guess_seconds":     session.GuessSeconds,
		"current_round":     session.CurrentRound,
		"total_rounds":      session.TotalRounds,
		"completion_policy": session.CompletionPolicy,
		"phase_started_at":  session.PhaseStartedAt,
	}
}

func playersPayload(players []Player) []map[string]any {
	ordered := make([]Player, len(players))
	copy(ordered, players)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Rank < ordered[j].Rank
	})
	payload := make([]map[string]any, 0, len(ordered))
	for _, player := range ordered {
		payload = append(payload, map[string]any{
			"id":      player.ID,
			"name":    player.Name,
			"rank":    player.Rank,
			"score":   player.Score,
			"is_host": player.IsHost,
		})
	}
	return payload
}

func turnPayload(session *Session, turn *TurnState, requesterID int) map[string]any {
	payload := map[string]any{
		"number":         turn.Number,
		"storyteller_id": turn.StorytellerID,
		"theme_id":       turn.ThemeID,
		"phase":          turn.Phase,
		"clue_mode":      clueMode(turn),
		"clue_media_url": turn.ClueMediaURL,
		"clue_elements":  append([]string(nil), turn.ClueElements...),
		"winner_id":      turn.WinnerID,
		"resolved_by":    turn.ResolvedBy,
		"guesses":        guessesPayload(turn),
	}
	if !turn.CompletedAt.IsZero() {
		payload["completed_at"] = turn.CompletedAt
	}
	// The whisp stays with the storyteller until the round resolves.
	if requesterID == turn.StorytellerID || turn.Phase == phaseRoundResolved {
		payload["secret"] = turn.Secret
	}
	return payload
}

func guessesPayload(turn *TurnState) []map[string]any {
	payload := make([]map[string]any, 0, len(turn.Guesses))
	for _, guess := range turn.Guesses {
		payload = append(payload, map[string]any{
			"player_id":    guess.PlayerID,
			"guess":        guess.Value,
			"is_correct":   guess.Correct,
			"points":       guess.Points,
			"submitted_at": guess.SubmittedAt,
		})
	}
	return payload
}
