package server

import (
	"errors"
	"sync"
	"testing"

	"whispbox/internal/config"
)

func newGuessingSession(t *testing.T, srv *Server, secret string, names ...string) (*Session, []int) {
	t.Helper()
	session, ids := newActiveSession(t, srv, names...)
	turn := currentTurn(session)
	turn.ThemeID = "travel"
	turn.Secret = secret
	turn.ClueMediaURL = recordingURL(session.ID, turn.Number)
	turn.Phase = phaseGuessing
	return session, ids
}

func TestSubmitGuessCorrectResolvesRound(t *testing.T) {
	srv := New(nil, config.Default())
	session, ids := newGuessingSession(t, srv, "Volcano", "Ada", "Ben", "Cara")

	result, _, err := srv.submitGuess(session.ID, 1, ids[1], "volcano")
	if err != nil {
		t.Fatalf("submit guess: %v", err)
	}
	if !result.Accepted || !result.Correct {
		t.Fatalf("expected winning result, got %+v", result)
	}
	if result.Points != srv.cfg.CorrectGuessPoints {
		t.Fatalf("expected %d points, got %d", srv.cfg.CorrectGuessPoints, result.Points)
	}
	turn := currentTurn(session)
	if turn.Phase != phaseRoundResolved || turn.WinnerID != ids[1] || turn.ResolvedBy != resolvedByCorrectGuess {
		t.Fatalf("expected resolved turn, got phase=%s winner=%d resolved_by=%s", turn.Phase, turn.WinnerID, turn.ResolvedBy)
	}
	winner, _ := findPlayer(session, ids[1])
	if winner.Score != srv.cfg.CorrectGuessPoints {
		t.Fatalf("expected score %d, got %d", srv.cfg.CorrectGuessPoints, winner.Score)
	}
	if result.NextRound != 2 || result.NextStorytellerID != ids[1] {
		t.Fatalf("expected advance preview to round 2 storyteller %d, got %+v", ids[1], result)
	}
}

func TestSubmitGuessIncorrectKeepsRoundOpen(t *testing.T) {
	srv := New(nil, config.Default())
	session, ids := newGuessingSession(t, srv, "Volcano", "Ada", "Ben", "Cara")

	result, _, err := srv.submitGuess(session.ID, 1, ids[1], "Beach")
	if err != nil {
		t.Fatalf("submit guess: %v", err)
	}
	if !result.Accepted || result.Correct || result.Points != 0 {
		t.Fatalf("expected accepted incorrect result, got %+v", result)
	}
	if currentTurn(session).Phase != phaseGuessing {
		t.Fatalf("expected round still open, got %s", currentTurn(session).Phase)
	}
}

func TestSubmitGuessDuplicateReturnsFirstResult(t *testing.T) {
	srv := New(nil, config.Default())
	session, ids := newGuessingSession(t, srv, "Volcano", "Ada", "Ben", "Cara")

	first, _, err := srv.submitGuess(session.ID, 1, ids[1], "Volcano")
	if err != nil {
		t.Fatalf("first guess: %v", err)
	}
	second, _, err := srv.submitGuess(session.ID, 1, ids[1], "Beach")
	if err != nil {
		t.Fatalf("second guess: %v", err)
	}
	if second.Accepted {
		t.Fatalf("expected duplicate to be rejected, got %+v", second)
	}
	if second.Correct != first.Correct || second.Points != first.Points {
		t.Fatalf("expected stored first result, got first=%+v second=%+v", first, second)
	}
	winner, _ := findPlayer(session, ids[1])
	if winner.Score != srv.cfg.CorrectGuessPoints {
		t.Fatalf("expected single score increment, got %d", winner.Score)
	}
}

func TestSubmitGuessStorytellerRejected(t *testing.T) {
	srv := New(nil, config.Default())
	session, ids := newGuessingSession(t, srv, "Volcano", "Ada", "Ben")

	_, _, err := srv.submitGuess(session.ID, 1, ids[0], "Volcano")
	if !errors.Is(err, errStorytellerGuess) {
		t.Fatalf("expected storyteller rejection, got %v", err)
	}
}

func TestSubmitGuessAfterResolutionAlreadyResolved(t *testing.T) {
	srv := New(nil, config.Default())
	session, ids := newGuessingSession(t, srv, "Volcano", "Ada", "Ben", "Cara")

	if _, _, err := srv.submitGuess(session.ID, 1, ids[1], "Volcano"); err != nil {
		t.Fatalf("winning guess: %v", err)
	}
	late, _, err := srv.submitGuess(session.ID, 1, ids[2], "Volcano")
	if err != nil {
		t.Fatalf("late guess: %v", err)
	}
	if late.Accepted || !late.AlreadyResolved || late.Points != 0 {
		t.Fatalf("expected already-resolved result, got %+v", late)
	}
	loser, _ := findPlayer(session, ids[2])
	if loser.Score != 0 {
		t.Fatalf("expected no points for late guess, got %d", loser.Score)
	}
}

func TestSubmitGuessBeforeGuessingPhase(t *testing.T) {
	srv := New(nil, config.Default())
	session, ids := newGuessingSession(t, srv, "Volcano", "Ada", "Ben")
	currentTurn(session).Phase = phaseClueCapture

	_, _, err := srv.submitGuess(session.ID, 1, ids[1], "Volcano")
	if !errors.Is(err, errNotGuessing) {
		t.Fatalf("expected not-guessing error, got %v", err)
	}
}

func TestSubmitGuessStaleRound(t *testing.T) {
	srv := New(nil, config.Default())
	session, ids := newGuessingSession(t, srv, "Volcano", "Ada", "Ben")

	_, _, err := srv.submitGuess(session.ID, 2, ids[1], "Volcano")
	if !errors.Is(err, errStaleRound) {
		t.Fatalf("expected stale-round error, got %v", err)
	}
}

func TestSubmitGuessEndedSessionLosesNothing(t *testing.T) {
	srv := New(nil, config.Default())
	session, ids := newGuessingSession(t, srv, "Volcano", "Ada", "Ben")
	session.Status = statusCompleted

	_, _, err := srv.submitGuess(session.ID, 1, ids[1], "Volcano")
	if !errors.Is(err, errSessionEnded) {
		t.Fatalf("expected session-ended error, got %v", err)
	}
	guesser, _ := findPlayer(session, ids[1])
	if guesser.Score != 0 || len(currentTurn(session).Guesses) != 0 {
		t.Fatalf("expected no state committed after teardown")
	}
}

func TestSubmitGuessAllIncorrectResolvesRound(t *testing.T) {
	srv := New(nil, config.Default())
	session, ids := newGuessingSession(t, srv, "Volcano", "Ada", "Ben", "Cara")

	if _, _, err := srv.submitGuess(session.ID, 1, ids[1], "Beach"); err != nil {
		t.Fatalf("first wrong guess: %v", err)
	}
	last, _, err := srv.submitGuess(session.ID, 1, ids[2], "Glacier")
	if err != nil {
		t.Fatalf("second wrong guess: %v", err)
	}
	if !last.Accepted || last.Correct || !last.AlreadyResolved {
		t.Fatalf("expected resolving incorrect guess, got %+v", last)
	}
	turn := currentTurn(session)
	if turn.Phase != phaseRoundResolved || turn.WinnerID != 0 || turn.ResolvedBy != resolvedByAllAnswered {
		t.Fatalf("expected winnerless resolution, got phase=%s winner=%d resolved_by=%s", turn.Phase, turn.WinnerID, turn.ResolvedBy)
	}
}

func TestSubmitGuessConcurrentSingleWinner(t *testing.T) {
	srv := New(nil, config.Default())
	session, ids := newGuessingSession(t, srv, "Volcano", "Ada", "Ben", "Cara", "Dan")
	guessers := ids[1:]

	results := make([]GuessResult, len(guessers))
	var wg sync.WaitGroup
	for i, playerID := range guessers {
		wg.Add(1)
		go func(i, playerID int) {
			defer wg.Done()
			result, _, err := srv.submitGuess(session.ID, 1, playerID, "Volcano")
			if err != nil {
				t.Errorf("submit guess player %d: %v", playerID, err)
				return
			}
			results[i] = result
		}(i, playerID)
	}
	wg.Wait()

	winners := 0
	for _, result := range results {
		if result.Correct && result.Points > 0 {
			winners++
		} else if !result.AlreadyResolved && result.Accepted {
			t.Fatalf("losing racer saw neither rejection nor already-resolved: %+v", result)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	totalScore := 0
	for _, playerID := range guessers {
		player, _ := findPlayer(session, playerID)
		totalScore += player.Score
	}
	if totalScore != srv.cfg.CorrectGuessPoints {
		t.Fatalf("expected one score increment total, got %d", totalScore)
	}
}

func TestGuessMatchesElementModeIsExact(t *testing.T) {
	turn := &TurnState{
		Secret:       "Volcano",
		ClueElements: []string{"Volcano", "Beach", "Glacier"},
		Phase:        phaseGuessing,
	}
	if !guessMatches(turn, "Volcano") {
		t.Fatalf("expected exact element match")
	}
	if guessMatches(turn, "volcano") {
		t.Fatalf("expected element identity comparison to be exact")
	}

	audio := &TurnState{Secret: "Volcano", ClueMediaURL: "/media", Phase: phaseGuessing}
	if !guessMatches(audio, "  VOLCANO ") {
		t.Fatalf("expected case-insensitive match in audio mode")
	}
}

func TestDemoteLosingGuessRollsBackClaim(t *testing.T) {
	srv := New(nil, config.Default())
	session, ids := newGuessingSession(t, srv, "Volcano", "Ada", "Ben", "Cara")

	turn := currentTurn(session)
	turn.WinnerID = ids[1]
	turn.Guesses = append(turn.Guesses, GuessEntry{
		PlayerID: ids[1],
		Value:    "volcano",
		Correct:  true,
		DBID:     42,
	})

	updated, guessDBID := srv.demoteLosingGuess(session.ID, 1, ids[1], 0)
	if guessDBID != 42 {
		t.Fatalf("expected row id 42 for the durable demotion, got %d", guessDBID)
	}
	demoted := currentTurn(updated)
	if demoted.WinnerID != 0 {
		t.Fatalf("expected tentative claim cleared, got winner %d", demoted.WinnerID)
	}
	if demoted.Guesses[0].Correct {
		t.Fatalf("expected losing guess flipped to incorrect")
	}
	// The row update itself is a no-op without a database.
	if err := srv.demoteGuessRow(guessDBID); err != nil {
		t.Fatalf("demote guess row: %v", err)
	}
}
