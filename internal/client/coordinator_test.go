package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"whispbox/internal/config"
	"whispbox/internal/server"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	srv := server.New(nil, config.Default())
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts
}

func newSessionPair(t *testing.T, ts *httptest.Server) (*Coordinator, *Coordinator) {
	t.Helper()
	ctx := context.Background()
	host := New(ts.URL, Identity{ID: "identity-host"})
	sessionID, _, err := host.CreateSession(ctx, nil, "", 3, "rounds")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := host.Join(ctx, sessionID, "Ada"); err != nil {
		t.Fatalf("host join: %v", err)
	}
	guesser := New(ts.URL, Identity{ID: "identity-guesser"})
	if err := guesser.Join(ctx, sessionID, "Ben"); err != nil {
		t.Fatalf("guesser join: %v", err)
	}
	return host, guesser
}

func TestEventEffectTable(t *testing.T) {
	cases := []struct {
		eventType string
		want      effect
	}{
		{"lobby_ended", effectExit},
		{"player_joined", effectRefetch},
		{"game_started", effectRefetch},
		{"player_answered", effectRefetch},
		{"refresh_state", effectRefetch},
		{"unknown_event", effectNone},
	}
	for _, tc := range cases {
		if got := eventEffect(tc.eventType); got != tc.want {
			t.Fatalf("eventEffect(%q) = %d, want %d", tc.eventType, got, tc.want)
		}
	}
}

func TestWebsocketURL(t *testing.T) {
	if got := websocketURL("http://example.test:8080"); got != "ws://example.test:8080" {
		t.Fatalf("unexpected ws url %q", got)
	}
	if got := websocketURL("https://example.test"); got != "wss://example.test" {
		t.Fatalf("unexpected wss url %q", got)
	}
}

func TestCoordinatorRoundFlowAndGuessLockout(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()
	host, guesser := newSessionPair(t, ts)

	if err := host.StartGame(ctx); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if err := host.SelectTheme(ctx, "travel"); err != nil {
		t.Fatalf("select theme: %v", err)
	}
	if err := host.SaveSecret(ctx, "Volcano"); err != nil {
		t.Fatalf("save secret: %v", err)
	}
	if err := host.FinalizeElements(ctx, []string{"Volcano", "Beach", "Glacier"}); err != nil {
		t.Fatalf("finalize elements: %v", err)
	}

	state, err := guesser.FetchFullState(ctx)
	if err != nil {
		t.Fatalf("fetch state: %v", err)
	}
	if state.Phase != "guessing" || state.ActiveTurn == nil {
		t.Fatalf("expected guessing phase, got %+v", state)
	}
	if state.ActiveTurn.Secret != "" {
		t.Fatalf("guesser state carried the secret")
	}

	result, err := guesser.SubmitGuess(ctx, state.RoundNumber, "Volcano")
	if err != nil {
		t.Fatalf("submit guess: %v", err)
	}
	if !result.Correct || result.Points == 0 {
		t.Fatalf("expected winning guess, got %+v", result)
	}

	// The local lockout answers the retry without another call.
	retry, err := guesser.SubmitGuess(ctx, state.RoundNumber, "Beach")
	if !errors.Is(err, ErrLockedOut) {
		t.Fatalf("expected lockout, got %v", err)
	}
	if retry != result {
		t.Fatalf("expected stored first result, got %+v", retry)
	}
}

func TestCoordinatorFetchFullStateIdempotent(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()
	host, guesser := newSessionPair(t, ts)
	if err := host.StartGame(ctx); err != nil {
		t.Fatalf("start game: %v", err)
	}

	first, err := guesser.FetchFullState(ctx)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := guesser.FetchFullState(ctx)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical snapshots, got %+v vs %+v", first, second)
	}
}

func TestCoordinatorDetectsEndedSession(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()
	host, guesser := newSessionPair(t, ts)

	if err := host.EndLobby(ctx); err != nil {
		t.Fatalf("end lobby: %v", err)
	}
	if _, err := guesser.FetchFullState(ctx); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected session-ended on refetch, got %v", err)
	}
	if _, err := guesser.SubmitGuess(ctx, 1, "Volcano"); err == nil {
		t.Fatalf("expected guess against ended session to fail")
	}
}

func TestCoordinatorRejoinKeepsIdentity(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()
	host, _ := newSessionPair(t, ts)
	sessionID := host.SessionID()

	again := New(ts.URL, Identity{ID: "identity-host"})
	if err := again.Join(ctx, sessionID, "Ada"); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if again.Identity().PlayerID != host.Identity().PlayerID {
		t.Fatalf("expected rejoin to reclaim seat %d, got %d", host.Identity().PlayerID, again.Identity().PlayerID)
	}
}
