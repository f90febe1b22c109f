package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"whispbox/internal/config"
)

func TestEnsurePlayerAuthToken(t *testing.T) {
	srv := New(nil, config.Default())
	session, ids := newActiveSession(t, srv, "Ada", "Ben")

	var hostToken, again, benToken string
	_, _ = srv.store.UpdateSession(session.ID, func(session *Session) error {
		hostToken = ensurePlayerAuthToken(session, ids[0])
		again = ensurePlayerAuthToken(session, ids[0])
		benToken = ensurePlayerAuthToken(session, ids[1])
		return nil
	})
	if hostToken == "" || hostToken != again {
		t.Fatalf("expected stable host token, got %q then %q", hostToken, again)
	}
	if session.HostToken != hostToken {
		t.Fatalf("expected host token mirrored onto the session")
	}
	if benToken == "" || benToken == hostToken {
		t.Fatalf("expected distinct guesser token")
	}
}

func TestAuthenticatePlayerToken(t *testing.T) {
	srv := New(nil, config.Default())
	session, ids := newActiveSession(t, srv, "Ada", "Ben")
	var adaToken, benToken string
	_, _ = srv.store.UpdateSession(session.ID, func(session *Session) error {
		adaToken = ensurePlayerAuthToken(session, ids[0])
		benToken = ensurePlayerAuthToken(session, ids[1])
		return nil
	})
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	if _, err := srv.authenticatePlayer(req, session, ids[0], adaToken); err != nil {
		t.Fatalf("expected host token to authenticate: %v", err)
	}
	if _, err := srv.authenticatePlayer(req, session, ids[0], benToken); err == nil {
		t.Fatalf("expected another player's token to be rejected")
	}
	if _, err := srv.authenticatePlayer(req, session, ids[0], ""); err == nil {
		t.Fatalf("expected bare player_id claim to be rejected")
	}
	if _, err := srv.authenticatePlayer(req, session, 999, adaToken); err == nil {
		t.Fatalf("expected unknown player to be rejected")
	}
}

func TestAuthenticatePlayerIdentityCookieFallback(t *testing.T) {
	srv := New(nil, config.Default())
	session, ids := newActiveSession(t, srv, "Ada", "Ben")

	// newActiveSession seats players under identity-<name>.
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: "wb_identity", Value: "identity-Ada"})
	if _, err := srv.authenticatePlayer(req, session, ids[0], ""); err != nil {
		t.Fatalf("expected identity cookie to vouch for its own seat: %v", err)
	}
	if _, err := srv.authenticatePlayer(req, session, ids[1], ""); err == nil {
		t.Fatalf("expected identity cookie to be rejected for another seat")
	}
}

func TestAuthenticateHostRejectsGuesser(t *testing.T) {
	srv := New(nil, config.Default())
	session, ids := newActiveSession(t, srv, "Ada", "Ben")
	var benToken string
	_, _ = srv.store.UpdateSession(session.ID, func(session *Session) error {
		benToken = ensurePlayerAuthToken(session, ids[1])
		return nil
	})
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	if _, err := srv.authenticateHost(req, session, ids[1], benToken); err == nil {
		t.Fatalf("expected authenticated guesser to fail the host check")
	}
}

func TestAuthenticatedRequesterIDDegradesToSpectator(t *testing.T) {
	srv := New(nil, config.Default())
	session, ids := newActiveSession(t, srv, "Ada", "Ben")
	var adaToken string
	_, _ = srv.store.UpdateSession(session.ID, func(session *Session) error {
		adaToken = ensurePlayerAuthToken(session, ids[0])
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/?player_id=%d&auth_token=%s", ids[0], adaToken), nil)
	if got := srv.authenticatedRequesterID(req, session); got != ids[0] {
		t.Fatalf("expected requester %d, got %d", ids[0], got)
	}
	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/?player_id=%d", ids[0]), nil)
	if got := srv.authenticatedRequesterID(req, session); got != 0 {
		t.Fatalf("expected unverified claim to degrade to spectator, got %d", got)
	}
}
