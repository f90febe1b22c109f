package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	errAuthRequired = errors.New("authentication required")
	errAuthInvalid  = errors.New("invalid player credentials")
)

// ensurePlayerAuthToken returns the credential issued to a player at join,
// minting one on first use. The host's token doubles as the session
// HostToken, which is persisted so host verbs survive a restart. Caller must
// hold the store lock for the session.
func ensurePlayerAuthToken(session *Session, playerID int) string {
	if session.AuthTokens == nil {
		session.AuthTokens = make(map[int]string)
	}
	if playerID == session.HostID && session.HostToken != "" {
		session.AuthTokens[playerID] = session.HostToken
		return session.HostToken
	}
	token, ok := session.AuthTokens[playerID]
	if !ok {
		token = uuid.NewString()
		session.AuthTokens[playerID] = token
		if playerID == session.HostID {
			session.HostToken = token
		}
	}
	return token
}

// authenticatePlayer verifies that the request actually speaks for playerID:
// either the token issued at join, or the identity cookie bound to the same
// device. A bare player_id claim proves nothing.
func (s *Server) authenticatePlayer(r *http.Request, session *Session, playerID int, authToken string) (*Player, error) {
	if session == nil {
		return nil, errSessionNotFound
	}
	if playerID <= 0 {
		return nil, errAuthRequired
	}
	player, ok := s.store.FindPlayer(session, playerID)
	if !ok {
		return nil, errAuthInvalid
	}
	provided := strings.TrimSpace(authToken)
	if provided != "" {
		expected := s.playerAuthToken(session.ID, playerID)
		if expected != "" && subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1 {
			return player, nil
		}
		return nil, errAuthInvalid
	}
	if identity := requestIdentity(r); identity != "" && identity == player.Identity {
		return player, nil
	}
	return nil, errAuthRequired
}

func (s *Server) authenticateHost(r *http.Request, session *Session, playerID int, authToken string) (*Player, error) {
	player, err := s.authenticatePlayer(r, session, playerID, authToken)
	if err != nil {
		return nil, err
	}
	if session.HostID == 0 || player.ID != session.HostID {
		return nil, errors.New("only the host may perform this action")
	}
	return player, nil
}

// playerAuthToken reads the stored credential under the store lock. Tokens
// are never minted here; an unissued credential cannot authenticate.
func (s *Server) playerAuthToken(sessionID string, playerID int) string {
	token := ""
	_, _ = s.store.UpdateSession(sessionID, func(session *Session) error {
		if playerID == session.HostID && session.HostToken != "" {
			token = session.HostToken
			return nil
		}
		token = session.AuthTokens[playerID]
		return nil
	})
	return token
}

// requirePlayer resolves the session and authenticates in one step, writing
// the error response itself when either fails.
func (s *Server) requirePlayer(w http.ResponseWriter, r *http.Request, sessionID string, playerID int, authToken string) (*Session, *Player, bool) {
	session, ok := s.store.GetSession(sessionID)
	if !ok {
		restored, err := s.restoreSessionFromDB(sessionID)
		if err != nil {
			http.NotFound(w, r)
			return nil, nil, false
		}
		session = restored
	}
	player, err := s.authenticatePlayer(r, session, playerID, authToken)
	if err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return nil, nil, false
	}
	return session, player, true
}

func (s *Server) requireHost(w http.ResponseWriter, r *http.Request, sessionID string, playerID int, authToken string) (*Session, *Player, bool) {
	session, player, ok := s.requirePlayer(w, r, sessionID, playerID, authToken)
	if !ok {
		return nil, nil, false
	}
	if session.HostID == 0 || player.ID != session.HostID {
		writeError(w, http.StatusForbidden, "only the host may perform this action")
		return nil, nil, false
	}
	return session, player, true
}

// authenticatedRequesterID resolves the viewpoint for snapshot redaction. An
// unverified player_id claim degrades to the spectator view instead of
// revealing another player's secrets.
func (s *Server) authenticatedRequesterID(r *http.Request, session *Session) int {
	playerID, err := strconv.Atoi(r.URL.Query().Get("player_id"))
	if err != nil || playerID <= 0 {
		return 0
	}
	if _, err := s.authenticatePlayer(r, session, playerID, r.URL.Query().Get("auth_token")); err != nil {
		return 0
	}
	return playerID
}

func requestIdentity(r *http.Request) string {
	cookie, err := r.Cookie("wb_identity")
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}
