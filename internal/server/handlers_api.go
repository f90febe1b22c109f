package server

import (
	"errors"
	"log"
	"net/http"
	"strings"
)

type createSessionRequest struct {
	Packs            []string `json:"packs"`
	ThemeID          string   `json:"theme_id"`
	TotalRounds      int      `json:"total_rounds"`
	CompletionPolicy string   `json:"completion_policy"`
	ClueSeconds      int      `json:"clue_seconds"`
	GuessSeconds     int      `json:"guess_seconds"`
}

type joinRequest struct {
	Name     string `json:"name"`
	Identity string `json:"identity"`
}

type leaveRequest struct {
	PlayerID  int    `json:"player_id"`
	AuthToken string `json:"auth_token"`
}

type startRequest struct {
	PlayerID  int    `json:"player_id"`
	AuthToken string `json:"auth_token"`
}

type themeRequest struct {
	PlayerID  int    `json:"player_id"`
	AuthToken string `json:"auth_token"`
	ThemeID   string `json:"theme_id"`
}

type secretRequest struct {
	PlayerID  int    `json:"player_id"`
	AuthToken string `json:"auth_token"`
	Secret    string `json:"secret"`
}

type recordingRequest struct {
	PlayerID  int    `json:"player_id"`
	AuthToken string `json:"auth_token"`
	AudioData string `json:"audio_data"`
}

type elementsRequest struct {
	PlayerID  int      `json:"player_id"`
	AuthToken string   `json:"auth_token"`
	Elements  []string `json:"elements"`
}

type guessRequest struct {
	PlayerID    int    `json:"player_id"`
	AuthToken   string `json:"auth_token"`
	RoundNumber int    `json:"round_number"`
	Guess       string `json:"guess"`
}

type kickRequest struct {
	PlayerID  int    `json:"player_id"`
	AuthToken string `json:"auth_token"`
	TargetID  int    `json:"target_id"`
}

type endRequest struct {
	PlayerID  int    `json:"player_id"`
	AuthToken string `json:"auth_token"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := readJSON(r.Body, &req); err != nil {
		req = createSessionRequest{}
	}
	totalRounds := req.TotalRounds
	if totalRounds <= 0 {
		totalRounds = s.cfg.TotalRounds
	}
	if totalRounds > maxRoundsCount {
		totalRounds = maxRoundsCount
	}
	policy := req.CompletionPolicy
	if policy == "" {
		policy = s.cfg.CompletionPolicy
	}
	session := s.store.CreateSession(SessionSettings{
		Packs:            req.Packs,
		ThemeID:          req.ThemeID,
		TotalRounds:      totalRounds,
		CompletionPolicy: policy,
		ClueSeconds:      clampPhaseSeconds(req.ClueSeconds),
		GuessSeconds:     clampPhaseSeconds(req.GuessSeconds),
	})
	if err := s.persistSession(session); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	log.Printf("session created session_id=%s join_code=%s", session.ID, session.JoinCode)
	writeJSON(w, http.StatusCreated, map[string]string{
		"session_id": session.ID,
		"join_code":  session.JoinCode,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	summaries := s.store.ListSessionSummaries()
	sessions := make([]map[string]any, 0, len(summaries))
	for _, summary := range summaries {
		sessions = append(sessions, map[string]any{
			"id":        summary.ID,
			"join_code": summary.JoinCode,
			"status":    summary.Status,
			"players":   summary.Players,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleSessionSubroutes(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		if sessionID, number, ok := parseRecordingPath(r.URL.Path); ok {
			s.handleRecordingDownload(w, r, sessionID, number)
			return
		}
	}
	sessionID, action, ok := parseSessionPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if action == "events" {
		s.handleEvents(w, r, sessionID)
		return
	}
	switch r.Method {
	case http.MethodGet:
		if action == "" {
			s.handleGetSession(w, r, sessionID)
			return
		}
		http.NotFound(w, r)
	case http.MethodPost:
		switch action {
		case "join":
			s.handleJoin(w, r, sessionID)
		case "leave":
			s.handleLeave(w, r, sessionID)
		case "start":
			s.handleStart(w, r, sessionID)
		case "theme":
			s.handleTheme(w, r, sessionID)
		case "secret":
			s.handleSecret(w, r, sessionID)
		case "recording":
			s.handleRecordingUpload(w, r, sessionID)
		case "elements":
			s.handleElements(w, r, sessionID)
		case "guesses":
			s.handleGuesses(w, r, sessionID)
		case "kick":
			s.handleKick(w, r, sessionID)
		case "end":
			s.handleEnd(w, r, sessionID)
		default:
			http.NotFound(w, r)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleGetSession is fetch_full_state: the one authoritative read every
// repair path converges on.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, ok := s.store.GetSession(sessionID)
	if !ok {
		restored, err := s.restoreSessionFromDB(sessionID)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		session = restored
	}
	requesterID := s.authenticatedRequesterID(r, session)
	state := snapshot(session, requesterID)
	if next, ok, _ := s.nextPhase(session); ok {
		state["next_phase"] = next
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req joinRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	identity := s.identities.Resolve(w, r, req.Identity)
	if req.Name == "" {
		// Returning devices rejoin under their last known name.
		req.Name = s.identities.GetName(identity)
	}
	name, err := validateName(req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, player, err := s.store.AddPlayer(sessionID, identity, name, s.cfg.MaxPlayers)
	if errors.Is(err, errSessionNotFound) {
		if _, restoreErr := s.restoreSessionFromDB(sessionID); restoreErr == nil {
			session, player, err = s.store.AddPlayer(sessionID, identity, name, s.cfg.MaxPlayers)
		}
	}
	if err != nil {
		if errors.Is(err, errSessionNotFound) {
			http.NotFound(w, r)
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	playerID, persistErr := s.persistPlayer(session, player)
	if persistErr != nil {
		writeError(w, http.StatusInternalServerError, "failed to join session")
		return
	}
	s.identities.SetName(identity, name)
	var authToken string
	_, _ = s.store.UpdateSession(session.ID, func(session *Session) error {
		authToken = ensurePlayerAuthToken(session, playerID)
		return nil
	})
	if player.IsHost {
		if err := s.persistHostToken(session); err != nil {
			log.Printf("persist host token failed session_id=%s error=%v", session.ID, err)
		}
	}
	log.Printf("player joined session_id=%s player_id=%d player_name=%s", session.ID, playerID, name)
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"join_code":  session.JoinCode,
		"player_id":  playerID,
		"identity":   identity,
		"auth_token": authToken,
		"is_host":    player.IsHost,
	})
	s.broadcastEnvelope(session, eventPlayerJoined, EventPayload{
		PlayerID:   playerID,
		PlayerName: name,
	}, player)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req leaveRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "player_id is required")
		return
	}
	if _, _, ok := s.requirePlayer(w, r, sessionID, req.PlayerID, req.AuthToken); !ok {
		return
	}
	session, player, err := s.store.RemovePlayer(sessionID, req.PlayerID)
	if err != nil {
		if errors.Is(err, errSessionNotFound) {
			http.NotFound(w, r)
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err := s.persistPlayerRemoval(session, player, eventPlayerLeft); err != nil {
		log.Printf("persist leave failed session_id=%s player_id=%d error=%v", session.ID, player.ID, err)
	}
	log.Printf("player left session_id=%s player_id=%d", session.ID, player.ID)
	writeJSON(w, http.StatusOK, map[string]any{"session_id": session.ID})
	s.broadcastEnvelope(session, eventPlayerLeft, EventPayload{
		PlayerID:   player.ID,
		PlayerName: player.Name,
	}, player)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req startRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "player_id is required")
		return
	}
	if _, _, ok := s.requireHost(w, r, sessionID, req.PlayerID, req.AuthToken); !ok {
		return
	}
	now := timeNowUTC()
	session, err := s.store.UpdateSession(sessionID, func(session *Session) error {
		return startSession(session, now)
	})
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	if err := s.persistTurn(session); err != nil {
		log.Printf("persist first turn failed session_id=%s error=%v", session.ID, err)
	}
	if err := s.persistStatus(session, eventGameStarted, EventPayload{
		Status:      session.Status,
		RoundNumber: session.CurrentRound,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start game")
		return
	}
	host, _ := s.store.FindPlayer(session, session.HostID)
	log.Printf("game started session_id=%s round=%d storyteller_id=%d", session.ID, session.CurrentRound, currentTurn(session).StorytellerID)
	writeJSON(w, http.StatusOK, snapshot(session, req.PlayerID))
	s.broadcastEnvelope(session, eventGameStarted, EventPayload{
		RoundNumber: session.CurrentRound,
	}, host)
	s.schedulePhaseTimer(session)
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req themeRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "theme_id is required")
		return
	}
	themeID, err := validateThemeID(req.ThemeID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, _, ok := s.requirePlayer(w, r, sessionID, req.PlayerID, req.AuthToken); !ok {
		return
	}
	session, err := s.storytellerAdvance(sessionID, req.PlayerID, phaseThemeSelection, func(session *Session, turn *TurnState) {
		turn.ThemeID = themeID
		session.ThemeID = themeID
	})
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	turn := currentTurn(session)
	if err := s.persistTurnTheme(session, turn); err != nil {
		log.Printf("persist theme failed session_id=%s error=%v", session.ID, err)
	}
	if err := s.persistEvent(session, eventThemeSelected, EventPayload{
		PlayerID:    req.PlayerID,
		ThemeID:     themeID,
		RoundNumber: turn.Number,
	}); err != nil {
		log.Printf("persist theme event failed session_id=%s error=%v", session.ID, err)
	}
	storyteller, _ := s.store.FindPlayer(session, req.PlayerID)
	writeJSON(w, http.StatusOK, snapshot(session, req.PlayerID))
	s.broadcastEnvelope(session, eventThemeSelected, EventPayload{ThemeID: themeID}, storyteller)
	s.schedulePhaseTimer(session)
}

func (s *Server) handleSecret(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req secretRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "secret is required")
		return
	}
	secret, err := validateSecret(req.Secret)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, _, ok := s.requirePlayer(w, r, sessionID, req.PlayerID, req.AuthToken); !ok {
		return
	}
	session, err := s.storytellerAdvance(sessionID, req.PlayerID, phaseSecretSelection, func(session *Session, turn *TurnState) {
		turn.Secret = secret
	})
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	turn := currentTurn(session)
	if err := s.persistTurnSecret(session, turn); err != nil {
		log.Printf("persist secret failed session_id=%s error=%v", session.ID, err)
	}
	// The feed entry records that a secret exists, never the secret itself.
	if err := s.persistEvent(session, eventSecretSelected, EventPayload{
		PlayerID:    req.PlayerID,
		RoundNumber: turn.Number,
	}); err != nil {
		log.Printf("persist secret event failed session_id=%s error=%v", session.ID, err)
	}
	storyteller, _ := s.store.FindPlayer(session, req.PlayerID)
	writeJSON(w, http.StatusOK, snapshot(session, req.PlayerID))
	s.broadcastEnvelope(session, eventSecretSelected, EventPayload{}, storyteller)
	s.schedulePhaseTimer(session)
}

func (s *Server) handleRecordingUpload(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req recordingRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "audio_data is required")
		return
	}
	audio, err := decodeAudioData(req.AudioData)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, _, ok := s.requirePlayer(w, r, sessionID, req.PlayerID, req.AuthToken); !ok {
		return
	}
	var mediaURL string
	session, err := s.storytellerAdvance(sessionID, req.PlayerID, phaseClueCapture, func(session *Session, turn *TurnState) {
		turn.ClueAudio = audio
		mediaURL = recordingURL(session.ID, turn.Number)
		turn.ClueMediaURL = mediaURL
	})
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	turn := currentTurn(session)
	if err := s.persistTurnClue(session, turn); err != nil {
		log.Printf("persist clue failed session_id=%s error=%v", session.ID, err)
	}
	if err := s.persistEvent(session, eventRecordingUploaded, EventPayload{
		PlayerID:    req.PlayerID,
		AudioURL:    mediaURL,
		RoundNumber: turn.Number,
	}); err != nil {
		log.Printf("persist recording event failed session_id=%s error=%v", session.ID, err)
	}
	storyteller, _ := s.store.FindPlayer(session, req.PlayerID)
	log.Printf("recording uploaded session_id=%s round=%d bytes=%d", session.ID, turn.Number, len(audio))
	writeJSON(w, http.StatusOK, map[string]any{"media_url": mediaURL})
	s.broadcastEnvelope(session, eventRecordingUploaded, EventPayload{AudioURL: mediaURL}, storyteller)
	s.schedulePhaseTimer(session)
}

func (s *Server) handleElements(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req elementsRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "elements are required")
		return
	}
	elements, err := validateClueElements(req.Elements)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, _, ok := s.requirePlayer(w, r, sessionID, req.PlayerID, req.AuthToken); !ok {
		return
	}
	session, err := s.storytellerAdvance(sessionID, req.PlayerID, phaseClueCapture, func(session *Session, turn *TurnState) {
		turn.ClueElements = elements
	})
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	turn := currentTurn(session)
	if err := s.persistTurnClue(session, turn); err != nil {
		log.Printf("persist clue failed session_id=%s error=%v", session.ID, err)
	}
	if err := s.persistEvent(session, eventRefreshState, EventPayload{
		PlayerID:    req.PlayerID,
		RoundNumber: turn.Number,
		Phase:       turn.Phase,
	}); err != nil {
		log.Printf("persist elements event failed session_id=%s error=%v", session.ID, err)
	}
	storyteller, _ := s.store.FindPlayer(session, req.PlayerID)
	writeJSON(w, http.StatusOK, snapshot(session, req.PlayerID))
	s.broadcastEnvelope(session, eventRefreshState, EventPayload{
		RoundNumber: turn.Number,
		Phase:       turn.Phase,
	}, storyteller)
	s.schedulePhaseTimer(session)
}

func (s *Server) handleGuesses(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req guessRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "guess is required")
		return
	}
	guess, err := validateGuess(req.Guess)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	current, _, ok := s.requirePlayer(w, r, sessionID, req.PlayerID, req.AuthToken)
	if !ok {
		return
	}
	roundNumber := req.RoundNumber
	if roundNumber == 0 {
		roundNumber = current.CurrentRound
	}
	result, session, err := s.submitGuess(sessionID, roundNumber, req.PlayerID, guess)
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	if result.Correct {
		log.Printf("round won session_id=%s round=%d player_id=%d points=%d", session.ID, roundNumber, req.PlayerID, result.Points)
	}
	guesser, _ := s.store.FindPlayer(session, req.PlayerID)
	writeJSON(w, http.StatusOK, result)
	if result.Accepted {
		s.broadcastEnvelope(session, eventPlayerAnswered, EventPayload{
			PlayerID:    req.PlayerID,
			Guess:       guess,
			IsCorrect:   result.Correct,
			RoundNumber: roundNumber,
		}, guesser)
	}
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req kickRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "target_id is required")
		return
	}
	if _, _, ok := s.requireHost(w, r, sessionID, req.PlayerID, req.AuthToken); !ok {
		return
	}
	session, target, err := s.store.RemovePlayer(sessionID, req.TargetID)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	_, _ = s.store.UpdateSession(sessionID, func(session *Session) error {
		if session.KickedPlayers == nil {
			session.KickedPlayers = make(map[string]struct{})
		}
		session.KickedPlayers[strings.ToLower(target.Name)] = struct{}{}
		return nil
	})
	if err := s.persistPlayerRemoval(session, target, eventPlayerLeft); err != nil {
		log.Printf("persist kick failed session_id=%s player_id=%d error=%v", session.ID, target.ID, err)
	}
	log.Printf("player kicked session_id=%s player_id=%d by=%d", session.ID, target.ID, req.PlayerID)
	writeJSON(w, http.StatusOK, map[string]any{"session_id": session.ID})
	s.broadcastEnvelope(session, eventPlayerLeft, EventPayload{
		PlayerID:   target.ID,
		PlayerName: target.Name,
		Reason:     "kicked",
	}, nil)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req endRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "player_id is required")
		return
	}
	if _, _, ok := s.requireHost(w, r, sessionID, req.PlayerID, req.AuthToken); !ok {
		return
	}
	session, err := s.store.UpdateSession(sessionID, func(session *Session) error {
		if session.Status == statusCompleted {
			return errSessionEnded
		}
		session.Status = statusCompleted
		session.PhaseStartedAt = timeNowUTC()
		return nil
	})
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	if err := s.persistStatus(session, eventLobbyEnded, EventPayload{
		Status: session.Status,
		Reason: "host_ended",
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to end lobby")
		return
	}
	log.Printf("session ended session_id=%s reason=host_ended", session.ID)
	writeJSON(w, http.StatusOK, map[string]any{"session_id": session.ID, "status": session.Status})
	host, _ := s.store.FindPlayer(session, req.PlayerID)
	s.broadcastEnvelope(session, eventLobbyEnded, EventPayload{Status: session.Status}, host)
	s.cancelPhaseTimer(session.ID)
}

func (s *Server) handleRecordingDownload(w http.ResponseWriter, r *http.Request, sessionID string, number int) {
	session, ok := s.store.GetSession(sessionID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	var audio []byte
	_, _ = s.store.UpdateSession(session.ID, func(session *Session) error {
		if turn := turnByNumber(session, number); turn != nil {
			audio = turn.ClueAudio
		}
		return nil
	})
	if len(audio) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "audio/webm")
	_, _ = w.Write(audio)
}

// storytellerAdvance runs one storyteller-only mutation and the phase
// transition it unlocks under a single store lock.
func (s *Server) storytellerAdvance(sessionID string, playerID int, expectedPhase string, mutate func(session *Session, turn *TurnState)) (*Session, error) {
	now := timeNowUTC()
	return s.store.UpdateSession(sessionID, func(session *Session) error {
		if session.Status != statusActive {
			return errors.New("game not active")
		}
		turn := currentTurn(session)
		if turn == nil {
			return errors.New("round not started")
		}
		if turn.StorytellerID != playerID {
			return errors.New("only the storyteller may do this")
		}
		if turn.Phase != expectedPhase {
			return errStaleRound
		}
		mutate(session, turn)
		_, err := s.advancePhase(session, transitionManual, now)
		return err
	})
}

func (s *Server) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errSessionNotFound):
		http.NotFound(w, r)
	case errors.Is(err, errSessionEnded):
		writeError(w, http.StatusGone, err.Error())
	default:
		writeError(w, http.StatusConflict, err.Error())
	}
}
