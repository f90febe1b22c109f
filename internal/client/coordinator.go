// Package client is the session coordinator: it owns the local snapshot of
// one game session, issues authoritative calls first, and treats every
// realtime event as a hint to refetch rather than a source of truth.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrSessionEnded is returned once the session is gone or completed; the
	// host application should navigate away instead of retrying.
	ErrSessionEnded = errors.New("session ended")
	// ErrConflict covers rejected transitions and stale-round submissions.
	ErrConflict = errors.New("conflict")
	// ErrLockedOut is returned for a second local guess in the same round.
	ErrLockedOut = errors.New("already guessed this round")
)

const reconnectDelay = 2 * time.Second

// Coordinator drives one player's view of one session.
type Coordinator struct {
	baseURL  string
	http     *http.Client
	dialer   *websocket.Dialer
	identity Identity

	mu          sync.Mutex
	sessionID   string
	state       State
	feedCursor  int64
	guessLocks  map[int]GuessResult
	subscribers []chan Envelope
}

func New(baseURL string, identity Identity) *Coordinator {
	return &Coordinator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: 15 * time.Second},
		dialer:     websocket.DefaultDialer,
		identity:   identity,
		guessLocks: make(map[int]GuessResult),
	}
}

// State returns a copy of the current local snapshot.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) Identity() Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Coordinator) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// CreateSession asks the server for a fresh lobby.
func (c *Coordinator) CreateSession(ctx context.Context, packs []string, themeID string, totalRounds int, policy string) (string, string, error) {
	var resp struct {
		SessionID string `json:"session_id"`
		JoinCode  string `json:"join_code"`
	}
	body := map[string]any{
		"packs":             packs,
		"theme_id":          themeID,
		"total_rounds":      totalRounds,
		"completion_policy": policy,
	}
	if err := c.post(ctx, "/api/sessions", body, &resp); err != nil {
		return "", "", err
	}
	return resp.SessionID, resp.JoinCode, nil
}

// Join enters a session by id or join code, then performs the entry refetch.
func (c *Coordinator) Join(ctx context.Context, sessionIDOrCode, name string) error {
	var resp struct {
		SessionID string `json:"session_id"`
		JoinCode  string `json:"join_code"`
		PlayerID  int    `json:"player_id"`
		Identity  string `json:"identity"`
		AuthToken string `json:"auth_token"`
		IsHost    bool   `json:"is_host"`
	}
	body := map[string]any{"name": name, "identity": c.identity.ID}
	if err := c.post(ctx, "/api/sessions/"+sessionIDOrCode+"/join", body, &resp); err != nil {
		return err
	}
	c.mu.Lock()
	c.sessionID = resp.SessionID
	c.identity.PlayerID = resp.PlayerID
	c.identity.Name = name
	if resp.Identity != "" {
		c.identity.ID = resp.Identity
	}
	if resp.AuthToken != "" {
		c.identity.AuthToken = resp.AuthToken
	}
	c.mu.Unlock()
	_, err := c.FetchFullState(ctx)
	return err
}

// FetchFullState is the single authoritative read both repair paths use.
// Applying it twice with no intervening write leaves the state unchanged.
func (c *Coordinator) FetchFullState(ctx context.Context) (State, error) {
	c.mu.Lock()
	sessionID := c.sessionID
	playerID := c.identity.PlayerID
	authToken := c.identity.AuthToken
	c.mu.Unlock()
	if sessionID == "" {
		return State{}, errors.New("not in a session")
	}
	var state State
	path := fmt.Sprintf("/api/sessions/%s?player_id=%d&auth_token=%s", sessionID, playerID, url.QueryEscape(authToken))
	if err := c.get(ctx, path, &state); err != nil {
		return State{}, err
	}
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	if state.Status == "completed" {
		return state, ErrSessionEnded
	}
	return state, nil
}

// StartGame transitions the lobby to active. Host only.
func (c *Coordinator) StartGame(ctx context.Context) error {
	var state State
	if err := c.post(ctx, c.sessionPath("/start"), c.selfBody(), &state); err != nil {
		return err
	}
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	return nil
}

// SelectTheme picks the round theme. Storyteller only.
func (c *Coordinator) SelectTheme(ctx context.Context, themeID string) error {
	body := c.selfBody()
	body["theme_id"] = themeID
	var state State
	if err := c.post(ctx, c.sessionPath("/theme"), body, &state); err != nil {
		return err
	}
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	return nil
}

// SaveSecret records the storyteller's whisp for the round.
func (c *Coordinator) SaveSecret(ctx context.Context, secret string) error {
	body := c.selfBody()
	body["secret"] = secret
	var state State
	if err := c.post(ctx, c.sessionPath("/secret"), body, &state); err != nil {
		return err
	}
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	return nil
}

// UploadRecording finalizes an audio clue and opens the guessing phase.
func (c *Coordinator) UploadRecording(ctx context.Context, audio []byte) (string, error) {
	body := c.selfBody()
	body["audio_data"] = "data:audio/webm;base64," + base64.StdEncoding.EncodeToString(audio)
	var resp struct {
		MediaURL string `json:"media_url"`
	}
	if err := c.post(ctx, c.sessionPath("/recording"), body, &resp); err != nil {
		return "", err
	}
	return resp.MediaURL, nil
}

// FinalizeElements finalizes an element-arrangement clue.
func (c *Coordinator) FinalizeElements(ctx context.Context, elements []string) error {
	body := c.selfBody()
	body["elements"] = elements
	var state State
	if err := c.post(ctx, c.sessionPath("/elements"), body, &state); err != nil {
		return err
	}
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	return nil
}

// SubmitGuess sends one guess for the given round. A local per-round lockout
// returns the first result for any repeat attempt without another call, even
// if the server were to fail open.
func (c *Coordinator) SubmitGuess(ctx context.Context, roundNumber int, guess string) (GuessResult, error) {
	c.mu.Lock()
	if prior, locked := c.guessLocks[roundNumber]; locked {
		c.mu.Unlock()
		return prior, ErrLockedOut
	}
	c.mu.Unlock()

	body := c.selfBody()
	body["round_number"] = roundNumber
	body["guess"] = guess
	var result GuessResult
	if err := c.post(ctx, c.sessionPath("/guesses"), body, &result); err != nil {
		return GuessResult{}, err
	}
	c.mu.Lock()
	c.guessLocks[roundNumber] = result
	c.mu.Unlock()
	return result, nil
}

// EndLobby ends the session. Host only.
func (c *Coordinator) EndLobby(ctx context.Context) error {
	err := c.post(ctx, c.sessionPath("/end"), c.selfBody(), nil)
	if err != nil && !errors.Is(err, ErrSessionEnded) {
		return err
	}
	return nil
}

// Leave removes this player from the session.
func (c *Coordinator) Leave(ctx context.Context) error {
	return c.post(ctx, c.sessionPath("/leave"), c.selfBody(), nil)
}

// PollFeed drains the durable change feed past the local cursor. Any entry at
// all triggers a full refetch; deltas are never applied piecemeal.
func (c *Coordinator) PollFeed(ctx context.Context) (bool, error) {
	c.mu.Lock()
	cursor := c.feedCursor
	c.mu.Unlock()
	var resp struct {
		Events []FeedEvent `json:"events"`
	}
	path := fmt.Sprintf("%s/events?after=%d", c.sessionPath(""), cursor)
	if err := c.get(ctx, path, &resp); err != nil {
		return false, err
	}
	if len(resp.Events) == 0 {
		return false, nil
	}
	c.mu.Lock()
	for _, event := range resp.Events {
		if event.Seq > c.feedCursor {
			c.feedCursor = event.Seq
		}
	}
	c.mu.Unlock()
	if _, err := c.FetchFullState(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Events returns a channel of broadcast envelopes for the host application.
// Self-originated events are filtered out before delivery.
func (c *Coordinator) Events() <-chan Envelope {
	ch := make(chan Envelope, 16)
	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()
	return ch
}

// Subscribe connects to the broadcast channel and applies events until the
// context is cancelled or the session ends. Every (re)connect performs a full
// refetch before live events are applied, closing the missed-message window.
func (c *Coordinator) Subscribe(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.FetchFullState(ctx); err != nil {
			if errors.Is(err, ErrSessionEnded) {
				return ErrSessionEnded
			}
			log.Printf("refetch before subscribe failed error=%v", err)
			if !sleepCtx(ctx, reconnectDelay) {
				return ctx.Err()
			}
			continue
		}
		err := c.readLoop(ctx)
		if errors.Is(err, ErrSessionEnded) || errors.Is(err, context.Canceled) {
			return err
		}
		log.Printf("broadcast channel lost error=%v", err)
		if !sleepCtx(ctx, reconnectDelay) {
			return ctx.Err()
		}
	}
}

func (c *Coordinator) readLoop(ctx context.Context) error {
	c.mu.Lock()
	sessionID := c.sessionID
	playerID := c.identity.PlayerID
	authToken := c.identity.AuthToken
	c.mu.Unlock()
	wsURL := websocketURL(c.baseURL) + fmt.Sprintf("/ws/sessions/%s?player_id=%d&auth_token=%s", sessionID, playerID, url.QueryEscape(authToken))
	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return context.Canceled
			}
			return err
		}
		if err := c.handleMessage(ctx, data); err != nil {
			return err
		}
	}
}

// handleMessage applies one wire message: either the snapshot sent on
// subscribe, or a live envelope.
func (c *Coordinator) handleMessage(ctx context.Context, data []byte) error {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Type == "" {
		var state State
		if err := json.Unmarshal(data, &state); err == nil && state.Session.ID != "" {
			c.mu.Lock()
			c.state = state
			c.mu.Unlock()
			if state.Status == "completed" {
				return ErrSessionEnded
			}
		}
		return nil
	}
	c.mu.Lock()
	self := envelope.SenderID != "" && envelope.SenderID == c.identity.ID
	c.mu.Unlock()
	if self {
		return nil
	}
	switch eventEffect(envelope.Type) {
	case effectExit:
		c.deliver(envelope)
		return ErrSessionEnded
	case effectRefetch:
		if _, err := c.FetchFullState(ctx); err != nil {
			if errors.Is(err, ErrSessionEnded) {
				c.deliver(envelope)
				return ErrSessionEnded
			}
			log.Printf("refetch after event failed type=%s error=%v", envelope.Type, err)
		}
		c.deliver(envelope)
	}
	return nil
}

func (c *Coordinator) deliver(envelope Envelope) {
	c.mu.Lock()
	subscribers := append([]chan Envelope(nil), c.subscribers...)
	c.mu.Unlock()
	for _, ch := range subscribers {
		select {
		case ch <- envelope:
		default:
		}
	}
}

func (c *Coordinator) sessionPath(suffix string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return "/api/sessions/" + c.sessionID + suffix
}

func (c *Coordinator) selfBody() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]any{
		"player_id":  c.identity.PlayerID,
		"auth_token": c.identity.AuthToken,
	}
}

func (c *Coordinator) post(ctx context.Context, path string, body, dest any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dest)
}

func (c *Coordinator) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, dest)
}

func (c *Coordinator) do(req *http.Request, dest any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return ErrSessionEnded
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, readErrorMessage(resp.Body))
	case resp.StatusCode >= 400:
		return fmt.Errorf("request failed status=%d message=%s", resp.StatusCode, readErrorMessage(resp.Body))
	}
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func readErrorMessage(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return "unknown error"
	}
	return payload.Error
}

func websocketURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	default:
		return baseURL
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
