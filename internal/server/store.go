package server

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	errSessionNotFound = errors.New("session not found")
	errSessionEnded    = errors.New("session ended")
)

type Store struct {
	mu           sync.Mutex
	nextID       int
	nextPlayerID int
	sessions     map[string]*Session
}

func NewStore() *Store {
	return &Store{
		nextID:       1,
		nextPlayerID: 1,
		sessions:     make(map[string]*Session),
	}
}

// SessionSettings carries the creator-chosen knobs for a new lobby. Zero
// timer presets defer to the server-wide defaults.
type SessionSettings struct {
	Packs            []string
	ThemeID          string
	TotalRounds      int
	CompletionPolicy string
	ClueSeconds      int
	GuessSeconds     int
}

func (s *Store) CreateSession(settings SessionSettings) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := fmt.Sprintf("sess-%d", s.nextID)
	s.nextID++
	session := &Session{
		ID:               id,
		JoinCode:         newJoinCode(),
		Status:           statusWaiting,
		PhaseStartedAt:   timeNowUTC(),
		Packs:            settings.Packs,
		ThemeID:          settings.ThemeID,
		TotalRounds:      settings.TotalRounds,
		CompletionPolicy: settings.CompletionPolicy,
		ClueSeconds:      settings.ClueSeconds,
		GuessSeconds:     settings.GuessSeconds,
		KickedPlayers:    make(map[string]struct{}),
	}
	s.sessions[id] = session
	return session
}

func (s *Store) GetSession(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *Store) UpdateSession(id string, update func(session *Session) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	if err := update(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Store) FindSessionByJoinCode(code string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.JoinCode == code {
			return session, true
		}
	}
	return nil, false
}

func (s *Store) UpdateSessionID(session *Session, newID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == newID {
		return
	}
	delete(s.sessions, session.ID)
	session.ID = newID
	s.sessions[newID] = session
}

// RemoveSession drops an ended session from the live set. The durable rows
// remain; peers that missed the broadcast discover the end on refetch.
func (s *Store) RemoveSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Store) AddPlayer(sessionIDOrCode, identity, name string, maxPlayers int) (*Session, *Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionIDOrCode]
	if !ok {
		for _, candidate := range s.sessions {
			if candidate.JoinCode == sessionIDOrCode {
				session = candidate
				ok = true
				break
			}
		}
	}
	if !ok {
		return nil, nil, errSessionNotFound
	}

	for i := range session.Players {
		if session.Players[i].Identity == identity {
			// Rejoin with the same identity keeps the existing seat.
			if name != "" {
				session.Players[i].Name = name
			}
			return session, &session.Players[i], nil
		}
	}
	if session.Status == statusCompleted {
		return nil, nil, errSessionEnded
	}
	if session.Status != statusWaiting {
		return nil, nil, errors.New("game already started")
	}
	if maxPlayers > 0 && len(session.Players) >= maxPlayers {
		return nil, nil, errors.New("lobby full")
	}
	if session.KickedPlayers != nil {
		if _, kicked := session.KickedPlayers[strings.ToLower(name)]; kicked {
			return nil, nil, errors.New("player removed")
		}
	}

	player := Player{
		ID:       s.nextPlayerID,
		Identity: identity,
		Name:     name,
		Rank:     nextRank(session.Players),
		IsHost:   len(session.Players) == 0,
	}
	s.nextPlayerID++
	session.Players = append(session.Players, player)
	if player.IsHost {
		session.HostID = player.ID
	}
	return session, &session.Players[len(session.Players)-1], nil
}

func (s *Store) RemovePlayer(sessionID string, playerID int) (*Session, *Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil, errSessionNotFound
	}
	for i := range session.Players {
		if session.Players[i].ID == playerID {
			removed := session.Players[i]
			session.Players = append(session.Players[:i], session.Players[i+1:]...)
			return session, &removed, nil
		}
	}
	return session, nil, errors.New("player not found")
}

func (s *Store) RestoreSession(session *Session) error {
	if session == nil {
		return errors.New("session is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return errors.New("session already running")
	}
	for _, existing := range s.sessions {
		if existing.JoinCode == session.JoinCode {
			return errors.New("session already running")
		}
	}
	s.sessions[session.ID] = session
	if id := sessionSortKey(session.ID); id >= s.nextID {
		s.nextID = id + 1
	}
	maxPlayerID := 0
	for _, player := range session.Players {
		if player.ID > maxPlayerID {
			maxPlayerID = player.ID
		}
	}
	if maxPlayerID >= s.nextPlayerID {
		s.nextPlayerID = maxPlayerID + 1
	}
	return nil
}

func (s *Store) ListSessionSummaries() []SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]SessionSummary, 0, len(s.sessions))
	for _, session := range s.sessions {
		list = append(list, SessionSummary{
			ID:       session.ID,
			JoinCode: session.JoinCode,
			Status:   session.Status,
			Players:  len(session.Players),
		})
	}
	sort.Slice(list, func(i, j int) bool {
		return sessionSortKey(list[i].ID) < sessionSortKey(list[j].ID)
	})
	return list
}

func sessionSortKey(id string) int {
	parts := strings.Split(id, "-")
	if len(parts) < 2 {
		return 0
	}
	value, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0
	}
	return value
}

func (s *Store) FindPlayer(session *Session, playerID int) (*Player, bool) {
	return findPlayer(session, playerID)
}

func findPlayer(session *Session, playerID int) (*Player, bool) {
	for i := range session.Players {
		if session.Players[i].ID == playerID {
			return &session.Players[i], true
		}
	}
	return nil, false
}

// nextRank keeps turn-order ranks unique within a session even after leaves
// and kicks open gaps.
func nextRank(players []Player) int {
	max := 0
	for _, player := range players {
		if player.Rank > max {
			max = player.Rank
		}
	}
	return max + 1
}

func timeNowUTC() time.Time {
	return time.Now().UTC()
}
