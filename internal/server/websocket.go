package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsHub is the best-effort fan-out: one topic per session, no delivery or
// ordering guarantee. Clients that miss messages converge via refetch.
type wsHub struct {
	mu     sync.Mutex
	groups map[string]map[*websocket.Conn]struct{}
	hosts  map[string]map[*websocket.Conn]struct{}
}

func newWSHub() *wsHub {
	return &wsHub{
		groups: make(map[string]map[*websocket.Conn]struct{}),
		hosts:  make(map[string]map[*websocket.Conn]struct{}),
	}
}

func (h *wsHub) Add(sessionID string, conn *websocket.Conn, isHost bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[sessionID]
	if group == nil {
		group = make(map[*websocket.Conn]struct{})
		h.groups[sessionID] = group
	}
	group[conn] = struct{}{}
	if isHost {
		hostGroup := h.hosts[sessionID]
		if hostGroup == nil {
			hostGroup = make(map[*websocket.Conn]struct{})
			h.hosts[sessionID] = hostGroup
		}
		hostGroup[conn] = struct{}{}
	}
}

func (h *wsHub) Remove(sessionID string, conn *websocket.Conn, isHost bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[sessionID]
	if group == nil {
		return
	}
	delete(group, conn)
	_ = conn.Close()
	if len(group) == 0 {
		delete(h.groups, sessionID)
	}
	if isHost {
		hostGroup := h.hosts[sessionID]
		if hostGroup != nil {
			delete(hostGroup, conn)
			if len(hostGroup) == 0 {
				delete(h.hosts, sessionID)
			}
		}
	}
}

func (h *wsHub) Send(conn *websocket.Conn, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func (h *wsHub) Broadcast(sessionID string, payload any) {
	h.mu.Lock()
	group := h.groups[sessionID]
	conns := make([]*websocket.Conn, 0, len(group))
	for conn := range group {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.Remove(sessionID, conn, false)
		}
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseWebsocketPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	session, exists := s.store.GetSession(sessionID)
	if !exists {
		http.NotFound(w, r)
		return
	}
	// A forged player_id must not inherit the host's disconnect semantics or
	// the storyteller's snapshot view.
	playerID := s.authenticatedRequesterID(r, session)
	isHost := playerID != 0 && playerID == session.HostID
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	log.Printf("ws connected session_id=%s player_id=%d remote=%s", sessionID, playerID, r.RemoteAddr)
	s.ws.Add(sessionID, conn, isHost)
	// Snapshot-on-subscribe closes the missed-message window before any live
	// event is applied.
	if session, ok := s.store.GetSession(sessionID); ok {
		s.ws.Send(conn, snapshot(session, playerID))
	}
	go s.readWS(sessionID, conn, isHost)
}

func (s *Server) readWS(sessionID string, conn *websocket.Conn, isHost bool) {
	defer s.ws.Remove(sessionID, conn, isHost)
	if isHost {
		defer s.endSessionFromHost(sessionID)
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Printf("ws disconnected session_id=%s error=%v", sessionID, err)
			return
		}
	}
}

func (s *Server) endSessionFromHost(sessionID string) {
	session, err := s.store.UpdateSession(sessionID, func(session *Session) error {
		if session.Status == statusCompleted {
			return errSessionEnded
		}
		session.Status = statusCompleted
		session.PhaseStartedAt = timeNowUTC()
		return nil
	})
	if err != nil {
		return
	}
	if err := s.persistStatus(session, eventLobbyEnded, EventPayload{
		Status: session.Status,
		Reason: "host_disconnected",
	}); err != nil {
		return
	}
	log.Printf("session ended session_id=%s reason=host_disconnected", session.ID)
	s.broadcastEnvelope(session, eventLobbyEnded, EventPayload{Status: session.Status}, nil)
	s.cancelPhaseTimer(session.ID)
}

// broadcastEnvelope fans an event hint out to every subscriber. Fires only
// after the authoritative write succeeded; peers refetch for the actual state.
func (s *Server) broadcastEnvelope(session *Session, eventType string, payload EventPayload, sender *Player) {
	if s.ws == nil {
		return
	}
	envelope := Envelope{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	if sender != nil {
		envelope.SenderID = sender.Identity
		envelope.SenderName = sender.Name
	}
	s.ws.Broadcast(session.ID, envelope)
}
