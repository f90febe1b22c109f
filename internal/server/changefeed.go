package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"whispbox/internal/db"
)

// handleEvents serves the durable change feed for one session, ordered by
// sequence number. It is the at-least-once fallback behind the broadcast
// channel: consumers poll with ?after=<seq> and respond to any entry by
// refetching full state, never by applying deltas.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, ok := s.store.GetSession(sessionID)
	if !ok {
		session, ok = s.lookupEndedSession(sessionID)
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	if s.db == nil || session.DBID == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"events": []FeedEvent{}})
		return
	}
	after := int64(0)
	if raw := r.URL.Query().Get("after"); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value < 0 {
			writeError(w, http.StatusBadRequest, "invalid after cursor")
			return
		}
		after = value
	}
	var records []db.Event
	if err := s.db.Where("session_id = ? AND seq > ?", session.DBID, after).
		Order("seq asc").Limit(200).Find(&records).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	events := make([]FeedEvent, 0, len(records))
	for _, record := range records {
		var payload EventPayload
		_ = json.Unmarshal(record.Payload, &payload)
		events = append(events, FeedEvent{
			Seq:       record.Seq,
			Type:      record.Type,
			Payload:   payload,
			CreatedAt: record.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// lookupEndedSession resolves a session that has already been dropped from
// the live set so late feed consumers can still drain their cursor.
func (s *Server) lookupEndedSession(sessionID string) (*Session, bool) {
	if s.db == nil {
		return nil, false
	}
	dbID := sessionSortKey(sessionID)
	if dbID <= 0 {
		return nil, false
	}
	var record db.Session
	if err := s.db.First(&record, dbID).Error; err != nil {
		return nil, false
	}
	return &Session{
		ID:       sessionID,
		DBID:     record.ID,
		JoinCode: record.JoinCode,
		Status:   record.Status,
	}, true
}
