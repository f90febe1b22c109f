package server

import (
	"net/http"
	"strings"
	"sync"

	"whispbox/internal/db"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// identityStore resolves a stable player identity once per device. Handlers
// never re-derive identity from ad hoc lookups; they take the resolved value.
type identityStore struct {
	db         *gorm.DB
	mu         sync.Mutex
	identities map[string]identityData
}

type identityData struct {
	Name string
}

func newIdentityStore(conn *gorm.DB) *identityStore {
	return &identityStore{
		db:         conn,
		identities: make(map[string]identityData),
	}
}

// Resolve returns the identity bound to the request cookie, minting a new one
// when absent. An explicit identity (authenticated customer id) wins over the
// cookie so a login can claim a guest seat.
func (s *identityStore) Resolve(w http.ResponseWriter, r *http.Request, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	cookie, err := r.Cookie("wb_identity")
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     "wb_identity",
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (s *identityStore) SetName(identity, name string) {
	if strings.TrimSpace(name) == "" || identity == "" {
		return
	}
	if s.db == nil {
		s.mu.Lock()
		data := s.identities[identity]
		data.Name = name
		s.identities[identity] = data
		s.mu.Unlock()
		return
	}
	record := db.Identity{
		ID:         identity,
		PlayerName: name,
	}
	_ = s.db.Save(&record).Error
}

func (s *identityStore) GetName(identity string) string {
	if identity == "" {
		return ""
	}
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.identities[identity].Name
	}
	var record db.Identity
	if err := s.db.Where("id = ?", identity).First(&record).Error; err != nil {
		return ""
	}
	return record.PlayerName
}
