package server

import (
	"net/http"
	"sync"
	"time"

	"whispbox/internal/config"

	"gorm.io/gorm"
)

type Server struct {
	store      *Store
	db         *gorm.DB
	ws         *wsHub
	cfg        config.Config
	identities *identityStore
	timersMu   sync.Mutex
	timers     map[string]*time.Timer
}

func New(conn *gorm.DB, cfg config.Config) *Server {
	return &Server{
		store:      NewStore(),
		db:         conn,
		ws:         newWSHub(),
		cfg:        cfg,
		identities: newIdentityStore(conn),
		timers:     make(map[string]*time.Timer),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/", s.handleSessionSubroutes)
	mux.HandleFunc("POST /api/sessions/", s.handleSessionSubroutes)
	mux.HandleFunc("GET /ws/sessions/", s.handleWebsocket)
	return mux
}
