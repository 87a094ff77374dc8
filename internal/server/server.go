package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cogkernel/tensorlogic/internal/engine"
	"github.com/cogkernel/tensorlogic/internal/store"
)

// Server is the tensorlogic HTTP API server. The engine is not safe for
// concurrent use, so every handler that touches it holds mu.
type Server struct {
	engine  *engine.Engine
	db      *store.DB
	router  chi.Router
	version string
	started time.Time
	mu      sync.Mutex
}

// New creates a new Server around an engine. db may be nil, in which case
// snapshot routes report the store as unavailable.
func New(e *engine.Engine, db *store.DB, version string) *Server {
	s := &Server{
		engine:  e,
		db:      db,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Post("/atoms", s.handleCreateAtom)
		r.Post("/atoms/clear", s.handleClear)
		r.Post("/links", s.handleAddLink)
		r.Post("/rules", s.handleAddRule)

		r.Post("/infer", s.handleInfer)
		r.Post("/train", s.handleTrain)

		r.Post("/snapshot/save", s.handleSnapshotSave)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := false
	if s.db != nil && s.db.Ping() == nil {
		dbOK = true
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sp := s.engine.Space()
	stats := map[string]any{
		"atoms":          sp.Len(),
		"capacity":       sp.Cap(),
		"rules":          len(s.engine.Rules()),
		"training_steps": sp.TrainingSteps,
		"loss":           s.engine.Gradients().Loss,
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
