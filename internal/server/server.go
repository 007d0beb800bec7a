// Package server exposes the consolidation engine and record ingestion
// over HTTP. The surface is a trigger plus thin write endpoints — the
// engine itself never speaks the network.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/softfault/recall/internal/engine"
	"github.com/softfault/recall/internal/store"
)

// Server is the recall HTTP API server. It owns the read-through record
// cache, invalidating entries whenever a write path touches them.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	cache   *engine.RecordCache
	log     *slog.Logger
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server with the given database, engine, and version string.
func New(db *store.DB, eng *engine.Engine, log *slog.Logger, version string) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	cache, err := engine.NewRecordCache(db, 256)
	if err != nil {
		return nil, err
	}

	s := &Server{
		db:      db,
		engine:  eng,
		cache:   cache,
		log:     log,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s, nil
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

		r.Post("/consolidate", s.handleConsolidate)

		r.Post("/conversations", s.handleCreateConversation)
		r.Get("/conversations/{id}", s.handleGetConversation)
		r.Post("/conversations/{id}/touch", s.handleTouchConversation)

		r.Post("/knowledge", s.handleCreateKnowledge)
		r.Post("/knowledge/{id}/touch", s.handleTouchKnowledge)
		r.Get("/knowledge/{id}/relationships", s.handleListRelationships)

		r.Post("/patterns/observe", s.handleObservePattern)
		r.Post("/relationships", s.handleCreateRelationship)
		r.Post("/relationships/{id}/verify", s.handleVerifyRelationship)

		r.Get("/archive", s.handleListArchive)
		r.Get("/audits", s.handleListAudits)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	version, err := s.db.SchemaVersion()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"schema_version": version,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	active, archived, err := s.db.CountConversations()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	items, superseded, err := s.db.CountKnowledgeItems()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	clusters, err := s.db.CountClusters()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	patterns, err := s.db.CountPatterns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	audits, err := s.db.CountMergeAudits()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversations_active":   active,
		"conversations_archived": archived,
		"knowledge_active":       items,
		"knowledge_superseded":   superseded,
		"clusters":               clusters,
		"patterns":               patterns,
		"merge_audits":           audits,
		"cached_records":         s.cache.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
