package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/softfault/recall/internal/engine"
	"github.com/softfault/recall/internal/store"
)

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DryRun             bool    `json:"dry_run"`
		RetentionThreshold float64 `json:"retention_threshold"`
	}
	// An empty body means "run with defaults"
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}
	if req.RetentionThreshold < 0 || req.RetentionThreshold > 1 {
		writeError(w, http.StatusBadRequest, "retention_threshold outside [0,1]")
		return
	}

	report, err := s.engine.Consolidate(engine.Options{
		DryRun:             req.DryRun,
		RetentionThreshold: req.RetentionThreshold,
	})
	if err != nil {
		// The report still carries per-step counts; return it with the error.
		writeJSON(w, http.StatusInternalServerError, report)
		return
	}

	if !report.DryRun {
		// Consolidation rewrites scores and archives rows in bulk.
		s.cache.InvalidateAll()
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic          string `json:"topic"`
		Importance     int    `json:"importance"`
		OutcomeSuccess *bool  `json:"outcome_success"`
		CreatedAt      int64  `json:"created_at"` // unix millis, 0 = now
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Importance == 0 {
		req.Importance = 5
	}

	c := &store.Conversation{
		Topic:          req.Topic,
		Importance:     req.Importance,
		OutcomeSuccess: req.OutcomeSuccess,
		CreatedAt:      req.CreatedAt,
	}
	// Initial priority score at write time
	c.PriorityScore = engine.ScoreConversation(c, time.Now())

	if err := s.db.CreateConversation(c); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":             c.ID,
		"priority_score": c.PriorityScore,
	})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	c, err := s.cache.GetConversation(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":              c.ID,
		"topic":           c.Topic,
		"created_at":      c.CreatedAt,
		"times_accessed":  c.TimesAccessed,
		"importance":      c.Importance,
		"retention_score": c.RetentionScore,
		"priority_score":  c.PriorityScore,
		"cluster_id":      c.ClusterID,
	})
}

func (s *Server) handleTouchConversation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := s.db.TouchConversation(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.cache.Invalidate(id)

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateKnowledge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category   string  `json:"category"`
		Key        string  `json:"key"`
		Value      string  `json:"value"`
		Confidence float64 `json:"confidence"`
		Importance int     `json:"importance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Category == "" || req.Key == "" {
		writeError(w, http.StatusBadRequest, "category and key required")
		return
	}
	if req.Confidence == 0 {
		req.Confidence = 0.5
	}
	if req.Importance == 0 {
		req.Importance = 5
	}

	k := &store.KnowledgeItem{
		Category:   req.Category,
		Key:        req.Key,
		Value:      req.Value,
		Confidence: req.Confidence,
		Importance: req.Importance,
	}
	k.PriorityScore = engine.ScoreKnowledgeItem(k, time.Now())

	// Exact-slot matches are near-certain dedup candidates; surface them
	// so callers can merge early instead of waiting for a pass.
	existing, err := s.db.FindKnowledgeByCategoryKey(req.Category, req.Key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.db.CreateKnowledgeItem(k); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	candidates := make([]int64, 0, len(existing))
	for _, e := range existing {
		candidates = append(candidates, e.ID)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":                   k.ID,
		"priority_score":       k.PriorityScore,
		"duplicate_candidates": candidates,
	})
}

func (s *Server) handleTouchKnowledge(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := s.db.TouchKnowledgeItem(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleObservePattern(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
		Success bool            `json:"success"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Type == "" || len(req.Payload) == 0 {
		writeError(w, http.StatusBadRequest, "type and payload required")
		return
	}

	p, err := s.db.ObservePattern(req.Type, store.Fingerprint(req.Payload), req.Success)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":           p.ID,
		"frequency":    p.Frequency,
		"success_rate": p.SuccessRate,
	})
}

func (s *Server) handleCreateRelationship(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromItem      int64   `json:"from_item"`
		ToItem        int64   `json:"to_item"`
		RelationType  string  `json:"relation_type"`
		Strength      float64 `json:"strength"`
		Bidirectional bool    `json:"bidirectional"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.RelationType == "" {
		writeError(w, http.StatusBadRequest, "relation_type required")
		return
	}

	// Endpoints must be live knowledge items; a superseded endpoint would
	// create an edge that is stale from birth.
	for _, id := range []int64{req.FromItem, req.ToItem} {
		if _, err := s.db.GetKnowledgeItem(id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusBadRequest, "endpoint item not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	rel := &store.Relationship{
		FromItem:      req.FromItem,
		ToItem:        req.ToItem,
		RelationType:  req.RelationType,
		Strength:      req.Strength,
		Bidirectional: req.Bidirectional,
	}
	if err := s.db.CreateRelationship(rel); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": rel.ID})
}

func (s *Server) handleListRelationships(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	rels, err := s.db.RelationshipsFor(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(rels))
	for _, rel := range rels {
		out = append(out, map[string]any{
			"id":            rel.ID,
			"from_item":     rel.FromItem,
			"to_item":       rel.ToItem,
			"relation_type": rel.RelationType,
			"strength":      rel.Strength,
			"verified":      rel.Verified,
			"bidirectional": rel.Bidirectional,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"relationships": out})
}

func (s *Server) handleVerifyRelationship(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := s.db.VerifyRelationship(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	archived, err := s.db.ListArchivedConversations(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(archived))
	for _, a := range archived {
		out = append(out, map[string]any{
			"id":              a.ID,
			"topic":           a.Topic,
			"created_at":      a.CreatedAt,
			"retention_score": a.RetentionScore,
			"archived_at":     a.ArchivedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"archived": out})
}

func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	audits, err := s.db.ListMergeAudits(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(audits))
	for _, a := range audits {
		out = append(out, map[string]any{
			"id":         a.ID,
			"primary_id": a.PrimaryID,
			"merged_ids": a.MergedIDs,
			"strategy":   a.Strategy,
			"created_at": a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"audits": out})
}
