package server

import (
	"net/http"

	"github.com/example/loom/internal/ports/primary"
)

type memorySaveRequest struct {
	Type       string            `json:"type"`
	Title      string            `json:"title"`
	Text       string            `json:"text,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Refs       map[string]string `json:"refs,omitempty"`
	Actor      string            `json:"actor,omitempty"`
	Scope      string            `json:"scope,omitempty"`
	Importance float64           `json:"importance,omitempty"`
	DedupeKey  string            `json:"dedupe_key,omitempty"`
	Project    string            `json:"project,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`

	// Hook-origin saves are best-effort: errors are logged, never returned.
	HookOrigin bool `json:"hook_origin,omitempty"`
}

func (s *Server) handleMemorySave(w http.ResponseWriter, r *http.Request) {
	var req memorySaveRequest
	if !decode(w, r, &req) {
		return
	}

	resp, err := s.memory.SaveEvent(r.Context(), primary.SaveEventRequest{
		Type:       req.Type,
		Title:      req.Title,
		Text:       req.Text,
		Tags:       req.Tags,
		Refs:       req.Refs,
		Actor:      req.Actor,
		Scope:      req.Scope,
		Importance: req.Importance,
		DedupeKey:  req.DedupeKey,
		Project:    req.Project,
		SessionID:  req.SessionID,
	})
	if err != nil {
		if req.HookOrigin {
			s.log.Warn().Err(err).Msg("hook-origin memory save dropped")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": resp.ID})
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string `json:"query,omitempty"`
		Type      string `json:"type,omitempty"`
		Project   string `json:"project,omitempty"`
		SessionID string `json:"session_id,omitempty"`
		Limit     int    `json:"limit,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}

	events, err := s.memory.Search(r.Context(), primary.MemorySearchRequest{
		Query:     req.Query,
		Type:      req.Type,
		Project:   req.Project,
		SessionID: req.SessionID,
		Limit:     req.Limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleMemoryTimeline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AnchorID int64 `json:"anchor_id"`
		Before   int   `json:"before,omitempty"`
		After    int   `json:"after,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}

	events, err := s.memory.Timeline(r.Context(), primary.TimelineRequest{
		AnchorID: req.AnchorID,
		Before:   req.Before,
		After:    req.After,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleMemoryObservations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if !decode(w, r, &req) {
		return
	}

	events, err := s.memory.Observations(r.Context(), req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.memory.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSessionInit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID     string `json:"session_id,omitempty"`
		Project       string `json:"project,omitempty"`
		InitialPrompt string `json:"initial_prompt,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}

	session, err := s.memory.InitSession(r.Context(), primary.InitSessionRequest{
		SessionID:     req.SessionID,
		Project:       req.Project,
		InitialPrompt: req.InitialPrompt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.memory.RecentSessions(r.Context(), intQuery(r, "limit", 20))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}
