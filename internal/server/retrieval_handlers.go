package server

import (
	"net/http"

	"github.com/example/loom/internal/ports/primary"
)

func (s *Server) handleRetrievalStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.retriever.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRetrievalSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query   string `json:"query"`
		Corpus  string `json:"corpus,omitempty"`
		DocType string `json:"doc_type,omitempty"`
		TopK    int    `json:"top_k,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}

	resp, err := s.retriever.Search(r.Context(), primary.RetrievalRequest{
		Query:   req.Query,
		Corpus:  req.Corpus,
		DocType: req.DocType,
		TopK:    req.TopK,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRetrievalReindex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Full bool `json:"full,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}

	resp, err := s.retriever.Reindex(r.Context(), req.Full)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
