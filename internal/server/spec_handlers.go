package server

import (
	"net/http"

	"github.com/example/loom/internal/core/review"
	"github.com/example/loom/internal/ports/primary"
)

func (s *Server) handleSpecList(w http.ResponseWriter, r *http.Request) {
	states, err := s.specs.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"specs": states})
}

func (s *Server) handleSpecGet(w http.ResponseWriter, r *http.Request) {
	state, err := s.specs.Get(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSpecBusy(w http.ResponseWriter, r *http.Request) {
	busy, slug, err := s.specs.IsBusy(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"busy": busy, "slug": slug})
}

func (s *Server) handleSpecStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slug     string `json:"slug"`
		Title    string `json:"title,omitempty"`
		PlanPath string `json:"plan_path,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}

	state, err := s.specs.Start(r.Context(), primary.StartSpecRequest{
		Slug:     req.Slug,
		Title:    req.Title,
		PlanPath: req.PlanPath,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSpecApprovePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TotalTasks int `json:"total_tasks"`
	}
	if !decode(w, r, &req) {
		return
	}

	state, err := s.specs.ApprovePlan(r.Context(), r.PathValue("slug"), req.TotalTasks)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSpecStartTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskNum int `json:"task_num"`
	}
	if !decode(w, r, &req) {
		return
	}

	state, err := s.specs.StartTask(r.Context(), r.PathValue("slug"), req.TaskNum)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSpecCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskNum int `json:"task_num"`
	}
	if !decode(w, r, &req) {
		return
	}

	state, err := s.specs.CompleteTask(r.Context(), r.PathValue("slug"), req.TaskNum)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSpecStartVerify(w http.ResponseWriter, r *http.Request) {
	state, err := s.specs.StartVerify(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSpecVerdict(w http.ResponseWriter, r *http.Request) {
	var verdict review.ReviewerVerdict
	if !decode(w, r, &verdict) {
		return
	}

	state, err := s.specs.SubmitVerdict(r.Context(), r.PathValue("slug"), verdict)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSpecResolveVerify(w http.ResponseWriter, r *http.Request) {
	resp, err := s.specs.ResolveVerify(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSpecComplete(w http.ResponseWriter, r *http.Request) {
	state, err := s.specs.Complete(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSpecAbort(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}

	state, err := s.specs.Abort(r.Context(), r.PathValue("slug"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSpecWorktree(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	state, err := s.specs.Get(r.Context(), slug)
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := s.worktrees.Status(r.Context(), slug, state.PlanPath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
