package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/risk-sentry/internal/domain"
)

// EvaluateRequest is the evaluate endpoint's request body
type EvaluateRequest struct {
	Instruction domain.Instruction      `json:"instruction"`
	Context     domain.PortfolioContext `json:"context"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvaluate runs one instruction through the full pipeline and returns
// the complete run state. Invalid instructions still return 200: the
// validation outcome is part of the result, not a transport error.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	state := s.pipeline.Run(r.Context(), req.Instruction, req.Context)
	writeJSON(w, http.StatusOK, state)
}

// handleRules exposes the active thresholds and blocklist of a policy profile
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "profile")
	profile, version := s.rules.Load(name)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profile":    profile.Name,
		"version":    version,
		"thresholds": profile.Thresholds,
		"blocklist":  profile.Blocklist,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
