package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"scenecraft/internal/logging"
	"scenecraft/internal/scene"
	"scenecraft/internal/types"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"objects": s.store.Count(),
	})
}

type commandRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"sessionId"`
}

// handleCommand runs one turn through the engine. Turn failures are still
// HTTP 200: the result body carries the outcome, and only malformed requests
// are HTTP errors.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	logging.API("command from session %q: %q", req.SessionID, req.Prompt)
	result, err := s.engine.ProcessCommand(r.Context(), req.Prompt, req.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scene.Snapshot{Objects: s.store.Snapshot()})
}

type poseRequest struct {
	SessionID string     `json:"sessionId"`
	Pose      types.Pose `json:"pose"`
}

func (s *Server) handlePose(w http.ResponseWriter, r *http.Request) {
	var req poseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	s.engine.UpdatePose(req.SessionID, req.Pose)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": s.ledger.Sessions(),
		"stats":    s.ledger.GlobalStats(),
	})
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if !s.ledger.SessionExists(id) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.Stats(id))
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if !s.ledger.SessionExists(id) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	history := s.ledger.History(id)
	if raw := r.URL.Query().Get("n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		history = s.ledger.Recent(id, n)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": id,
		"history":   history,
	})
}

func (s *Server) handleSessionExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if !s.ledger.SessionExists(id) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.ExportSession(id))
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if !s.ledger.ClearSession(id) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.ExportAll())
}
