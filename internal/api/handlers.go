package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkessler/quern/internal/pool"
)

// submitBody is the wire shape of POST /v1/requests.
type submitBody struct {
	SessionID string          `json:"session_id,omitempty"`
	Operation string          `json:"operation"`
	Action    string          `json:"action"`
	Params    json.RawMessage `json:"params,omitempty"`
	Priority  string          `json:"priority,omitempty"`
}

type submitResponse struct {
	RequestID      string `json:"request_id"`
	Value          any    `json:"value"`
	WorkerExecuted bool   `json:"worker_executed"`
	DurationMs     int64  `json:"duration_ms"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Operation == "" || body.Action == "" {
		s.writeError(w, http.StatusBadRequest, "operation and action are required")
		return
	}

	resp, err := s.pool.Submit(r.Context(), &pool.Request{
		SessionID: body.SessionID,
		Operation: body.Operation,
		Action:    body.Action,
		Params:    body.Params,
		Priority:  pool.ParsePriority(body.Priority),
	})
	if err != nil {
		switch {
		case errors.Is(err, pool.ErrQueueFull), errors.Is(err, pool.ErrShuttingDown):
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, pool.ErrRequestTimeout):
			s.writeError(w, http.StatusGatewayTimeout, err.Error())
		default:
			s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		}
		return
	}

	s.writeJSON(w, http.StatusOK, submitResponse{
		RequestID:      resp.RequestID,
		Value:          resp.Value,
		WorkerExecuted: resp.WorkerExecuted,
		DurationMs:     resp.Duration.Milliseconds(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"pool":           s.pool.Stats(),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}
	if s.sessions != nil {
		out["sessions"] = s.sessions.Stats()
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.writeError(w, http.StatusNotFound, "session tracking disabled")
		return
	}
	s.writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.writeError(w, http.StatusNotFound, "session tracking disabled")
		return
	}
	id := chi.URLParam(r, "id")
	if !s.sessions.Remove(id) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"removed": id})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
