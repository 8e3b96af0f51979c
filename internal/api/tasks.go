package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/crucible/internal/engine"
	"github.com/seantiz/crucible/internal/model"
	"github.com/seantiz/crucible/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// submitTaskRequest is the JSON body for POST /v1/tasks and /v1/tasks/run.
type submitTaskRequest struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
	// TimeoutMS bounds how long /v1/tasks/run waits. The task itself is not
	// canceled when the wait ends.
	TimeoutMS int `json:"timeout_ms"`
}

// listTasksResponse wraps the paginated list response.
type listTasksResponse struct {
	Tasks  []*model.Task `json:"tasks"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// decodeSubmit reads and validates a submit body, writing the error response
// itself when it returns false.
func (s *Server) decodeSubmit(w http.ResponseWriter, r *http.Request) (submitTaskRequest, bool) {
	var req submitTaskRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if len(req.Payload) == 0 {
		s.writeError(w, http.StatusBadRequest, "payload is required")
		return req, false
	}
	if req.TimeoutMS < 0 {
		s.writeError(w, http.StatusBadRequest, "timeout_ms must not be negative")
		return req, false
	}
	return req, true
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSubmit(w, r)
	if !ok {
		return
	}

	t := &model.Task{ID: req.ID, Payload: req.Payload}
	if err := s.engine.Submit(r.Context(), t); err != nil {
		s.submitFailed(w, modeAsync, err)
		return
	}

	s.countSubmission(modeAsync, outcomeAccepted)
	s.writeJSON(w, http.StatusAccepted, t)
}

func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSubmit(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if req.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	t := &model.Task{ID: req.ID, Payload: req.Payload}
	done, err := s.engine.Run(ctx, t)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		s.countSubmission(modeRun, outcomeTimedOut)
		s.writeJSON(w, http.StatusGatewayTimeout, map[string]string{
			"error": "task did not finish in time",
			"id":    t.ID,
		})
		return
	case errors.Is(err, context.Canceled):
		// Client went away.
		s.countSubmission(modeRun, outcomeCanceled)
		return
	}
	if err != nil {
		s.submitFailed(w, modeRun, err)
		return
	}

	s.countSubmission(modeRun, outcomeFinished)
	s.writeJSON(w, http.StatusOK, done)
}

func (s *Server) submitFailed(w http.ResponseWriter, mode string, err error) {
	if errors.Is(err, engine.ErrInvalidPayload) {
		s.countSubmission(mode, outcomeInvalid)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.countSubmission(mode, outcomeError)
	s.logger.Error("submit task", "mode", mode, "error", err)
	s.writeError(w, http.StatusInternalServerError, "failed to submit task")
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := s.store.GetTask(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		s.logger.Error("get task", "task_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	tasks, total, err := s.store.ListTasks(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list tasks", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	if tasks == nil {
		tasks = []*model.Task{}
	}

	s.writeJSON(w, http.StatusOK, listTasksResponse{
		Tasks:  tasks,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
