package api

import (
	"net/http"

	"github.com/seantiz/crucible/internal/pool"
)

// healthResponse is liveness plus a snapshot of the pool.
type healthResponse struct {
	Status string     `json:"status"`
	Pool   pool.Stats `json:"pool"`
}

// handleHealthz answers as long as the process serves HTTP. A saturated pool
// is still healthy; it is reported so operators can see queued work.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	stats := s.engine.Pool().Stats()
	status := "ok"
	if stats.Queued > 0 {
		status = "saturated"
	}
	s.writeJSON(w, http.StatusOK, healthResponse{Status: status, Pool: stats})
}

// handleReadyz fails once the engine stops accepting tasks, so load balancers
// stop routing to an instance that is draining.
func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !s.engine.Accepting() {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
