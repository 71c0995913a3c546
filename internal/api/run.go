package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/db"
	"github.com/patrickwarner/creativeloop/internal/middleware"
)

// RunHandler handles POST /run by performing one engine pass and returning
// its summary. A pass already in progress yields 409.
func (s *Server) RunHandler(w http.ResponseWriter, r *http.Request) {
	start := s.Clock.Now()
	const endpoint = "run"
	const method = "POST"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	if s.Engine == nil {
		s.observe(endpoint, method, "503", start)
		http.Error(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}

	summary, err := s.Engine.Run(middleware.ContextWithLogger(r.Context(), logger))
	if err != nil {
		if errors.Is(err, db.ErrLockHeld) {
			logger.Warn("engine run rejected, another run holds the lock")
			s.observe(endpoint, method, "409", start)
			http.Error(w, "engine run already in progress", http.StatusConflict)
			return
		}
		logger.Error("engine run failed", zap.Error(err))
		s.observe(endpoint, method, "500", start)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.observe(endpoint, method, "200", start)
	writeJSON(w, http.StatusOK, summary)
}

// AggregateHandler handles POST /aggregate by rebuilding the window tables.
func (s *Server) AggregateHandler(w http.ResponseWriter, r *http.Request) {
	start := s.Clock.Now()
	const endpoint = "aggregate"
	const method = "POST"

	if s.Aggregator == nil {
		s.observe(endpoint, method, "503", start)
		http.Error(w, "warehouse unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := s.Aggregator.Refresh(r.Context()); err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Error("aggregation failed", zap.Error(err))
		s.observe(endpoint, method, "500", start)
		http.Error(w, "aggregation failed", http.StatusInternalServerError)
		return
	}

	s.observe(endpoint, method, "204", start)
	w.WriteHeader(http.StatusNoContent)
}
