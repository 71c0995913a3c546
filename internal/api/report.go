package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/middleware"
)

// ReportHandler handles GET /api/report and returns the performance summary.
func (s *Server) ReportHandler(w http.ResponseWriter, r *http.Request) {
	start := s.Clock.Now()
	const endpoint = "/api/report"
	const method = "GET"

	if s.Report == nil {
		s.observe(endpoint, method, "503", start)
		http.Error(w, "reporting unavailable", http.StatusServiceUnavailable)
		return
	}
	summary, err := s.Report(r.Context())
	if err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Error("generate report", zap.Error(err))
		s.observe(endpoint, method, "500", start)
		http.Error(w, "failed to generate report", http.StatusInternalServerError)
		return
	}
	s.observe(endpoint, method, "200", start)
	writeJSON(w, http.StatusOK, summary)
}
