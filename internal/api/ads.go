package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/logic"
	"github.com/patrickwarner/creativeloop/internal/middleware"
	"github.com/patrickwarner/creativeloop/internal/models"
)

// ListAds handles GET /api/ads. ?active=true limits the result to active ads.
func (s *Server) ListAds(w http.ResponseWriter, r *http.Request) {
	start := s.Clock.Now()
	const endpoint = "/api/ads"
	const method = "GET"

	if s.Ads == nil {
		s.observe(endpoint, method, "503", start)
		http.Error(w, "data store unavailable", http.StatusServiceUnavailable)
		return
	}
	activeOnly := false
	if v := r.URL.Query().Get("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.observe(endpoint, method, "400", start)
			http.Error(w, "invalid active parameter", http.StatusBadRequest)
			return
		}
		activeOnly = b
	}

	ads, err := s.Ads.List(r.Context(), activeOnly)
	if err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Error("list ads", zap.Error(err))
		s.observe(endpoint, method, "500", start)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if ads == nil {
		ads = []*models.AdPerformance{}
	}
	s.observe(endpoint, method, "200", start)
	writeJSON(w, http.StatusOK, ads)
}

// GetAd handles GET /api/ads/{id}.
func (s *Server) GetAd(w http.ResponseWriter, r *http.Request) {
	start := s.Clock.Now()
	const endpoint = "/api/ads/{id}"
	const method = "GET"

	ad, status := s.loadAd(w, r)
	if ad == nil {
		s.observe(endpoint, method, status, start)
		return
	}
	s.observe(endpoint, method, "200", start)
	writeJSON(w, http.StatusOK, ad)
}

// DeleteAd handles DELETE /api/ads/{id}.
func (s *Server) DeleteAd(w http.ResponseWriter, r *http.Request) {
	start := s.Clock.Now()
	const endpoint = "/api/ads/{id}"
	const method = "DELETE"

	if s.Ads == nil {
		s.observe(endpoint, method, "503", start)
		http.Error(w, "data store unavailable", http.StatusServiceUnavailable)
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.Ads.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.observe(endpoint, method, "404", start)
			http.Error(w, "ad not found", http.StatusNotFound)
			return
		}
		middleware.LoggerFromRequest(r, s.Logger).Error("delete ad", zap.String("ad_id", id), zap.Error(err))
		s.observe(endpoint, method, "500", start)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	middleware.LoggerFromRequest(r, s.Logger).Info("ad record deleted", zap.String("ad_id", id))
	s.observe(endpoint, method, "204", start)
	w.WriteHeader(http.StatusNoContent)
}

// evaluation is the dry-run answer for one ad.
type evaluation struct {
	FBAdID     string           `json:"fbAdId"`
	Phase      models.Phase     `json:"phase"`
	Plan       logic.Plan       `json:"plan"`
	Thresholds logic.Thresholds `json:"thresholds"`
}

// EvaluateAd handles GET /api/ads/{id}/evaluate: it classifies the stored
// record without acting on it.
func (s *Server) EvaluateAd(w http.ResponseWriter, r *http.Request) {
	start := s.Clock.Now()
	const endpoint = "/api/ads/{id}/evaluate"
	const method = "GET"

	ad, status := s.loadAd(w, r)
	if ad == nil {
		s.observe(endpoint, method, status, start)
		return
	}
	s.observe(endpoint, method, "200", start)
	writeJSON(w, http.StatusOK, evaluation{
		FBAdID:     ad.FBAdID,
		Phase:      ad.Lifecycle.Phase(),
		Plan:       logic.Classify(ad, s.Thresholds),
		Thresholds: s.Thresholds,
	})
}

// loadAd fetches the record named in the route. On failure it writes the
// error response and returns the status it wrote.
func (s *Server) loadAd(w http.ResponseWriter, r *http.Request) (*models.AdPerformance, string) {
	if s.Ads == nil {
		http.Error(w, "data store unavailable", http.StatusServiceUnavailable)
		return nil, "503"
	}
	id := mux.Vars(r)["id"]
	ad, err := s.Ads.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "ad not found", http.StatusNotFound)
			return nil, "404"
		}
		middleware.LoggerFromRequest(r, s.Logger).Error("get ad", zap.String("ad_id", id), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, "500"
	}
	return ad, ""
}
