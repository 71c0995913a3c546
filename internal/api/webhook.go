package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/middleware"
	"github.com/patrickwarner/creativeloop/internal/render"
	"github.com/patrickwarner/creativeloop/internal/token"
)

// CreatomateWebhookHandler handles POST /webhooks/creatomate. Finished renders
// complete their event, which wakes any engine waiting on it. Renders the
// engine never registered are stored too. Other statuses are acknowledged and
// dropped.
func (s *Server) CreatomateWebhookHandler(w http.ResponseWriter, r *http.Request) {
	start := s.Clock.Now()
	const endpoint = "webhook_creatomate"
	const method = "POST"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	if s.Config.WebhookToken != "" {
		token := r.URL.Query().Get("token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.Config.WebhookToken)) != 1 {
			logger.Warn("webhook token mismatch")
			s.Metrics.IncrementWebhookEvents("unauthorized")
			s.observe(endpoint, method, "401", start)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	if s.Events == nil {
		s.observe(endpoint, method, "503", start)
		http.Error(w, "event store unavailable", http.StatusServiceUnavailable)
		return
	}

	var rnd render.Render
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&rnd); err != nil || rnd.ID == "" {
		s.Metrics.IncrementWebhookEvents("invalid")
		s.observe(endpoint, method, "400", start)
		http.Error(w, "invalid render payload", http.StatusBadRequest)
		return
	}

	if s.Config.WebhookSigningSecret != "" {
		if err := s.verifySignature(r, rnd); err != nil {
			logger.Warn("webhook signature rejected", zap.String("render_id", rnd.ID), zap.Error(err))
			s.Metrics.IncrementWebhookEvents("unauthorized")
			s.observe(endpoint, method, "401", start)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	ev, ok := render.EventFromCallback(rnd, s.Clock.Now())
	if !ok {
		logger.Debug("ignoring render status", zap.String("render_id", rnd.ID), zap.String("status", rnd.Status))
		s.Metrics.IncrementWebhookEvents("ignored")
		s.observe(endpoint, method, "202", start)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err := s.Events.CompleteEvent(r.Context(), ev); err != nil {
		logger.Error("complete render event", zap.String("key", ev.Key), zap.Error(err))
		s.Metrics.IncrementWebhookEvents("error")
		s.observe(endpoint, method, "500", start)
		http.Error(w, "failed to store event", http.StatusInternalServerError)
		return
	}

	logger.Info("render event completed",
		zap.String("render_id", rnd.ID),
		zap.String("status", string(ev.Status)),
		zap.String("hook", ev.Payload.HookName))
	s.Metrics.IncrementWebhookEvents(string(ev.Status))
	s.observe(endpoint, method, "204", start)
	w.WriteHeader(http.StatusNoContent)
}

// verifySignature checks the sig parameter against the ad and hook clip the
// render metadata names.
func (s *Server) verifySignature(r *http.Request, rnd render.Render) error {
	meta, err := rnd.ParseMetadata()
	if err != nil {
		return err
	}
	return token.VerifyRender(r.URL.Query().Get(render.SignatureParam), meta.FBAdID, meta.HookName,
		[]byte(s.Config.WebhookSigningSecret), s.Config.WebhookSignatureTTL, s.Clock.Now())
}
