package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/forgehq/sidecar/internal/apierr"
	"github.com/forgehq/sidecar/internal/store"
)

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, _ := userFromContext(r.Context())
	prefs, err := s.deps.Preferences.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if prefs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"userId": userID})
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	userID, _ := userFromContext(r.Context())

	var body struct {
		Model     string `json:"model"`
		HitlLevel string `json:"hitlLevel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, &apierr.ValidationError{Message: "invalid request body"})
		return
	}

	prefs := store.Preferences{
		UserID:    userID,
		Model:     body.Model,
		HitlLevel: body.HitlLevel,
		UpdatedAt: time.Now(),
	}
	if err := s.deps.Preferences.Upsert(r.Context(), prefs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// resolvePreferences applies allowUserModelSelect/allowUserHitlConfig
// gating: a client-submitted override only takes effect when its flag is
// set; otherwise the user's stored preference (if any) or the configured
// default wins.
func (s *Server) resolvePreferences(r *http.Request, userID, requestedModel, requestedHitlLevel string) (model, hitlLevel string) {
	cfg := s.config()
	model = cfg.DefaultModel
	hitlLevel = string(cfg.DefaultHitlLevel)

	if prefs, err := s.deps.Preferences.Get(r.Context(), userID); err == nil && prefs != nil {
		if prefs.Model != "" {
			model = prefs.Model
		}
		if prefs.HitlLevel != "" {
			hitlLevel = prefs.HitlLevel
		}
	}

	if cfg.AllowUserModelSelect && requestedModel != "" {
		model = requestedModel
	}
	if cfg.AllowUserHitlConfig && requestedHitlLevel != "" {
		hitlLevel = requestedHitlLevel
	}
	return model, hitlLevel
}
