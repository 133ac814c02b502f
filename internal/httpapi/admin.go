package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/forgehq/sidecar/internal/apierr"
	"github.com/forgehq/sidecar/internal/config"
)

// handleGetAdminConfig returns the live config, never the admin key or
// signing key values.
func (s *Server) handleGetAdminConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, redactedConfig(s.config()))
}

// handlePutAdminConfig updates the subset of config fields safe to change
// at runtime: defaults and the two user-override gates. Auth, store
// backend, and listener settings require a restart and are rejected here.
func (s *Server) handlePutAdminConfig(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DefaultModel         *string `json:"defaultModel"`
		DefaultHitlLevel     *string `json:"defaultHitlLevel"`
		AllowUserModelSelect *bool   `json:"allowUserModelSelect"`
		AllowUserHitlConfig  *bool   `json:"allowUserHitlConfig"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, &apierr.ValidationError{Message: "invalid request body"})
		return
	}
	if body.DefaultHitlLevel != nil {
		switch *body.DefaultHitlLevel {
		case "autonomous", "cautious", "standard", "paranoid":
		default:
			writeError(w, &apierr.ValidationError{Message: "defaultHitlLevel must be one of autonomous, cautious, standard, paranoid"})
			return
		}
	}

	cfg := s.updateConfig(func(c *config.Config) {
		if body.DefaultModel != nil {
			c.DefaultModel = *body.DefaultModel
		}
		if body.DefaultHitlLevel != nil {
			c.DefaultHitlLevel = config.HitlLevel(*body.DefaultHitlLevel)
		}
		if body.AllowUserModelSelect != nil {
			c.AllowUserModelSelect = *body.AllowUserModelSelect
		}
		if body.AllowUserHitlConfig != nil {
			c.AllowUserHitlConfig = *body.AllowUserHitlConfig
		}
	})
	writeJSON(w, http.StatusOK, redactedConfig(cfg))
}

func redactedConfig(cfg config.Config) config.Config {
	cfg.AdminKey = ""
	cfg.Auth.SigningKey = ""
	return cfg
}
