package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/forgehq/sidecar/internal/config"
)

func TestAdminConfigRedactsSecrets(t *testing.T) {
	deps := testDeps()
	deps.Config.AdminKey = "super-secret"
	deps.Config.Auth.SigningKey = "also-secret"
	s := NewServer(deps)

	req := httptest.NewRequest(http.MethodGet, "/forge-admin/config", nil)
	req.Header.Set("Authorization", "Bearer admin-secret")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "super-secret") || strings.Contains(rec.Body.String(), "also-secret") {
		t.Errorf("response leaked a secret: %s", rec.Body.String())
	}
}

func TestAdminConfigUpdatesDefaultsAndGates(t *testing.T) {
	s := NewServer(testDeps())

	body := `{"defaultModel":"claude-opus-4-6","defaultHitlLevel":"paranoid","allowUserModelSelect":true}`
	req := httptest.NewRequest(http.MethodPut, "/forge-admin/config", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer admin-secret")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	var got config.Config
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.DefaultModel != "claude-opus-4-6" {
		t.Errorf("DefaultModel = %q, want claude-opus-4-6", got.DefaultModel)
	}
	if got.DefaultHitlLevel != config.HitlParanoid {
		t.Errorf("DefaultHitlLevel = %q, want paranoid", got.DefaultHitlLevel)
	}
	if !got.AllowUserModelSelect {
		t.Error("AllowUserModelSelect = false, want true")
	}

	getRec := httptest.NewRecorder()
	getReq := httptest.NewRequest(http.MethodGet, "/forge-admin/config", nil)
	getReq.Header.Set("Authorization", "Bearer admin-secret")
	s.ServeHTTP(getRec, getReq)

	var persisted config.Config
	if err := json.Unmarshal(getRec.Body.Bytes(), &persisted); err != nil {
		t.Fatalf("decode get response: %v", err)
	}
	if persisted.DefaultModel != "claude-opus-4-6" {
		t.Errorf("persisted DefaultModel = %q, want the update to stick", persisted.DefaultModel)
	}
}

func TestAdminConfigRejectsInvalidHitlLevel(t *testing.T) {
	s := NewServer(testDeps())

	req := httptest.NewRequest(http.MethodPut, "/forge-admin/config", strings.NewReader(`{"defaultHitlLevel":"reckless"}`))
	req.Header.Set("Authorization", "Bearer admin-secret")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
