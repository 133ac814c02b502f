package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequireJWTRejectsMissingHeader(t *testing.T) {
	s := NewServer(testDeps())

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/agent-api/user/preferences", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, `"Unauthorized"`) {
		t.Errorf("body = %q, want generic Unauthorized message", body)
	}
}

func TestRequireJWTAcceptsTrustModeToken(t *testing.T) {
	s := NewServer(testDeps())

	req := httptest.NewRequest(http.MethodGet, "/agent-api/user/preferences", nil)
	req.Header.Set("Authorization", "Bearer "+trustToken("user-1"))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestRequireAdminRejectsWrongKey(t *testing.T) {
	s := NewServer(testDeps())

	req := httptest.NewRequest(http.MethodGet, "/forge-admin/config", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAdminAcceptsConfiguredKey(t *testing.T) {
	s := NewServer(testDeps())

	req := httptest.NewRequest(http.MethodGet, "/forge-admin/config", nil)
	req.Header.Set("Authorization", "Bearer admin-secret")

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}
