package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/forgehq/sidecar/internal/apierr"
	"github.com/forgehq/sidecar/internal/auth"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxUserJWT
)

func userFromContext(ctx context.Context) (userID, token string) {
	userID, _ = ctx.Value(ctxUserID).(string)
	token, _ = ctx.Value(ctxUserJWT).(string)
	return
}

// requireJWT authenticates the Authorization header per the configured
// verify/trust mode and stashes the extracted userId and raw token in the
// request context.
func (s *Server) requireJWT(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearer(r.Header.Get("Authorization"))
		if err == nil {
			var userID string
			userID, err = s.deps.JWTVerifier.Verify(token)
			if err == nil {
				ctx := context.WithValue(r.Context(), ctxUserID, userID)
				ctx = context.WithValue(ctx, ctxUserJWT, token)
				next(w, r.WithContext(ctx))
				return
			}
		}
		writeError(w, &apierr.AuthError{Reason: "invalid bearer token"})
	}
}

// requireAdmin gates a handler with the timing-safe admin bearer check.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearer(r.Header.Get("Authorization"))
		if err != nil || !s.deps.AdminVerifier.Verify(token) {
			writeError(w, &apierr.AuthError{Reason: "invalid admin key"})
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err per its apierr kind. Callers never see the reason
// behind an AuthError.
func writeError(w http.ResponseWriter, err error) {
	var coder apierr.StatusCoder
	status := http.StatusInternalServerError
	if errors.As(err, &coder) {
		status = coder.StatusCode()
	}

	message := "internal error"
	switch status {
	case http.StatusUnauthorized:
		message = "Unauthorized"
	case http.StatusBadRequest, http.StatusNotFound:
		message = err.Error()
	}
	writeJSON(w, status, map[string]string{"error": message})
}
