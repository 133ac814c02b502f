package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestVerifyHS256Success(t *testing.T) {
	token := signHS256(t, "s3cret", jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()})
	v := NewVerifier(ModeVerify, "s3cret", "")

	userID, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1, got %q", userID)
	}
}

func TestVerifyHS256WrongKeyFails(t *testing.T) {
	token := signHS256(t, "s3cret", jwt.MapClaims{"sub": "user-1"})
	v := NewVerifier(ModeVerify, "wrong-key", "")

	if _, err := v.Verify(token); err != ErrSignatureInvalid {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestVerifyUnsupportedAlgFails(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	v := NewVerifier(ModeVerify, "s3cret", "")
	if _, err := v.Verify(signed); err != ErrUnsupportedAlg {
		t.Fatalf("expected ErrUnsupportedAlg, got %v", err)
	}
}

func TestVerifyTrustModeSkipsSignature(t *testing.T) {
	token := signHS256(t, "whatever-signed-this", jwt.MapClaims{"sub": "user-1"})
	v := NewVerifier(ModeTrust, "", "")

	userID, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1, got %q", userID)
	}
}

func TestVerifyMalformedTokenFails(t *testing.T) {
	v := NewVerifier(ModeTrust, "", "")
	if _, err := v.Verify("not-a-jwt"); err != ErrMalformedToken {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}

func TestVerifyDottedClaimsPath(t *testing.T) {
	claims := jwt.MapClaims{"profile": map[string]any{"userId": "nested-user"}}
	token := signHS256(t, "s3cret", claims)
	v := NewVerifier(ModeVerify, "s3cret", "profile.userId")

	userID, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != "nested-user" {
		t.Fatalf("expected nested-user, got %q", userID)
	}
}

func TestExtractBearer(t *testing.T) {
	token, err := ExtractBearer("Bearer abc.def.ghi")
	if err != nil || token != "abc.def.ghi" {
		t.Fatalf("ExtractBearer: got (%q, %v)", token, err)
	}
	if _, err := ExtractBearer("Basic abc"); err != ErrMissingToken {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestAdminVerifierConstantTime(t *testing.T) {
	v := NewAdminVerifier("admin-key-123")
	if !v.Verify("admin-key-123") {
		t.Fatal("expected matching key to verify")
	}
	if v.Verify("wrong") {
		t.Fatal("expected mismatched key to fail")
	}
	if v.Verify("") {
		t.Fatal("expected empty token to fail")
	}
}

func TestAdminVerifierEmptyKeyAlwaysFails(t *testing.T) {
	v := NewAdminVerifier("")
	if v.Verify("") {
		t.Fatal("expected empty configured key to never verify")
	}
}
