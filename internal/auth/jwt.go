// Package auth implements bearer-token authentication for the chat surface
// (pluggable JWT verify/trust modes) and the admin surface (timing-safe
// static-key comparison).
package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"strings"
)

// Mode selects how a bearer JWT's signature is handled.
type Mode string

const (
	ModeVerify Mode = "verify"
	ModeTrust  Mode = "trust"
)

var (
	ErrMissingToken     = errors.New("auth: missing bearer token")
	ErrMalformedToken   = errors.New("auth: malformed token")
	ErrUnsupportedAlg   = errors.New("auth: unsupported algorithm")
	ErrSignatureInvalid = errors.New("auth: signature invalid")
	ErrClaimMissing     = errors.New("auth: claim not found")
)

// Verifier authenticates bearer JWTs per the configured mode.
type Verifier struct {
	mode       Mode
	signingKey []byte
	rsaKey     *rsa.PublicKey
	claimsPath string
}

// NewVerifier builds a Verifier. signingKey is used as the HMAC secret for
// HS256 tokens and, if it parses as a PEM-encoded public key, as the RSA key
// for RS256 tokens. claimsPath defaults to "sub".
func NewVerifier(mode Mode, signingKey, claimsPath string) *Verifier {
	if claimsPath == "" {
		claimsPath = "sub"
	}
	v := &Verifier{mode: mode, signingKey: []byte(signingKey), claimsPath: claimsPath}
	if block, _ := pem.Decode([]byte(signingKey)); block != nil {
		if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
			if rsaKey, ok := key.(*rsa.PublicKey); ok {
				v.rsaKey = rsaKey
			}
		}
	}
	return v
}

// ExtractBearer pulls the token out of an `Authorization: Bearer <token>`
// header value.
func ExtractBearer(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Verify authenticates token and returns the userId extracted from
// claims[claimsPath]. In trust mode the signature is never checked; in
// verify mode HS256 and RS256 are supported, any other alg fails closed.
func (v *Verifier) Verify(token string) (userID string, err error) {
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return "", ErrMalformedToken
	}
	headerRaw, err := base64urlDecode(segments[0])
	if err != nil {
		return "", ErrMalformedToken
	}
	payloadRaw, err := base64urlDecode(segments[1])
	if err != nil {
		return "", ErrMalformedToken
	}

	if v.mode == ModeVerify {
		var header struct {
			Alg string `json:"alg"`
		}
		if err := json.Unmarshal(headerRaw, &header); err != nil {
			return "", ErrMalformedToken
		}

		signature, err := base64urlDecode(segments[2])
		if err != nil {
			return "", ErrMalformedToken
		}
		signingInput := segments[0] + "." + segments[1]

		switch header.Alg {
		case "HS256":
			mac := hmac.New(sha256.New, v.signingKey)
			mac.Write([]byte(signingInput))
			expected := mac.Sum(nil)
			if !hmac.Equal(expected, signature) {
				return "", ErrSignatureInvalid
			}
		case "RS256":
			if v.rsaKey == nil {
				return "", ErrSignatureInvalid
			}
			digest := sha256.Sum256([]byte(signingInput))
			if err := rsa.VerifyPKCS1v15(v.rsaKey, crypto.SHA256, digest[:], signature); err != nil {
				return "", ErrSignatureInvalid
			}
		default:
			return "", ErrUnsupportedAlg
		}
	}

	var claims map[string]any
	if err := json.Unmarshal(payloadRaw, &claims); err != nil {
		return "", ErrMalformedToken
	}

	value, ok := claimAtPath(claims, v.claimsPath)
	if !ok {
		return "", ErrClaimMissing
	}
	id, ok := value.(string)
	if !ok || id == "" {
		return "", ErrClaimMissing
	}
	return id, nil
}

// claimAtPath walks a dotted path ("a.b.c") through nested claim maps.
func claimAtPath(claims map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = claims
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func base64urlDecode(s string) ([]byte, error) {
	if n := len(s) % 4; n != 0 {
		s += strings.Repeat("=", 4-n)
	}
	return base64.URLEncoding.DecodeString(s)
}

// AdminVerifier performs timing-safe bearer comparison against a single
// configured admin key.
type AdminVerifier struct {
	key []byte
}

// NewAdminVerifier builds an AdminVerifier for the given key.
func NewAdminVerifier(key string) *AdminVerifier {
	return &AdminVerifier{key: []byte(key)}
}

// Verify reports whether token matches the configured admin key. Comparison
// is constant-time and length-gated: a length mismatch never short-circuits
// into a variable-time compare.
func (a *AdminVerifier) Verify(token string) bool {
	if len(a.key) == 0 {
		return false
	}
	if len(token) != len(a.key) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), a.key) == 1
}
