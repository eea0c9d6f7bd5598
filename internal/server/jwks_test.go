package server

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/weekview/weekview/internal/logging"
)

func newTestKeyServer(t *testing.T, kid string) (*rsa.PrivateKey, *httptest.Server) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating test key: %v", err)
	}

	n := base64.RawURLEncoding.EncodeToString(key.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes())
	doc := fmt.Sprintf(`{"keys":[{"kty":"RSA","use":"sig","kid":%q,"n":%q,"e":%q}]}`, kid, n, e)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(doc))
	}))
	t.Cleanup(server.Close)

	return key, server
}

func signTestToken(t *testing.T, key *rsa.PrivateKey, kid string, claims *Claims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return signed
}

func TestJWKSVerifier_ValidToken(t *testing.T) {
	key, server := newTestKeyServer(t, "key-1")
	verifier := NewJWKSVerifier(server.URL, logging.NewSlogAdapter(testLogger(t)))

	signed := signTestToken(t, key, "key-1", &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes:            "Calendars.ReadWrite",
		PreferredUsername: "jane@example.com",
	})

	claims, err := verifier.VerifyToken(signed)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if claims.PreferredUsername != "jane@example.com" {
		t.Errorf("preferred_username = %q", claims.PreferredUsername)
	}
	if !claims.HasScope("Calendars.ReadWrite") {
		t.Error("scope missing from verified claims")
	}
}

func TestJWKSVerifier_ExpiredToken(t *testing.T) {
	key, server := newTestKeyServer(t, "key-1")
	verifier := NewJWKSVerifier(server.URL, logging.NewSlogAdapter(testLogger(t)))

	signed := signTestToken(t, key, "key-1", &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	if _, err := verifier.VerifyToken(signed); err == nil {
		t.Error("VerifyToken() accepted an expired token")
	}
}

func TestJWKSVerifier_WrongKey(t *testing.T) {
	_, server := newTestKeyServer(t, "key-1")
	verifier := NewJWKSVerifier(server.URL, logging.NewSlogAdapter(testLogger(t)))

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	signed := signTestToken(t, otherKey, "key-1", &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, err := verifier.VerifyToken(signed); err == nil {
		t.Error("VerifyToken() accepted a token signed with the wrong key")
	}
}

func TestJWKSVerifier_UnknownKid(t *testing.T) {
	key, server := newTestKeyServer(t, "key-1")
	verifier := NewJWKSVerifier(server.URL, logging.NewSlogAdapter(testLogger(t)))

	signed := signTestToken(t, key, "key-2", &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, err := verifier.VerifyToken(signed); err == nil {
		t.Error("VerifyToken() accepted a token with an unknown kid")
	}
}

func TestJWKSVerifier_IssuerMismatch(t *testing.T) {
	key, server := newTestKeyServer(t, "key-1")
	verifier := NewJWKSVerifier(server.URL, logging.NewSlogAdapter(testLogger(t)),
		WithIssuer("https://login.example.com/tenant/v2.0"))

	signed := signTestToken(t, key, "key-1", &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://evil.example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, err := verifier.VerifyToken(signed); err == nil {
		t.Error("VerifyToken() accepted a token from the wrong issuer")
	}
}

func TestJWKSVerifier_NotAToken(t *testing.T) {
	_, server := newTestKeyServer(t, "key-1")
	verifier := NewJWKSVerifier(server.URL, logging.NewSlogAdapter(testLogger(t)))

	if _, err := verifier.VerifyToken("not-a-jwt"); err == nil {
		t.Error("VerifyToken() accepted a malformed token")
	}
}
