package server

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/weekview/weekview/internal/logging"
)

const (
	// jwksCacheTTL bounds how long fetched signing keys are reused.
	jwksCacheTTL = 1 * time.Hour
	// clockSkewLeeway tolerates small clock drift between issuer and server.
	clockSkewLeeway = 60 * time.Second
)

// jwk is a single key in a JWKS document. Only RSA members are used.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

// JWKSVerifier verifies RS256 bearer tokens against the signing keys
// published at a JWKS endpoint. Keys are cached by kid and refreshed
// when the cache expires or an unknown kid is seen.
type JWKSVerifier struct {
	jwksURL  string
	issuer   string
	audience string
	client   *http.Client
	logger   logging.Logger

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// JWKSOption configures a JWKSVerifier.
type JWKSOption func(*JWKSVerifier)

// WithIssuer requires tokens to carry the given iss claim.
func WithIssuer(issuer string) JWKSOption {
	return func(v *JWKSVerifier) { v.issuer = issuer }
}

// WithAudience requires tokens to carry the given aud claim.
func WithAudience(audience string) JWKSOption {
	return func(v *JWKSVerifier) { v.audience = audience }
}

// WithHTTPClient sets the client used to fetch the JWKS document.
func WithHTTPClient(client *http.Client) JWKSOption {
	return func(v *JWKSVerifier) { v.client = client }
}

// NewJWKSVerifier creates a verifier that fetches signing keys from jwksURL.
func NewJWKSVerifier(jwksURL string, logger logging.Logger, opts ...JWKSOption) *JWKSVerifier {
	v := &JWKSVerifier{
		jwksURL: jwksURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		keys:    make(map[string]*rsa.PublicKey),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyToken parses and verifies a bearer token, returning its claims.
func (v *JWKSVerifier) VerifyToken(tokenString string) (*Claims, error) {
	kid, err := v.extractKid(tokenString)
	if err != nil {
		return nil, err
	}

	key, err := v.signingKey(kid)
	if err != nil {
		return nil, err
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithLeeway(clockSkewLeeway),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	return claims, nil
}

// extractKid reads the kid header without verifying the signature. The
// signature is checked by ParseWithClaims once the key is known.
func (v *JWKSVerifier) extractKid(tokenString string) (string, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return "", fmt.Errorf("parsing token header: %w", err)
	}
	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return "", fmt.Errorf("token has no kid header")
	}
	return kid, nil
}

// signingKey returns the cached key for kid, refreshing the JWKS when the
// cache is stale or the kid is unknown.
func (v *JWKSVerifier) signingKey(kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	fresh := time.Since(v.fetchedAt) < jwksCacheTTL
	v.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if err := v.refresh(); err != nil {
		// A stale key is still better than refusing every request
		// when the JWKS endpoint is briefly unreachable.
		if ok {
			v.logger.Warn("JWKS refresh failed, using cached key", "kid", kid, "error", err)
			return key, nil
		}
		return nil, err
	}

	v.mu.RLock()
	key, ok = v.keys[kid]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no signing key for kid %q", kid)
	}
	return key, nil
}

func (v *JWKSVerifier) refresh() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("creating JWKS request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decoding JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := k.rsaPublicKey()
		if err != nil {
			v.logger.Warn("skipping unparsable JWKS key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return fmt.Errorf("JWKS document contains no usable RSA keys")
	}

	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = time.Now()
	v.mu.Unlock()

	v.logger.Debug("refreshed JWKS signing keys", "count", len(keys))
	return nil
}

func (k jwk) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64URLDecode(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64URLDecode(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e == 0 {
		return nil, fmt.Errorf("zero exponent")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

func base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
