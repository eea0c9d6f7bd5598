package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/weekview/weekview/internal/instrumentation"
	"github.com/weekview/weekview/internal/logging"
)

// RequiredScope is the permission scope a bearer credential must carry to
// read or write the caller's calendar.
const RequiredScope = "Calendars.ReadWrite"

// ContextKey is the type for context keys
type ContextKey string

const (
	// ClaimsContextKey is the context key for verified bearer claims
	ClaimsContextKey ContextKey = "claims"
	// TokenContextKey is the context key for the raw bearer token
	TokenContextKey ContextKey = "bearerToken"
	// RequestIDKey is the context key for request tracing ID
	RequestIDKey ContextKey = "requestID"
)

// Claims represents the claims in a bearer credential issued by the
// Microsoft identity platform.
type Claims struct {
	jwt.RegisteredClaims
	Scopes            string `json:"scp,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	ObjectID          string `json:"oid,omitempty"`
}

// HasScope reports whether the credential carries the given permission scope.
// The scp claim is a space-delimited list.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range strings.Fields(c.Scopes) {
		if s == scope {
			return true
		}
	}
	return false
}

// Email returns the caller's email-shaped identity for logging.
func (c *Claims) Email() string {
	return c.PreferredUsername
}

// TokenVerifier verifies a bearer token and returns its claims.
type TokenVerifier interface {
	VerifyToken(tokenString string) (*Claims, error)
}

// AuthError represents an authorization error
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *AuthError) Error() string {
	return e.Message
}

// Authenticator rejects requests whose bearer credential is missing, invalid,
// or lacks the required permission scope. Rejection happens before any
// handler logic runs and before any remote call is made.
type Authenticator struct {
	verifier TokenVerifier
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
}

// NewAuthenticator creates a new Authenticator using the given verifier.
func NewAuthenticator(verifier TokenVerifier, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		verifier: verifier,
		logger:   logger,
	}
}

// SetMetrics sets a metrics recorder for authorization outcomes.
func (a *Authenticator) SetMetrics(metrics *instrumentation.Metrics) {
	a.metrics = metrics
}

// RequireScope is HTTP middleware that validates the bearer credential and
// checks it carries the given permission scope. On success the verified
// claims and the raw token are placed on the request context.
func (a *Authenticator) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, token, err := a.validateRequest(r, scope)
			if err != nil {
				a.writeErrorResponse(w, err)
				return
			}

			a.recordAuthResult(r.Context(), instrumentation.AuthResultAllowed)

			// Generate or propagate request ID for tracing
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = generateRequestID()
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			ctx = context.WithValue(ctx, TokenContextKey, token)
			ctx = context.WithValue(ctx, RequestIDKey, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateRequest validates the bearer credential and scope, returning the
// verified claims and the raw token.
func (a *Authenticator) validateRequest(r *http.Request, scope string) (*Claims, string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		a.recordAuthResult(r.Context(), instrumentation.AuthResultUnauthorized)
		a.logger.Warn("missing bearer credential",
			"remote_addr", r.RemoteAddr)
		return nil, "", &AuthError{
			Code:    "MISSING_CREDENTIAL",
			Message: "Missing bearer credential",
			Status:  http.StatusUnauthorized,
		}
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		a.recordAuthResult(r.Context(), instrumentation.AuthResultUnauthorized)
		a.logger.Warn("malformed authorization header",
			"remote_addr", r.RemoteAddr)
		return nil, "", &AuthError{
			Code:    "INVALID_CREDENTIAL",
			Message: "Malformed authorization header",
			Status:  http.StatusUnauthorized,
		}
	}

	claims, err := a.verifier.VerifyToken(token)
	if err != nil {
		a.recordAuthResult(r.Context(), instrumentation.AuthResultUnauthorized)
		a.logger.Warn("invalid bearer credential",
			"remote_addr", r.RemoteAddr,
			"token", logging.SanitizeToken(token),
			logging.Err(err))
		return nil, "", &AuthError{
			Code:    "INVALID_CREDENTIAL",
			Message: "Invalid bearer credential",
			Status:  http.StatusUnauthorized,
		}
	}

	if !claims.HasScope(scope) {
		a.recordAuthResult(r.Context(), instrumentation.AuthResultForbidden)
		a.logger.Warn("credential lacks required scope",
			"scope", scope,
			logging.UserHash(claims.Email()))
		return nil, "", &AuthError{
			Code:    "INSUFFICIENT_SCOPE",
			Message: fmt.Sprintf("Credential does not carry the %s scope", scope),
			Status:  http.StatusForbidden,
		}
	}

	return claims, token, nil
}

func (a *Authenticator) recordAuthResult(ctx context.Context, result string) {
	if a.metrics != nil {
		a.metrics.RecordAuthResult(ctx, result)
	}
}

// writeErrorResponse writes an authorization error response
func (a *Authenticator) writeErrorResponse(w http.ResponseWriter, err error) {
	authErr, ok := err.(*AuthError)
	if !ok {
		authErr = &AuthError{
			Code:    "AUTHORIZATION_ERROR",
			Message: err.Error(),
			Status:  http.StatusInternalServerError,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(authErr.Status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   authErr.Code,
		"message": authErr.Message,
	})
}

// CallerClaims extracts the verified bearer claims from the request context.
func CallerClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(ClaimsContextKey).(*Claims)
	return claims
}

// BearerToken extracts the raw bearer token from the request context.
func BearerToken(ctx context.Context) string {
	token, _ := ctx.Value(TokenContextKey).(string)
	return token
}

// GetRequestID extracts request ID from context
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// generateRequestID creates a random 16-byte hex request ID
func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", os.Getpid())
	}
	return hex.EncodeToString(b)
}
