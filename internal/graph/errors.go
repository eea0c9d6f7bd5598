package graph

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// APIError is a failure reported by Microsoft Graph. It carries the HTTP
// status the service answered with and the code and message from the OData
// error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph: %s (%s, status %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("graph: %s (status %d)", e.Message, e.StatusCode)
}

// consentCodes are the error codes the identity platform and Graph use when
// the caller must (re)consent to the requested permission scope.
var consentCodes = map[string]bool{
	"interactionrequired": true,
	"consentrequired":     true,
	"invalidgrant":        true,
	"aadsts65001":         true,
}

// IsConsentRequired reports whether err is a Graph failure that the caller
// can recover from by re-consenting to the permission scope.
func IsConsentRequired(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return consentCodes[strings.ToLower(apiErr.Code)]
}

// odataError is the wire shape of the Graph error envelope.
type odataError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeError turns a non-success Graph response into an *APIError. The body
// is read in full; responses without a decodable envelope still produce an
// error carrying the status code.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}

	var envelope odataError
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
