package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/weekview/weekview/internal/graph"
	"github.com/weekview/weekview/internal/logging"
)

// consentRequiredBody is the marker clients watch for to trigger a fresh
// consent prompt.
const consentRequiredBody = "ConsentRequired"

// writeServiceError maps a calendar service failure onto an HTTP response.
// Full error detail is logged server-side; the response body carries only
// a short plain-text message.
//
// Consent failures become 403 with a fixed marker body so the caller can
// re-prompt the user. Remote service errors keep their own status code and
// description. Anything else is an internal error.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, endpoint string, err error) int {
	logger.Error("calendar request failed",
		logging.Endpoint(endpoint),
		logging.Err(err))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if graph.IsConsentRequired(err) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(consentRequiredBody))
		return http.StatusForbidden
	}

	var apiErr *graph.APIError
	if errors.As(err, &apiErr) {
		w.WriteHeader(apiErr.StatusCode)
		_, _ = w.Write([]byte(apiErr.Message))
		return apiErr.StatusCode
	}

	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte("An unexpected error occurred"))
	return http.StatusInternalServerError
}
