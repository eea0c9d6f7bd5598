// Package server provides the HTTP API for the weekview application.
//
// # Key Components
//
// Authenticator validates the caller's bearer credential before any handler
// logic runs. A request must carry a verifiable token with the
// Calendars.ReadWrite scope; anything less is rejected with 401 or 403
// without touching the remote service. JWKSVerifier backs the validation by
// checking RS256 signatures against the identity platform's published keys.
//
// CalendarHandler serves the two calendar endpoints:
//   - GET /Calendar lists the caller's events for the current week, Sunday
//     through Saturday in the caller's mailbox time zone.
//   - POST /Calendar creates an event on the caller's calendar and answers
//     with the literal body "success".
//
// Service failures map onto three response shapes: consent failures become
// 403 with a fixed marker body, remote service errors keep their own status
// and description, and everything else is a 500. Full detail goes to the
// server log; response bodies stay short and plain-text.
//
// APIServer wires the endpoints behind the authenticator and per-request
// HTTP metrics. MetricsServer exposes Prometheus metrics on a dedicated
// port, isolated from application traffic. HealthChecker serves liveness
// and readiness probes for Kubernetes.
package server
