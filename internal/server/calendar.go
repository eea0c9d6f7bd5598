package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/trace"

	"github.com/weekview/weekview/internal/graph"
	"github.com/weekview/weekview/internal/instrumentation"
	"github.com/weekview/weekview/internal/logging"
	"github.com/weekview/weekview/internal/timezone"
)

// Endpoint names used for metrics and audit logging.
const (
	EndpointCalendarList   = "calendar.list"
	EndpointCalendarCreate = "calendar.create"
)

// maxRequestBody caps the size of a create-event request body.
const maxRequestBody = 1 << 20

// CalendarEvent is the API representation of a calendar event returned by
// the list endpoint.
type CalendarEvent struct {
	Subject   string        `json:"subject"`
	Organizer EventContact  `json:"organizer"`
	Start     EventDateTime `json:"start"`
	End       EventDateTime `json:"end"`
	Location  string        `json:"location"`
}

// EventContact identifies a participant by display name and address.
type EventContact struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// EventDateTime pairs a zone-less date-time with its time-zone label.
type EventDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// NewEventRequest is the payload for creating an event. Start and End are
// zone-less date-times interpreted in the caller's mailbox time zone.
// Attendees is an optional semicolon-delimited list of email addresses and
// Body is optional free text.
type NewEventRequest struct {
	Subject   string `json:"subject"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Attendees string `json:"attendees"`
	Body      string `json:"body"`
}

// GraphClientFactory builds a Graph client for a single request using the
// caller's bearer token.
type GraphClientFactory func(ctx context.Context, accessToken string) *graph.Client

// CalendarHandler serves the calendar endpoints. Every request acts on the
// calling user's own calendar via a per-request Graph client.
type CalendarHandler struct {
	clients GraphClientFactory
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	now     func() time.Time
}

// NewCalendarHandler creates a CalendarHandler backed by the given client
// factory.
func NewCalendarHandler(clients GraphClientFactory, logger *slog.Logger) *CalendarHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CalendarHandler{
		clients: clients,
		logger:  logger,
		now:     time.Now,
	}
}

// SetMetrics sets a metrics recorder for calendar and Graph operations.
func (h *CalendarHandler) SetMetrics(metrics *instrumentation.Metrics) {
	h.metrics = metrics
}

// SetAuditLogger sets an audit logger for request outcomes.
func (h *CalendarHandler) SetAuditLogger(audit *instrumentation.AuditLogger) {
	h.audit = audit
}

// HandleList serves GET /Calendar: the caller's events for the current week,
// Sunday through Saturday in the caller's mailbox time zone.
func (h *CalendarHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := instrumentation.StartEndpointSpan(r.Context(), EndpointCalendarList)
	defer span.End()

	claims := CallerClaims(ctx)
	inv := instrumentation.NewInvocation(EndpointCalendarList).
		WithUser(claims.Email()).
		WithSpanContext(ctx)

	client := h.clients(ctx, BearerToken(ctx))

	settings, err := h.getMailboxSettings(ctx, client)
	if err != nil {
		h.failRequest(ctx, w, span, inv, EndpointCalendarList, err)
		return
	}

	loc, err := timezone.Resolve(settings.TimeZone)
	if err != nil {
		h.failRequest(ctx, w, span, inv, EndpointCalendarList, err)
		return
	}
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().
		WithTimeZone(settings.TimeZone).Build()...)

	start, end := timezone.WeekWindow(h.now(), loc)

	events, err := h.listCalendarView(ctx, client, start, end, settings.TimeZone)
	if err != nil {
		h.failRequest(ctx, w, span, inv, EndpointCalendarList, err)
		return
	}

	response := make([]CalendarEvent, 0, len(events))
	for _, event := range events {
		response = append(response, projectEvent(event))
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode calendar response",
			logging.Endpoint(EndpointCalendarList),
			logging.Err(err))
	}

	h.logger.Info("listed calendar week",
		logging.Endpoint(EndpointCalendarList),
		logging.UserHash(claims.Email()),
		"time_zone", settings.TimeZone,
		"events", len(events))
	h.completeRequest(ctx, span, inv, EndpointCalendarList, claims.Email())
}

// HandleCreate serves POST /Calendar: creates an event on the caller's
// calendar and answers with the literal body "success".
func (h *CalendarHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := instrumentation.StartEndpointSpan(r.Context(), EndpointCalendarCreate)
	defer span.End()

	claims := CallerClaims(ctx)
	inv := instrumentation.NewInvocation(EndpointCalendarCreate).
		WithUser(claims.Email()).
		WithSpanContext(ctx)

	var req NewEventRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.logger.Warn("rejecting unparsable event payload",
			logging.Endpoint(EndpointCalendarCreate),
			logging.Err(err))
		instrumentation.SetSpanError(span, err)
		h.recordOutcome(ctx, inv.CompleteWithError(err), EndpointCalendarCreate, claims.Email(), instrumentation.StatusError)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Invalid request body"))
		return
	}

	client := h.clients(ctx, BearerToken(ctx))

	settings, err := h.getMailboxSettings(ctx, client)
	if err != nil {
		h.failRequest(ctx, w, span, inv, EndpointCalendarCreate, err)
		return
	}

	input := graph.EventInput{
		Subject:   req.Subject,
		Start:     req.Start,
		End:       req.End,
		TimeZone:  settings.TimeZone,
		Attendees: splitAttendees(req.Attendees),
		Body:      req.Body,
	}

	if err := h.createEvent(ctx, client, input); err != nil {
		h.failRequest(ctx, w, span, inv, EndpointCalendarCreate, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("success"))

	h.logger.Info("created calendar event",
		logging.Endpoint(EndpointCalendarCreate),
		logging.UserHash(claims.Email()),
		"attendees", len(input.Attendees))
	h.completeRequest(ctx, span, inv, EndpointCalendarCreate, claims.Email())
}

func (h *CalendarHandler) getMailboxSettings(ctx context.Context, client *graph.Client) (*graph.MailboxSettings, error) {
	opCtx, span := instrumentation.StartGraphSpan(ctx, instrumentation.OperationGetMailboxSettings)
	defer span.End()

	start := time.Now()
	settings, err := client.GetMailboxSettings(opCtx)
	h.recordGraphOperation(ctx, instrumentation.OperationGetMailboxSettings, start, err)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return settings, nil
}

func (h *CalendarHandler) listCalendarView(ctx context.Context, client *graph.Client, start, end time.Time, tz string) ([]graph.Event, error) {
	opCtx, span := instrumentation.StartGraphSpan(ctx, instrumentation.OperationListCalendarView)
	defer span.End()

	began := time.Now()
	events, err := client.ListCalendarView(opCtx, start, end, tz)
	h.recordGraphOperation(ctx, instrumentation.OperationListCalendarView, began, err)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return events, nil
}

func (h *CalendarHandler) createEvent(ctx context.Context, client *graph.Client, input graph.EventInput) error {
	opCtx, span := instrumentation.StartGraphSpan(ctx, instrumentation.OperationCreateEvent)
	defer span.End()

	began := time.Now()
	err := client.CreateEvent(opCtx, input)
	h.recordGraphOperation(ctx, instrumentation.OperationCreateEvent, began, err)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return err
	}
	instrumentation.SetSpanSuccess(span)
	return nil
}

func (h *CalendarHandler) recordGraphOperation(ctx context.Context, operation string, began time.Time, err error) {
	if h.metrics == nil {
		return
	}
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	h.metrics.RecordGraphOperation(ctx, operation, status, time.Since(began))
}

// failRequest writes the mapped error response and records the failure.
func (h *CalendarHandler) failRequest(ctx context.Context, w http.ResponseWriter, span trace.Span, inv *instrumentation.Invocation, endpoint string, err error) {
	instrumentation.SetSpanError(span, err)
	_ = writeServiceError(w, h.logger, endpoint, err)
	h.recordOutcome(ctx, inv.CompleteWithError(err), endpoint, inv.UserEmail, instrumentation.StatusError)
}

func (h *CalendarHandler) completeRequest(ctx context.Context, span trace.Span, inv *instrumentation.Invocation, endpoint, email string) {
	instrumentation.SetSpanSuccess(span)
	h.recordOutcome(ctx, inv.CompleteSuccess(), endpoint, email, instrumentation.StatusSuccess)
}

func (h *CalendarHandler) recordOutcome(ctx context.Context, inv *instrumentation.Invocation, endpoint, email, status string) {
	if h.metrics != nil {
		h.metrics.RecordCalendarRequestWithDomain(ctx, endpoint, status, email, inv.Duration)
	}
	if h.audit != nil {
		h.audit.LogInvocation(inv)
	}
}

// projectEvent maps a Graph event onto the API shape. Missing organizer or
// location data becomes empty values rather than nulls.
func projectEvent(event graph.Event) CalendarEvent {
	out := CalendarEvent{
		Subject: event.Subject,
		Start: EventDateTime{
			DateTime: event.Start.DateTime,
			TimeZone: event.Start.TimeZone,
		},
		End: EventDateTime{
			DateTime: event.End.DateTime,
			TimeZone: event.End.TimeZone,
		},
	}
	if event.Organizer != nil {
		out.Organizer = EventContact{
			Name:    event.Organizer.EmailAddress.Name,
			Address: event.Organizer.EmailAddress.Address,
		}
	}
	if event.Location != nil {
		out.Location = event.Location.DisplayName
	}
	return out
}

// splitAttendees splits a semicolon-delimited attendee list, dropping empty
// entries and surrounding whitespace.
func splitAttendees(list string) []string {
	if list == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(list, ";") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
