package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/weekview/weekview/internal/graph"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testNow is a Wednesday. The preceding Sunday in Pacific time is April 12,
// whose local midnight is 07:00 UTC during daylight saving.
var testNow = time.Date(2026, time.April, 15, 12, 0, 0, 0, time.UTC)

// fakeGraph is a minimal stand-in for the Graph API used by handler tests.
type fakeGraph struct {
	t *testing.T

	timeZone           string
	settingsStatus     int
	settingsBody       string
	listStatus         int
	listBody           string
	createStatus       int
	requests           atomic.Int64
	lastCalendarViewQ  string
	lastPreferHeader   string
	lastCreatedEvent   map[string]interface{}
	lastAuthorization  string
	mailboxSettingsHit atomic.Int64
}

func newFakeGraph(t *testing.T) *fakeGraph {
	return &fakeGraph{
		t:        t,
		timeZone: "Pacific Standard Time",
	}
}

func (f *fakeGraph) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /me/mailboxSettings", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		f.mailboxSettingsHit.Add(1)
		f.lastAuthorization = r.Header.Get("Authorization")
		if f.settingsStatus != 0 {
			w.WriteHeader(f.settingsStatus)
			_, _ = w.Write([]byte(f.settingsBody))
			return
		}
		_, _ = w.Write([]byte(`{"timeZone":"` + f.timeZone + `"}`))
	})

	mux.HandleFunc("GET /me/calendarView", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		f.lastCalendarViewQ = r.URL.RawQuery
		f.lastPreferHeader = r.Header.Get("Prefer")
		if f.listStatus != 0 {
			w.WriteHeader(f.listStatus)
			_, _ = w.Write([]byte(f.listBody))
			return
		}
		_, _ = w.Write([]byte(`{"value":[
			{"subject":"Standup",
			 "organizer":{"emailAddress":{"name":"Jane Doe","address":"jane@example.com"}},
			 "start":{"dateTime":"2026-04-13T09:00:00.0000000","timeZone":"Pacific Standard Time"},
			 "end":{"dateTime":"2026-04-13T09:30:00.0000000","timeZone":"Pacific Standard Time"},
			 "location":{"displayName":"Room 4"}},
			{"subject":"No frills",
			 "start":{"dateTime":"2026-04-14T10:00:00.0000000","timeZone":"Pacific Standard Time"},
			 "end":{"dateTime":"2026-04-14T11:00:00.0000000","timeZone":"Pacific Standard Time"}}
		]}`))
	})

	mux.HandleFunc("POST /me/events", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		var event map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			f.t.Errorf("fake graph: unparsable event body: %v", err)
		}
		f.lastCreatedEvent = event
		if f.createStatus != 0 {
			w.WriteHeader(f.createStatus)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	return mux
}

// newTestAPI wires a full API server against the fake Graph backend.
func newTestAPI(t *testing.T, graphURL string, verifier TokenVerifier) http.Handler {
	t.Helper()

	clients := func(ctx context.Context, token string) *graph.Client {
		return graph.NewClientWithBaseURL(ctx, token, graphURL)
	}
	calendar := NewCalendarHandler(clients, testLogger(t))
	calendar.now = func() time.Time { return testNow }

	api, err := NewAPIServer(APIServerConfig{
		Addr:          ":0",
		Authenticator: NewAuthenticator(verifier, testLogger(t)),
		Calendar:      calendar,
		Logger:        testLogger(t),
	})
	if err != nil {
		t.Fatalf("NewAPIServer() error = %v", err)
	}
	return api.Handler()
}

func authorizedGet(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer caller-token")
	return req
}

func TestCalendarList(t *testing.T) {
	fake := newFakeGraph(t)
	backend := httptest.NewServer(fake.handler())
	defer backend.Close()

	handler := newTestAPI(t, backend.URL, &fakeVerifier{claims: readWriteClaims()})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authorizedGet("/Calendar"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %q", rec.Code, http.StatusOK, rec.Body.String())
	}

	var events []CalendarEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("response is not a JSON event array: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Subject != "Standup" {
		t.Errorf("subject = %q, want %q", events[0].Subject, "Standup")
	}
	if events[0].Organizer.Address != "jane@example.com" {
		t.Errorf("organizer address = %q, want %q", events[0].Organizer.Address, "jane@example.com")
	}
	if events[0].Location != "Room 4" {
		t.Errorf("location = %q, want %q", events[0].Location, "Room 4")
	}
	// Missing organizer and location come back as empty values, not nulls.
	if events[1].Organizer.Address != "" || events[1].Location != "" {
		t.Errorf("optional fields not empty: %+v", events[1])
	}

	// The window is anchored on the preceding Sunday in the mailbox zone.
	if !strings.Contains(fake.lastCalendarViewQ, "startDateTime=2026-04-12T07%3A00%3A00Z") {
		t.Errorf("window start missing from query: %q", fake.lastCalendarViewQ)
	}
	if !strings.Contains(fake.lastCalendarViewQ, "endDateTime=2026-04-19T07%3A00%3A00Z") {
		t.Errorf("window end missing from query: %q", fake.lastCalendarViewQ)
	}
	if want := `outlook.timezone="Pacific Standard Time"`; fake.lastPreferHeader != want {
		t.Errorf("Prefer header = %q, want %q", fake.lastPreferHeader, want)
	}
	if fake.lastAuthorization != "Bearer caller-token" {
		t.Errorf("backend authorization = %q, want caller token", fake.lastAuthorization)
	}
}

func TestCalendarList_ConsentRequired(t *testing.T) {
	fake := newFakeGraph(t)
	fake.settingsStatus = http.StatusUnauthorized
	fake.settingsBody = `{"error":{"code":"InteractionRequired","message":"consent needed"}}`
	backend := httptest.NewServer(fake.handler())
	defer backend.Close()

	handler := newTestAPI(t, backend.URL, &fakeVerifier{claims: readWriteClaims()})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authorizedGet("/Calendar"))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if rec.Body.String() != "ConsentRequired" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ConsentRequired")
	}
}

func TestCalendarList_RemoteError(t *testing.T) {
	fake := newFakeGraph(t)
	fake.listStatus = http.StatusServiceUnavailable
	fake.listBody = `{"error":{"code":"ServiceUnavailable","message":"mailbox store busy"}}`
	backend := httptest.NewServer(fake.handler())
	defer backend.Close()

	handler := newTestAPI(t, backend.URL, &fakeVerifier{claims: readWriteClaims()})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authorizedGet("/Calendar"))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if rec.Body.String() != "mailbox store busy" {
		t.Errorf("body = %q, want remote description", rec.Body.String())
	}
}

func TestCalendarList_UnknownTimeZone(t *testing.T) {
	fake := newFakeGraph(t)
	fake.timeZone = "Not A Zone"
	backend := httptest.NewServer(fake.handler())
	defer backend.Close()

	handler := newTestAPI(t, backend.URL, &fakeVerifier{claims: readWriteClaims()})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authorizedGet("/Calendar"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if rec.Body.String() != "An unexpected error occurred" {
		t.Errorf("body = %q, want generic message", rec.Body.String())
	}
}

func TestCalendarCreate(t *testing.T) {
	fake := newFakeGraph(t)
	backend := httptest.NewServer(fake.handler())
	defer backend.Close()

	handler := newTestAPI(t, backend.URL, &fakeVerifier{claims: readWriteClaims()})

	payload := `{
		"subject": "Planning",
		"start": "2026-04-16T13:00:00",
		"end": "2026-04-16T14:00:00",
		"attendees": "alice@example.com; bob@example.com;",
		"body": "Quarterly planning session"
	}`
	req := httptest.NewRequest(http.MethodPost, "/Calendar", strings.NewReader(payload))
	req.Header.Set("Authorization", "Bearer caller-token")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %q", rec.Code, http.StatusOK, rec.Body.String())
	}
	if rec.Body.String() != "success" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "success")
	}

	event := fake.lastCreatedEvent
	if event == nil {
		t.Fatal("backend received no event")
	}
	if event["subject"] != "Planning" {
		t.Errorf("subject = %v, want Planning", event["subject"])
	}
	start, _ := event["start"].(map[string]interface{})
	if start["timeZone"] != "Pacific Standard Time" {
		t.Errorf("start timeZone = %v, want mailbox zone", start["timeZone"])
	}
	attendees, _ := event["attendees"].([]interface{})
	if len(attendees) != 2 {
		t.Fatalf("got %d attendees, want 2", len(attendees))
	}
	first, _ := attendees[0].(map[string]interface{})
	if first["type"] != "required" {
		t.Errorf("attendee type = %v, want required", first["type"])
	}
	addr, _ := first["emailAddress"].(map[string]interface{})
	if addr["address"] != "alice@example.com" {
		t.Errorf("attendee address = %v, want alice@example.com", addr["address"])
	}
	body, _ := event["body"].(map[string]interface{})
	if body["content"] != "Quarterly planning session" {
		t.Errorf("body content = %v", body["content"])
	}
}

func TestCalendarCreate_OmitsOptionalFields(t *testing.T) {
	fake := newFakeGraph(t)
	backend := httptest.NewServer(fake.handler())
	defer backend.Close()

	handler := newTestAPI(t, backend.URL, &fakeVerifier{claims: readWriteClaims()})

	payload := `{"subject":"Focus time","start":"2026-04-17T09:00:00","end":"2026-04-17T11:00:00"}`
	req := httptest.NewRequest(http.MethodPost, "/Calendar", strings.NewReader(payload))
	req.Header.Set("Authorization", "Bearer caller-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if _, ok := fake.lastCreatedEvent["attendees"]; ok {
		t.Error("attendees field present for empty attendee list")
	}
	if _, ok := fake.lastCreatedEvent["body"]; ok {
		t.Error("body field present for empty body")
	}
}

func TestCalendarCreate_InvalidBody(t *testing.T) {
	fake := newFakeGraph(t)
	backend := httptest.NewServer(fake.handler())
	defer backend.Close()

	handler := newTestAPI(t, backend.URL, &fakeVerifier{claims: readWriteClaims()})

	req := httptest.NewRequest(http.MethodPost, "/Calendar", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer caller-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if fake.requests.Load() != 0 {
		t.Errorf("backend was called %d times for a bad payload", fake.requests.Load())
	}
}

func TestCalendar_RejectedBeforeRemoteCall(t *testing.T) {
	fake := newFakeGraph(t)
	backend := httptest.NewServer(fake.handler())
	defer backend.Close()

	// Credential lacks the required scope.
	handler := newTestAPI(t, backend.URL, &fakeVerifier{claims: &Claims{
		Scopes:            "Calendars.Read",
		PreferredUsername: "jane@example.com",
	}})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authorizedGet("/Calendar"))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if fake.requests.Load() != 0 {
		t.Errorf("backend was called %d times for a forbidden request", fake.requests.Load())
	}
}

func TestSplitAttendees(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single", "a@example.com", []string{"a@example.com"}},
		{"delimited with spaces", "a@example.com; b@example.com", []string{"a@example.com", "b@example.com"}},
		{"trailing delimiter", "a@example.com;", []string{"a@example.com"}},
		{"only delimiters", ";;;", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitAttendees(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("splitAttendees(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("splitAttendees(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}
