package graph

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// MaxPageSize caps the number of events requested per calendar-view page.
const MaxPageSize = 50

// Client talks to the Microsoft Graph API on behalf of a single caller.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a Graph client authenticated with the caller's bearer
// token. The client is cheap to construct and intended to live for a single
// request.
func NewClient(ctx context.Context, accessToken string) *Client {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	return &Client{
		httpClient: oauth2.NewClient(ctx, source),
		baseURL:    defaultBaseURL,
	}
}

// NewClientWithBaseURL creates a client against a non-default endpoint.
// Used by tests to point the client at a fake Graph server.
func NewClientWithBaseURL(ctx context.Context, accessToken, baseURL string) *Client {
	c := NewClient(ctx, accessToken)
	c.baseURL = baseURL
	return c
}

// GetMailboxSettings fetches the caller's mailbox preferences. The settings
// are read fresh on every call; nothing is cached.
func (c *Client) GetMailboxSettings(ctx context.Context) (*MailboxSettings, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me/mailboxSettings", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get mailbox settings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var settings MailboxSettings
	if err := json.NewDecoder(resp.Body).Decode(&settings); err != nil {
		return nil, fmt.Errorf("failed to decode mailbox settings: %w", err)
	}

	return &settings, nil
}

// ListCalendarView lists the caller's events whose start falls within the
// UTC window [start, end). Results are expressed in the given time zone,
// capped at MaxPageSize entries, projected to subject, organizer, start,
// end, and location, and ordered by start time ascending. Only the first
// page is returned.
func (c *Client) ListCalendarView(ctx context.Context, start, end time.Time, tz string) ([]Event, error) {
	params := url.Values{}
	params.Set("startDateTime", start.UTC().Format(time.RFC3339))
	params.Set("endDateTime", end.UTC().Format(time.RFC3339))
	params.Set("$select", "subject,organizer,start,end,location")
	params.Set("$orderby", "start/dateTime")
	params.Set("$top", fmt.Sprintf("%d", MaxPageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me/calendarView?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Prefer", fmt.Sprintf("outlook.timezone=%q", tz))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar view: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var result struct {
		Value []Event `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode calendar view: %w", err)
	}

	return result.Value, nil
}

// CreateEvent submits a new event to the caller's default calendar.
func (c *Client) CreateEvent(ctx context.Context, input EventInput) error {
	body, err := json.Marshal(input.toEvent())
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/me/events", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	return nil
}
