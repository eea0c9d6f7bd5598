package graph

// TimeFormat is the zone-less date-time layout Microsoft Graph uses for
// event start and end values. The zone travels separately as a label.
const TimeFormat = "2006-01-02T15:04:05"

// DateTimeTimeZone pairs a zone-less date-time string with a time-zone label.
type DateTimeTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// EmailAddress identifies a mailbox by name and address.
type EmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// Recipient wraps an email address the way Graph represents organizers.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// Attendee is an event attendee with a participation type.
type Attendee struct {
	Type         string       `json:"type"`
	EmailAddress EmailAddress `json:"emailAddress"`
}

// ItemBody is free-text event content with its content type.
type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Location is the display name of where an event takes place.
type Location struct {
	DisplayName string `json:"displayName"`
}

// Event is the Graph wire representation of a calendar event, restricted to
// the fields this service reads and writes. Optional fields stay unset when
// the input omitted them.
type Event struct {
	Subject   string           `json:"subject"`
	Organizer *Recipient       `json:"organizer,omitempty"`
	Start     DateTimeTimeZone `json:"start"`
	End       DateTimeTimeZone `json:"end"`
	Location  *Location        `json:"location,omitempty"`
	Attendees []Attendee       `json:"attendees,omitempty"`
	Body      *ItemBody        `json:"body,omitempty"`
}

// MailboxSettings holds the caller's mailbox preferences. Only the time-zone
// identifier is used; it may follow the Windows or the IANA convention.
type MailboxSettings struct {
	TimeZone string `json:"timeZone"`
}

// EventInput carries the values for creating an event. Start and End are
// zone-less date-times in TimeFormat; TimeZone labels both. Attendees become
// required-attendee entries and a non-empty Body becomes plain-text content;
// empty values leave the corresponding wire fields unset.
type EventInput struct {
	Subject   string
	Start     string
	End       string
	TimeZone  string
	Attendees []string
	Body      string
}

// toEvent builds the wire record for an EventInput.
func (in EventInput) toEvent() *Event {
	event := &Event{
		Subject: in.Subject,
		Start: DateTimeTimeZone{
			DateTime: in.Start,
			TimeZone: in.TimeZone,
		},
		End: DateTimeTimeZone{
			DateTime: in.End,
			TimeZone: in.TimeZone,
		},
	}

	for _, address := range in.Attendees {
		event.Attendees = append(event.Attendees, Attendee{
			Type:         "required",
			EmailAddress: EmailAddress{Address: address},
		})
	}

	if in.Body != "" {
		event.Body = &ItemBody{
			ContentType: "text",
			Content:     in.Body,
		}
	}

	return event
}
