package providers

import "time"

// Operation names reported by NotImplementedError.
const (
	OperationAuthorize     = "authorize"
	OperationCallback      = "callback"
	OperationStatus        = "status"
	OperationRevoke        = "revoke"
	OperationListEmails    = "list_emails"
	OperationGetEmail      = "get_email"
	OperationMarkEmailRead = "mark_email_read"
	OperationListEvents    = "list_calendar_events"
	OperationGetEvent      = "get_calendar_event"
	OperationCreateEvent   = "create_calendar_event"
	OperationUpdateEvent   = "update_calendar_event"
	OperationDeleteEvent   = "delete_calendar_event"
)

// Email is a provider-neutral projection of a mailbox message.
type Email struct {
	ID       string     `json:"id"`
	ThreadID string     `json:"threadId"`
	Subject  string     `json:"subject"`
	From     string     `json:"from"`
	To       string     `json:"to"`
	Body     string     `json:"body"`
	Date     *time.Time `json:"date"`
	IsRead   bool       `json:"isRead"`
	Provider string     `json:"provider"`
}

// CalendarEvent is a provider-neutral projection of a calendar entry.
type CalendarEvent struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	Start       *time.Time `json:"start"`
	End         *time.Time `json:"end"`
	AllDay      bool       `json:"allDay"`
	Attendees   []string   `json:"attendees"`
	Provider    string     `json:"provider"`
}

// EventQuery bounds a calendar listing. Zero values select the defaults.
type EventQuery struct {
	TimeMin    time.Time
	TimeMax    time.Time
	MaxResults int
}

// EventInput carries the fields of a calendar event to create or update.
type EventInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"allDay"`
	Attendees   []string  `json:"attendees"`
}
