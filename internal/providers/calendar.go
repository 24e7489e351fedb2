package providers

import (
	"context"
	"slices"
	"time"

	"google.golang.org/api/calendar/v3"
)

const (
	primaryCalendar   = "primary"
	orderByStartTime  = "startTime"
	eventStatusCancel = "cancelled"
	allDayLayout      = "2006-01-02"
)

// CalendarEvents lists single (expanded) events of the primary calendar inside the query window,
// ordered by start time. Zero query fields default to [now, now+30d) and 50 results.
func (p *GoogleProvider) CalendarEvents(ctx context.Context, userID int64, query EventQuery) ([]CalendarEvent, error) {
	query = p.normalizeQuery(query)
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client, err := p.manager.Client(ctx, userID)
	if err != nil {
		return nil, err
	}
	service, err := calendar.NewService(ctx, p.clientOptions(client, p.calendarEndpoint)...)
	if err != nil {
		return nil, err
	}

	listing, err := service.Events.List(primaryCalendar).
		TimeMin(query.TimeMin.Format(time.RFC3339)).
		TimeMax(query.TimeMax.Format(time.RFC3339)).
		MaxResults(int64(query.MaxResults)).
		ShowDeleted(false).
		SingleEvents(true).
		OrderBy(orderByStartTime).
		Context(ctx).
		Do()
	if err != nil {
		return []CalendarEvent{}, p.listingFailed(OperationListEvents, userID, err)
	}

	events := make([]CalendarEvent, 0, len(listing.Items))
	for _, item := range listing.Items {
		if item == nil || item.Status == eventStatusCancel {
			continue
		}
		events = append(events, p.toCalendarEvent(item))
	}
	slices.SortStableFunc(events, compareEventStart)
	return events, nil
}

func (p *GoogleProvider) normalizeQuery(query EventQuery) EventQuery {
	if query.TimeMin.IsZero() {
		query.TimeMin = p.now().UTC()
	}
	if query.TimeMax.IsZero() {
		query.TimeMax = query.TimeMin.Add(defaultEventWindow)
	}
	if query.MaxResults <= 0 {
		query.MaxResults = defaultEventResults
	}
	return query
}

func (p *GoogleProvider) toCalendarEvent(item *calendar.Event) CalendarEvent {
	event := CalendarEvent{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Attendees:   []string{},
		Provider:    p.Name(),
	}
	event.Start, event.AllDay = eventTime(item.Start)
	event.End, _ = eventTime(item.End)
	for _, attendee := range item.Attendees {
		if attendee != nil && attendee.Email != "" {
			event.Attendees = append(event.Attendees, attendee.Email)
		}
	}
	return event
}

// eventTime maps a timed (RFC 3339) or all-day (date only) boundary. The bool reports all-day.
func eventTime(value *calendar.EventDateTime) (*time.Time, bool) {
	if value == nil {
		return nil, false
	}
	if value.DateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, value.DateTime); err == nil {
			return &parsed, false
		}
	}
	if value.Date != "" {
		if parsed, err := time.Parse(allDayLayout, value.Date); err == nil {
			return &parsed, true
		}
	}
	return nil, false
}

// compareEventStart orders by start ascending with undated events last.
func compareEventStart(a, b CalendarEvent) int {
	switch {
	case a.Start == nil && b.Start == nil:
		return 0
	case a.Start == nil:
		return 1
	case b.Start == nil:
		return -1
	default:
		return a.Start.Compare(*b.Start)
	}
}
