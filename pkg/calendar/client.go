package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/model"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// CalendarClient mirrors tasks into one Google Calendar.
type CalendarClient struct {
	srv        *gcal.Service
	calendarID string
	index      *EventIndex
	now        func() time.Time
}

// NewCalendarClient wraps an existing service.
func NewCalendarClient(srv *gcal.Service, calendarID string, idx *EventIndex) *CalendarClient {
	return &CalendarClient{srv: srv, calendarID: calendarID, index: idx, now: time.Now}
}

// NewClient finds the calendar named calendarName using an authenticated
// HTTP client.
func NewClient(ctx context.Context, httpClient *http.Client, calendarName string, idx *EventIndex) (*CalendarClient, error) {
	srv, err := gcal.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Calendar client: %w", err)
	}

	calendarList, err := srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve calendar list: %w", err)
	}

	var calendarID string
	for _, item := range calendarList.Items {
		if item.Summary == calendarName {
			calendarID = item.Id
			break
		}
	}
	if calendarID == "" {
		return nil, fmt.Errorf("calendar '%s' not found", calendarName)
	}
	return NewCalendarClient(srv, calendarID, idx), nil
}

// SyncEvent creates the event mirroring t or patches the existing one. The
// index is only read here; the mirror records what was written.
func (c *CalendarClient) SyncEvent(t model.Task) (*gcal.Event, error) {
	event, err := ConvertTaskToEvent(t, c.now())
	if err != nil {
		return nil, err
	}

	var existing *gcal.Event
	if c.index != nil {
		if eventID := c.index.EventID(t.ID); eventID != "" {
			existing, err = c.srv.Events.Get(c.calendarID, eventID).Do()
			if err != nil {
				existing = nil
			}
		}
	}
	if existing == nil {
		existing, err = c.GetEventByTaskID(t.ID)
		if err != nil {
			return nil, fmt.Errorf("error searching for event: %w", err)
		}
	}

	if existing != nil {
		patch, err := EventNeedsUpdate(existing, event)
		if err != nil {
			return nil, fmt.Errorf("could not compare task with its calendar event: %w", err)
		}
		if patch == nil {
			return existing, nil
		}
		return c.PatchEvent(existing.Id, patch)
	}
	return c.srv.Events.Insert(c.calendarID, event).Do()
}

// PatchEvent performs a partial update on an event.
func (c *CalendarClient) PatchEvent(eventID string, patch *gcal.Event) (*gcal.Event, error) {
	return c.srv.Events.Patch(c.calendarID, eventID, patch).Do()
}

func (c *CalendarClient) DeleteEvent(eventID string) error {
	return c.srv.Events.Delete(c.calendarID, eventID).Do()
}

// GetEventByTaskID looks the event up by its private task id property.
func (c *CalendarClient) GetEventByTaskID(taskID string) (*gcal.Event, error) {
	events, err := c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", TaskIDProperty, taskID)).
		Do()
	if err != nil {
		return nil, err
	}
	if len(events.Items) > 0 {
		return events.Items[0], nil
	}
	return nil, nil
}
