package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/model"
	"github.com/harrisonrobin/taskflow/pkg/view"
	gcal "google.golang.org/api/calendar/v3"
)

// TaskIDProperty is the private extended property linking an event to its task.
const TaskIDProperty = "taskflow_id"

const (
	defaultDuration = 30 * time.Minute
	dateLayout      = "2006-01-02"
)

var ErrNoDueDate = errors.New("task has no due date")

// ColorID maps a priority to a Google Calendar event color.
func ColorID(p model.Priority) string {
	switch p {
	case model.PriorityUrgent:
		return "11" // tomato
	case model.PriorityHigh:
		return "6" // tangerine
	case model.PriorityMedium:
		return "5" // banana
	case model.PriorityLow:
		return "2" // sage
	}
	return "8" // graphite
}

// Summary is the event title: the task title with a marker for completed
// (✓), in-progress (‣) and overdue (!) tasks.
func Summary(t model.Task, now time.Time) string {
	prefix := ""
	switch t.Status {
	case model.StatusCompleted:
		prefix = "✓"
	case model.StatusInProgress:
		prefix = "‣"
	case model.StatusTodo:
	}
	if prefix == "" && view.Overdue(t, now) {
		prefix = "!"
	}
	if prefix == "" {
		return t.Title
	}
	return prefix + " " + t.Title
}

// ConvertTaskToEvent renders t as a calendar event on its due date. A due
// date at local midnight becomes an all-day event.
func ConvertTaskToEvent(t model.Task, now time.Time) (*gcal.Event, error) {
	if t.DueDate == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDueDate, t.ID)
	}

	due := t.DueDate.In(now.Location())
	var start, end *gcal.EventDateTime
	if due.Equal(startOfDay(due)) {
		start = &gcal.EventDateTime{Date: due.Format(dateLayout)}
		end = &gcal.EventDateTime{Date: due.AddDate(0, 0, 1).Format(dateLayout)}
	} else {
		start = &gcal.EventDateTime{DateTime: due.UTC().Format(time.RFC3339)}
		end = &gcal.EventDateTime{DateTime: due.Add(defaultDuration).UTC().Format(time.RFC3339)}
	}

	var desc strings.Builder
	if len(t.Tags) > 0 {
		for _, tag := range t.Tags {
			fmt.Fprintf(&desc, "#%s ", tag)
		}
		desc.WriteString("\n\n")
	}
	fmt.Fprintf(&desc, "Status: %s\n", t.Status)
	fmt.Fprintf(&desc, "Priority: %s\n", t.Priority)
	if t.AssignedTo != nil {
		fmt.Fprintf(&desc, "Assigned to: %s\n", *t.AssignedTo)
	}
	if len(t.SharedWith) > 0 {
		fmt.Fprintf(&desc, "Shared with: %s\n", strings.Join(t.SharedWith, ", "))
	}
	fmt.Fprintf(&desc, "ID: %s\n", t.ID)
	if t.Description != nil && *t.Description != "" {
		fmt.Fprintf(&desc, "\n%s\n", *t.Description)
	}

	return &gcal.Event{
		Summary:     Summary(t, now),
		ColorId:     ColorID(t.Priority),
		Start:       start,
		End:         end,
		Description: desc.String(),
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{TaskIDProperty: t.ID},
		},
	}, nil
}

func sameTime(a, b *gcal.EventDateTime) (bool, error) {
	if a == nil || b == nil {
		return a == b, nil
	}
	if a.Date != "" || b.Date != "" {
		return a.Date == b.Date, nil
	}
	at, err := time.Parse(time.RFC3339, a.DateTime)
	if err != nil {
		return false, err
	}
	bt, err := time.Parse(time.RFC3339, b.DateTime)
	if err != nil {
		return false, err
	}
	return at.Equal(bt), nil
}

// EventNeedsUpdate returns a patch with the fields of target that differ
// from existing, or nil if they match.
func EventNeedsUpdate(existing, target *gcal.Event) (*gcal.Event, error) {
	patch := &gcal.Event{}
	needsUpdate := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		needsUpdate = true
	}
	if existing.Description != target.Description {
		patch.Description = target.Description
		needsUpdate = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		needsUpdate = true
	}

	startSame, err := sameTime(existing.Start, target.Start)
	if err != nil {
		return nil, err
	}
	endSame, err := sameTime(existing.End, target.End)
	if err != nil {
		return nil, err
	}
	if !startSame || !endSame {
		patch.Start = target.Start
		patch.End = target.End
		needsUpdate = true
	}

	if needsUpdate {
		return patch, nil
	}
	return nil, nil
}

// TaskIDFromEvent returns the task id stored on ev.
func TaskIDFromEvent(ev *gcal.Event) (string, bool) {
	if ev == nil || ev.ExtendedProperties == nil {
		return "", false
	}
	id, ok := ev.ExtendedProperties.Private[TaskIDProperty]
	return id, ok && id != ""
}
