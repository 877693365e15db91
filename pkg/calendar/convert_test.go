package calendar

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/model"
	gcal "google.golang.org/api/calendar/v3"
)

func TestConvertTaskToEvent(t *testing.T) {
	now := time.Date(2023, 1, 1, 8, 0, 0, 0, time.UTC)
	deadline := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	task := model.Task{
		ID:          "12345678-1234-1234-1234-123456789012",
		Title:       "Test Task",
		Description: model.String("Note 1"),
		Status:      model.StatusTodo,
		Priority:    model.PriorityHigh,
		DueDate:     &deadline,
		Tags:        []string{"buy", "food"},
	}

	event, err := ConvertTaskToEvent(task, now)
	if err != nil {
		t.Fatalf("ConvertTaskToEvent failed: %v", err)
	}

	if event.Summary != "Test Task" {
		t.Errorf("Expected summary 'Test Task', got '%s'", event.Summary)
	}
	if event.ColorId != "6" {
		t.Errorf("Expected color 6 for high priority, got %s", event.ColorId)
	}
	if event.Start.DateTime != "2023-01-01T12:00:00Z" {
		t.Errorf("Expected start 2023-01-01T12:00:00Z, got %s", event.Start.DateTime)
	}
	if event.End.DateTime != "2023-01-01T12:30:00Z" {
		t.Errorf("Expected end 2023-01-01T12:30:00Z, got %s", event.End.DateTime)
	}

	if id, ok := TaskIDFromEvent(event); !ok || id != task.ID {
		t.Errorf("Expected %s %s, got %v", TaskIDProperty, task.ID, id)
	}

	if !strings.Contains(event.Description, "#buy #food") {
		t.Errorf("Expected description to contain tags, got: %s", event.Description)
	}
	if !strings.Contains(event.Description, "Priority: high") {
		t.Errorf("Expected description to contain priority, got: %s", event.Description)
	}
	if !strings.Contains(event.Description, "Note 1") {
		t.Errorf("Expected description to contain 'Note 1', got: %s", event.Description)
	}
}

func TestConvertTaskToEventAllDay(t *testing.T) {
	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	due := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	event, err := ConvertTaskToEvent(model.Task{ID: "a", Title: "Rent", DueDate: &due}, now)
	if err != nil {
		t.Fatalf("ConvertTaskToEvent failed: %v", err)
	}
	if event.Start.Date != "2024-03-01" || event.End.Date != "2024-03-02" {
		t.Errorf("Expected all-day event on 2024-03-01, got %s..%s", event.Start.Date, event.End.Date)
	}
}

func TestConvertTaskToEventNoDue(t *testing.T) {
	_, err := ConvertTaskToEvent(model.Task{ID: "a", Title: "Someday"}, time.Now())
	if !errors.Is(err, ErrNoDueDate) {
		t.Errorf("Expected ErrNoDueDate, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	past := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		task model.Task
		want string
	}{
		{"todo", model.Task{Title: "A", Status: model.StatusTodo}, "A"},
		{"in progress", model.Task{Title: "A", Status: model.StatusInProgress}, "‣ A"},
		{"completed", model.Task{Title: "A", Status: model.StatusCompleted, DueDate: &past}, "✓ A"},
		{"overdue", model.Task{Title: "A", Status: model.StatusTodo, DueDate: &past}, "! A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summary(tt.task, now); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEventNeedsUpdate(t *testing.T) {
	existing := &gcal.Event{
		Summary: "A",
		ColorId: "5",
		Start:   &gcal.EventDateTime{DateTime: "2024-03-01T10:00:00+01:00"},
		End:     &gcal.EventDateTime{DateTime: "2024-03-01T10:30:00+01:00"},
	}
	same := &gcal.Event{
		Summary: "A",
		ColorId: "5",
		Start:   &gcal.EventDateTime{DateTime: "2024-03-01T09:00:00Z"},
		End:     &gcal.EventDateTime{DateTime: "2024-03-01T09:30:00Z"},
	}
	patch, err := EventNeedsUpdate(existing, same)
	if err != nil {
		t.Fatalf("EventNeedsUpdate failed: %v", err)
	}
	if patch != nil {
		t.Errorf("Expected no patch for equal instants, got %+v", patch)
	}

	changed := *same
	changed.Summary = "✓ A"
	patch, err = EventNeedsUpdate(existing, &changed)
	if err != nil {
		t.Fatalf("EventNeedsUpdate failed: %v", err)
	}
	if patch == nil || patch.Summary != "✓ A" || patch.Start != nil {
		t.Errorf("Expected summary-only patch, got %+v", patch)
	}
}
