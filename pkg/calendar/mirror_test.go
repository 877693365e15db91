package calendar

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/model"
	gcal "google.golang.org/api/calendar/v3"
)

type fakeEvents struct {
	mu      sync.Mutex
	next    int
	synced  int
	events  map[string]*gcal.Event
	patched []string
	deleted []string
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{events: make(map[string]*gcal.Event)}
}

func (f *fakeEvents) SyncEvent(t model.Task) (*gcal.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced++
	ev, err := ConvertTaskToEvent(t, time.Now())
	if err != nil {
		return nil, err
	}
	for id, existing := range f.events {
		if tid, _ := TaskIDFromEvent(existing); tid == t.ID {
			ev.Id = id
			f.events[id] = ev
			return ev, nil
		}
	}
	f.next++
	ev.Id = "ev" + string(rune('0'+f.next))
	f.events[ev.Id] = ev
	return ev, nil
}

func (f *fakeEvents) PatchEvent(eventID string, patch *gcal.Event) (*gcal.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patched = append(f.patched, eventID)
	ev := f.events[eventID]
	if ev != nil && patch.Summary != "" {
		ev.Summary = patch.Summary
	}
	return ev, nil
}

func (f *fakeEvents) DeleteEvent(eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, eventID)
	delete(f.events, eventID)
	return nil
}

func (f *fakeEvents) GetEventByTaskID(taskID string) (*gcal.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if tid, _ := TaskIDFromEvent(ev); tid == taskID {
			return ev, nil
		}
	}
	return nil, nil
}

func (f *fakeEvents) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func newTestMirror(t *testing.T) (*Mirror, *fakeEvents) {
	t.Helper()
	dir := t.TempDir()
	idx, err := NewEventIndex(dir)
	if err != nil {
		t.Fatalf("NewEventIndex failed: %v", err)
	}
	overdue, err := NewOverdueTable(dir)
	if err != nil {
		t.Fatalf("NewOverdueTable failed: %v", err)
	}
	events := newFakeEvents()
	return NewMirror(events, idx, overdue), events
}

func TestMirrorSyncAndRemove(t *testing.T) {
	m, events := newTestMirror(t)
	due := time.Now().Add(48 * time.Hour)

	m.apply(op{kind: opSync, task: model.Task{ID: "t1", Title: "A", DueDate: &due}})
	if events.count() != 1 {
		t.Fatalf("Expected 1 event, got %d", events.count())
	}
	if _, ok := m.overdue.Entries["t1"]; !ok {
		t.Error("Expected pending entry for unfinished task")
	}

	m.apply(op{kind: opSync, task: model.Task{ID: "t1", Title: "A", Status: model.StatusCompleted, DueDate: &due}})
	if _, ok := m.overdue.Entries["t1"]; ok {
		t.Error("Expected completed task to leave the pending table")
	}

	m.apply(op{kind: opRemove, id: "t1"})
	if events.count() != 0 {
		t.Errorf("Expected event to be deleted, %d left", events.count())
	}
}

func TestMirrorSkipsUnchangedVersion(t *testing.T) {
	m, events := newTestMirror(t)
	due := time.Now().Add(48 * time.Hour)
	v1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	task := model.Task{ID: "t1", Title: "A", DueDate: &due, UpdatedAt: v1}

	m.apply(op{kind: opReset, tasks: []model.Task{task}})
	m.apply(op{kind: opReset, tasks: []model.Task{task}})
	if events.synced != 1 {
		t.Fatalf("Expected one calendar write for an unchanged task, got %d", events.synced)
	}
	if m.overdue.Entries["t1"].EventID != m.index.EventID("t1") {
		t.Error("Expected pending entry to point at the indexed event")
	}

	task.Title = "A2"
	task.UpdatedAt = v1.Add(time.Minute)
	m.apply(op{kind: opSync, task: task})
	if events.synced != 2 {
		t.Errorf("Expected a new version to be written, got %d writes", events.synced)
	}
}

func TestMirrorDropsEventWhenDueCleared(t *testing.T) {
	m, events := newTestMirror(t)
	due := time.Now().Add(48 * time.Hour)

	m.apply(op{kind: opSync, task: model.Task{ID: "t1", Title: "A", DueDate: &due}})
	m.apply(op{kind: opSync, task: model.Task{ID: "t1", Title: "A"}})
	if events.count() != 0 {
		t.Errorf("Expected event to be deleted, %d left", events.count())
	}
}

func TestMirrorSweep(t *testing.T) {
	m, events := newTestMirror(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.overdue.Update("t1", "ev9", "A", time.Date(2024, 3, 9, 18, 0, 0, 0, time.UTC))
	m.overdue.Update("t2", "ev8", "B", time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	m.sweep()

	if len(events.patched) != 1 || events.patched[0] != "ev9" {
		t.Errorf("Expected only ev9 to be patched, got %v", events.patched)
	}
	if _, ok := m.overdue.Entries["t2"]; !ok {
		t.Error("Task due today must stay pending")
	}
}

func TestMirrorSweepKeepsInProgressMarker(t *testing.T) {
	m, events := newTestMirror(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	due := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)

	m.apply(op{kind: opSync, task: model.Task{ID: "t1", Title: "A", Status: model.StatusTodo, DueDate: &due}})
	if _, ok := m.overdue.Entries["t1"]; !ok {
		t.Fatal("Expected pending entry for todo task")
	}
	m.apply(op{kind: opSync, task: model.Task{ID: "t1", Title: "A", Status: model.StatusInProgress, DueDate: &due}})
	if _, ok := m.overdue.Entries["t1"]; ok {
		t.Error("Expected in-progress task to leave the pending table")
	}

	now = due.AddDate(0, 0, 2)
	m.sweep()
	if len(events.patched) != 0 {
		t.Errorf("Expected no overdue patch for an in-progress task, got %v", events.patched)
	}
}

func TestMirrorEmptyResetIgnored(t *testing.T) {
	m, _ := newTestMirror(t)
	m.Reset(nil)
	if len(m.ops) != 0 {
		t.Errorf("Expected empty reset to be ignored, %d ops queued", len(m.ops))
	}
}

func TestMirrorRun(t *testing.T) {
	m, events := newTestMirror(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	due := time.Now().Add(72 * time.Hour)
	m.TaskChanged(model.Task{ID: "t1", Title: "A", DueDate: &due})

	deadline := time.Now().Add(2 * time.Second)
	for events.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if events.count() != 1 {
		t.Fatalf("Expected mirrored event, got %d", events.count())
	}
	reloaded, err := NewOverdueTable(filepath.Dir(m.overdue.Path))
	if err != nil {
		t.Fatalf("NewOverdueTable failed: %v", err)
	}
	if _, ok := reloaded.Entries["t1"]; !ok {
		t.Error("Expected pending table to be saved on shutdown")
	}
}
