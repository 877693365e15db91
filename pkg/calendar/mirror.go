package calendar

import (
	"context"
	"log"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/model"
	gcal "google.golang.org/api/calendar/v3"
)

const (
	mirrorQueue   = 256
	sweepInterval = time.Hour
)

// Events is the part of CalendarClient the mirror drives.
type Events interface {
	SyncEvent(t model.Task) (*gcal.Event, error)
	PatchEvent(eventID string, patch *gcal.Event) (*gcal.Event, error)
	DeleteEvent(eventID string) error
	GetEventByTaskID(taskID string) (*gcal.Event, error)
}

type opKind int

const (
	opSync opKind = iota
	opRemove
	opReset
)

type op struct {
	kind  opKind
	task  model.Task
	id    string
	tasks []model.Task
}

// Mirror keeps one calendar event per task that has a due date. It observes
// the task syncer and does the calendar calls on its own goroutine.
type Mirror struct {
	events  Events
	index   *EventIndex
	overdue *OverdueTable
	ops     chan op
	now     func() time.Time
}

func NewMirror(events Events, idx *EventIndex, overdue *OverdueTable) *Mirror {
	return &Mirror{
		events:  events,
		index:   idx,
		overdue: overdue,
		ops:     make(chan op, mirrorQueue),
		now:     time.Now,
	}
}

func (m *Mirror) push(o op) {
	select {
	case m.ops <- o:
	default:
		log.Printf("calendar mirror: queue full, dropping change for %s", o.task.ID+o.id)
	}
}

func (m *Mirror) TaskChanged(t model.Task) { m.push(op{kind: opSync, task: t}) }
func (m *Mirror) TaskRemoved(id string)    { m.push(op{kind: opRemove, id: id}) }

// Reset mirrors a freshly loaded collection. An empty reset (sign-out)
// leaves the calendar alone.
func (m *Mirror) Reset(tasks []model.Task) {
	if len(tasks) == 0 {
		return
	}
	m.push(op{kind: opReset, tasks: tasks})
}

// Run applies queued changes and sweeps for overdue tasks until ctx is done.
func (m *Mirror) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	defer m.save()

	m.sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		case o := <-m.ops:
			m.apply(o)
			m.save()
		}
	}
}

func (m *Mirror) apply(o op) {
	switch o.kind {
	case opSync:
		m.sync(o.task)
	case opRemove:
		m.remove(o.id)
	case opReset:
		for _, t := range o.tasks {
			m.sync(t)
		}
	}
}

func (m *Mirror) sync(t model.Task) {
	if t.DueDate == nil {
		m.remove(t.ID)
		return
	}
	var eventID string
	if m.index != nil && m.index.Current(t) {
		eventID = m.index.EventID(t.ID)
	} else {
		ev, err := m.events.SyncEvent(t)
		if err != nil {
			log.Printf("calendar mirror: error syncing task %s: %v", t.ID, err)
			return
		}
		eventID = ev.Id
		if m.index != nil {
			m.index.Record(t.ID, eventID, t.UpdatedAt)
		}
	}
	if m.overdue == nil {
		return
	}
	// Only todo tasks show the overdue marker; the others keep their status
	// marker once due.
	if t.Status != model.StatusTodo {
		m.overdue.Remove(t.ID)
	} else {
		m.overdue.Update(t.ID, eventID, t.Title, *t.DueDate)
	}
}

func (m *Mirror) remove(taskID string) {
	eventID := ""
	if m.index != nil {
		eventID = m.index.EventID(taskID)
	}
	if eventID == "" {
		ev, err := m.events.GetEventByTaskID(taskID)
		if err != nil {
			log.Printf("calendar mirror: error looking up event for %s: %v", taskID, err)
			return
		}
		if ev != nil {
			eventID = ev.Id
		}
	}
	if eventID != "" {
		if err := m.events.DeleteEvent(eventID); err != nil {
			log.Printf("calendar mirror: error deleting event %s: %v", eventID, err)
			return
		}
	}
	if m.index != nil {
		m.index.Forget(taskID)
	}
	if m.overdue != nil {
		m.overdue.Remove(taskID)
	}
}

// sweep marks the events of tasks that became overdue since the last sweep.
func (m *Mirror) sweep() {
	if m.overdue == nil {
		return
	}
	for _, e := range m.overdue.Sweep(m.now()) {
		if _, err := m.events.PatchEvent(e.EventID, &gcal.Event{Summary: "! " + e.Summary}); err != nil {
			log.Printf("calendar mirror: error patching event %s: %v", e.EventID, err)
		}
	}
	m.save()
}

func (m *Mirror) save() {
	if m.index != nil {
		if err := m.index.Save(); err != nil {
			log.Printf("Warning: failed to save event index: %v", err)
		}
	}
	if m.overdue != nil {
		if err := m.overdue.Save(); err != nil {
			log.Printf("Warning: failed to save overdue table: %v", err)
		}
	}
}
