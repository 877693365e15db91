package calendar

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/model"
)

const indexFile = "events.json"

// mirrored is the event written for a task and the task version it was
// written from.
type mirrored struct {
	EventID   string    `json:"event_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventIndex remembers which calendar event mirrors each task, so a reload
// of an unchanged collection costs no calendar calls.
type EventIndex struct {
	path    string
	mu      sync.Mutex
	entries map[string]mirrored
	dirty   bool
}

// NewEventIndex loads the index stored under dir, if any.
func NewEventIndex(dir string) (*EventIndex, error) {
	idx := &EventIndex{
		path:    filepath.Join(dir, indexFile),
		entries: make(map[string]mirrored),
	}
	data, err := os.ReadFile(idx.path)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &idx.entries); err != nil {
		return nil, fmt.Errorf("failed to decode event index %s: %w", idx.path, err)
	}
	if idx.entries == nil {
		idx.entries = make(map[string]mirrored)
	}
	return idx, nil
}

func (idx *EventIndex) Path() string {
	return idx.path
}

// Save replaces the index file if anything changed since the last save.
func (idx *EventIndex) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(idx.path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(idx.entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := idx.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, idx.path); err != nil {
		return err
	}
	idx.dirty = false
	return nil
}

// EventID returns the event mirroring taskID, or "".
func (idx *EventIndex) EventID(taskID string) string {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.entries[taskID].EventID
}

// Current reports whether t's event was written from this version of t.
func (idx *EventIndex) Current(t model.Task) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[t.ID]
	return ok && e.EventID != "" && !t.UpdatedAt.IsZero() && e.UpdatedAt.Equal(t.UpdatedAt)
}

// Record notes that eventID now mirrors the version of a task stamped
// updatedAt.
func (idx *EventIndex) Record(taskID, eventID string, updatedAt time.Time) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	next := mirrored{EventID: eventID, UpdatedAt: updatedAt}
	if prev, ok := idx.entries[taskID]; ok && prev.EventID == next.EventID && prev.UpdatedAt.Equal(next.UpdatedAt) {
		return
	}
	idx.entries[taskID] = next
	idx.dirty = true
}

func (idx *EventIndex) Forget(taskID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.entries[taskID]; ok {
		delete(idx.entries, taskID)
		idx.dirty = true
	}
}

func (idx *EventIndex) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.entries)
}
