package calendar

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const overdueFile = "pending_due.json"

// Entry is an unfinished task whose event will need the overdue marker once
// its due day has passed.
type Entry struct {
	EventID string    `json:"event_id"`
	Summary string    `json:"summary"`
	Due     time.Time `json:"due"`
}

// OverdueTable tracks unfinished tasks with a due date so a sweep can mark
// their events once they become overdue.
type OverdueTable struct {
	Entries map[string]Entry `json:"entries"`
	Path    string           `json:"-"`
	dirty   bool
}

func NewOverdueTable(dir string) (*OverdueTable, error) {
	t := &OverdueTable{
		Path:    filepath.Join(dir, overdueFile),
		Entries: make(map[string]Entry),
	}
	if _, err := os.Stat(t.Path); err == nil {
		if err := t.Load(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *OverdueTable) Load() error {
	f, err := os.Open(t.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(t); err != nil {
		return err
	}
	if t.Entries == nil {
		t.Entries = make(map[string]Entry)
	}
	return nil
}

func (t *OverdueTable) Save() error {
	if !t.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(t.Path), 0700); err != nil {
		return err
	}
	f, err := os.Create(t.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	err = encoder.Encode(t)
	if err == nil {
		t.dirty = false
	}
	return err
}

// Update records a task with a due date, or forgets it when due is zero.
func (t *OverdueTable) Update(taskID, eventID, summary string, due time.Time) {
	if due.IsZero() {
		t.Remove(taskID)
		return
	}
	old, exists := t.Entries[taskID]
	if !exists || !old.Due.Equal(due) || old.EventID != eventID || old.Summary != summary {
		t.Entries[taskID] = Entry{EventID: eventID, Summary: summary, Due: due}
		t.dirty = true
	}
}

func (t *OverdueTable) Remove(taskID string) {
	if _, exists := t.Entries[taskID]; exists {
		delete(t.Entries, taskID)
		t.dirty = true
	}
}

// Sweep removes and returns the entries whose due day is before now's day.
func (t *OverdueTable) Sweep(now time.Time) []Entry {
	today := startOfDay(now)
	var swept []Entry
	for taskID, entry := range t.Entries {
		if startOfDay(entry.Due.In(now.Location())).Before(today) {
			swept = append(swept, entry)
			delete(t.Entries, taskID)
			t.dirty = true
		}
	}
	return swept
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
