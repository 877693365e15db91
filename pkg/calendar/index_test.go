package calendar

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/model"
)

func TestEventIndexPersists(t *testing.T) {
	dir := t.TempDir()
	idx, err := NewEventIndex(dir)
	if err != nil {
		t.Fatalf("NewEventIndex failed: %v", err)
	}
	v1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	idx.Record("t1", "ev1", v1)
	idx.Record("t2", "ev2", v1)
	idx.Forget("t2")
	if err := idx.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(idx.Path())
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected 0600, got %v", info.Mode().Perm())
	}

	reloaded, err := NewEventIndex(dir)
	if err != nil {
		t.Fatalf("NewEventIndex failed: %v", err)
	}
	if reloaded.Len() != 1 || reloaded.EventID("t1") != "ev1" {
		t.Errorf("Unexpected reloaded index: len=%d t1=%q", reloaded.Len(), reloaded.EventID("t1"))
	}
	if !reloaded.Current(model.Task{ID: "t1", UpdatedAt: v1}) {
		t.Error("Expected t1 to be current at v1")
	}
	if reloaded.Current(model.Task{ID: "t1", UpdatedAt: v1.Add(time.Second)}) {
		t.Error("Expected a newer version not to be current")
	}
	if reloaded.Current(model.Task{ID: "t1"}) {
		t.Error("Expected an unstamped task never to be current")
	}
}

func TestEventIndexCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/"+indexFile, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewEventIndex(dir); err == nil {
		t.Error("Expected an error for a corrupt index")
	}
}

func TestNullFilesLoadEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, indexFile), []byte("null"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, overdueFile), []byte(`{"entries": null}`), 0600); err != nil {
		t.Fatal(err)
	}

	idx, err := NewEventIndex(dir)
	if err != nil {
		t.Fatalf("NewEventIndex failed: %v", err)
	}
	idx.Record("t1", "ev1", time.Now())
	if idx.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", idx.Len())
	}

	overdue, err := NewOverdueTable(dir)
	if err != nil {
		t.Fatalf("NewOverdueTable failed: %v", err)
	}
	overdue.Update("t1", "ev1", "A", time.Now())
	if len(overdue.Entries) != 1 {
		t.Errorf("Expected 1 pending entry, got %d", len(overdue.Entries))
	}
}
