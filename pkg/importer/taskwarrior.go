// Package importer turns tasks kept in other tools into inserts for the
// task store.
package importer

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/model"
)

const taskwarriorTimeLayout = "20060102T150405Z" // YYYYMMDDTHHMMSSZ, UTC

// TaskwarriorTime is a timestamp in Taskwarrior's export format.
type TaskwarriorTime struct {
	time.Time
}

func (ct *TaskwarriorTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "0" {
		ct.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(taskwarriorTimeLayout, s)
	if err != nil {
		return fmt.Errorf("failed to parse Taskwarrior time string '%s': %w", s, err)
	}
	ct.Time = t
	return nil
}

func (ct TaskwarriorTime) MarshalJSON() ([]byte, error) {
	if ct.Time.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + ct.Time.Format(taskwarriorTimeLayout) + `"`), nil
}

// TaskwarriorTask is one object of `task export`.
type TaskwarriorTask struct {
	UUID        string           `json:"uuid"`
	Description string           `json:"description"`
	Due         *TaskwarriorTime `json:"due,omitempty"`
	Status      string           `json:"status"`
	Priority    string           `json:"priority,omitempty"`
	Project     string           `json:"project,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
	Start       *TaskwarriorTime `json:"start,omitempty"`
	Annotations []struct {
		Description string           `json:"description"`
		Entry       *TaskwarriorTime `json:"entry"`
	} `json:"annotations,omitempty"`
}

// ParseTaskwarrior reads a `task export` JSON array or a stream of task
// objects.
func ParseTaskwarrior(r io.Reader) ([]TaskwarriorTask, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var tasks []TaskwarriorTask
		if err := json.Unmarshal([]byte(trimmed), &tasks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal taskwarrior export: %w", err)
		}
		return tasks, nil
	}

	var tasks []TaskwarriorTask
	decoder := json.NewDecoder(strings.NewReader(trimmed))
	for {
		var task TaskwarriorTask
		if err := decoder.Decode(&task); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode task json: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// FromTaskwarrior converts exported tasks. Deleted tasks are skipped; the
// project becomes a tag and annotations become the description.
func FromTaskwarrior(tasks []TaskwarriorTask) []model.TaskInsert {
	var out []model.TaskInsert
	for _, tw := range tasks {
		title := strings.TrimSpace(tw.Description)
		if title == "" || tw.Status == "deleted" {
			continue
		}
		in := model.TaskInsert{
			Title:    title,
			Status:   model.StatusTodo,
			Priority: taskwarriorPriority(tw.Priority),
			Tags:     append([]string{}, tw.Tags...),
		}
		switch {
		case tw.Status == "completed":
			in.Status = model.StatusCompleted
		case tw.Start != nil && !tw.Start.IsZero():
			in.Status = model.StatusInProgress
		}
		if tw.Project != "" {
			in.Tags = append(in.Tags, tw.Project)
		}
		if tw.Due != nil && !tw.Due.IsZero() {
			due := tw.Due.Time
			in.DueDate = &due
		}
		if len(tw.Annotations) > 0 {
			var notes []string
			for _, ann := range tw.Annotations {
				notes = append(notes, ann.Description)
			}
			in.Description = model.String(strings.Join(notes, "\n"))
		}
		out = append(out, in)
	}
	return out
}

func taskwarriorPriority(p string) model.Priority {
	switch strings.ToUpper(p) {
	case "H":
		return model.PriorityHigh
	case "L":
		return model.PriorityLow
	}
	return model.PriorityMedium
}
