package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the workflow state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Statuses lists every Status in display order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusCompleted}

// ParseStatus returns the Status named by s.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusTodo, StatusInProgress, StatusCompleted:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Priority ranks how urgent a task is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every Priority from most to least urgent.
var Priorities = []Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow}

// ParsePriority returns the Priority named by s.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return Priority(s), nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// Rank orders priorities urgent=0 through low=3.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

func (p Priority) Valid() bool {
	_, err := ParsePriority(string(p))
	return err == nil
}

func (p *Priority) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParsePriority(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Task is a task row as returned by the remote store.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	UserID      string     `json:"user_id"`
	AssignedTo  *string    `json:"assigned_to"`
	Tags        []string   `json:"tags"`
	SharedWith  []string   `json:"shared_with"`
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	c := t
	if t.Description != nil {
		c.Description = String(*t.Description)
	}
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.AssignedTo != nil {
		c.AssignedTo = String(*t.AssignedTo)
	}
	c.Tags = append([]string{}, t.Tags...)
	c.SharedWith = append([]string{}, t.SharedWith...)
	return c
}

// TaskInsert holds the fields a caller may set when creating a task. The
// owner is injected by the sync layer.
type TaskInsert struct {
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Status      Status     `json:"status,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	AssignedTo  *string    `json:"assigned_to,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	SharedWith  []string   `json:"shared_with,omitempty"`
}

// Defaults fills every unset field of in with its creation default.
func (in TaskInsert) Defaults() TaskInsert {
	out := in
	if out.Description == nil {
		out.Description = String("")
	}
	if out.Status == "" {
		out.Status = StatusTodo
	}
	if out.Priority == "" {
		out.Priority = PriorityMedium
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if out.SharedWith == nil {
		out.SharedWith = []string{}
	}
	return out
}

// TaskUpdate is a partial update. Nil fields are left untouched; the Clear
// flags set the matching optional field to absent. An empty Tags or
// SharedWith clears the list, so those two keep null and [] apart in JSON.
type TaskUpdate struct {
	Title            *string    `json:"title,omitempty"`
	Description      *string    `json:"description,omitempty"`
	ClearDescription bool       `json:"clear_description,omitempty"`
	Status           *Status    `json:"status,omitempty"`
	Priority         *Priority  `json:"priority,omitempty"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	ClearDueDate     bool       `json:"clear_due_date,omitempty"`
	AssignedTo       *string    `json:"assigned_to,omitempty"`
	ClearAssignee    bool       `json:"clear_assigned_to,omitempty"`
	Tags             []string   `json:"tags"`
	SharedWith       []string   `json:"shared_with"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// Empty reports whether u changes nothing besides the timestamp.
func (u TaskUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && !u.ClearDescription &&
		u.Status == nil && u.Priority == nil && u.DueDate == nil && !u.ClearDueDate &&
		u.AssignedTo == nil && !u.ClearAssignee && u.Tags == nil && u.SharedWith == nil
}

// Apply returns t with u applied. Identity and ownership are never touched.
func (u TaskUpdate) Apply(t Task) Task {
	out := t.Clone()
	if u.Title != nil {
		out.Title = *u.Title
	}
	if u.ClearDescription {
		out.Description = nil
	} else if u.Description != nil {
		out.Description = String(*u.Description)
	}
	if u.Status != nil {
		out.Status = *u.Status
	}
	if u.Priority != nil {
		out.Priority = *u.Priority
	}
	if u.ClearDueDate {
		out.DueDate = nil
	} else if u.DueDate != nil {
		d := *u.DueDate
		out.DueDate = &d
	}
	if u.ClearAssignee {
		out.AssignedTo = nil
	} else if u.AssignedTo != nil {
		out.AssignedTo = String(*u.AssignedTo)
	}
	if u.Tags != nil {
		out.Tags = append([]string{}, u.Tags...)
	}
	if u.SharedWith != nil {
		out.SharedWith = append([]string{}, u.SharedWith...)
	}
	if u.UpdatedAt != nil && !u.UpdatedAt.Before(out.UpdatedAt) {
		out.UpdatedAt = *u.UpdatedAt
	}
	return out
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}
