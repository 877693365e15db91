// Package view derives what the task list shows: a searched, filtered and
// sorted projection of the collection and the per-filter counts. Every
// function is pure and leaves its input untouched.
package view

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/model"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type Filter string

const (
	FilterAll        Filter = "all"
	FilterToday      Filter = "today"
	FilterOverdue    Filter = "overdue"
	FilterCompleted  Filter = "completed"
	FilterTodo       Filter = "todo"
	FilterInProgress Filter = "in-progress"
)

var Filters = []Filter{FilterAll, FilterToday, FilterOverdue, FilterCompleted, FilterTodo, FilterInProgress}

func ParseFilter(s string) (Filter, error) {
	for _, f := range Filters {
		if string(f) == s {
			return f, nil
		}
	}
	if s == "" {
		return FilterAll, nil
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

// Title is the heading shown above a filtered list.
func (f Filter) Title() string {
	switch f {
	case FilterAll:
		return "All Tasks"
	case FilterToday:
		return "Due Today"
	case FilterOverdue:
		return "Overdue Tasks"
	case FilterCompleted:
		return "Completed Tasks"
	case FilterTodo:
		return "To Do"
	case FilterInProgress:
		return "In Progress"
	}
	return "Tasks"
}

type Sort string

const (
	SortCreatedAt Sort = "created_at"
	SortDueDate   Sort = "due_date"
	SortPriority  Sort = "priority"
	SortTitle     Sort = "title"
)

var Sorts = []Sort{SortCreatedAt, SortDueDate, SortPriority, SortTitle}

func ParseSort(s string) (Sort, error) {
	for _, o := range Sorts {
		if string(o) == s {
			return o, nil
		}
	}
	if s == "" {
		return SortCreatedAt, nil
	}
	return "", fmt.Errorf("unknown sort %q", s)
}

// Options selects a view. Now fixes both the current day and the time zone
// that due dates are compared in. Locale drives title collation.
type Options struct {
	Filter Filter
	Sort   Sort
	Search string
	Now    time.Time
	Locale language.Tag
}

// Derive applies the search, then the filter, then the sort.
func Derive(tasks []model.Task, opts Options) []model.Task {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	out := Search(tasks, opts.Search)
	out = Apply(out, opts.Filter, now)
	return SortTasks(out, opts.Sort, opts.Locale)
}

// Search keeps tasks whose title or description contains q, ignoring case.
// An empty q keeps everything.
func Search(tasks []model.Task, q string) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	if q == "" {
		return append(out, tasks...)
	}
	needle := strings.ToLower(q)
	for _, t := range tasks {
		if strings.Contains(strings.ToLower(t.Title), needle) ||
			(t.Description != nil && strings.Contains(strings.ToLower(*t.Description), needle)) {
			out = append(out, t)
		}
	}
	return out
}

// Apply keeps the tasks matching f.
func Apply(tasks []model.Task, f Filter, now time.Time) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if Matches(t, f, now) {
			out = append(out, t)
		}
	}
	return out
}

// Matches reports whether t belongs to filter f on the calendar day of now.
func Matches(t model.Task, f Filter, now time.Time) bool {
	switch f {
	case FilterAll, "":
		return true
	case FilterToday:
		return DueToday(t, now)
	case FilterOverdue:
		return Overdue(t, now)
	case FilterCompleted:
		return t.Status == model.StatusCompleted
	case FilterTodo:
		return t.Status == model.StatusTodo
	case FilterInProgress:
		return t.Status == model.StatusInProgress
	}
	return false
}

// day truncates t to midnight of its calendar day in loc.
func day(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DueToday reports whether t is due on now's calendar day.
func DueToday(t model.Task, now time.Time) bool {
	if t.DueDate == nil {
		return false
	}
	return day(*t.DueDate, now.Location()).Equal(day(now, now.Location()))
}

// Overdue reports whether t is unfinished and due on a day before now's.
func Overdue(t model.Task, now time.Time) bool {
	if t.DueDate == nil || t.Status == model.StatusCompleted {
		return false
	}
	return day(*t.DueDate, now.Location()).Before(day(now, now.Location()))
}

// SortTasks returns a sorted copy of tasks. Ties keep their input order.
func SortTasks(tasks []model.Task, by Sort, locale language.Tag) []model.Task {
	out := append([]model.Task{}, tasks...)
	var less func(a, b model.Task) bool
	switch by {
	case SortDueDate:
		less = func(a, b model.Task) bool {
			switch {
			case a.DueDate == nil:
				return false
			case b.DueDate == nil:
				return true
			}
			return a.DueDate.Before(*b.DueDate)
		}
	case SortPriority:
		less = func(a, b model.Task) bool {
			return a.Priority.Rank() < b.Priority.Rank()
		}
	case SortTitle:
		c := collate.New(locale)
		less = func(a, b model.Task) bool {
			return c.CompareString(a.Title, b.Title) < 0
		}
	case SortCreatedAt:
		less = func(a, b model.Task) bool {
			return a.CreatedAt.After(b.CreatedAt)
		}
	default:
		return out
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Counts are the per-filter totals shown next to each filter.
type Counts struct {
	Total      int `json:"total"`
	Today      int `json:"today"`
	Overdue    int `json:"overdue"`
	Completed  int `json:"completed"`
	Todo       int `json:"todo"`
	InProgress int `json:"in_progress"`
}

// Count computes every total over the whole collection.
func Count(tasks []model.Task, now time.Time) Counts {
	c := Counts{Total: len(tasks)}
	for _, t := range tasks {
		if DueToday(t, now) {
			c.Today++
		}
		if Overdue(t, now) {
			c.Overdue++
		}
		switch t.Status {
		case model.StatusCompleted:
			c.Completed++
		case model.StatusTodo:
			c.Todo++
		case model.StatusInProgress:
			c.InProgress++
		}
	}
	return c
}

// For returns the count matching f.
func (c Counts) For(f Filter) int {
	switch f {
	case FilterAll:
		return c.Total
	case FilterToday:
		return c.Today
	case FilterOverdue:
		return c.Overdue
	case FilterCompleted:
		return c.Completed
	case FilterTodo:
		return c.Todo
	case FilterInProgress:
		return c.InProgress
	}
	return 0
}
