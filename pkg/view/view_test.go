package view

import (
	"testing"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

var now = time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

func at(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func titles(tasks []model.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}

func fixture() []model.Task {
	return []model.Task{
		{ID: "1", Title: "Milestone Review", Status: model.StatusTodo, Priority: model.PriorityLow,
			DueDate: at("2024-03-01T09:00:00Z"), CreatedAt: now.Add(-1 * time.Hour)},
		{ID: "2", Title: "buy milk", Status: model.StatusCompleted, Priority: model.PriorityUrgent,
			DueDate: at("2024-03-09T09:00:00Z"), CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "3", Title: "Call Alice", Status: model.StatusInProgress, Priority: model.PriorityHigh,
			DueDate: at("2024-03-10T23:30:00Z"), CreatedAt: now.Add(-2 * time.Hour),
			Description: model.String("about the MILESTONE")},
		{ID: "4", Title: "Backlog", Status: model.StatusTodo, Priority: model.PriorityMedium,
			CreatedAt: now.Add(-4 * time.Hour)},
	}
}

func TestSortDueDateAbsentLast(t *testing.T) {
	tasks := []model.Task{
		{Title: "none"},
		{Title: "march", DueDate: at("2024-03-01T00:00:00Z")},
		{Title: "january", DueDate: at("2024-01-01T00:00:00Z")},
	}
	got := SortTasks(tasks, SortDueDate, language.English)
	assert.Equal(t, []string{"january", "march", "none"}, titles(got))
	assert.Equal(t, "none", tasks[0].Title)
}

func TestSortPriority(t *testing.T) {
	got := SortTasks(fixture(), SortPriority, language.English)
	assert.Equal(t, []string{"buy milk", "Call Alice", "Backlog", "Milestone Review"}, titles(got))
}

func TestSortCreatedAtNewestFirst(t *testing.T) {
	got := SortTasks(fixture(), SortCreatedAt, language.English)
	assert.Equal(t, []string{"Milestone Review", "Call Alice", "buy milk", "Backlog"}, titles(got))
}

func TestSortTitleCollates(t *testing.T) {
	tasks := []model.Task{{Title: "zebra"}, {Title: "Émile"}, {Title: "apple"}, {Title: "Banana"}}
	got := SortTasks(tasks, SortTitle, language.French)
	assert.Equal(t, []string{"apple", "Banana", "Émile", "zebra"}, titles(got))
}

func TestSortStableOnTies(t *testing.T) {
	tasks := []model.Task{
		{ID: "a", Priority: model.PriorityHigh},
		{ID: "b", Priority: model.PriorityHigh},
		{ID: "c", Priority: model.PriorityUrgent},
	}
	got := SortTasks(tasks, SortPriority, language.English)
	assert.Equal(t, []string{"c", "a", "b"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestSearchIgnoresCase(t *testing.T) {
	got := Search(fixture(), "mile")
	assert.Equal(t, []string{"Milestone Review", "Call Alice"}, titles(got))
	assert.Len(t, Search(fixture(), ""), 4)
	assert.Empty(t, Search(fixture(), "nothing"))
}

func TestOverdueByCalendarDay(t *testing.T) {
	dueEarlierToday := model.Task{Status: model.StatusTodo, DueDate: at("2024-03-10T01:00:00Z")}
	assert.False(t, Overdue(dueEarlierToday, now))
	assert.True(t, DueToday(dueEarlierToday, now))

	yesterday := model.Task{Status: model.StatusTodo, DueDate: at("2024-03-09T23:59:00Z")}
	assert.True(t, Overdue(yesterday, now))

	yesterday.Status = model.StatusCompleted
	assert.False(t, Overdue(yesterday, now))
	assert.False(t, Overdue(model.Task{}, now))
}

func TestDayUsesNowLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// now is already the 11th in Tokyo, the due date is still the 10th.
	task := model.Task{Status: model.StatusTodo, DueDate: at("2024-03-10T01:00:00Z")}
	assert.True(t, DueToday(task, now))
	assert.False(t, DueToday(task, now.In(tokyo)))
	assert.True(t, Overdue(task, now.In(tokyo)))
}

func TestFilters(t *testing.T) {
	tests := []struct {
		filter Filter
		want   []string
	}{
		{FilterAll, []string{"Milestone Review", "buy milk", "Call Alice", "Backlog"}},
		{FilterToday, []string{"Call Alice"}},
		{FilterOverdue, []string{"Milestone Review"}},
		{FilterCompleted, []string{"buy milk"}},
		{FilterTodo, []string{"Milestone Review", "Backlog"}},
		{FilterInProgress, []string{"Call Alice"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			assert.Equal(t, tt.want, titles(Apply(fixture(), tt.filter, now)))
		})
	}
}

func TestDerive(t *testing.T) {
	got := Derive(fixture(), Options{Filter: FilterTodo, Sort: SortTitle, Search: "", Now: now, Locale: language.English})
	assert.Equal(t, []string{"Backlog", "Milestone Review"}, titles(got))

	got = Derive(fixture(), Options{Filter: FilterAll, Sort: SortPriority, Search: "MILE", Now: now})
	assert.Equal(t, []string{"Call Alice", "Milestone Review"}, titles(got))
}

func TestDeriveLeavesInputAlone(t *testing.T) {
	tasks := fixture()
	Derive(tasks, Options{Sort: SortTitle, Now: now})
	assert.Equal(t, "Milestone Review", tasks[0].Title)
}

func TestCount(t *testing.T) {
	c := Count(fixture(), now)
	assert.Equal(t, Counts{Total: 4, Today: 1, Overdue: 1, Completed: 1, Todo: 2, InProgress: 1}, c)
	for _, f := range Filters {
		assert.Equal(t, len(Apply(fixture(), f, now)), c.For(f), f)
	}
}

func TestParse(t *testing.T) {
	f, err := ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)
	_, err = ParseFilter("someday")
	assert.Error(t, err)

	s, err := ParseSort("due_date")
	require.NoError(t, err)
	assert.Equal(t, SortDueDate, s)
	_, err = ParseSort("random")
	assert.Error(t, err)

	assert.Equal(t, "Overdue Tasks", FilterOverdue.Title())
}
