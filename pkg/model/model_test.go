package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnums(t *testing.T) {
	s, err := ParseStatus("in-progress")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s)
	_, err = ParseStatus("done")
	assert.Error(t, err)

	p, err := ParsePriority("urgent")
	require.NoError(t, err)
	assert.Equal(t, PriorityUrgent, p)
	_, err = ParsePriority("")
	assert.Error(t, err)

	perm, err := ParsePermission("")
	require.NoError(t, err)
	assert.Equal(t, PermissionRead, perm)
	_, err = ParsePermission("admin")
	assert.Error(t, err)
}

func TestPriorityRank(t *testing.T) {
	for i, p := range Priorities {
		assert.Equal(t, i, p.Rank(), p)
	}
	assert.Equal(t, 4, Priority("bogus").Rank())
}

func TestTaskUnmarshalRejectsUnknownEnums(t *testing.T) {
	var task Task
	err := json.Unmarshal([]byte(`{"id":"1","status":"archived","priority":"low"}`), &task)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"id":"1","status":"todo","priority":"low","due_date":null}`), &task)
	require.NoError(t, err)
	assert.Equal(t, StatusTodo, task.Status)
	assert.Nil(t, task.DueDate)
}

func TestInsertDefaults(t *testing.T) {
	in := TaskInsert{Title: "x"}.Defaults()
	assert.Equal(t, StatusTodo, in.Status)
	assert.Equal(t, PriorityMedium, in.Priority)
	require.NotNil(t, in.Description)
	assert.Equal(t, "", *in.Description)
	assert.Equal(t, []string{}, in.Tags)
	assert.Equal(t, []string{}, in.SharedWith)
	assert.Nil(t, in.DueDate)

	kept := TaskInsert{Title: "x", Status: StatusCompleted, Priority: PriorityLow, Tags: []string{"a"}}.Defaults()
	assert.Equal(t, StatusCompleted, kept.Status)
	assert.Equal(t, PriorityLow, kept.Priority)
	assert.Equal(t, []string{"a"}, kept.Tags)
}

func TestCloneIsDeep(t *testing.T) {
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	orig := Task{ID: "1", Description: String("d"), DueDate: &due, Tags: []string{"a"}}
	c := orig.Clone()
	*c.Description = "changed"
	*c.DueDate = due.Add(time.Hour)
	c.Tags[0] = "b"

	assert.Equal(t, "d", *orig.Description)
	assert.Equal(t, due, *orig.DueDate)
	assert.Equal(t, "a", orig.Tags[0])
}

func TestApply(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	due := created.Add(48 * time.Hour)
	task := Task{
		ID: "1", Title: "old", UserID: "u", Description: String("d"),
		DueDate: &due, AssignedTo: String("a@example.com"),
		CreatedAt: created, UpdatedAt: created.Add(time.Hour),
	}
	status := StatusCompleted
	later := created.Add(2 * time.Hour)

	got := TaskUpdate{
		Title: String("new"), Status: &status,
		ClearDueDate: true, ClearAssignee: true, UpdatedAt: &later,
	}.Apply(task)

	assert.Equal(t, "1", got.ID)
	assert.Equal(t, "u", got.UserID)
	assert.Equal(t, "new", got.Title)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "d", *got.Description)
	assert.Nil(t, got.DueDate)
	assert.Nil(t, got.AssignedTo)
	assert.Equal(t, later, got.UpdatedAt)
	assert.Equal(t, "old", task.Title)
}

func TestApplyKeepsUpdatedAtMonotonic(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	earlier := at.Add(-time.Minute)
	got := TaskUpdate{Title: String("x"), UpdatedAt: &earlier}.Apply(Task{UpdatedAt: at})
	assert.Equal(t, at, got.UpdatedAt)
}

func TestUpdateEmpty(t *testing.T) {
	now := time.Now()
	assert.True(t, TaskUpdate{}.Empty())
	assert.True(t, TaskUpdate{UpdatedAt: &now}.Empty())
	assert.False(t, TaskUpdate{ClearDueDate: true}.Empty())
	assert.False(t, TaskUpdate{Tags: []string{}}.Empty())
}

func TestOfflineActionValidate(t *testing.T) {
	tests := []struct {
		name   string
		action OfflineAction
		ok     bool
	}{
		{"create", OfflineAction{Kind: ActionCreate, Insert: &TaskInsert{Title: "x"}}, true},
		{"create without payload", OfflineAction{Kind: ActionCreate}, false},
		{"update", OfflineAction{Kind: ActionUpdate, TaskID: "1", Update: &TaskUpdate{}}, true},
		{"update without id", OfflineAction{Kind: ActionUpdate, Update: &TaskUpdate{}}, false},
		{"delete", OfflineAction{Kind: ActionDelete, TaskID: "1"}, true},
		{"delete without id", OfflineAction{Kind: ActionDelete}, false},
		{"unknown", OfflineAction{Kind: "archive", TaskID: "1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestActionKindUnmarshal(t *testing.T) {
	var a OfflineAction
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a1","type":"delete","task_id":"t1","timestamp":"2024-01-01T00:00:00Z"}`), &a))
	assert.Equal(t, ActionDelete, a.Kind)
	assert.Error(t, json.Unmarshal([]byte(`{"type":"archive"}`), &a))
}

func TestUpdateJSONKeepsEmptyListsApart(t *testing.T) {
	data, err := json.Marshal(TaskUpdate{Tags: []string{}})
	require.NoError(t, err)

	var cleared TaskUpdate
	require.NoError(t, json.Unmarshal(data, &cleared))
	assert.NotNil(t, cleared.Tags)
	assert.Empty(t, cleared.Tags)
	assert.Nil(t, cleared.SharedWith)
	assert.False(t, cleared.Empty())
}
