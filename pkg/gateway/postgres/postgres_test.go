package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/gateway"
	"github.com/harrisonrobin/taskflow/pkg/model"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open("")
	assert.ErrorIs(t, err, gateway.ErrNotConfigured)
}

func TestUpdateSet(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	status := model.StatusCompleted

	set, args := updateSet(model.TaskUpdate{
		Title:        model.String("New"),
		Status:       &status,
		ClearDueDate: true,
		Tags:         []string{"a"},
		UpdatedAt:    &at,
	})
	assert.Equal(t, "title = $3, status = $4, due_date = NULL, tags = $5, updated_at = $6", set)
	require.Len(t, args, 4)
	assert.Equal(t, "New", args[0])
	assert.Equal(t, "completed", args[1])
	assert.Equal(t, at, args[3])
}

func TestUpdateSetDefaultsTimestamp(t *testing.T) {
	set, args := updateSet(model.TaskUpdate{ClearAssignee: true, ClearDescription: true})
	assert.Equal(t, "description = NULL, assigned_to = NULL, updated_at = now()", set)
	assert.Empty(t, args)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, gateway.ErrNotFound},
		{"permission", &pq.Error{Code: "42501", Message: "permission denied for table tasks"}, gateway.ErrPermissionDenied},
		{"recursion code", &pq.Error{Code: "42P17", Message: "policy"}, gateway.ErrPolicyRecursion},
		{"recursion message", &pq.Error{Code: "XX000", Message: "infinite recursion detected in policy for relation tasks"}, gateway.ErrPolicyRecursion},
		{"missing table", &pq.Error{Code: "42P01", Message: `relation "tasks" does not exist`}, gateway.ErrNotFound},
		{"other pq", &pq.Error{Code: "23505", Message: "duplicate key"}, gateway.ErrRemote},
		{"network", errors.New("connection refused"), gateway.ErrRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify("load", tt.err), tt.want)
		})
	}
}

func TestDecodeEvent(t *testing.T) {
	ev, err := decodeEvent(`{"type":"UPDATE","record":{"id":"t1","title":"A","status":"completed","priority":"high","user_id":"u1","tags":["x"],"shared_with":[]}}`)
	require.NoError(t, err)
	assert.Equal(t, gateway.EventUpdate, ev.Kind)
	assert.Equal(t, "t1", ev.Task.ID)
	assert.Equal(t, model.StatusCompleted, ev.Task.Status)
	assert.Equal(t, "u1", ev.Task.UserID)

	_, err = decodeEvent(`{"type":"TRUNCATE","record":{"id":"t1"}}`)
	assert.Error(t, err)
	_, err = decodeEvent(`{"type":"DELETE","record":{}}`)
	assert.Error(t, err)
	_, err = decodeEvent(`not json`)
	assert.Error(t, err)
}

func TestDecodeKeyOnlyEvent(t *testing.T) {
	ev, err := decodeEvent(`{"type":"INSERT","record":{"id":"t1","user_id":"u1"}}`)
	require.NoError(t, err)
	assert.Equal(t, gateway.EventInsert, ev.Kind)
	assert.Equal(t, "t1", ev.Task.ID)
	assert.Equal(t, "u1", ev.Task.UserID)
}

func TestResolveReadsRowBack(t *testing.T) {
	stored := model.Task{ID: "t1", Title: "full row", UserID: "u1", Status: model.StatusTodo, Priority: model.PriorityLow}
	var fetched []string
	sub := &subscription{owner: "u1", fetch: func(ctx context.Context, id string) (model.Task, error) {
		fetched = append(fetched, id)
		switch id {
		case "t1":
			return stored, nil
		case "gone":
			return model.Task{}, fmt.Errorf("fetch task gone: %w", gateway.ErrNotFound)
		}
		return model.Task{}, errors.New("connection reset")
	}}
	ctx := context.Background()
	key := func(kind gateway.EventKind, id string) gateway.Event {
		return gateway.Event{Kind: kind, Task: model.Task{ID: id, UserID: "u1"}}
	}

	ev, ok := sub.resolve(ctx, key(gateway.EventUpdate, "t1"))
	require.True(t, ok)
	assert.Equal(t, stored, ev.Task)

	_, ok = sub.resolve(ctx, key(gateway.EventInsert, "gone"))
	assert.False(t, ok)
	_, ok = sub.resolve(ctx, key(gateway.EventInsert, "broken"))
	assert.False(t, ok)

	ev, ok = sub.resolve(ctx, key(gateway.EventDelete, "t2"))
	require.True(t, ok)
	assert.Equal(t, "t2", ev.Task.ID)
	assert.Equal(t, []string{"t1", "gone", "broken"}, fetched)
}

// TestGatewayRoundTrip runs against a real database when
// TASKFLOW_TEST_DATABASE_URL is set.
func TestGatewayRoundTrip(t *testing.T) {
	dsn := os.Getenv("TASKFLOW_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TASKFLOW_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	g, err := Open(dsn)
	require.NoError(t, err)
	defer g.Close()
	require.NoError(t, g.Migrate(ctx))

	owner := "00000000-0000-0000-0000-000000000001"
	sub, err := g.Subscribe(ctx, owner)
	require.NoError(t, err)
	defer sub.Close()

	created, err := g.Insert(ctx, owner, model.TaskInsert{Title: "round trip", Tags: []string{"it"}})
	require.NoError(t, err)
	defer g.Delete(ctx, owner, created.ID)
	assert.Equal(t, model.StatusTodo, created.Status)
	assert.Equal(t, []string{"it"}, created.Tags)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, gateway.EventInsert, ev.Kind)
		assert.Equal(t, created.ID, ev.Task.ID)
	case <-ctx.Done():
		t.Fatal("no change event received")
	}

	updated, err := g.Update(ctx, owner, created.ID, model.TaskUpdate{Title: model.String("renamed")})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)

	list, err := g.Query(ctx, owner)
	require.NoError(t, err)
	assert.NotEmpty(t, list)
}

// TestLargeRowChangeIsDelivered needs TASKFLOW_TEST_DATABASE_URL. A row this
// large does not fit in a NOTIFY payload.
func TestLargeRowChangeIsDelivered(t *testing.T) {
	dsn := os.Getenv("TASKFLOW_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TASKFLOW_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	g, err := Open(dsn)
	require.NoError(t, err)
	defer g.Close()
	require.NoError(t, g.Migrate(ctx))

	owner := "00000000-0000-0000-0000-000000000002"
	sub, err := g.Subscribe(ctx, owner)
	require.NoError(t, err)
	defer sub.Close()

	long := strings.Repeat("x", 10*1024)
	created, err := g.Insert(ctx, owner, model.TaskInsert{Title: "large", Description: &long})
	require.NoError(t, err)
	defer g.Delete(ctx, owner, created.ID)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, gateway.EventInsert, ev.Kind)
		assert.Equal(t, created.ID, ev.Task.ID)
		require.NotNil(t, ev.Task.Description)
		assert.Len(t, *ev.Task.Description, len(long))
	case <-ctx.Done():
		t.Fatal("no change event received")
	}

	longer := long + "y"
	_, err = g.Update(ctx, owner, created.ID, model.TaskUpdate{Description: &longer})
	require.NoError(t, err)
}
