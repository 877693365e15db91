package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/gateway"
	"github.com/harrisonrobin/taskflow/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestInsertQueryNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.SetClock(fixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	first, err := s.Insert(ctx, "alice", model.TaskInsert{Title: "first"})
	require.NoError(t, err)
	second, err := s.Insert(ctx, "alice", model.TaskInsert{Title: "second"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "bob", model.TaskInsert{Title: "not yours"})
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "alice", first.UserID)
	assert.Equal(t, model.StatusTodo, first.Status)
	assert.Equal(t, model.PriorityMedium, first.Priority)

	got, err := s.Query(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)
}

func TestUpdateDeleteOwnerScoped(t *testing.T) {
	ctx := context.Background()
	s := New()
	task, err := s.Insert(ctx, "alice", model.TaskInsert{Title: "mine"})
	require.NoError(t, err)

	title := "stolen"
	_, err = s.Update(ctx, "bob", task.ID, model.TaskUpdate{Title: &title})
	assert.ErrorIs(t, err, gateway.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "bob", task.ID))
	got, err := s.Query(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	updated, err := s.Update(ctx, "alice", task.ID, model.TaskUpdate{Title: model.String("renamed")})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)

	require.NoError(t, s.Delete(ctx, "alice", task.ID))
	got, err = s.Query(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInsertShareRequiresOwnership(t *testing.T) {
	ctx := context.Background()
	s := New()
	task, err := s.Insert(ctx, "alice", model.TaskInsert{Title: "mine"})
	require.NoError(t, err)

	_, err = s.InsertShare(ctx, model.TaskShare{TaskID: task.ID, SharedWithEmail: "x@example.com", SharedByUserID: "bob"})
	assert.ErrorIs(t, err, gateway.ErrPermissionDenied)

	share, err := s.InsertShare(ctx, model.TaskShare{TaskID: task.ID, SharedWithEmail: "x@example.com", SharedByUserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, model.PermissionRead, share.Permission)
	assert.NotEmpty(t, share.ID)
	assert.Len(t, s.Shares(), 1)
}

func TestSubscribeFiltersOwner(t *testing.T) {
	ctx := context.Background()
	s := New()
	sub, err := s.Subscribe(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Subscribers())

	_, err = s.Insert(ctx, "bob", model.TaskInsert{Title: "bob's"})
	require.NoError(t, err)
	task, err := s.Insert(ctx, "alice", model.TaskInsert{Title: "alice's"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "alice", task.ID))

	ev := <-sub.Events()
	assert.Equal(t, gateway.EventInsert, ev.Kind)
	assert.Equal(t, task.ID, ev.Task.ID)
	ev = <-sub.Events()
	assert.Equal(t, gateway.EventDelete, ev.Kind)
	assert.Equal(t, task.ID, ev.Task.ID)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, s.Subscribers())
	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")
	s.Fail(OpQuery, boom)
	_, err := s.Query(ctx, "alice")
	assert.ErrorIs(t, err, boom)

	s.Recover(OpQuery)
	_, err = s.Query(ctx, "alice")
	assert.NoError(t, err)
}
