// Package memory is an in-process task store with the same contract as the
// PostgreSQL gateway. Every mutation is echoed on the owner's change feeds,
// the way the database trigger does it.
package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harrisonrobin/taskflow/pkg/gateway"
	"github.com/harrisonrobin/taskflow/pkg/model"
)

// Op names a gateway operation for failure injection.
type Op string

const (
	OpQuery         Op = "query"
	OpInsert        Op = "insert"
	OpUpdate        Op = "update"
	OpDelete        Op = "delete"
	OpInsertShare   Op = "insert_share"
	OpUpsertProfile Op = "upsert_profile"
	OpSubscribe     Op = "subscribe"
	OpPing          Op = "ping"
)

const feedBuffer = 256

type Store struct {
	mu       sync.Mutex
	tasks    map[string]model.Task
	shares   []model.TaskShare
	profiles map[string]model.Profile
	subs     map[*subscription]struct{}
	failures map[Op]error
	now      func() time.Time
}

func New() *Store {
	return &Store{
		tasks:    make(map[string]model.Task),
		profiles: make(map[string]model.Profile),
		subs:     make(map[*subscription]struct{}),
		failures: make(map[Op]error),
		now:      time.Now,
	}
}

// SetClock replaces the server clock.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Fail makes every call to op return err until Recover(op) is called.
func (s *Store) Fail(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *Store) Recover(op Op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, op)
}

func (s *Store) failure(op Op) error {
	if err, ok := s.failures[op]; ok {
		return err
	}
	return nil
}

// Shares returns every stored share.
func (s *Store) Shares() []model.TaskShare {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TaskShare{}, s.shares...)
}

// Profile returns the stored profile for id.
func (s *Store) Profile(id string) (model.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	return p, ok
}

// Seed stores t as-is and announces it, as if another client created it.
func (s *Store) Seed(t model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t.Clone()
	s.publish(gateway.Event{Kind: gateway.EventInsert, Task: t.Clone()})
}

// Publish sends ev to ev.Task.UserID's feeds without touching stored rows.
func (s *Store) Publish(ev gateway.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(ev)
}

func (s *Store) Query(ctx context.Context, ownerID string) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpQuery); err != nil {
		return nil, err
	}
	var out []model.Task
	for _, t := range s.tasks {
		if t.UserID == ownerID {
			out = append(out, t.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Insert(ctx context.Context, ownerID string, in model.TaskInsert) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpInsert); err != nil {
		return model.Task{}, err
	}
	if ownerID == "" {
		return model.Task{}, fmt.Errorf("insert task: %w", gateway.ErrPermissionDenied)
	}
	in = in.Defaults()
	now := s.now()
	t := model.Task{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
		UserID:      ownerID,
		AssignedTo:  in.AssignedTo,
		Tags:        in.Tags,
		SharedWith:  in.SharedWith,
	}.Clone()
	s.tasks[t.ID] = t
	s.publish(gateway.Event{Kind: gateway.EventInsert, Task: t.Clone()})
	return t.Clone(), nil
}

func (s *Store) Update(ctx context.Context, ownerID, id string, u model.TaskUpdate) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpUpdate); err != nil {
		return model.Task{}, err
	}
	t, ok := s.tasks[id]
	if !ok || t.UserID != ownerID {
		return model.Task{}, fmt.Errorf("update task %s: %w", id, gateway.ErrNotFound)
	}
	if u.UpdatedAt == nil {
		now := s.now()
		u.UpdatedAt = &now
	}
	t = u.Apply(t)
	s.tasks[id] = t
	s.publish(gateway.Event{Kind: gateway.EventUpdate, Task: t.Clone()})
	return t.Clone(), nil
}

func (s *Store) Delete(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpDelete); err != nil {
		return err
	}
	t, ok := s.tasks[id]
	if !ok || t.UserID != ownerID {
		// Deleting an invisible row affects nothing, same as the SQL store.
		return nil
	}
	delete(s.tasks, id)
	s.publish(gateway.Event{Kind: gateway.EventDelete, Task: model.Task{ID: id, UserID: ownerID}})
	return nil
}

func (s *Store) InsertShare(ctx context.Context, share model.TaskShare) (model.TaskShare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpInsertShare); err != nil {
		return model.TaskShare{}, err
	}
	t, ok := s.tasks[share.TaskID]
	if !ok || t.UserID != share.SharedByUserID {
		return model.TaskShare{}, fmt.Errorf("share task %s: %w", share.TaskID, gateway.ErrPermissionDenied)
	}
	if share.Permission == "" {
		share.Permission = model.PermissionRead
	}
	share.ID = uuid.NewString()
	share.CreatedAt = s.now()
	s.shares = append(s.shares, share)
	return share, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpUpsertProfile); err != nil {
		return err
	}
	s.profiles[p.ID] = p
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure(OpPing)
}

func (s *Store) Subscribe(ctx context.Context, ownerID string) (gateway.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpSubscribe); err != nil {
		return nil, err
	}
	sub := &subscription{store: s, owner: ownerID, events: make(chan gateway.Event, feedBuffer)}
	s.subs[sub] = struct{}{}
	return sub, nil
}

// Subscribers returns the number of open feeds.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// publish must be called with s.mu held.
func (s *Store) publish(ev gateway.Event) {
	for sub := range s.subs {
		if sub.owner != ev.Task.UserID {
			continue
		}
		select {
		case sub.events <- ev:
		default:
			log.Printf("memory gateway: dropping %s event for task %s, feed full", ev.Kind, ev.Task.ID)
		}
	}
}

type subscription struct {
	store  *Store
	owner  string
	events chan gateway.Event
	once   sync.Once
}

func (sub *subscription) Events() <-chan gateway.Event {
	return sub.events
}

func (sub *subscription) Close() error {
	sub.once.Do(func() {
		sub.store.mu.Lock()
		delete(sub.store.subs, sub)
		close(sub.events)
		sub.store.mu.Unlock()
	})
	return nil
}
