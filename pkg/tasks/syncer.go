// Package tasks keeps an identity-scoped, ordered task collection consistent
// with the remote store.
//
// # Ownership
//
// The collection lives in a single loop goroutine started by Run. Gateway
// round trips happen on the caller's goroutine; their results, push events
// from the change feed and session transitions all reach the collection as
// messages to the loop, so it is never mutated concurrently.
//
// # Consistency
//
// Nothing is changed locally before the store confirms it. A mutation's
// result and the change-feed event for the same row may arrive in either
// order; whichever is applied last wins until the next Load. Results issued
// under a previous identity are discarded: every identity change bumps an
// epoch and stale results carry the old one.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/auth"
	"github.com/harrisonrobin/taskflow/pkg/gateway"
	"github.com/harrisonrobin/taskflow/pkg/model"
	"github.com/harrisonrobin/taskflow/pkg/notify"
	"github.com/harrisonrobin/taskflow/pkg/session"
)

// Cache is the local durable store for the task snapshot and the offline
// action queue.
type Cache interface {
	SaveTasks(tasks []model.Task) error
	Enqueue(action model.OfflineAction) error
	Actions() ([]model.OfflineAction, error)
	RemoveAction(id string) error
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithCache stores a snapshot after every load and enables the offline queue.
func WithCache(c Cache) Option {
	return func(s *Syncer) { s.cache = c }
}

// WithConnectivity sets the probe deciding whether mutations go to the store
// or to the offline queue. Without it the store is assumed reachable.
func WithConnectivity(online func(ctx context.Context) bool) Option {
	return func(s *Syncer) { s.online = online }
}

func WithObserver(o Observer) Option {
	return func(s *Syncer) { s.observers = append(s.observers, o) }
}

// WithoutAutoLoad stops Run from loading in the background after an
// identity change; the caller loads explicitly.
func WithoutAutoLoad() Option {
	return func(s *Syncer) { s.manualLoad = true }
}

// WithClock replaces time.Now for update timestamps and queued actions.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

type Syncer struct {
	gw         gateway.Gateway
	notifier   notify.Notifier
	cache      Cache
	online     func(ctx context.Context) bool
	observers  []Observer
	now        func() time.Time
	newID      func() string
	manualLoad bool

	cmds    chan func(*state)
	stopped chan struct{}
	runOnce sync.Once

	mu      sync.Mutex
	loading bool
}

func New(gw gateway.Gateway, notifier notify.Notifier, opts ...Option) *Syncer {
	s := &Syncer{
		gw:       gw,
		notifier: notifier,
		now:      time.Now,
		newID:    newActionID,
		cmds:     make(chan func(*state)),
		stopped:  make(chan struct{}),
	}
	if s.notifier == nil {
		s.notifier = notify.Log{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GatewayProbe reports the store reachable when Ping succeeds within timeout.
func GatewayProbe(gw gateway.Gateway, timeout time.Duration) func(ctx context.Context) bool {
	return func(ctx context.Context) bool {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return gw.Ping(ctx) == nil
	}
}

// Run owns the collection until ctx is done. It follows sess: a new identity
// clears the collection, re-subscribes and loads; losing the identity clears
// the collection and closes the subscription.
func (s *Syncer) Run(ctx context.Context, sess *session.Session) error {
	started := false
	s.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("task syncer already running")
	}
	defer close(s.stopped)

	ids, stopWatch := sess.Watch()
	defer stopWatch()

	st := &state{observers: s.observers}
	defer func() {
		st.unsubscribe()
		st.epoch++
		st.identity = nil
		st.reset(nil)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case id, ok := <-ids:
			if !ok {
				ids = nil
				s.switchIdentity(ctx, st, nil)
				continue
			}
			s.switchIdentity(ctx, st, id)
		case ev, ok := <-st.events:
			if !ok {
				log.Printf("task change feed closed for %s", st.identity.ID)
				st.events = nil
				st.sub = nil
				continue
			}
			st.apply(ev)
		case cmd := <-s.cmds:
			cmd(st)
		}
	}
}

func (s *Syncer) switchIdentity(ctx context.Context, st *state, id *auth.Identity) {
	if sameIdentity(st.identity, id) {
		return
	}
	st.unsubscribe()
	st.epoch++
	st.identity = id
	st.reset(nil)
	if id == nil {
		return
	}
	s.subscribe(ctx, st)
	if s.manualLoad {
		return
	}
	// Load needs the loop to apply its result, so it cannot run inline.
	go func() {
		if err := s.Load(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrStopped) {
			log.Printf("Error loading tasks: %v", err)
		}
	}()
}

func sameIdentity(a, b *auth.Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

// subscribe replaces the current change feed. Runs on the loop.
func (s *Syncer) subscribe(ctx context.Context, st *state) {
	st.unsubscribe()
	if st.identity == nil {
		return
	}
	sub, err := s.gw.Subscribe(ctx, st.identity.ID)
	if err != nil {
		log.Printf("Error subscribing to task changes: %v", err)
		s.notifier.Error(failureMessage("subscribe to task changes", err))
		return
	}
	st.sub = sub
	st.events = sub.Events()
}

// do runs fn on the loop and waits for it.
func (s *Syncer) do(ctx context.Context, fn func(*state)) error {
	done := make(chan struct{})
	select {
	case s.cmds <- func(st *state) { fn(st); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// current returns the identity and epoch an operation runs under.
func (s *Syncer) current(ctx context.Context) (*auth.Identity, uint64, error) {
	var (
		id    *auth.Identity
		epoch uint64
	)
	err := s.do(ctx, func(st *state) {
		id = st.identity
		epoch = st.epoch
	})
	return id, epoch, err
}

// commit runs fn on the loop only if the identity has not changed since
// epoch was read. The store has already accepted the result, so a loop that
// has stopped meanwhile only drops the collection change.
func (s *Syncer) commit(ctx context.Context, epoch uint64, fn func(*state)) error {
	err := s.do(ctx, func(st *state) {
		if st.epoch != epoch {
			log.Printf("Discarding result issued before identity change")
			return
		}
		fn(st)
	})
	if errors.Is(err, ErrStopped) {
		log.Printf("Discarding result issued after the syncer stopped")
		return nil
	}
	return err
}

// Identity returns the identity the collection belongs to.
func (s *Syncer) Identity(ctx context.Context) (*auth.Identity, error) {
	id, _, err := s.current(ctx)
	return id, err
}

// Snapshot returns a copy of the collection in storage order.
func (s *Syncer) Snapshot(ctx context.Context) ([]model.Task, error) {
	var out []model.Task
	err := s.do(ctx, func(st *state) { out = st.snapshot() })
	return out, err
}

// Loading reports whether a Load is in flight.
func (s *Syncer) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Syncer) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// Resubscribe closes the change feed and opens a new one for the current
// identity.
func (s *Syncer) Resubscribe(ctx context.Context) error {
	return s.do(ctx, func(st *state) { s.subscribe(ctx, st) })
}

// Load replaces the collection with the store's tasks for the current
// identity, newest first. Without an identity it does nothing. On failure
// the previous collection is kept.
func (s *Syncer) Load(ctx context.Context) error {
	id, epoch, err := s.current(ctx)
	if err != nil {
		return err
	}
	if id == nil {
		return nil
	}

	s.setLoading(true)
	defer s.setLoading(false)

	tasks, err := s.gw.Query(ctx, id.ID)
	if err != nil {
		log.Printf("Error fetching tasks: %v", err)
		s.notifier.Error(failureMessage("load tasks", err))
		return fmt.Errorf("load tasks: %w", err)
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	if err := s.commit(ctx, epoch, func(st *state) { st.reset(tasks) }); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.SaveTasks(tasks); err != nil {
			log.Printf("Warning: could not cache tasks offline: %v", err)
		}
	}
	return nil
}

// Create inserts a task owned by the current identity and prepends the
// stored row to the collection.
func (s *Syncer) Create(ctx context.Context, in model.TaskInsert) (model.Task, error) {
	return s.create(ctx, in, true)
}

func (s *Syncer) create(ctx context.Context, in model.TaskInsert, queue bool) (model.Task, error) {
	id, epoch, err := s.current(ctx)
	if err != nil {
		return model.Task{}, err
	}
	if id == nil {
		s.notifier.Error("Authentication required")
		return model.Task{}, ErrAuthRequired
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		s.notifier.Error("Failed to create task: title is required")
		return model.Task{}, fmt.Errorf("create task: title is required: %w", ErrInvalidInput)
	}
	in = in.Defaults()
	if err := validateInsert(in); err != nil {
		s.notifier.Error("Failed to create task: " + err.Error())
		return model.Task{}, err
	}

	if queue && s.offline(ctx) {
		return model.Task{}, s.enqueue(model.OfflineAction{Kind: model.ActionCreate, Insert: &in})
	}

	t, err := s.gw.Insert(ctx, id.ID, in)
	if err != nil {
		log.Printf("Create task error: %v", err)
		s.notifier.Error(failureMessage("create task", err))
		return model.Task{}, fmt.Errorf("create task: %w", err)
	}
	if err := s.commit(ctx, epoch, func(st *state) { st.prepend(t) }); err != nil {
		return model.Task{}, err
	}
	s.notifier.Success("Task created successfully")
	return t, nil
}

func validateInsert(in model.TaskInsert) error {
	if !in.Status.Valid() {
		return fmt.Errorf("unknown status %q: %w", in.Status, ErrInvalidInput)
	}
	if !in.Priority.Valid() {
		return fmt.Errorf("unknown priority %q: %w", in.Priority, ErrInvalidInput)
	}
	return nil
}

// Update sends a partial update with a fresh updated timestamp and replaces
// the task in place. Position in the collection does not change.
func (s *Syncer) Update(ctx context.Context, taskID string, u model.TaskUpdate) (model.Task, error) {
	return s.update(ctx, taskID, u, true)
}

func (s *Syncer) update(ctx context.Context, taskID string, u model.TaskUpdate, queue bool) (model.Task, error) {
	id, epoch, err := s.current(ctx)
	if err != nil {
		return model.Task{}, err
	}
	if id == nil {
		s.notifier.Error("Authentication required")
		return model.Task{}, ErrAuthRequired
	}
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		s.notifier.Error("Failed to update task: title is required")
		return model.Task{}, fmt.Errorf("update task: title is required: %w", ErrInvalidInput)
	}
	now := s.now()
	u.UpdatedAt = &now

	if queue && s.offline(ctx) {
		return model.Task{}, s.enqueue(model.OfflineAction{Kind: model.ActionUpdate, TaskID: taskID, Update: &u})
	}

	t, err := s.gw.Update(ctx, id.ID, taskID, u)
	if err != nil {
		log.Printf("Update task error: %v", err)
		s.notifier.Error(failureMessage("update task", err))
		return model.Task{}, fmt.Errorf("update task %s: %w", taskID, err)
	}
	if err := s.commit(ctx, epoch, func(st *state) { st.replace(t) }); err != nil {
		return model.Task{}, err
	}
	s.notifier.Success("Task updated successfully")
	return t, nil
}

// Delete removes the task from the store and then from the collection.
func (s *Syncer) Delete(ctx context.Context, taskID string) error {
	return s.delete(ctx, taskID, true)
}

func (s *Syncer) delete(ctx context.Context, taskID string, queue bool) error {
	id, epoch, err := s.current(ctx)
	if err != nil {
		return err
	}
	if id == nil {
		s.notifier.Error("Authentication required")
		return ErrAuthRequired
	}

	if queue && s.offline(ctx) {
		return s.enqueue(model.OfflineAction{Kind: model.ActionDelete, TaskID: taskID})
	}

	if err := s.gw.Delete(ctx, id.ID, taskID); err != nil {
		log.Printf("Delete task error: %v", err)
		s.notifier.Error(failureMessage("delete task", err))
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}
	if err := s.commit(ctx, epoch, func(st *state) { st.remove(taskID) }); err != nil {
		return err
	}
	s.notifier.Success("Task deleted successfully")
	return nil
}

// Share records a share for email and then assigns the task to email. The
// assignment is not attempted if the share could not be stored.
func (s *Syncer) Share(ctx context.Context, taskID, email string, perm model.Permission) (model.TaskShare, error) {
	id, _, err := s.current(ctx)
	if err != nil {
		return model.TaskShare{}, err
	}
	if id == nil {
		s.notifier.Error("Authentication required")
		return model.TaskShare{}, ErrAuthRequired
	}
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		s.notifier.Error("Failed to share task: a valid email is required")
		return model.TaskShare{}, fmt.Errorf("share task: invalid email %q: %w", email, ErrInvalidInput)
	}
	if perm == "" {
		perm = model.PermissionRead
	}

	share, err := s.gw.InsertShare(ctx, model.TaskShare{
		TaskID:          taskID,
		SharedWithEmail: email,
		SharedByUserID:  id.ID,
		Permission:      perm,
	})
	if err != nil {
		log.Printf("Share task error: %v", err)
		s.notifier.Error(failureMessage("share task", err))
		return model.TaskShare{}, fmt.Errorf("share task %s: %w", taskID, err)
	}

	if _, err := s.update(ctx, taskID, model.TaskUpdate{AssignedTo: model.String(email)}, false); err != nil {
		return share, err
	}
	s.notifier.Success("Task shared with " + email)
	return share, nil
}
