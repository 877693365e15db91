// Package session holds the current authenticated identity. A Session is
// created at startup, follows the identity provider's change stream and is
// closed at shutdown; consumers watch it instead of reading global state.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/auth"
	"github.com/harrisonrobin/taskflow/pkg/model"
	"github.com/harrisonrobin/taskflow/pkg/notify"
)

const profileTimeout = 10 * time.Second

// ProfileStore records the profile of a user who just signed in.
type ProfileStore interface {
	UpsertProfile(ctx context.Context, p model.Profile) error
}

type Session struct {
	provider auth.Provider
	profiles ProfileStore
	notifier notify.Notifier

	mu       sync.Mutex
	current  *auth.Identity
	loading  bool
	closed   bool
	watchers map[int]chan *auth.Identity
	nextID   int
	cancel   context.CancelFunc
	done     chan struct{}
}

// New returns a Session in the loading state. profiles may be nil.
func New(provider auth.Provider, profiles ProfileStore, notifier notify.Notifier) *Session {
	return &Session{
		provider: provider,
		profiles: profiles,
		notifier: notifier,
		loading:  true,
		watchers: make(map[int]chan *auth.Identity),
		done:     make(chan struct{}),
	}
}

// Start reads the initial session and then follows the provider's changes
// until ctx is cancelled or Close is called.
func (s *Session) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	id, err := s.provider.Session(ctx)
	if err != nil {
		log.Printf("Error getting session: %v", err)
	}
	s.set(ctx, id, false)

	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case next, ok := <-s.provider.Changes():
				if !ok {
					return
				}
				s.set(ctx, next, true)
			}
		}
	}()
	return err
}

// Current returns the signed-in identity, or nil.
func (s *Session) Current() *auth.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Loading reports whether the initial session is still being resolved.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Watch returns a channel carrying every identity transition, starting with
// the current identity once it is known. Only the most recent value is kept
// for a slow reader. The channel is closed by the returned cancel func or by
// Close.
func (s *Session) Watch() (<-chan *auth.Identity, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan *auth.Identity, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	if !s.loading {
		ch <- s.current
	}
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if w, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(w)
		}
	}
}

// Close stops following the provider and closes every watcher.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	for id, w := range s.watchers {
		delete(s.watchers, id)
		close(w)
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-s.done
	}
}

func sameIdentity(a, b *auth.Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

func (s *Session) set(ctx context.Context, id *auth.Identity, signedIn bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	wasLoading := s.loading
	s.loading = false
	if !wasLoading && sameIdentity(s.current, id) {
		s.current = id
		s.mu.Unlock()
		return
	}
	s.current = id
	for _, w := range s.watchers {
		select {
		case <-w:
		default:
		}
		w <- id
	}
	s.mu.Unlock()

	if signedIn && id != nil {
		s.upsertProfile(ctx, id)
	}
}

func (s *Session) upsertProfile(ctx context.Context, id *auth.Identity) {
	if s.profiles == nil {
		return
	}
	name := id.FullName
	if name == "" {
		name = id.Email
	}
	p := model.Profile{ID: id.ID, Name: name, Email: id.Email, UpdatedAt: time.Now()}
	if id.FullName != "" {
		p.FullName = model.String(id.FullName)
	}
	if id.Avatar != "" {
		p.Avatar = model.String(id.Avatar)
	}
	// A shutdown racing the sign-in must not cut the profile write short.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), profileTimeout)
	defer cancel()
	if err := s.profiles.UpsertProfile(ctx, p); err != nil {
		log.Printf("Error updating profile: %v", err)
		if s.notifier != nil {
			s.notifier.Error("Error setting up profile: " + err.Error())
		}
		return
	}
	if s.notifier != nil {
		s.notifier.Success("Welcome to taskflow!")
	}
}
