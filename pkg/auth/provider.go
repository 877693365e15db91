package auth

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrUserExists         = errors.New("user already registered")
	ErrUnsupported        = errors.New("operation not supported by this provider")
)

// Identity is an authenticated user.
type Identity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// Provider is the identity provider. Changes delivers the new identity (or
// nil after sign-out) every time the session transitions.
type Provider interface {
	Session(ctx context.Context) (*Identity, error)
	Changes() <-chan *Identity
	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
}

// broadcaster fans session transitions out to the provider's Changes
// channel. Only the latest transition matters, so a full buffer is replaced.
type broadcaster struct {
	mu sync.Mutex
	ch chan *Identity
}

func newBroadcaster() *broadcaster {
	return &broadcaster{ch: make(chan *Identity, 1)}
}

func (b *broadcaster) Changes() <-chan *Identity {
	return b.ch
}

func (b *broadcaster) emit(id *Identity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.ch:
	default:
	}
	b.ch <- id
}
