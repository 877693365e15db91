// Package gateway defines the contract the sync layer consumes from the
// remote task store: request/response CRUD over the tasks collection plus a
// push channel of row changes, scoped to an owner.
package gateway

import (
	"context"
	"errors"

	"github.com/harrisonrobin/taskflow/pkg/model"
)

var (
	// ErrPermissionDenied means a row-level policy rejected the operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrPolicyRecursion means a row-level policy references itself. It is a
	// server misconfiguration the user has to fix.
	ErrPolicyRecursion = errors.New("infinite recursion detected in policy")
	// ErrNotFound means the schema (or the requested row) does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotConfigured means no store connection has been set up.
	ErrNotConfigured = errors.New("task store not configured")
	// ErrRemote is any other store failure.
	ErrRemote = errors.New("remote store failure")
)

// EventKind is the type of a change-feed event.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
)

// Event is one row change. For deletes only Task.ID is guaranteed.
type Event struct {
	Kind EventKind  `json:"type"`
	Task model.Task `json:"record"`
}

// Subscription is a live change feed. Events is closed after Close returns
// or when the feed fails.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Gateway is the remote data gateway.
type Gateway interface {
	// Query returns the tasks owned by ownerID, newest first.
	Query(ctx context.Context, ownerID string) ([]model.Task, error)
	// Insert stores a new task for ownerID and returns the stored row with
	// server-assigned id and timestamps.
	Insert(ctx context.Context, ownerID string, in model.TaskInsert) (model.Task, error)
	// Update applies a partial update to one of ownerID's tasks and returns
	// the stored row.
	Update(ctx context.Context, ownerID, id string, u model.TaskUpdate) (model.Task, error)
	Delete(ctx context.Context, ownerID, id string) error
	InsertShare(ctx context.Context, share model.TaskShare) (model.TaskShare, error)
	UpsertProfile(ctx context.Context, p model.Profile) error
	// Subscribe opens a change feed restricted to ownerID's tasks.
	Subscribe(ctx context.Context, ownerID string) (Subscription, error)
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
