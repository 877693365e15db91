package tasks

import (
	"errors"
	"fmt"

	"github.com/harrisonrobin/taskflow/pkg/gateway"
)

var (
	ErrAuthRequired  = errors.New("authentication required")
	ErrInvalidInput  = errors.New("invalid input")
	ErrQueuedOffline = errors.New("offline: action queued for replay")
	ErrStopped       = errors.New("task syncer stopped")
)

// failureMessage turns a failed operation into the text shown to the user.
func failureMessage(action string, err error) string {
	switch {
	case errors.Is(err, gateway.ErrPolicyRecursion):
		return "Database configuration error. Please check RLS policies."
	case errors.Is(err, gateway.ErrPermissionDenied):
		return "Permission denied. Please check your authentication."
	case errors.Is(err, gateway.ErrNotConfigured):
		return "Database not configured"
	case errors.Is(err, gateway.ErrNotFound) && action == "load tasks":
		return "Database tables not found. Please run the database migration."
	}
	return fmt.Sprintf("Failed to %s: %v", action, err)
}
