package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Permission is the access level a share grants.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

func ParsePermission(s string) (Permission, error) {
	switch Permission(s) {
	case PermissionRead, PermissionWrite:
		return Permission(s), nil
	case "":
		return PermissionRead, nil
	}
	return "", fmt.Errorf("unknown permission %q", s)
}

func (p *Permission) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParsePermission(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// TaskShare grants an email-identified recipient access to one task.
// Shares are never mutated once created.
type TaskShare struct {
	ID              string     `json:"id"`
	TaskID          string     `json:"task_id"`
	SharedWithEmail string     `json:"shared_with_email"`
	SharedByUserID  string     `json:"shared_by_user_id"`
	Permission      Permission `json:"permission"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Profile is the public record of a signed-in user.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	FullName  *string   `json:"full_name"`
	Avatar    *string   `json:"avatar"`
	UpdatedAt time.Time `json:"updated_at"`
}
