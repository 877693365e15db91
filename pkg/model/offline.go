package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionKind names the mutation an OfflineAction stands for.
type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
)

func (k *ActionKind) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch ActionKind(raw) {
	case ActionCreate, ActionUpdate, ActionDelete:
		*k = ActionKind(raw)
		return nil
	}
	return fmt.Errorf("unknown offline action %q", raw)
}

// OfflineAction is a mutation recorded while the gateway was unreachable.
// Exactly one payload field is set, matching Kind.
type OfflineAction struct {
	ID        string      `json:"id"`
	Kind      ActionKind  `json:"type"`
	Insert    *TaskInsert `json:"insert,omitempty"`
	Update    *TaskUpdate `json:"update,omitempty"`
	TaskID    string      `json:"task_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Validate checks that the payload matches the kind.
func (a OfflineAction) Validate() error {
	switch a.Kind {
	case ActionCreate:
		if a.Insert == nil {
			return fmt.Errorf("offline create %s has no insert payload", a.ID)
		}
	case ActionUpdate:
		if a.Update == nil || a.TaskID == "" {
			return fmt.Errorf("offline update %s needs a task id and update payload", a.ID)
		}
	case ActionDelete:
		if a.TaskID == "" {
			return fmt.Errorf("offline delete %s has no task id", a.ID)
		}
	default:
		return fmt.Errorf("offline action %s has unknown kind %q", a.ID, a.Kind)
	}
	return nil
}
