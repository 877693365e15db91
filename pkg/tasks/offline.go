package tasks

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/harrisonrobin/taskflow/pkg/model"
)

func newActionID() string {
	return uuid.NewString()
}

func (s *Syncer) offline(ctx context.Context) bool {
	if s.cache == nil || s.online == nil {
		return false
	}
	return !s.online(ctx)
}

func (s *Syncer) enqueue(action model.OfflineAction) error {
	action.ID = s.newID()
	action.Timestamp = s.now()
	if err := s.cache.Enqueue(action); err != nil {
		s.notifier.Error("Failed to queue offline change: " + err.Error())
		return fmt.Errorf("queue offline %s: %w", action.Kind, err)
	}
	s.notifier.Success(fmt.Sprintf("Offline: %s queued", action.Kind))
	return ErrQueuedOffline
}

// ReplayOffline sends queued actions to the store oldest first and removes
// each one that succeeds. It stops at the first failure and leaves that
// action and the rest queued. Actions are replayed as recorded; nothing is
// reconciled against changes made on the server in the meantime.
func (s *Syncer) ReplayOffline(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	actions, err := s.cache.Actions()
	if err != nil {
		return 0, fmt.Errorf("read offline actions: %w", err)
	}
	replayed := 0
	for _, a := range actions {
		if err := a.Validate(); err != nil {
			log.Printf("Dropping malformed offline action: %v", err)
			if err := s.cache.RemoveAction(a.ID); err != nil {
				return replayed, err
			}
			continue
		}
		switch a.Kind {
		case model.ActionCreate:
			_, err = s.create(ctx, *a.Insert, false)
		case model.ActionUpdate:
			_, err = s.update(ctx, a.TaskID, *a.Update, false)
		case model.ActionDelete:
			err = s.delete(ctx, a.TaskID, false)
		}
		if err != nil {
			return replayed, fmt.Errorf("replay offline %s %s: %w", a.Kind, a.ID, err)
		}
		if err := s.cache.RemoveAction(a.ID); err != nil {
			return replayed, fmt.Errorf("remove replayed action %s: %w", a.ID, err)
		}
		replayed++
	}
	return replayed, nil
}
