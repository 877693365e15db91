package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/gateway"
	"github.com/harrisonrobin/taskflow/pkg/model"
	"github.com/lib/pq"
)

const (
	minReconnect = 10 * time.Second
	maxReconnect = time.Minute
	feedBuffer   = 64
	fetchTimeout = 10 * time.Second
)

// Subscribe opens a dedicated LISTEN connection and forwards the changes of
// ownerID's rows. Changes to other owners' rows are dropped here. The
// notifications carry only the row key, so inserts and updates are read back
// before they are forwarded.
func (g *Gateway) Subscribe(ctx context.Context, ownerID string) (gateway.Subscription, error) {
	listener := pq.NewListener(g.dsn, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("task feed: listener event %d: %v", ev, err)
		}
	})
	if err := listener.Listen(ChangeChannel); err != nil {
		listener.Close()
		return nil, classify("subscribe", err)
	}

	sub := &subscription{
		listener: listener,
		owner:    ownerID,
		fetch: func(ctx context.Context, id string) (model.Task, error) {
			return g.fetch(ctx, ownerID, id)
		},
		events:   make(chan gateway.Event, feedBuffer),
		done:     make(chan struct{}),
	}
	go sub.run(ctx)
	return sub, nil
}

type subscription struct {
	listener *pq.Listener
	owner    string
	fetch    func(ctx context.Context, id string) (model.Task, error)
	events   chan gateway.Event
	done     chan struct{}
	once     sync.Once
}

func (s *subscription) Events() <-chan gateway.Event {
	return s.events
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.listener.Close()
	})
	return err
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.events)
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.done:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			// A nil notification follows a reconnect; rows may have changed
			// while disconnected but there is nothing to replay.
			if n == nil {
				continue
			}
			ev, err := decodeEvent(n.Extra)
			if err != nil {
				log.Printf("task feed: %v", err)
				continue
			}
			if ev.Task.UserID != s.owner {
				continue
			}
			if ev, ok = s.resolve(ctx, ev); !ok {
				continue
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			case <-ctx.Done():
				s.Close()
				return
			}
		}
	}
}

// resolve replaces the key of an insert or update with the stored row. It
// reports false when the row can no longer be read.
func (s *subscription) resolve(ctx context.Context, ev gateway.Event) (gateway.Event, bool) {
	if ev.Kind == gateway.EventDelete {
		return ev, true
	}
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	t, err := s.fetch(fetchCtx, ev.Task.ID)
	if errors.Is(err, gateway.ErrNotFound) {
		// Deleted since; its own delete notification follows.
		return ev, false
	}
	if err != nil {
		log.Printf("task feed: %v", err)
		return ev, false
	}
	ev.Task = t
	return ev, true
}

func decodeEvent(payload string) (gateway.Event, error) {
	var ev gateway.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return gateway.Event{}, fmt.Errorf("could not decode change payload: %w", err)
	}
	switch ev.Kind {
	case gateway.EventInsert, gateway.EventUpdate, gateway.EventDelete:
	default:
		return gateway.Event{}, fmt.Errorf("unknown change type %q", ev.Kind)
	}
	if ev.Task.ID == "" {
		return gateway.Event{}, fmt.Errorf("%s change without a row id", ev.Kind)
	}
	return ev, nil
}
