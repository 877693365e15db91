package tasks

import (
	"github.com/harrisonrobin/taskflow/pkg/auth"
	"github.com/harrisonrobin/taskflow/pkg/gateway"
	"github.com/harrisonrobin/taskflow/pkg/model"
)

// Observer is told about every change to the collection. Calls come from the
// syncer's loop goroutine and must not block.
type Observer interface {
	TaskChanged(t model.Task)
	TaskRemoved(id string)
	Reset(tasks []model.Task)
}

// state is owned by the loop goroutine; nothing else touches it.
type state struct {
	identity  *auth.Identity
	epoch     uint64
	tasks     []model.Task
	sub       gateway.Subscription
	events    <-chan gateway.Event
	observers []Observer
}

func (st *state) index(id string) int {
	for i, t := range st.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (st *state) snapshot() []model.Task {
	out := make([]model.Task, len(st.tasks))
	for i, t := range st.tasks {
		out[i] = t.Clone()
	}
	return out
}

// prepend adds t at the front unless a task with its id is already present,
// in which case that entry is replaced.
func (st *state) prepend(t model.Task) {
	if i := st.index(t.ID); i >= 0 {
		st.tasks[i] = t
	} else {
		st.tasks = append([]model.Task{t}, st.tasks...)
	}
	for _, o := range st.observers {
		o.TaskChanged(t.Clone())
	}
}

// replace swaps the entry with t's id in place. Absent ids are ignored.
func (st *state) replace(t model.Task) bool {
	i := st.index(t.ID)
	if i < 0 {
		return false
	}
	st.tasks[i] = t
	for _, o := range st.observers {
		o.TaskChanged(t.Clone())
	}
	return true
}

func (st *state) remove(id string) bool {
	i := st.index(id)
	if i < 0 {
		return false
	}
	st.tasks = append(st.tasks[:i:i], st.tasks[i+1:]...)
	for _, o := range st.observers {
		o.TaskRemoved(id)
	}
	return true
}

func (st *state) reset(tasks []model.Task) {
	st.tasks = tasks
	for _, o := range st.observers {
		o.Reset(st.snapshot())
	}
}

func (st *state) apply(ev gateway.Event) {
	switch ev.Kind {
	case gateway.EventInsert:
		if st.index(ev.Task.ID) < 0 {
			st.prepend(ev.Task)
		}
	case gateway.EventUpdate:
		st.replace(ev.Task)
	case gateway.EventDelete:
		st.remove(ev.Task.ID)
	}
}

func (st *state) unsubscribe() {
	if st.sub != nil {
		st.sub.Close()
	}
	st.sub = nil
	st.events = nil
}
