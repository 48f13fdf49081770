// Package registry keeps the ordered, observable list of running upload tasks.
package registry

import (
	"context"
	"sync"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Registry is the list of upload tasks, newest first. At most one task exists per key.
// Every mutation delivers a fresh snapshot to the watchers.
type Registry struct {
	notifier Notifier
	logger   log.Logger

	mu          sync.Mutex
	tasks       []Task
	watchers    map[int]func([]Task)
	nextWatchID int
}

// New ...
func New(notifier Notifier, logger log.Logger) *Registry {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Registry{
		notifier: notifier,
		logger:   logger,
		watchers: map[int]func([]Task){},
	}
}

// Create inserts t at the front of the list. If a task with the same key exists it is replaced in place.
func (r *Registry) Create(t Task) {
	r.mu.Lock()
	if i := r.indexOf(t.Key); i >= 0 {
		r.tasks[i] = t
	} else {
		r.tasks = append([]Task{t}, r.tasks...)
	}
	r.publish()
	r.mu.Unlock()

	if t.UpdateEvent != "" {
		r.notifier.EntityChanged(t.UpdateEvent, t.Key)
	}
}

// Update replaces the task with the same key, keeping its position.
// It reports false if no such task exists.
func (r *Registry) Update(t Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(t.Key)
	if i < 0 {
		return false
	}
	r.tasks[i] = t
	r.publish()
	return true
}

// Mutate applies fn to the stored task with the given key and returns the result.
// fn runs under the registry lock, so it must not call back into the registry.
func (r *Registry) Mutate(key string, fn func(*Task)) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(key)
	if i < 0 {
		return Task{}, false
	}
	fn(&r.tasks[i])
	r.tasks[i].Key = key
	r.publish()
	return r.tasks[i], true
}

// Get ...
func (r *Registry) Get(key string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(key)
	if i < 0 {
		return Task{}, false
	}
	return r.tasks[i], true
}

// Snapshot returns a copy of the task list.
func (r *Registry) Snapshot() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Len ...
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Remove deletes the task with t's key.
// If t is marked as cancelled and carries a cancellation strategy, the transfer is aborted
// and the server is notified before the task disappears. A failed notification is only logged.
func (r *Registry) Remove(ctx context.Context, t Task) bool {
	if t.IsCancel && t.Cancellation != nil {
		t.Cancellation.Abort()
		if err := t.Cancellation.NotifyServer(ctx, t.RequestID); err != nil {
			r.logger.Warnf("Failed to cancel upload %d on the server: %s", t.RequestID, err)
		}
	}

	r.mu.Lock()
	i := r.indexOf(t.Key)
	if i >= 0 {
		r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
		r.publish()
	}
	r.mu.Unlock()

	if i < 0 {
		return false
	}

	if t.UpdateEvent != "" {
		r.notifier.EntityChanged(t.UpdateEvent, t.Key)
	}
	r.notifier.TaskCenterVisibility(false)
	return true
}

// SetTaskCenterVisible ...
func (r *Registry) SetTaskCenterVisible(show bool) {
	r.notifier.TaskCenterVisibility(show)
}

// Watch registers fn to receive a snapshot after every mutation.
// fn is called with the registry locked and must not call back into it.
func (r *Registry) Watch(fn func([]Task)) (stop func()) {
	r.mu.Lock()
	id := r.nextWatchID
	r.nextWatchID++
	r.watchers[id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.watchers, id)
			r.mu.Unlock()
		})
	}
}

func (r *Registry) indexOf(key string) int {
	for i, t := range r.tasks {
		if t.Key == key {
			return i
		}
	}
	return -1
}

func (r *Registry) snapshot() []Task {
	tasks := make([]Task, len(r.tasks))
	copy(tasks, r.tasks)
	return tasks
}

func (r *Registry) publish() {
	for _, fn := range r.watchers {
		fn(r.snapshot())
	}
}
