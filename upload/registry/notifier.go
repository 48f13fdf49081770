package registry

import "sync"

// Notifier receives the side effects of registry changes.
type Notifier interface {
	// EntityChanged is dispatched on the task's update event when a task is created or removed.
	EntityChanged(event, key string)
	// TaskCenterVisibility toggles the global task list.
	TaskCenterVisibility(show bool)
}

// NopNotifier ...
type NopNotifier struct{}

// EntityChanged ...
func (NopNotifier) EntityChanged(string, string) {}

// TaskCenterVisibility ...
func (NopNotifier) TaskCenterVisibility(bool) {}

// EventKind ...
type EventKind int

const (
	// EventEntityChanged ...
	EventEntityChanged EventKind = iota
	// EventTaskCenterVisibility ...
	EventTaskCenterVisibility
)

func (k EventKind) String() string {
	switch k {
	case EventEntityChanged:
		return "entity-changed"
	case EventTaskCenterVisibility:
		return "task-center-visibility"
	default:
		return "unknown"
	}
}

// Event is a notification delivered by Bus.
// Name and Key are set for EventEntityChanged, Show for EventTaskCenterVisibility.
type Event struct {
	Kind EventKind
	Name string
	Key  string
	Show bool
}

// Bus is a Notifier fanning events out to subscribers in subscription order.
type Bus struct {
	mu          sync.Mutex
	subscribers []subscriber
	nextID      int
}

type subscriber struct {
	id int
	fn func(Event)
}

// NewBus ...
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for every subsequent event and returns a function removing it.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers = append(b.subscribers, subscriber{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subscribers {
			if s.id == id {
				b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
				return
			}
		}
	}
}

// EntityChanged ...
func (b *Bus) EntityChanged(event, key string) {
	b.dispatch(Event{Kind: EventEntityChanged, Name: event, Key: key})
}

// TaskCenterVisibility ...
func (b *Bus) TaskCenterVisibility(show bool) {
	b.dispatch(Event{Kind: EventTaskCenterVisibility, Show: show})
}

func (b *Bus) dispatch(e Event) {
	b.mu.Lock()
	subscribers := make([]subscriber, len(b.subscribers))
	copy(subscribers, b.subscribers)
	b.mu.Unlock()

	for _, s := range subscribers {
		s.fn(e)
	}
}
