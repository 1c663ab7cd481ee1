package engine

import "sync"

// EventType identifies what happened.
type EventType string

const (
	// EventLoadCompleted fires after a progressive loader's initial load.
	EventLoadCompleted EventType = "load_completed"

	// EventCacheEvicted fires after a bulk eviction pass.
	EventCacheEvicted EventType = "cache_evicted"
)

// Event is one engine notification.
type Event struct {
	Type EventType
	Keys int
	Err  error
}

// Listener receives engine events.
type Listener func(Event)

// Notifier is an explicit observer list: consumers subscribe for engine
// events and get an unsubscribe handle back. It replaces any module-level
// listener singleton; the engine owns exactly one instance.
type Notifier struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{listeners: make(map[int]Listener)}
}

// Subscribe registers a listener and returns its unsubscribe function.
// Unsubscribing twice is harmless.
func (n *Notifier) Subscribe(fn Listener) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.listeners[id] = fn

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listeners, id)
	}
}

// Publish delivers the event to every current listener. Listeners run on the
// publisher's goroutine; they must not block.
func (n *Notifier) Publish(ev Event) {
	n.mu.Lock()
	fns := make([]Listener, 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Len returns the number of active listeners.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}
