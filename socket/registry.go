package socket

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/kleeedolinux/hostel-realtime/debug"
)

// Listener handles a dispatched event. A returned error or a panic is logged and
// does not stop delivery to the remaining listeners.
type Listener func(data interface{}) error

// ListenerID identifies one registration. Registering the same function twice
// yields two IDs.
type ListenerID uint64

type registration struct {
	id ListenerID
	fn Listener
}

// PanicError wraps a value recovered from a panicking listener.
type PanicError struct {
	Event Event
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("listener for %q panicked: %v", e.Event, e.Value)
}

// Registry is a local publish/subscribe table keyed by event name.
type Registry struct {
	mu       sync.RWMutex
	nextID   ListenerID
	handlers map[Event][]registration

	log       *slog.Logger
	onFailure func(event Event, err error)
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = debug.Discard()
	}
	return &Registry{
		handlers: make(map[Event][]registration),
		log:      log,
	}
}

// On appends fn to the listeners of event.
func (r *Registry) On(event Event, fn Listener) ListenerID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.handlers[event] = append(r.handlers[event], registration{id: id, fn: fn})
	return id
}

// Off removes the registration id from event. It reports whether one was removed.
func (r *Registry) Off(event Event, id ListenerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.handlers[event]
	for i, reg := range regs {
		if reg.id != id {
			continue
		}

		next := make([]registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		if len(next) == 0 {
			delete(r.handlers, event)
		} else {
			r.handlers[event] = next
		}
		return true
	}
	return false
}

// Dispatch invokes the listeners registered for event when the call starts, in
// registration order.
func (r *Registry) Dispatch(event Event, data interface{}) {
	r.mu.RLock()
	handlers := r.handlers[event]
	r.mu.RUnlock()

	debug.Printf("Registry: Triggering event %s with %d handlers", event, len(handlers))

	for _, reg := range handlers {
		if err := r.invoke(event, reg.fn, data); err != nil {
			r.log.Error("event listener failed", "event", string(event), "listener", uint64(reg.id), "error", err)
			if r.onFailure != nil {
				r.onFailure(event, err)
			}
		}
	}
}

func (r *Registry) invoke(event Event, fn Listener, data interface{}) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Event: event, Value: v}
		}
	}()
	return fn(data)
}

// Listeners returns the number of registrations for event.
func (r *Registry) Listeners(event Event) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[event])
}

// Reset drops every registration.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[Event][]registration)
}
