package chatwire

import (
	"sync"
)

// FrameHandler receives inbound frames of a subscribed type.
type FrameHandler func(frame *Frame)

// SubscriptionID identifies one handler registration.
type SubscriptionID uint64

type handlerEntry struct {
	id      SubscriptionID
	handler FrameHandler
}

// dispatcher fans inbound frames out to handlers registered per frame
// type. Registrations are keyed by the typed FrameType constants, so a
// typo'd event name fails at compile time rather than registering a
// handler nothing will ever call.
//
// Handlers run in registration order. A panicking handler is recovered
// and logged; the remaining handlers for the frame still run. The
// registry belongs to the caller and survives reconnects.
type dispatcher struct {
	mu       sync.RWMutex
	handlers map[FrameType][]handlerEntry
	nextID   SubscriptionID
	logger   Logger
}

func newDispatcher(logger Logger) *dispatcher {
	return &dispatcher{
		handlers: make(map[FrameType][]handlerEntry),
		logger:   logger,
	}
}

// Subscribe registers a handler for a frame type and returns its
// registration ID. The same function can be registered more than once;
// each registration is dispatched and removed independently.
func (d *dispatcher) Subscribe(kind FrameType, handler FrameHandler) SubscriptionID {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.handlers[kind] = append(d.handlers[kind], handlerEntry{id: id, handler: handler})
	return id
}

// Unsubscribe removes exactly one registration. Returns false if the ID
// is not registered under the given frame type.
func (d *dispatcher) Unsubscribe(kind FrameType, id SubscriptionID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := d.handlers[kind]
	for i, entry := range entries {
		if entry.id == id {
			d.handlers[kind] = append(entries[:i], entries[i+1:]...)
			if len(d.handlers[kind]) == 0 {
				delete(d.handlers, kind)
			}
			return true
		}
	}
	return false
}

// Dispatch delivers a frame to every handler registered for its type,
// in registration order.
func (d *dispatcher) Dispatch(frame *Frame) {
	d.mu.RLock()
	entries := make([]handlerEntry, len(d.handlers[frame.Type]))
	copy(entries, d.handlers[frame.Type])
	d.mu.RUnlock()

	for _, entry := range entries {
		d.invoke(entry, frame)
	}
}

// invoke isolates handler panics so one broken handler cannot starve
// the rest or kill the read loop.
func (d *dispatcher) invoke(entry handlerEntry, frame *Frame) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("frame handler panicked", LogFields{
				LogFieldFrameType: string(frame.Type),
				LogFieldError:     r,
			})
		}
	}()
	entry.handler(frame)
}
