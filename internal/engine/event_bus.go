package engine

import (
	"sync"

	"github.com/postflow/engage/internal/entities"
)

// EventHandler processes normalized engagement events.
type EventHandler func(event *entities.Event)

const (
	// defaultBusBuffer is the capacity of the async event channel. Events
	// are dropped if the buffer is full to avoid blocking the ingest path.
	defaultBusBuffer = 1000
)

// EventBus is an async pub/sub for normalized events. Publish is
// non-blocking: events go to a buffered channel and are handed to
// subscribers by a worker goroutine, so webhook handlers are never blocked
// by matching, admission or DB writes.
type EventBus struct {
	handlers []EventHandler
	mu       sync.RWMutex
	eventCh  chan *entities.Event
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewEventBus creates a new event bus and starts its worker. A non-positive
// buffer falls back to the default capacity.
func NewEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = defaultBusBuffer
	}
	b := &EventBus{
		handlers: make([]EventHandler, 0),
		eventCh:  make(chan *entities.Event, buffer),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.processLoop()
	return b
}

// Subscribe registers a handler for events.
func (b *EventBus) Subscribe(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish enqueues an event for async processing. Non-blocking: if the
// buffer is full the event is dropped to protect the ingest hot path.
// Events are silently discarded after Stop() has been called.
func (b *EventBus) Publish(event *entities.Event) {
	select {
	case <-b.stopCh:
		return
	default:
	}

	select {
	case b.eventCh <- event:
	default:
		// Buffer full — drop event to avoid blocking callers
	}
}

// Stop shuts down the worker goroutine, draining queued events first.
// Safe to call multiple times; returns after the worker has exited.
func (b *EventBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	<-b.done
}

// processLoop drains the event channel and dispatches to handlers.
func (b *EventBus) processLoop() {
	defer close(b.done)
	for {
		select {
		case event := <-b.eventCh:
			b.dispatch(event)
		case <-b.stopCh:
			// Drain remaining events before exiting
			for {
				select {
				case event := <-b.eventCh:
					b.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (b *EventBus) dispatch(event *entities.Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.safeCall(handler, event)
	}
}

// safeCall invokes a handler with panic recovery so a panicking handler
// cannot kill the bus goroutine.
func (b *EventBus) safeCall(handler EventHandler, event *entities.Event) {
	defer func() {
		recover() //nolint:errcheck // intentionally swallowed to keep bus alive
	}()
	handler(event)
}
