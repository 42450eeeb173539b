// Package bus provides the typed publish/subscribe primitive plugins use for
// fire-and-forget coordination. Handlers of one event run concurrently;
// handler failures are isolated from each other and from the publisher. A
// plugin that needs a guaranteed reply must use the service registry instead.
package bus

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
)

// Handler receives the payload of one published event.
type Handler func(ctx context.Context, payload map[string]any) error

// subscription pairs a handler with an identity token so Unsubscribe can
// match by function identity.
type subscription struct {
	id      uintptr
	handler Handler
}

// Bus is the in-process event bus.
type Bus struct {
	mu       sync.Mutex
	handlers map[string][]subscription
	logger   *slog.Logger
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[string][]subscription),
		logger:   logger,
	}
}

func handlerID(h Handler) uintptr {
	return reflect.ValueOf(h).Pointer()
}

// Subscribe appends handler to the event type's list. Subscribing the same
// handler twice is tolerated but discouraged; it will run twice per publish.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], subscription{
		id:      handlerID(handler),
		handler: handler,
	})
}

// Unsubscribe removes the first subscription of handler for the event type.
func (b *Bus) Unsubscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := handlerID(handler)
	subs := b.handlers[eventType]
	for i, s := range subs {
		if s.id == id {
			b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers payload to every handler currently subscribed to the
// event type. Handlers run concurrently; Publish returns only after all of
// them have finished. Errors and panics inside handlers are logged and
// discarded, so one handler cannot prevent others from running or fail the
// publisher.
func (b *Bus) Publish(ctx context.Context, eventType string, payload map[string]any) {
	b.mu.Lock()
	subs := make([]subscription, len(b.handlers[eventType]))
	copy(subs, b.handlers[eventType])
	b.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		go func(s subscription) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked", "event", eventType, "panic", r)
				}
			}()
			if err := s.handler(ctx, payload); err != nil {
				b.logger.Error("event handler failed", "event", eventType, "error", err)
			}
		}(s)
	}
	wg.Wait()
}

// SubscriberCount returns the number of handlers for an event type.
func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[eventType])
}

// Clear drops every subscription.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[string][]subscription)
}
