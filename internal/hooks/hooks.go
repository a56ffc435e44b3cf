// Package hooks provides an event-driven hook system for dankbot lifecycle
// and message events.
package hooks

import (
	"context"
	"sync"

	"github.com/gammazero/workerpool"

	"github.com/soyeahso/dankbot/internal/logging"
)

// Event names for the hook system.
const (
	EventMessageReceived = "message_received"
	EventCommandMatched  = "command_matched"
	EventMessageSending  = "message_sending"
	EventConnected       = "connected"
	EventDisconnected    = "disconnected"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventMessageReceived,
	EventCommandMatched,
	EventMessageSending,
	EventConnected,
	EventDisconnected,
}

// DefaultAsyncWorkers bounds concurrent async hook handlers.
const DefaultAsyncWorkers = 4

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler is a function that handles a hook event.
// Returning an error logs the failure but does not stop processing.
type Handler func(ctx context.Context, p Payload) error

// Manager manages hook registrations and dispatches events.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	pool     *workerpool.WorkerPool
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
	async   bool
}

// NewManager creates a hook manager whose async handlers run on a pool of
// DefaultAsyncWorkers goroutines.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		pool:     workerpool.New(DefaultAsyncWorkers),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for the given event.
// The name identifies the handler for logging and debugging.
func (m *Manager) On(event, name string, handler Handler) {
	m.add(event, namedHandler{name: name, handler: handler})
}

// OnAsync registers a handler that always runs on the async pool, even
// when the event is emitted with Emit.
func (m *Manager) OnAsync(event, name string, handler Handler) {
	m.add(event, namedHandler{name: name, handler: handler, async: true})
}

func (m *Manager) add(event string, h namedHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], h)
	m.log.Debug().Str("event", event).Str("handler", h.name).Bool("async", h.async).Msg("hook registered")
}

// Off removes all handlers with the given name from the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := m.handlers[event]
	filtered := make([]namedHandler, 0, len(handlers))
	for _, h := range handlers {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	m.handlers[event] = filtered
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handlers := make([]namedHandler, len(m.handlers[event]))
	copy(handlers, m.handlers[event])
	return handlers
}

// Emit dispatches an event to all registered handlers. Synchronous
// handlers are called in registration order; errors are logged but do not
// prevent subsequent handlers from running.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}

	payload := Payload{Event: event, Data: data}

	for _, h := range handlers {
		if h.async {
			m.submit(ctx, payload, h)
			continue
		}
		if err := h.handler(ctx, payload); err != nil {
			m.log.Warn().
				Err(err).
				Str("event", event).
				Str("handler", h.name).
				Msg("hook handler error")
		}
	}
}

// EmitAsync queues an event for every registered handler on the async pool.
// Returns immediately; handler errors are logged.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}

	payload := Payload{Event: event, Data: data}
	for _, h := range handlers {
		m.submit(ctx, payload, h)
	}
}

func (m *Manager) submit(ctx context.Context, p Payload, h namedHandler) {
	if m.pool.Stopped() {
		return
	}
	m.pool.Submit(func() {
		if err := h.handler(ctx, p); err != nil {
			m.log.Warn().
				Err(err).
				Str("event", p.Event).
				Str("handler", h.name).
				Msg("async hook handler error")
		}
	})
}

// Close waits for queued async handlers and stops the pool.
func (m *Manager) Close() {
	m.pool.StopWait()
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the list of events that have at least one handler registered.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	return events
}
