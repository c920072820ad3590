// Package signal provides a small name-addressed signal hub for decoupling
// session internals from UI-facing listeners.
//
// It offers best-effort, synchronous fan-out with no delivery, ordering, or
// durability guarantees; it is intended for notifications and side effects,
// not for core logic.
package signal

import "sync"

// Handler consumes one signal payload.
type Handler func(payload string)

// Hub fans signals out to listeners registered by name.
// The zero value is not usable; call NewHub.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]Handler
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]Handler)}
}

// Subscribe registers a handler for the named signal and returns a cancel
// function. Cancel is idempotent.
func (h *Hub) Subscribe(name string, fn Handler) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[name] == nil {
		h.subs[name] = make(map[int]Handler)
	}
	id := h.next
	h.next++
	h.subs[name][id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[name], id)
	}
}

// Emit delivers the payload to every handler registered for name.
// Handlers run synchronously on the caller's goroutine.
func (h *Hub) Emit(name, payload string) {
	h.mu.Lock()
	handlers := make([]Handler, 0, len(h.subs[name]))
	for _, fn := range h.subs[name] {
		handlers = append(handlers, fn)
	}
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(payload)
	}
}
