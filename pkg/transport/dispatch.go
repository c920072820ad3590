package transport

import "sync"

// dispatcher routes events to subscribed handlers. Each concrete session
// embeds one, seeded with the event names its protocol version emits.
type dispatcher struct {
	mu        sync.Mutex
	next      int
	supported map[EventName]bool
	handlers  map[EventName]map[int]Handler
}

func newDispatcher(supported ...EventName) *dispatcher {
	d := &dispatcher{
		supported: make(map[EventName]bool, len(supported)),
		handlers:  make(map[EventName]map[int]Handler),
	}
	for _, name := range supported {
		d.supported[name] = true
	}
	return d
}

func (d *dispatcher) subscribe(name EventName, h Handler) (Detach, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.supported[name] {
		return nil, ErrUnknownEvent
	}
	if d.handlers[name] == nil {
		d.handlers[name] = make(map[int]Handler)
	}
	id := d.next
	d.next++
	d.handlers[name][id] = h

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.handlers[name], id)
	}, nil
}

func (d *dispatcher) emit(ev Event) {
	d.mu.Lock()
	handlers := make([]Handler, 0, len(d.handlers[ev.Name]))
	for _, h := range d.handlers[ev.Name] {
		handlers = append(handlers, h)
	}
	d.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
