package transport

import "sync"

// Handler receives an envelope routed by channel and event.
type Handler func(Envelope)

// LifecycleFunc receives the current socket id.
type LifecycleFunc func(socketID string)

// bus routes inbound envelopes to handlers. Handlers run on the read loop,
// outside the lock.
type bus struct {
	mu        sync.RWMutex
	handlers  map[string]map[string][]Handler
	lifecycle map[string][]LifecycleFunc
}

func newBus() *bus {
	return &bus{
		handlers:  make(map[string]map[string][]Handler),
		lifecycle: make(map[string][]LifecycleFunc),
	}
}

func (b *bus) bind(channel, event string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	events, ok := b.handlers[channel]
	if !ok {
		events = make(map[string][]Handler)
		b.handlers[channel] = events
	}
	events[event] = append(events[event], h)
}

func (b *bus) unbindEvent(channel, event string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if events, ok := b.handlers[channel]; ok {
		delete(events, event)
		if len(events) == 0 {
			delete(b.handlers, channel)
		}
	}
}

func (b *bus) unbindChannel(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, channel)
}

func (b *bus) onLifecycle(event string, fn LifecycleFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lifecycle[event] = append(b.lifecycle[event], fn)
}

func (b *bus) dispatch(env Envelope) int {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[env.Channel][env.Event]...)
	b.mu.RUnlock()
	for _, h := range hs {
		h(env)
	}
	return len(hs)
}

func (b *bus) emitLifecycle(event, socketID string) {
	b.mu.RLock()
	fns := append([]LifecycleFunc(nil), b.lifecycle[event]...)
	b.mu.RUnlock()
	for _, fn := range fns {
		fn(socketID)
	}
}
