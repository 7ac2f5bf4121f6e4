package events

import (
	"context"
	"sync"
)

// Wildcard subscribes a listener to every event slug.
const Wildcard = "*"

// Listener receives fired events.
type Listener func(ctx context.Context, slug string, payload map[string]any)

// Bus delivers fired events to in-process listeners.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Listener
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]Listener)}
}

// Subscribe registers fn for slug (or Wildcard) and returns a function that removes it.
func (b *Bus) Subscribe(slug string, fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.subs[slug] == nil {
		b.subs[slug] = make(map[int]Listener)
	}
	b.subs[slug][id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[slug], id)
	}
}

// Publish calls every listener of slug followed by wildcard listeners.
func (b *Bus) Publish(ctx context.Context, slug string, payload map[string]any) {
	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.subs[slug])+len(b.subs[Wildcard]))
	for _, fn := range b.subs[slug] {
		listeners = append(listeners, fn)
	}
	if slug != Wildcard {
		for _, fn := range b.subs[Wildcard] {
			listeners = append(listeners, fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range listeners {
		fn(ctx, slug, payload)
	}
}
