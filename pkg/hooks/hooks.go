// Package hooks is an ordered registry of callbacks observed around
// outbound requests.
package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/aussiebroadwan/passport/pkg/idx"
)

// Event names a point in the request lifecycle.
type Event string

const (
	// NetworkRequest fires before a request is sent. The payload is the
	// outbound request and hooks may mutate it.
	NetworkRequest Event = "networkRequest"

	// NetworkResponse fires once a response is available, before it is classified.
	NetworkResponse Event = "networkResponse"
)

// Hook observes or mutates a payload. Returning an error aborts the call
// that dispatched the event.
type Hook func(ctx context.Context, payload any) error

type entry struct {
	id   idx.ID
	hook Hook
}

// Registry holds hooks per event in registration order. The zero value is ready to use.
type Registry struct {
	mu    sync.RWMutex
	hooks map[Event][]entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends h to the chain for event and returns a handle for Unregister.
func (r *Registry) Register(event Event, h Hook) idx.ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hooks == nil {
		r.hooks = make(map[Event][]entry)
	}
	id := idx.New()
	r.hooks[event] = append(r.hooks[event], entry{id: id, hook: h})
	return id
}

// Unregister removes the hook with the given handle. It reports whether one was found.
func (r *Registry) Unregister(id idx.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for event, chain := range r.hooks {
		for i, e := range chain {
			if e.id != id {
				continue
			}
			// Copy so a Call iterating the old slice is unaffected
			next := make([]entry, 0, len(chain)-1)
			next = append(next, chain[:i]...)
			next = append(next, chain[i+1:]...)
			r.hooks[event] = next
			return true
		}
	}
	return false
}

// Len returns the number of hooks registered for event.
func (r *Registry) Len(event Event) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[event])
}

// Call runs the chain for event one hook at a time, stopping at the first
// error or when ctx is done. Hooks registered during a Call are not run by it.
func (r *Registry) Call(ctx context.Context, event Event, payload any) error {
	r.mu.RLock()
	chain := r.hooks[event]
	r.mu.RUnlock()

	for _, e := range chain {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.hook(ctx, payload); err != nil {
			return fmt.Errorf("hooks: %s: %w", event, err)
		}
	}
	return nil
}
