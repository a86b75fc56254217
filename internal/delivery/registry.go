package delivery

import (
	"fmt"
	"sync"

	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
)

// Registry maps merchant kinds to their transports.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu         sync.RWMutex
	transports map[merchant.Kind]Transport
}

// NewRegistry creates a Registry holding ts.
func NewRegistry(ts ...Transport) *Registry {
	r := &Registry{transports: make(map[merchant.Kind]Transport)}
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

// Register adds a transport. Panics on duplicate kind to surface misconfiguration early.
func (r *Registry) Register(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transports[t.Kind()]; exists {
		panic(fmt.Sprintf("delivery registry: duplicate transport %q", t.Kind()))
	}
	r.transports[t.Kind()] = t
}

// Get returns the transport for kind, or an ErrConfiguration error when none
// is registered.
func (r *Registry) Get(kind merchant.Kind) (Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no transport registered for %q", ErrConfiguration, kind)
	}
	return t, nil
}

// Kinds returns the registered kinds in merchant.Kinds order.
func (r *Registry) Kinds() []merchant.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]merchant.Kind, 0, len(r.transports))
	for _, k := range merchant.Kinds {
		if _, ok := r.transports[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
