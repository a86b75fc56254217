package merchant

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
)

// Registry is an in-memory Directory whose contents can be swapped
// atomically, e.g. when the config file is hot-reloaded.
type Registry struct {
	entries atomic.Pointer[map[string]Merchant]
}

// NewRegistry creates a Registry holding ms.
func NewRegistry(ms []Merchant) *Registry {
	r := &Registry{}
	r.Replace(ms)
	return r
}

// Replace swaps the whole merchant set. Later duplicates win.
func (r *Registry) Replace(ms []Merchant) {
	next := make(map[string]Merchant, len(ms))
	for _, m := range ms {
		m.ID = NormalizeID(m.ID)
		next[m.ID] = m
	}
	r.entries.Store(&next)
}

// Lookup implements Directory.
func (r *Registry) Lookup(_ context.Context, id string) (Merchant, error) {
	entries := r.entries.Load()
	if entries == nil {
		return Merchant{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m, ok := (*entries)[NormalizeID(id)]
	if !ok {
		return Merchant{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, nil
}

// Len returns how many merchants are loaded.
func (r *Registry) Len() int {
	entries := r.entries.Load()
	if entries == nil {
		return 0
	}
	return len(*entries)
}

// List returns every merchant ordered by id.
func (r *Registry) List(_ context.Context) ([]Merchant, error) {
	entries := r.entries.Load()
	if entries == nil {
		return nil, nil
	}
	out := make([]Merchant, 0, len(*entries))
	for _, m := range *entries {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
