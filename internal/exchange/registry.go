// Package exchange maps exchange names to their contract lookups
package exchange

import (
	"fmt"
	"sort"
	"sync"

	"hedgedesk/internal/core"
	apperrors "hedgedesk/pkg/errors"
)

// Registry holds the contract lookup of every supported exchange
type Registry struct {
	mu      sync.RWMutex
	lookups map[string]core.IContractLookup
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{lookups: make(map[string]core.IContractLookup)}
}

// Register adds or replaces the lookup for name
func (r *Registry) Register(name string, lookup core.IContractLookup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[name] = lookup
}

// Lookup returns the contract lookup for name
func (r *Registry) Lookup(name string) (core.IContractLookup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lookup, ok := r.lookups[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnsupportedExchange, name)
	}
	return lookup, nil
}

// Names returns the registered exchange names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.lookups))
	for name := range r.lookups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
