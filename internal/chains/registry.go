package chains

import (
	"fmt"
	"sync"

	"ico-relayer/internal/domain"
)

// Registry maps chain identifiers to adapter instances. It is built once at
// process start and injected everywhere an adapter is needed; nothing in the
// engine reaches for a global client.
type Registry struct {
	adapters map[domain.ChainID]domain.ChainAdapter
	mu       sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[domain.ChainID]domain.ChainAdapter),
	}
}

// Register adds an adapter for the chain it serves.
func (r *Registry) Register(adapter domain.ChainAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.ChainID()] = adapter
}

// Get retrieves the adapter for a chain.
func (r *Registry) Get(chain domain.ChainID) (domain.ChainAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedChain, chain)
	}

	return adapter, nil
}

// List returns the chains with a registered adapter.
func (r *Registry) List() []domain.ChainID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.ChainID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}

	return ids
}
