package memory

import (
	"context"
	"sync"

	"github.com/code-payments/keys-server/pkg/keys/common"
	"github.com/code-payments/keys-server/pkg/keys/registry"
)

// Registry is an in memory registry.Registry whose ownership is set directly
type Registry struct {
	mu      sync.RWMutex
	holders map[string]common.Address
	lookups int
}

func New() *Registry {
	return &Registry{
		holders: make(map[string]common.Address),
	}
}

func (r *Registry) ResolveHolder(_ context.Context, subject string) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lookups++

	holder, ok := r.holders[subject]
	if !ok {
		return common.ZeroAddress, registry.ErrSubjectNotFound
	}
	return holder, nil
}

// Set registers subject to holder, replacing any previous holder
func (r *Registry) Set(subject string, holder common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.holders[subject] = holder
}

func (r *Registry) Remove(subject string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.holders, subject)
}

// Lookups is the number of ResolveHolder calls made so far
func (r *Registry) Lookups() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lookups
}
