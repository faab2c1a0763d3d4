package memory

import (
	"context"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/code-payments/keys-server/pkg/keys/data/stats"
)

type key struct {
	kind stats.Kind
	key  string
}

type store struct {
	mu      sync.Mutex
	writers map[string]struct{}
	volumes map[key]*stats.Volume
}

// New returns a new in memory stats.Store
func New() stats.Store {
	return &store{
		writers: make(map[string]struct{}),
		volumes: make(map[key]*stats.Volume),
	}
}

func (s *store) AddWriter(_ context.Context, writer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writers[writer] = struct{}{}
	return nil
}

func (s *store) RemoveWriter(_ context.Context, writer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.writers, writer)
	return nil
}

func (s *store) IsWriter(_ context.Context, writer string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.writers[writer]
	return ok, nil
}

func (s *store) AddVolume(_ context.Context, kind stats.Kind, k string, volume *uint256.Int) error {
	if err := kind.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.volumes[key{kind, k}]
	if !ok {
		item = &stats.Volume{
			Kind:   kind,
			Key:    k,
			Volume: new(uint256.Int),
		}
	}

	updated, overflow := new(uint256.Int).AddOverflow(item.Volume, volume)
	if overflow {
		return stats.ErrOverflow
	}

	item.Volume = updated
	item.TradeCount++
	item.LastUpdatedAt = time.Now()
	s.volumes[key{kind, k}] = item
	return nil
}

func (s *store) GetVolume(_ context.Context, kind stats.Kind, k string) (*stats.Volume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.volumes[key{kind, k}]
	if !ok {
		return nil, stats.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writers = make(map[string]struct{})
	s.volumes = make(map[key]*stats.Volume)
}
