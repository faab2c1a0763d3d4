package memory

import (
	"context"
	"sync"
	"time"

	"github.com/code-payments/keys-server/pkg/keys/data/params"
)

type store struct {
	mu     sync.Mutex
	record *params.Record
}

// New returns a new in memory params.Store
func New() params.Store {
	return &store{}
}

func (s *store) Get(_ context.Context) (*params.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.record == nil {
		return nil, params.ErrNotFound
	}

	cloned := s.record.Clone()
	return &cloned, nil
}

func (s *store) Put(_ context.Context, record *params.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current uint64
	if s.record != nil {
		current = s.record.Version
	}
	if record.Version != current {
		return params.ErrStaleVersion
	}

	record.Version++
	record.LastUpdatedAt = time.Now()

	cloned := record.Clone()
	s.record = &cloned
	return nil
}

// Snapshot captures the current state and returns a function that restores it
func (s *store) Snapshot() func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var saved *params.Record
	if s.record != nil {
		cloned := s.record.Clone()
		saved = &cloned
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.record = saved
	}
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record = nil
}
