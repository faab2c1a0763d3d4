package memory

import (
	"context"
	"sync"

	"github.com/holiman/uint256"

	"github.com/code-payments/keys-server/pkg/keys/data/allowance"
)

type key struct {
	owner   string
	spender string
}

type store struct {
	mu         sync.Mutex
	allowances map[key]*uint256.Int
}

// New returns a new in memory allowance.Store
func New() allowance.Store {
	return &store{
		allowances: make(map[key]*uint256.Int),
	}
}

func (s *store) Get(_ context.Context, owner, spender string) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount, ok := s.allowances[key{owner, spender}]; ok {
		return amount.Clone(), nil
	}
	return new(uint256.Int), nil
}

func (s *store) Set(_ context.Context, owner, spender string, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allowances[key{owner, spender}] = amount.Clone()
	return nil
}

func (s *store) Spend(_ context.Context, owner, spender string, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{owner, spender}
	current, ok := s.allowances[k]
	if !ok {
		current = new(uint256.Int)
	}

	if current.Lt(amount) {
		return allowance.ErrInsufficientAllowance
	}

	s.allowances[k] = new(uint256.Int).Sub(current, amount)
	return nil
}

// Snapshot captures the current state and returns a function that restores it
func (s *store) Snapshot() func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	allowances := make(map[key]*uint256.Int, len(s.allowances))
	for k, amount := range s.allowances {
		allowances[k] = amount.Clone()
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.allowances = allowances
	}
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allowances = make(map[key]*uint256.Int)
}
