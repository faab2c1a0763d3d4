package memory

import (
	"context"
	"sync"

	"github.com/holiman/uint256"

	"github.com/code-payments/keys-server/pkg/keys/data/balance"
)

type key struct {
	asset balance.Asset
	owner string
}

type store struct {
	mu       sync.Mutex
	balances map[key]*uint256.Int
}

// New returns a new in memory balance.Store
func New() balance.Store {
	return &store{
		balances: make(map[key]*uint256.Int),
	}
}

func (s *store) GetBalance(_ context.Context, asset balance.Asset, owner string) (*uint256.Int, error) {
	if err := asset.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if amount, ok := s.balances[key{asset, owner}]; ok {
		return amount.Clone(), nil
	}
	return new(uint256.Int), nil
}

func (s *store) Credit(_ context.Context, asset balance.Asset, owner string, amount *uint256.Int) error {
	if err := asset.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{asset, owner}
	current, ok := s.balances[k]
	if !ok {
		current = new(uint256.Int)
	}

	updated, overflow := new(uint256.Int).AddOverflow(current, amount)
	if overflow {
		return balance.ErrOverflow
	}

	s.balances[k] = updated
	return nil
}

func (s *store) Debit(_ context.Context, asset balance.Asset, owner string, amount *uint256.Int) error {
	if err := asset.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{asset, owner}
	current, ok := s.balances[k]
	if !ok {
		current = new(uint256.Int)
	}

	if current.Lt(amount) {
		return balance.ErrInsufficientBalance
	}

	s.balances[k] = new(uint256.Int).Sub(current, amount)
	return nil
}

func (s *store) GetTotal(_ context.Context, asset balance.Asset) (*uint256.Int, error) {
	if err := asset.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total := new(uint256.Int)
	for k, amount := range s.balances {
		if k.asset == asset {
			total.Add(total, amount)
		}
	}
	return total, nil
}

// Snapshot captures the current state and returns a function that restores it
func (s *store) Snapshot() func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	balances := make(map[key]*uint256.Int, len(s.balances))
	for k, amount := range s.balances {
		balances[k] = amount.Clone()
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.balances = balances
	}
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances = make(map[key]*uint256.Int)
}
