package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/code-payments/keys-server/pkg/keys/data/subject"
)

type store struct {
	mu       sync.Mutex
	records  map[string]*subject.Record
	holdings map[string]map[string]uint64
	last     uint64
}

// New returns a new in memory subject.Store
func New() subject.Store {
	return &store{
		records:  make(map[string]*subject.Record),
		holdings: make(map[string]map[string]uint64),
	}
}

func (s *store) Initialize(_ context.Context, name, holder string) (*subject.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[name]; ok {
		return nil, subject.ErrAlreadyExists
	}

	s.last++
	now := time.Now()
	record := &subject.Record{
		Id:            s.last,
		Subject:       name,
		Supply:        1,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	s.records[name] = record
	s.holdings[name] = map[string]uint64{holder: 1}

	cloned := record.Clone()
	return &cloned, nil
}

func (s *store) Get(_ context.Context, name string) (*subject.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[name]
	if !ok {
		return nil, subject.ErrNotFound
	}

	cloned := record.Clone()
	return &cloned, nil
}

func (s *store) Mint(_ context.Context, name, holder string, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, subject.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[name]
	if !ok {
		return 0, subject.ErrNotFound
	}

	if amount > subject.MaxSupply || record.Supply > subject.MaxSupply-amount {
		return 0, subject.ErrSupplyOverflow
	}

	record.Supply += amount
	record.LastUpdatedAt = time.Now()
	s.holdings[name][holder] += amount

	return record.Supply, nil
}

func (s *store) Burn(_ context.Context, name, holder string, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, subject.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[name]
	if !ok {
		return 0, subject.ErrNotFound
	}

	balance := s.holdings[name][holder]
	if balance < amount {
		return 0, subject.ErrInsufficientBalance
	}

	if balance == amount {
		delete(s.holdings[name], holder)
	} else {
		s.holdings[name][holder] = balance - amount
	}

	record.Supply -= amount
	record.LastUpdatedAt = time.Now()

	return record.Supply, nil
}

func (s *store) GetBalance(_ context.Context, name, holder string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.holdings[name][holder], nil
}

func (s *store) GetHoldings(_ context.Context, name string) ([]*subject.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[name]; !ok {
		return nil, subject.ErrNotFound
	}

	res := make([]*subject.Holding, 0, len(s.holdings[name]))
	for holder, amount := range s.holdings[name] {
		res = append(res, &subject.Holding{
			Subject: name,
			Holder:  holder,
			Amount:  amount,
		})
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].Holder < res[j].Holder
	})
	return res, nil
}

// Snapshot captures the current state and returns a function that restores it
func (s *store) Snapshot() func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make(map[string]*subject.Record, len(s.records))
	for name, record := range s.records {
		cloned := record.Clone()
		records[name] = &cloned
	}

	holdings := make(map[string]map[string]uint64, len(s.holdings))
	for name, byHolder := range s.holdings {
		copied := make(map[string]uint64, len(byHolder))
		for holder, amount := range byHolder {
			copied[holder] = amount
		}
		holdings[name] = copied
	}

	last := s.last

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.records = records
		s.holdings = holdings
		s.last = last
	}
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*subject.Record)
	s.holdings = make(map[string]map[string]uint64)
	s.last = 0
}
