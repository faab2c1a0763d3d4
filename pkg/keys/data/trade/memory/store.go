package memory

import (
	"context"
	"sync"
	"time"

	"github.com/code-payments/keys-server/pkg/database/query"
	"github.com/code-payments/keys-server/pkg/keys/data/trade"
)

type store struct {
	mu      sync.Mutex
	records []*trade.Record
	last    uint64
}

// New returns a new in memory trade.Store
func New() trade.Store {
	return &store{}
}

func (s *store) Put(_ context.Context, record *trade.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.findByTradeId(record.TradeId); item != nil {
		return trade.ErrAlreadyExists
	}

	s.last++
	record.Id = s.last
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	cloned := record.Clone()
	s.records = append(s.records, &cloned)
	return nil
}

func (s *store) Get(_ context.Context, tradeId string) (*trade.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findByTradeId(tradeId)
	if item == nil {
		return nil, trade.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) GetAllBySubject(_ context.Context, subject string, opts ...query.Option) ([]*trade.Record, error) {
	return s.getAll(func(r *trade.Record) bool { return r.Subject == subject }, opts...)
}

func (s *store) GetAllByTrader(_ context.Context, trader string, opts ...query.Option) ([]*trade.Record, error) {
	return s.getAll(func(r *trade.Record) bool { return r.Trader == trader }, opts...)
}

func (s *store) CountBySubject(_ context.Context, subject string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count uint64
	for _, item := range s.records {
		if item.Subject == subject {
			count++
		}
	}
	return count, nil
}

func (s *store) getAll(filter func(*trade.Record) bool, opts ...query.Option) ([]*trade.Record, error) {
	req, err := query.DefaultPaginationHandler(opts...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var cursor uint64
	if len(req.Cursor) > 0 {
		cursor = req.Cursor.ToUint64()
	}

	// Records are appended in id order
	var res []*trade.Record
	for i := range s.records {
		item := s.records[i]
		if req.SortBy == query.Descending {
			item = s.records[len(s.records)-1-i]
		}

		if !filter(item) {
			continue
		}

		if len(req.Cursor) > 0 {
			if req.SortBy == query.Ascending && item.Id <= cursor {
				continue
			}
			if req.SortBy == query.Descending && item.Id >= cursor {
				continue
			}
		}

		cloned := item.Clone()
		res = append(res, &cloned)
		if uint64(len(res)) == req.Limit {
			break
		}
	}

	if len(res) == 0 {
		return nil, trade.ErrNotFound
	}
	return res, nil
}

func (s *store) findByTradeId(tradeId string) *trade.Record {
	for _, item := range s.records {
		if item.TradeId == tradeId {
			return item
		}
	}
	return nil
}

// Snapshot captures the current state and returns a function that restores it.
// The log is append only, so truncating it is enough.
func (s *store) Snapshot() func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	length := len(s.records)
	last := s.last

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.records = s.records[:length]
		s.last = last
	}
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.last = 0
}
