package stats

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	stats_data "github.com/code-payments/keys-server/pkg/keys/data/stats"
)

var (
	ErrNotWriter = errors.New("caller is not an allowed stats writer")
)

// Sink records trade volume reported by allowed callers
type Sink interface {
	// Record adds volume to the totals of subject and trader.
	//
	// ErrNotWriter is returned if caller isn't on the writer allow-list.
	Record(ctx context.Context, caller, subject, trader string, volume *uint256.Int) error
}

// StoreSink is a Sink that keeps its allow-list and totals in a stats store
type StoreSink struct {
	log   *logrus.Entry
	store stats_data.Store
}

func NewStoreSink(store stats_data.Store) *StoreSink {
	return &StoreSink{
		log:   logrus.StandardLogger().WithField("type", "keys/stats/sink"),
		store: store,
	}
}

func (s *StoreSink) Record(ctx context.Context, caller, subject, trader string, volume *uint256.Int) error {
	isWriter, err := s.store.IsWriter(ctx, caller)
	if err != nil {
		return err
	} else if !isWriter {
		s.log.WithFields(logrus.Fields{
			"method": "Record",
			"caller": caller,
		}).Debug("rejected volume from unknown writer")
		return ErrNotWriter
	}

	if err := s.store.AddVolume(ctx, stats_data.KindSubject, subject, volume); err != nil {
		return err
	}
	return s.store.AddVolume(ctx, stats_data.KindTrader, trader, volume)
}

// AddWriter allows writer to report volume
func (s *StoreSink) AddWriter(ctx context.Context, writer string) error {
	return s.store.AddWriter(ctx, writer)
}

// IsWriter reports whether writer is on the allow-list
func (s *StoreSink) IsWriter(ctx context.Context, writer string) (bool, error) {
	return s.store.IsWriter(ctx, writer)
}

// RemoveWriter revokes writer
func (s *StoreSink) RemoveWriter(ctx context.Context, writer string) error {
	return s.store.RemoveWriter(ctx, writer)
}

func (s *StoreSink) GetSubjectVolume(ctx context.Context, subject string) (*stats_data.Volume, error) {
	return s.store.GetVolume(ctx, stats_data.KindSubject, subject)
}

func (s *StoreSink) GetTraderVolume(ctx context.Context, trader string) (*stats_data.Volume, error) {
	return s.store.GetVolume(ctx, stats_data.KindTrader, trader)
}
