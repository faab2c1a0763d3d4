package stats

import (
	"context"
	"errors"
	"time"

	"github.com/holiman/uint256"
)

var (
	ErrNotFound = errors.New("volume not found")
	ErrOverflow = errors.New("volume overflow")
)

// Kind is what a volume is aggregated by
type Kind string

const (
	KindSubject Kind = "subject"
	KindTrader  Kind = "trader"
)

// Volume is the cumulative traded value and trade count for a subject or trader
type Volume struct {
	Kind Kind
	Key  string

	Volume     *uint256.Int
	TradeCount uint64

	LastUpdatedAt time.Time
}

type Store interface {
	// AddWriter allows writer to report volume. Adding an existing writer is
	// a no-op.
	AddWriter(ctx context.Context, writer string) error

	// RemoveWriter revokes writer. Removing an unknown writer is a no-op.
	RemoveWriter(ctx context.Context, writer string) error

	// IsWriter reports whether writer is allowed to report volume
	IsWriter(ctx context.Context, writer string) (bool, error)

	// AddVolume adds to the cumulative volume of key and bumps its trade count
	AddVolume(ctx context.Context, kind Kind, key string, volume *uint256.Int) error

	// GetVolume gets the cumulative volume of key.
	//
	// ErrNotFound is returned if no volume was ever added.
	GetVolume(ctx context.Context, kind Kind, key string) (*Volume, error)
}

func (k Kind) Validate() error {
	switch k {
	case KindSubject, KindTrader:
		return nil
	}
	return errors.New("invalid volume kind")
}

func (v *Volume) Clone() Volume {
	return Volume{
		Kind:          v.Kind,
		Key:           v.Key,
		Volume:        v.Volume.Clone(),
		TradeCount:    v.TradeCount,
		LastUpdatedAt: v.LastUpdatedAt,
	}
}
