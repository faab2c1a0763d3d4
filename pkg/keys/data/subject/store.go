package subject

import (
	"context"
	"errors"
	"math"
	"time"
)

var (
	ErrNotFound            = errors.New("subject not found")
	ErrAlreadyExists       = errors.New("subject already exists")
	ErrInsufficientBalance = errors.New("insufficient key balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrSupplyOverflow      = errors.New("key supply overflow")
)

// MaxSupply bounds supply so it fits the signed columns of the database
const MaxSupply = math.MaxInt64

// Record is the key supply of a subject that has been traded at least once
type Record struct {
	Id uint64

	Subject string
	Supply  uint64

	CreatedAt     time.Time
	LastUpdatedAt time.Time
}

// Holding is the number of a subject's keys held by an address
type Holding struct {
	Subject string
	Holder  string
	Amount  uint64
}

type Store interface {
	// Initialize creates the subject with a supply of one key, credited to
	// holder.
	//
	// ErrAlreadyExists is returned if the subject was already initialized.
	Initialize(ctx context.Context, subject, holder string) (*Record, error)

	// Get gets the supply record for a subject.
	//
	// ErrNotFound is returned if the subject was never initialized.
	Get(ctx context.Context, subject string) (*Record, error)

	// Mint credits holder with amount new keys, returning the resulting supply.
	//
	// ErrNotFound is returned if the subject was never initialized.
	Mint(ctx context.Context, subject, holder string, amount uint64) (uint64, error)

	// Burn debits amount keys from holder, returning the resulting supply.
	//
	// ErrInsufficientBalance is returned if holder has fewer than amount keys,
	// in which case nothing is changed. ErrNotFound is returned if the subject
	// was never initialized.
	Burn(ctx context.Context, subject, holder string, amount uint64) (uint64, error)

	// GetBalance gets the number of keys holder has for subject. Unknown
	// subjects and holders have a zero balance.
	GetBalance(ctx context.Context, subject, holder string) (uint64, error)

	// GetHoldings gets every positive holding of a subject, ordered by holder.
	//
	// ErrNotFound is returned if the subject was never initialized.
	GetHoldings(ctx context.Context, subject string) ([]*Holding, error)
}

func (r *Record) Validate() error {
	if len(r.Subject) == 0 {
		return errors.New("subject is required")
	}

	if r.Supply == 0 {
		return errors.New("supply must be positive")
	}

	return nil
}

func (r *Record) Clone() Record {
	return Record{
		Id:            r.Id,
		Subject:       r.Subject,
		Supply:        r.Supply,
		CreatedAt:     r.CreatedAt,
		LastUpdatedAt: r.LastUpdatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id
	dst.Subject = r.Subject
	dst.Supply = r.Supply
	dst.CreatedAt = r.CreatedAt
	dst.LastUpdatedAt = r.LastUpdatedAt
}
