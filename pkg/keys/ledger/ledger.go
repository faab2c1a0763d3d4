package ledger

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/code-payments/keys-server/pkg/keys/data"
	"github.com/code-payments/keys-server/pkg/keys/data/subject"
)

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient key balance")
	ErrLastKeyProtected    = errors.New("the last key of a subject cannot be sold")
	ErrInvariantViolated   = errors.New("key holdings do not sum to supply")
	ErrSupplyOverflow      = errors.New("key supply overflow")
)

// MaxSupply bounds supply so it fits the signed columns of the database
const MaxSupply = subject.MaxSupply

// Ledger owns the key supply of every subject and the key balance of every
// holder.
//
// Once a subject is initialized, its supply never drops below one. The first
// key is minted to the subject's rights-holder and is never sellable by the
// market as a whole, since every sell must leave at least one key behind.
type Ledger struct {
	log  *logrus.Entry
	data data.DatabaseData
}

func New(data data.DatabaseData) *Ledger {
	return &Ledger{
		log:  logrus.StandardLogger().WithField("type", "keys/ledger"),
		data: data,
	}
}

// EffectiveSupply is the supply used to price a trade. An uninitialized
// subject trades as if its bootstrap key already exists.
func EffectiveSupply(supply uint64) uint64 {
	if supply == 0 {
		return 1
	}
	return supply
}

// Supply gets the supply of a subject, which is zero if uninitialized
func (l *Ledger) Supply(ctx context.Context, name string) (uint64, error) {
	record, err := l.data.GetSubject(ctx, name)
	if err == subject.ErrNotFound {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return record.Supply, nil
}

// Balance gets the number of keys holder has for a subject
func (l *Ledger) Balance(ctx context.Context, name, holder string) (uint64, error) {
	return l.data.GetKeyBalance(ctx, name, holder)
}

// Holders gets every positive holding of a subject, ordered by holder
func (l *Ledger) Holders(ctx context.Context, name string) ([]*subject.Holding, error) {
	holdings, err := l.data.GetKeyHoldings(ctx, name)
	if err == subject.ErrNotFound {
		return nil, nil
	}
	return holdings, err
}

// Buy credits buyer with amount new keys, bootstrapping the subject with a
// key for rightsHolder if it was never traded. It returns the resulting
// supply.
func (l *Ledger) Buy(ctx context.Context, name, buyer, rightsHolder string, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}

	supply, err := l.Supply(ctx, name)
	if err != nil {
		return 0, err
	}

	if amount > MaxSupply || EffectiveSupply(supply) > MaxSupply-amount {
		return 0, ErrSupplyOverflow
	}

	if supply == 0 {
		if _, err := l.data.InitializeSubject(ctx, name, rightsHolder); err != nil {
			return 0, err
		}

		l.log.WithFields(logrus.Fields{
			"method":        "Buy",
			"subject":       name,
			"rights_holder": rightsHolder,
		}).Debug("initialized subject")
	}

	minted, err := l.data.MintKeys(ctx, name, buyer, amount)
	if err == subject.ErrSupplyOverflow {
		return 0, ErrSupplyOverflow
	}
	return minted, err
}

// CheckSell reports whether seller could sell amount keys right now, without
// changing any state.
func (l *Ledger) CheckSell(ctx context.Context, name, seller string, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}

	supply, err := l.Supply(ctx, name)
	if err != nil {
		return 0, err
	}

	// Nothing is sellable for uninitialized subjects or subjects at the floor,
	// regardless of who is selling.
	if supply <= 1 {
		return 0, ErrLastKeyProtected
	}

	balance, err := l.data.GetKeyBalance(ctx, name, seller)
	if err != nil {
		return 0, err
	}
	if balance < amount {
		return 0, ErrInsufficientBalance
	}

	if amount >= supply {
		return 0, ErrLastKeyProtected
	}
	return supply, nil
}

// Sell debits amount keys from seller and returns the resulting supply.
func (l *Ledger) Sell(ctx context.Context, name, seller string, amount uint64) (uint64, error) {
	if _, err := l.CheckSell(ctx, name, seller, amount); err != nil {
		return 0, err
	}

	remaining, err := l.data.BurnKeys(ctx, name, seller, amount)
	if err == subject.ErrInsufficientBalance {
		return 0, ErrInsufficientBalance
	} else if err != nil {
		return 0, err
	}
	return remaining, nil
}

// CheckInvariant verifies that the holdings of a subject sum to its supply
func (l *Ledger) CheckInvariant(ctx context.Context, name string) error {
	supply, err := l.Supply(ctx, name)
	if err != nil {
		return err
	}

	holdings, err := l.Holders(ctx, name)
	if err != nil {
		return err
	}

	var sum uint64
	for _, holding := range holdings {
		sum += holding.Amount
	}

	if sum != supply {
		l.log.WithFields(logrus.Fields{
			"method":  "CheckInvariant",
			"subject": name,
			"supply":  supply,
			"sum":     sum,
		}).Warn("key holdings do not sum to supply")
		return ErrInvariantViolated
	}
	return nil
}
