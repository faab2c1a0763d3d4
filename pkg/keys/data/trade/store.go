package trade

import (
	"context"
	"errors"
	"time"

	"github.com/holiman/uint256"

	"github.com/code-payments/keys-server/pkg/database/query"
)

var (
	ErrNotFound      = errors.New("trade not found")
	ErrAlreadyExists = errors.New("trade already exists")
)

type Direction uint8

const (
	DirectionUnknown Direction = iota
	DirectionBuy
	DirectionSell
)

// Record is an immutable log entry describing one completed trade. All value
// fields are fixed point integers with 18 decimals.
type Record struct {
	Id uint64

	TradeId string

	Subject      string
	Trader       string
	RightsHolder string
	Referrer     string // empty when the trade had no referrer

	Direction Direction
	Rail      string
	Amount    uint64

	GrossPrice  *uint256.Int
	ProtocolFee *uint256.Int
	SubjectFee  *uint256.Int
	ReferrerFee *uint256.Int

	// Total is what the buyer paid, or what the seller received
	Total *uint256.Int

	// Supply is the subject's key supply after the trade
	Supply uint64

	CreatedAt time.Time
}

type Store interface {
	// Put appends a trade to the log, setting record.Id.
	//
	// ErrAlreadyExists is returned if a trade with the same trade ID exists.
	Put(ctx context.Context, record *Record) error

	// Get gets a trade by its trade ID.
	//
	// ErrNotFound is returned if no such trade exists.
	Get(ctx context.Context, tradeId string) (*Record, error)

	// GetAllBySubject pages through the trades of a subject.
	//
	// ErrNotFound is returned if the page is empty.
	GetAllBySubject(ctx context.Context, subject string, opts ...query.Option) ([]*Record, error)

	// GetAllByTrader pages through the trades made by a trader.
	//
	// ErrNotFound is returned if the page is empty.
	GetAllByTrader(ctx context.Context, trader string, opts ...query.Option) ([]*Record, error)

	// CountBySubject counts the trades of a subject
	CountBySubject(ctx context.Context, subject string) (uint64, error)
}

func (d Direction) String() string {
	switch d {
	case DirectionBuy:
		return "buy"
	case DirectionSell:
		return "sell"
	}
	return "unknown"
}

func (r *Record) Validate() error {
	if len(r.TradeId) == 0 {
		return errors.New("trade id is required")
	}

	if len(r.Subject) == 0 {
		return errors.New("subject is required")
	}

	if len(r.Trader) == 0 {
		return errors.New("trader is required")
	}

	if len(r.RightsHolder) == 0 {
		return errors.New("rights holder is required")
	}

	if r.Direction != DirectionBuy && r.Direction != DirectionSell {
		return errors.New("invalid direction")
	}

	if len(r.Rail) == 0 {
		return errors.New("rail is required")
	}

	if r.Amount == 0 {
		return errors.New("amount must be positive")
	}

	if r.GrossPrice == nil || r.ProtocolFee == nil || r.SubjectFee == nil || r.ReferrerFee == nil || r.Total == nil {
		return errors.New("price breakdown is required")
	}

	if r.Direction == DirectionSell && r.Supply == 0 {
		return errors.New("supply must remain positive")
	}

	return nil
}

func (r *Record) Clone() Record {
	return Record{
		Id:           r.Id,
		TradeId:      r.TradeId,
		Subject:      r.Subject,
		Trader:       r.Trader,
		RightsHolder: r.RightsHolder,
		Referrer:     r.Referrer,
		Direction:    r.Direction,
		Rail:         r.Rail,
		Amount:       r.Amount,
		GrossPrice:   cloneInt(r.GrossPrice),
		ProtocolFee:  cloneInt(r.ProtocolFee),
		SubjectFee:   cloneInt(r.SubjectFee),
		ReferrerFee:  cloneInt(r.ReferrerFee),
		Total:        cloneInt(r.Total),
		Supply:       r.Supply,
		CreatedAt:    r.CreatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	*dst = r.Clone()
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return v.Clone()
}
