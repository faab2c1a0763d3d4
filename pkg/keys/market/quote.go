package market

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/code-payments/keys-server/pkg/keys/common"
	"github.com/code-payments/keys-server/pkg/keys/curve"
	"github.com/code-payments/keys-server/pkg/keys/data/params"
	"github.com/code-payments/keys-server/pkg/keys/data/trade"
	"github.com/code-payments/keys-server/pkg/keys/fees"
	"github.com/code-payments/keys-server/pkg/keys/ledger"
	"github.com/code-payments/keys-server/pkg/keys/payment"
	"github.com/code-payments/keys-server/pkg/metrics"
)

// Quote is the price of a trade at the current supply. A trade executed
// before supply changes is charged exactly the quoted total.
type Quote struct {
	Subject   string
	Direction trade.Direction
	Amount    uint64
	Rail      payment.Rail

	// Supply is the supply the trade was priced at
	Supply uint64

	// Referrer is the address that would receive the referrer fee, if any
	Referrer common.Address

	Breakdown *fees.Breakdown
}

// Total is the fee inclusive cost of a buy, or the net proceeds of a sell
func (q *Quote) Total() *uint256.Int {
	return q.Breakdown.Total.Clone()
}

// QuoteBuy prices buying amount keys of subject
func (m *Market) QuoteBuy(ctx context.Context, subject string, amount uint64, referrer common.Address) (*Quote, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "QuoteBuy")
	defer tracer.End()

	if err := validateQuote(subject, amount); err != nil {
		return nil, err
	}

	supply, err := m.ledger.Supply(ctx, subject)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}

	record, err := m.getParams(ctx)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}

	quote, err := m.priceBuy(record, subject, ledger.EffectiveSupply(supply), amount, referrer)
	tracer.OnError(err)
	return quote, normalizeError(err)
}

// QuoteSell prices selling amount keys of subject. Whether any particular
// holder can make the sale isn't considered.
func (m *Market) QuoteSell(ctx context.Context, subject string, amount uint64, referrer common.Address) (*Quote, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "QuoteSell")
	defer tracer.End()

	if err := validateQuote(subject, amount); err != nil {
		return nil, err
	}

	supply, err := m.ledger.Supply(ctx, subject)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}
	if amount >= supply {
		return nil, ErrLastKeyProtected
	}

	record, err := m.getParams(ctx)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}

	quote, err := m.priceSell(record, subject, supply, amount, referrer)
	tracer.OnError(err)
	return quote, normalizeError(err)
}

func (m *Market) priceBuy(record *params.Record, subject string, supply, amount uint64, referrer common.Address) (*Quote, error) {
	pct, ratio := pricingOf(record)

	gross, err := curve.PriceOf(supply, amount, ratio)
	if err != nil {
		return nil, err
	}

	referrer = m.effectiveReferrer(referrer)
	breakdown, err := fees.ForBuy(gross, pct, !referrer.IsZero())
	if err != nil {
		return nil, err
	}

	return &Quote{
		Subject:   subject,
		Direction: trade.DirectionBuy,
		Amount:    amount,
		Rail:      m.gateway.Rail(),
		Supply:    supply,
		Referrer:  referrer,
		Breakdown: breakdown,
	}, nil
}

func (m *Market) priceSell(record *params.Record, subject string, supply, amount uint64, referrer common.Address) (*Quote, error) {
	pct, ratio := pricingOf(record)

	gross, err := curve.PriceOf(supply-amount, amount, ratio)
	if err != nil {
		return nil, err
	}

	referrer = m.effectiveReferrer(referrer)
	breakdown, err := fees.ForSell(gross, pct, !referrer.IsZero())
	if err != nil {
		return nil, err
	}

	return &Quote{
		Subject:   subject,
		Direction: trade.DirectionSell,
		Amount:    amount,
		Rail:      m.gateway.Rail(),
		Supply:    supply,
		Referrer:  referrer,
		Breakdown: breakdown,
	}, nil
}

// effectiveReferrer drops referrers on rails that don't pay them
func (m *Market) effectiveReferrer(referrer common.Address) common.Address {
	if !m.gateway.SupportsReferrer() {
		return common.ZeroAddress
	}
	return referrer
}

func validateQuote(subject string, amount uint64) error {
	if err := validateSubject(subject); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	return nil
}
