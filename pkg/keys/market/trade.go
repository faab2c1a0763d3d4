package market

import (
	"context"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/keys-server/pkg/keys/common"
	"github.com/code-payments/keys-server/pkg/keys/data/trade"
	"github.com/code-payments/keys-server/pkg/keys/fees"
	"github.com/code-payments/keys-server/pkg/keys/ledger"
	"github.com/code-payments/keys-server/pkg/metrics"
)

// payout is a single transfer out of escrow
type payout struct {
	to     string
	amount *uint256.Int
}

// Buy buys amount keys of subject for trader. On the native rail, value is
// the payment attached to the buy and any excess is refunded. On the token
// rail, value must be zero and the cost is pulled through the allowance
// trader gave the market. The referrer is ignored on rails without referrer
// fees.
func (m *Market) Buy(ctx context.Context, trader common.Address, subject string, amount uint64, value *uint256.Int, referrer common.Address) (*trade.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Buy")
	defer tracer.End()
	tracer.AddAttributes(map[string]interface{}{
		"subject": subject,
		"amount":  amount,
	})

	log := m.log.WithFields(logrus.Fields{
		"method":  "Buy",
		"trader":  trader.String(),
		"subject": subject,
		"amount":  amount,
	})

	if err := validateTrade(trader, subject, amount); err != nil {
		return nil, err
	}
	if value == nil {
		value = new(uint256.Int)
	}

	var record *trade.Record
	err := m.withTradeLock(ctx, func(ctx context.Context, lost <-chan struct{}) error {
		return m.executeInTx(ctx, lost, func(ctx context.Context) error {
			params, err := m.getParams(ctx)
			if err != nil {
				return err
			}

			supply, err := m.ledger.Supply(ctx, subject)
			if err != nil {
				return err
			}

			holder, err := m.registry.ResolveHolder(ctx, subject)
			if err != nil {
				return err
			}

			quote, err := m.priceBuy(params, subject, ledger.EffectiveSupply(supply), amount, referrer)
			if err != nil {
				return err
			}
			breakdown := quote.Breakdown

			// Checks
			refund, err := m.gateway.Collect(ctx, trader.String(), breakdown.Total, value)
			if err != nil {
				return err
			}

			// Effects
			newSupply, err := m.ledger.Buy(ctx, subject, trader.String(), holder.String(), amount)
			if err != nil {
				return err
			}

			// Interactions
			err = m.payAll(ctx, []payout{
				{params.FeeReceiver, breakdown.Protocol},
				{holder.String(), breakdown.Subject},
				{quote.Referrer.String(), breakdown.Referrer},
				{trader.String(), refund},
			})
			if err != nil {
				return err
			}

			record = newTradeRecord(quote, trader, holder, newSupply)
			return m.data.PutTrade(ctx, record)
		})
	})
	if err != nil {
		err = normalizeError(err)
		tracer.OnError(err)
		log.WithError(err).Info("buy failed")
		return nil, err
	}

	m.onTrade(ctx, log, record)
	return record, nil
}

// Sell sells amount keys of subject held by trader, paying the net proceeds
// to trader. The referrer is ignored on rails without referrer fees.
func (m *Market) Sell(ctx context.Context, trader common.Address, subject string, amount uint64, referrer common.Address) (*trade.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Sell")
	defer tracer.End()
	tracer.AddAttributes(map[string]interface{}{
		"subject": subject,
		"amount":  amount,
	})

	log := m.log.WithFields(logrus.Fields{
		"method":  "Sell",
		"trader":  trader.String(),
		"subject": subject,
		"amount":  amount,
	})

	if err := validateTrade(trader, subject, amount); err != nil {
		return nil, err
	}

	var record *trade.Record
	err := m.withTradeLock(ctx, func(ctx context.Context, lost <-chan struct{}) error {
		return m.executeInTx(ctx, lost, func(ctx context.Context) error {
			params, err := m.getParams(ctx)
			if err != nil {
				return err
			}

			// Checks
			supply, err := m.ledger.CheckSell(ctx, subject, trader.String(), amount)
			if err != nil {
				return err
			}

			holder, err := m.registry.ResolveHolder(ctx, subject)
			if err != nil {
				return err
			}

			quote, err := m.priceSell(params, subject, supply, amount, referrer)
			if err != nil {
				return err
			}
			breakdown := quote.Breakdown

			// Effects
			newSupply, err := m.ledger.Sell(ctx, subject, trader.String(), amount)
			if err != nil {
				return err
			}

			// Interactions
			err = m.payAll(ctx, []payout{
				{params.FeeReceiver, breakdown.Protocol},
				{holder.String(), breakdown.Subject},
				{quote.Referrer.String(), breakdown.Referrer},
				{trader.String(), breakdown.Total},
			})
			if err != nil {
				return err
			}

			record = newTradeRecord(quote, trader, holder, newSupply)
			return m.data.PutTrade(ctx, record)
		})
	})
	if err != nil {
		err = normalizeError(err)
		tracer.OnError(err)
		log.WithError(err).Info("sell failed")
		return nil, err
	}

	m.onTrade(ctx, log, record)
	return record, nil
}

// payAll makes every payout in order. Any failure is a failed transfer, which
// must roll back the whole trade.
func (m *Market) payAll(ctx context.Context, payouts []payout) error {
	for _, p := range payouts {
		if p.amount == nil || p.amount.IsZero() {
			continue
		}

		if err := m.gateway.Pay(ctx, p.to, p.amount); err != nil {
			if errors.Is(err, ErrTransferFailed) {
				return err
			}
			return errors.Wrapf(ErrTransferFailed, "error paying %s: %v", p.to, err)
		}
	}
	return nil
}

// onTrade runs after a trade commits and the trade lock is released
func (m *Market) onTrade(ctx context.Context, log *logrus.Entry, record *trade.Record) {
	log.WithFields(logrus.Fields{
		"trade_id": record.TradeId,
		"gross":    fees.FormatAmount(record.GrossPrice),
		"total":    fees.FormatAmount(record.Total),
		"supply":   record.Supply,
	}).Debug("trade executed")

	recordTradeEvent(ctx, record)

	m.notifier.Notify(ctx, record)
}

func newTradeRecord(quote *Quote, trader, holder common.Address, supply uint64) *trade.Record {
	var referrer string
	if !quote.Referrer.IsZero() {
		referrer = quote.Referrer.String()
	}

	breakdown := quote.Breakdown
	return &trade.Record{
		TradeId: uuid.New().String(),

		Subject:      quote.Subject,
		Trader:       trader.String(),
		RightsHolder: holder.String(),
		Referrer:     referrer,

		Direction: quote.Direction,
		Rail:      string(quote.Rail),
		Amount:    quote.Amount,

		GrossPrice:  breakdown.Gross.Clone(),
		ProtocolFee: breakdown.Protocol.Clone(),
		SubjectFee:  breakdown.Subject.Clone(),
		ReferrerFee: breakdown.Referrer.Clone(),
		Total:       breakdown.Total.Clone(),

		Supply: supply,

		CreatedAt: now(),
	}
}

func validateTrade(trader common.Address, subject string, amount uint64) error {
	if err := validateAddress(trader); err != nil {
		return err
	}
	return validateQuote(subject, amount)
}
