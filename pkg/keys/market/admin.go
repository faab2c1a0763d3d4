package market

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/keys-server/pkg/keys/common"
	"github.com/code-payments/keys-server/pkg/keys/curve"
	"github.com/code-payments/keys-server/pkg/keys/data/params"
	"github.com/code-payments/keys-server/pkg/keys/fees"
	"github.com/code-payments/keys-server/pkg/metrics"
)

// GetParameters gets the market parameters every trade is currently priced
// and settled with
func (m *Market) GetParameters(ctx context.Context) (*params.Record, error) {
	return m.getParams(ctx)
}

// SetFeeReceiver changes the address receiving protocol fees
func (m *Market) SetFeeReceiver(ctx context.Context, caller, receiver common.Address) (*params.Record, error) {
	if err := validateAddress(receiver); err != nil {
		return nil, err
	}

	return m.updateParams(ctx, "SetFeeReceiver", caller, func(record *params.Record) error {
		record.FeeReceiver = receiver.String()
		return nil
	})
}

// SetFeePercentages changes the fee percentages charged on every trade. A nil
// referrer percentage keeps the current value.
func (m *Market) SetFeePercentages(ctx context.Context, caller common.Address, protocol, subject, referrer *uint256.Int) (*params.Record, error) {
	if protocol == nil || subject == nil {
		return nil, ErrInvalidParameters
	}

	return m.updateParams(ctx, "SetFeePercentages", caller, func(record *params.Record) error {
		pct := fees.Percentages{
			Protocol: protocol,
			Subject:  subject,
			Referrer: record.ReferrerFeePercent,
		}
		if referrer != nil {
			pct.Referrer = referrer
		}

		if err := pct.Validate(); err != nil {
			return err
		}

		record.ProtocolFeePercent = pct.Protocol.Clone()
		record.SubjectFeePercent = pct.Subject.Clone()
		record.ReferrerFeePercent = pct.Referrer.Clone()
		return nil
	})
}

// SetCurveRatio changes the steepness of the curve for every subject
func (m *Market) SetCurveRatio(ctx context.Context, caller common.Address, ratio *uint256.Int) (*params.Record, error) {
	if err := curve.ValidateRatio(ratio); err != nil {
		return nil, err
	}

	return m.updateParams(ctx, "SetCurveRatio", caller, func(record *params.Record) error {
		record.CurveRatio = ratio.Clone()
		return nil
	})
}

func (m *Market) updateParams(ctx context.Context, method string, caller common.Address, update func(record *params.Record) error) (*params.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, method)
	defer tracer.End()

	log := m.log.WithFields(logrus.Fields{
		"method": method,
		"caller": caller.String(),
	})

	if err := m.checkAdmin(ctx, caller); err != nil {
		log.Info("rejected parameter change from non-administrator")
		return nil, err
	}

	var updated *params.Record
	err := m.withTradeLock(ctx, func(ctx context.Context, lost <-chan struct{}) error {
		return m.executeInTx(ctx, lost, func(ctx context.Context) error {
			record, err := m.getParams(ctx)
			if err != nil {
				return err
			}

			if err := update(record); err != nil {
				return err
			}

			if err := m.data.PutMarketParams(ctx, record); err != nil {
				return errors.Wrap(err, "error saving market parameters")
			}

			updated = record
			return nil
		})
	})
	if err != nil {
		tracer.OnError(err)
		log.WithError(err).Warn("failure updating market parameters")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"fee_receiver":         updated.FeeReceiver,
		"protocol_fee_percent": fees.FormatPercent(updated.ProtocolFeePercent),
		"subject_fee_percent":  fees.FormatPercent(updated.SubjectFeePercent),
		"referrer_fee_percent": fees.FormatPercent(updated.ReferrerFeePercent),
		"curve_ratio":          updated.CurveRatio.Dec(),
		"version":              updated.Version,
	}).Info("market parameters updated")

	recordParamsUpdatedEvent(ctx, method, updated)

	return updated, nil
}

func (m *Market) checkAdmin(ctx context.Context, caller common.Address) error {
	admin := m.conf.admin.Get(ctx)
	if admin.IsZero() || caller != admin {
		return ErrUnauthorized
	}
	return nil
}

// getParams gets the stored market parameters, falling back to the configured
// defaults until the administrator first changes them
func (m *Market) getParams(ctx context.Context) (*params.Record, error) {
	record, err := m.data.GetMarketParams(ctx)
	if err == nil {
		return record, nil
	} else if err != params.ErrNotFound {
		return nil, errors.Wrap(err, "error getting market parameters")
	}

	feeReceiver := m.conf.feeReceiver.Get(ctx)
	if feeReceiver.IsZero() {
		return nil, errors.Wrap(ErrInvalidParameters, "fee receiver is not configured")
	}

	pct := fees.Percentages{
		Protocol: m.conf.protocolFeePercent.Get(ctx),
		Subject:  m.conf.subjectFeePercent.Get(ctx),
		Referrer: m.conf.referrerFeePercent.Get(ctx),
	}
	if err := pct.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configured fee percentages")
	}

	ratio := uint256.NewInt(m.conf.curveRatio.Get(ctx))
	if err := curve.ValidateRatio(ratio); err != nil {
		return nil, errors.Wrap(err, "invalid configured curve ratio")
	}

	return &params.Record{
		FeeReceiver:        feeReceiver.String(),
		ProtocolFeePercent: pct.Protocol.Clone(),
		SubjectFeePercent:  pct.Subject.Clone(),
		ReferrerFeePercent: pct.Referrer.Clone(),
		CurveRatio:         ratio,
	}, nil
}

func pricingOf(record *params.Record) (fees.Percentages, *uint256.Int) {
	pct := fees.Percentages{
		Protocol: record.ProtocolFeePercent,
		Subject:  record.SubjectFeePercent,
		Referrer: record.ReferrerFeePercent,
	}
	return pct, record.CurveRatio
}
