package market

import (
	"github.com/holiman/uint256"

	"github.com/code-payments/keys-server/pkg/keys/common"
	"github.com/code-payments/keys-server/pkg/keys/data/params"
	"github.com/code-payments/keys-server/pkg/keys/data/trade"
	"github.com/code-payments/keys-server/pkg/keys/fees"
	"github.com/code-payments/keys-server/pkg/keys/market"
)

func toQuote(quote *market.Quote) *Quote {
	return &Quote{
		Subject:     quote.Subject,
		Direction:   directionName(quote.Direction),
		Amount:      quote.Amount,
		Rail:        string(quote.Rail),
		Supply:      quote.Supply,
		Referrer:    quote.Referrer,
		GrossPrice:  decimalString(quote.Breakdown.Gross),
		ProtocolFee: decimalString(quote.Breakdown.Protocol),
		SubjectFee:  decimalString(quote.Breakdown.Subject),
		ReferrerFee: decimalString(quote.Breakdown.Referrer),
		Total:       decimalString(quote.Breakdown.Total),
	}
}

func toTrade(record *trade.Record) *Trade {
	return &Trade{
		TradeId:      record.TradeId,
		Subject:      record.Subject,
		Trader:       recordAddress(record.Trader),
		RightsHolder: recordAddress(record.RightsHolder),
		Referrer:     recordAddress(record.Referrer),
		Direction:    directionName(record.Direction),
		Rail:         record.Rail,
		Amount:       record.Amount,
		GrossPrice:   decimalString(record.GrossPrice),
		ProtocolFee:  decimalString(record.ProtocolFee),
		SubjectFee:   decimalString(record.SubjectFee),
		ReferrerFee:  decimalString(record.ReferrerFee),
		Total:        decimalString(record.Total),
		Supply:       record.Supply,
		CreatedAt:    record.CreatedAt.Unix(),
	}
}

func toParameters(record *params.Record) *Parameters {
	return &Parameters{
		FeeReceiver:        recordAddress(record.FeeReceiver),
		ProtocolFeePercent: fees.FormatPercent(record.ProtocolFeePercent),
		SubjectFeePercent:  fees.FormatPercent(record.SubjectFeePercent),
		ReferrerFeePercent: fees.FormatPercent(record.ReferrerFeePercent),
		CurveRatio:         decimalString(record.CurveRatio),
		Version:            record.Version,
		LastUpdatedAt:      record.LastUpdatedAt.Unix(),
	}
}

func directionName(direction trade.Direction) string {
	switch direction {
	case trade.DirectionBuy:
		return "buy"
	case trade.DirectionSell:
		return "sell"
	}
	return "unknown"
}

func decimalString(value *uint256.Int) string {
	if value == nil {
		return "0"
	}
	return value.Dec()
}

// recordAddress decodes an address stored by the market, where empty is the
// zero address
func recordAddress(value string) common.Address {
	if len(value) == 0 {
		return common.ZeroAddress
	}

	address, err := common.NewAddressFromString(value)
	if err != nil {
		return common.ZeroAddress
	}
	return address
}
