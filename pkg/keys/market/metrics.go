package market

import (
	"context"
	"time"

	"github.com/code-payments/keys-server/pkg/keys/data/params"
	"github.com/code-payments/keys-server/pkg/keys/data/trade"
	"github.com/code-payments/keys-server/pkg/keys/fees"
	"github.com/code-payments/keys-server/pkg/metrics"
)

const (
	metricsStructName = "keys.market"

	tradeEventName         = "KeysTrade"
	paramsUpdatedEventName = "KeysMarketParamsUpdated"

	keysTradedMetricName    = "Keys/Market/KeysTraded"
	tradeLockWaitMetricName = "Keys/Market/TradeLockWait"
)

func recordTradeEvent(ctx context.Context, record *trade.Record) {
	metrics.RecordEvent(ctx, tradeEventName, map[string]interface{}{
		"trade_id":     record.TradeId,
		"subject":      record.Subject,
		"trader":       record.Trader,
		"direction":    record.Direction.String(),
		"rail":         record.Rail,
		"amount":       record.Amount,
		"gross":        fees.FormatAmount(record.GrossPrice),
		"protocol_fee": fees.FormatAmount(record.ProtocolFee),
		"subject_fee":  fees.FormatAmount(record.SubjectFee),
		"referrer_fee": fees.FormatAmount(record.ReferrerFee),
		"supply":       record.Supply,
	})
	metrics.RecordCount(ctx, keysTradedMetricName, record.Amount)
}

func recordTradeLockWait(ctx context.Context, start time.Time) {
	metrics.RecordDuration(ctx, tradeLockWaitMetricName, time.Since(start))
}

func recordParamsUpdatedEvent(ctx context.Context, method string, record *params.Record) {
	metrics.RecordEvent(ctx, paramsUpdatedEventName, map[string]interface{}{
		"method":               method,
		"fee_receiver":         record.FeeReceiver,
		"protocol_fee_percent": fees.FormatPercent(record.ProtocolFeePercent),
		"subject_fee_percent":  fees.FormatPercent(record.SubjectFeePercent),
		"referrer_fee_percent": fees.FormatPercent(record.ReferrerFeePercent),
		"curve_ratio":          record.CurveRatio.Dec(),
		"version":              record.Version,
	})
}
