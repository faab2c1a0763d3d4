package stats

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/code-payments/keys-server/pkg/keys/data/trade"
	"github.com/code-payments/keys-server/pkg/metrics"
)

const (
	notificationFailedEventName = "KeysStatsNotificationFailed"
)

// Notifier reports completed trades to a Sink on behalf of the market. Failures
// are logged and recorded, but never returned.
type Notifier struct {
	log      *logrus.Entry
	sink     Sink
	identity string
}

// NewNotifier returns a Notifier reporting as identity, which must be on the
// sink's writer allow-list for reports to be accepted. A nil sink disables
// notifications.
func NewNotifier(sink Sink, identity string) *Notifier {
	return &Notifier{
		log:      logrus.StandardLogger().WithField("type", "keys/stats/notifier"),
		sink:     sink,
		identity: identity,
	}
}

// Notify reports the gross volume of a trade
func (n *Notifier) Notify(ctx context.Context, record *trade.Record) {
	if n == nil || n.sink == nil {
		return
	}

	err := n.sink.Record(ctx, n.identity, record.Subject, record.Trader, record.GrossPrice)
	if err == nil {
		return
	}

	n.log.WithError(err).WithFields(logrus.Fields{
		"method":   "Notify",
		"trade_id": record.TradeId,
		"subject":  record.Subject,
		"trader":   record.Trader,
	}).Warn("failed to notify stats sink")

	metrics.RecordEvent(ctx, notificationFailedEventName, map[string]interface{}{
		"trade_id": record.TradeId,
		"subject":  record.Subject,
		"error":    err.Error(),
	})
}
