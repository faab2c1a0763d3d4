package market

import "context"

type tradeContextKey struct{}

// inTrade reports whether ctx descends from a call that holds the trade lock.
// Payees receive this context, so any call they make back into the market with
// it is detected here. A payee that drops the context instead waits on the
// trade lock like any other caller, and gives up once the lock timeout passes.
func inTrade(ctx context.Context) bool {
	return ctx.Value(tradeContextKey{}) != nil
}

func withTradeMarker(ctx context.Context) context.Context {
	return context.WithValue(ctx, tradeContextKey{}, struct{}{})
}
