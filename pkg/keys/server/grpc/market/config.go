package market

import (
	"github.com/code-payments/keys-server/pkg/config"
	"github.com/code-payments/keys-server/pkg/config/env"
	"github.com/code-payments/keys-server/pkg/config/memory"
)

const (
	envConfigPrefix = "KEYS_SERVER_"

	TradeRateLimitConfigEnvName = envConfigPrefix + "TRADE_RATE_LIMIT"
	defaultTradeRateLimit       = 5

	QuoteRateLimitConfigEnvName = envConfigPrefix + "QUOTE_RATE_LIMIT"
	defaultQuoteRateLimit       = 50

	EnableDepositsConfigEnvName = envConfigPrefix + "ENABLE_DEPOSITS"
	defaultEnableDeposits       = false
)

// Rate limits are operations per second. Trades and parameter changes are
// limited per owner, while unsigned reads are limited per client IP.
type conf struct {
	tradeRateLimit config.Uint64
	quoteRateLimit config.Uint64

	// Deposits mint value out of thin air, so they're only enabled for
	// development and test environments.
	enableDeposits config.Bool
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			tradeRateLimit: env.NewUint64Config(TradeRateLimitConfigEnvName, defaultTradeRateLimit),
			quoteRateLimit: env.NewUint64Config(QuoteRateLimitConfigEnvName, defaultQuoteRateLimit),
			enableDeposits: env.NewBoolConfig(EnableDepositsConfigEnvName, defaultEnableDeposits),
		}
	}
}

type testOverrides struct {
	tradeRateLimit uint64
	quoteRateLimit uint64
	enableDeposits bool
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			tradeRateLimit: memory.NewValue(overrides.tradeRateLimit),
			quoteRateLimit: memory.NewValue(overrides.quoteRateLimit),
			enableDeposits: memory.NewValue(overrides.enableDeposits),
		}
	}
}
