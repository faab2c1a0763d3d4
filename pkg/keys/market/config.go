package market

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/code-payments/keys-server/pkg/config"
	"github.com/code-payments/keys-server/pkg/config/env"
	"github.com/code-payments/keys-server/pkg/config/memory"
	"github.com/code-payments/keys-server/pkg/keys/common"
	"github.com/code-payments/keys-server/pkg/keys/curve"
	"github.com/code-payments/keys-server/pkg/keys/fees"
)

const (
	envConfigPrefix = "KEYS_MARKET_"

	AdminConfigEnvName = envConfigPrefix + "ADMIN"

	FeeReceiverConfigEnvName = envConfigPrefix + "FEE_RECEIVER"

	ProtocolFeePercentConfigEnvName = envConfigPrefix + "PROTOCOL_FEE_PERCENT"
	defaultProtocolFeePercent       = "0.05"

	SubjectFeePercentConfigEnvName = envConfigPrefix + "SUBJECT_FEE_PERCENT"
	defaultSubjectFeePercent       = "0.05"

	ReferrerFeePercentConfigEnvName = envConfigPrefix + "REFERRER_FEE_PERCENT"
	defaultReferrerFeePercent       = "0.01"

	CurveRatioConfigEnvName = envConfigPrefix + "CURVE_RATIO"
	defaultCurveRatio       = curve.DefaultRatio

	TradeLockTimeoutConfigEnvName = envConfigPrefix + "TRADE_LOCK_TIMEOUT"
	defaultTradeLockTimeout       = 10 * time.Second
)

// The fee percentages and curve ratio only seed the market parameters. Once
// the administrator changes any parameter, the stored values take precedence.
type conf struct {
	admin       config.Value[common.Address]
	feeReceiver config.Value[common.Address]

	protocolFeePercent config.Value[*uint256.Int]
	subjectFeePercent  config.Value[*uint256.Int]
	referrerFeePercent config.Value[*uint256.Int]

	curveRatio config.Uint64

	tradeLockTimeout config.Duration
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			admin:       env.NewParsedConfig(AdminConfigEnvName, common.ZeroAddress, parseAddress),
			feeReceiver: env.NewParsedConfig(FeeReceiverConfigEnvName, common.ZeroAddress, parseAddress),

			protocolFeePercent: env.NewParsedConfig(ProtocolFeePercentConfigEnvName, fees.MustParsePercent(defaultProtocolFeePercent), parsePercent),
			subjectFeePercent:  env.NewParsedConfig(SubjectFeePercentConfigEnvName, fees.MustParsePercent(defaultSubjectFeePercent), parsePercent),
			referrerFeePercent: env.NewParsedConfig(ReferrerFeePercentConfigEnvName, fees.MustParsePercent(defaultReferrerFeePercent), parsePercent),

			curveRatio: env.NewUint64Config(CurveRatioConfigEnvName, defaultCurveRatio),

			tradeLockTimeout: env.NewDurationConfig(TradeLockTimeoutConfigEnvName, defaultTradeLockTimeout),
		}
	}
}

// Overrides are fixed configuration values, used by processes that load their
// configuration from a file and by tests. Zero values fall back to defaults.
type Overrides struct {
	Admin       common.Address
	FeeReceiver common.Address

	ProtocolFeePercent *uint256.Int
	SubjectFeePercent  *uint256.Int
	ReferrerFeePercent *uint256.Int

	CurveRatio uint64

	TradeLockTimeout time.Duration
}

// WithOverrides returns configuration with fixed values
func WithOverrides(overrides *Overrides) ConfigProvider {
	return func() *conf {
		curveRatio := overrides.CurveRatio
		if curveRatio == 0 {
			curveRatio = defaultCurveRatio
		}

		tradeLockTimeout := overrides.TradeLockTimeout
		if tradeLockTimeout == 0 {
			tradeLockTimeout = defaultTradeLockTimeout
		}

		return &conf{
			admin:       memory.NewValue(overrides.Admin),
			feeReceiver: memory.NewValue(overrides.FeeReceiver),

			protocolFeePercent: memory.NewValue(percentOrDefault(overrides.ProtocolFeePercent, defaultProtocolFeePercent)),
			subjectFeePercent:  memory.NewValue(percentOrDefault(overrides.SubjectFeePercent, defaultSubjectFeePercent)),
			referrerFeePercent: memory.NewValue(percentOrDefault(overrides.ReferrerFeePercent, defaultReferrerFeePercent)),

			curveRatio: memory.NewValue(curveRatio),

			tradeLockTimeout: memory.NewValue(tradeLockTimeout),
		}
	}
}

func parseAddress(raw []byte) (common.Address, error) {
	return common.NewAddressFromString(string(raw))
}

func parsePercent(raw []byte) (*uint256.Int, error) {
	return fees.ParsePercent(string(raw))
}

func percentOrDefault(value *uint256.Int, defaultValue string) *uint256.Int {
	if value == nil {
		return fees.MustParsePercent(defaultValue)
	}
	return value.Clone()
}
