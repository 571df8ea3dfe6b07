package swap

import (
	"time"

	"github.com/code-payments/flash-fill/pkg/config"
	"github.com/code-payments/flash-fill/pkg/config/env"
	"github.com/code-payments/flash-fill/pkg/config/memory"
	"github.com/code-payments/flash-fill/pkg/config/wrapper"
	"github.com/code-payments/flash-fill/pkg/flashfill"
)

const (
	envConfigPrefix = "FLASH_FILL_"

	BorrowAmountConfigEnvName = envConfigPrefix + "BORROW_AMOUNT"
	defaultBorrowAmount       = 1_000_000

	// Zero repays the borrowed amount
	RepayAmountConfigEnvName = envConfigPrefix + "REPAY_AMOUNT"
	defaultRepayAmount       = 0

	SlippageBpsConfigEnvName = envConfigPrefix + "SLIPPAGE_BPS"
	defaultSlippageBps       = 50

	OnlyDirectRoutesConfigEnvName = envConfigPrefix + "ONLY_DIRECT_ROUTES"
	defaultOnlyDirectRoutes       = false

	MaxAccountsConfigEnvName = envConfigPrefix + "MAX_ACCOUNTS"
	defaultMaxAccounts       = 0

	ConfirmationTimeoutConfigEnvName = envConfigPrefix + "CONFIRMATION_TIMEOUT"
	defaultConfirmationTimeout       = flashfill.DefaultConfirmationTimeout

	ConfirmationPollIntervalConfigEnvName = envConfigPrefix + "CONFIRMATION_POLL_INTERVAL"
	defaultConfirmationPollInterval       = flashfill.DefaultPollInterval

	// Zero keeps the compute budget instructions provided with the swap
	ComputeUnitLimitConfigEnvName = envConfigPrefix + "COMPUTE_UNIT_LIMIT"
	defaultComputeUnitLimit       = 0

	// Zero keeps the compute budget instructions provided with the swap
	ComputeUnitPriceConfigEnvName = envConfigPrefix + "COMPUTE_UNIT_PRICE"
	defaultComputeUnitPrice       = 0
)

type conf struct {
	borrowAmount             config.Uint64
	repayAmount              config.Uint64
	slippageBps              config.Uint64
	onlyDirectRoutes         config.Bool
	maxAccounts              config.Uint64
	confirmationTimeout      config.Duration
	confirmationPollInterval config.Duration
	computeUnitLimit         config.Uint64
	computeUnitPrice         config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			borrowAmount:             env.NewUint64Config(BorrowAmountConfigEnvName, defaultBorrowAmount),
			repayAmount:              env.NewUint64Config(RepayAmountConfigEnvName, defaultRepayAmount),
			slippageBps:              env.NewUint64Config(SlippageBpsConfigEnvName, defaultSlippageBps),
			onlyDirectRoutes:         env.NewBoolConfig(OnlyDirectRoutesConfigEnvName, defaultOnlyDirectRoutes),
			maxAccounts:              env.NewUint64Config(MaxAccountsConfigEnvName, defaultMaxAccounts),
			confirmationTimeout:      env.NewDurationConfig(ConfirmationTimeoutConfigEnvName, defaultConfirmationTimeout),
			confirmationPollInterval: env.NewDurationConfig(ConfirmationPollIntervalConfigEnvName, defaultConfirmationPollInterval),
			computeUnitLimit:         env.NewUint64Config(ComputeUnitLimitConfigEnvName, defaultComputeUnitLimit),
			computeUnitPrice:         env.NewUint64Config(ComputeUnitPriceConfigEnvName, defaultComputeUnitPrice),
		}
	}
}

type testOverrides struct {
	borrowAmount             uint64
	repayAmount              uint64
	slippageBps              uint64
	maxAccounts              uint64
	confirmationTimeout      time.Duration
	confirmationPollInterval time.Duration
	computeUnitLimit         uint64
	computeUnitPrice         uint64
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			borrowAmount:             wrapper.NewUint64Config(memory.NewConfig(overrides.borrowAmount), defaultBorrowAmount),
			repayAmount:              wrapper.NewUint64Config(memory.NewConfig(overrides.repayAmount), defaultRepayAmount),
			slippageBps:              wrapper.NewUint64Config(memory.NewConfig(overrides.slippageBps), defaultSlippageBps),
			onlyDirectRoutes:         wrapper.NewBoolConfig(memory.NewConfig(defaultOnlyDirectRoutes), defaultOnlyDirectRoutes),
			maxAccounts:              wrapper.NewUint64Config(memory.NewConfig(overrides.maxAccounts), defaultMaxAccounts),
			confirmationTimeout:      wrapper.NewDurationConfig(memory.NewConfig(overrides.confirmationTimeout), defaultConfirmationTimeout),
			confirmationPollInterval: wrapper.NewDurationConfig(memory.NewConfig(overrides.confirmationPollInterval), defaultConfirmationPollInterval),
			computeUnitLimit:         wrapper.NewUint64Config(memory.NewConfig(overrides.computeUnitLimit), defaultComputeUnitLimit),
			computeUnitPrice:         wrapper.NewUint64Config(memory.NewConfig(overrides.computeUnitPrice), defaultComputeUnitPrice),
		}
	}
}
