package main

import (
	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	flash_fill "github.com/code-payments/flash-fill/pkg/solana/flashfill"
)

const (
	endpointFlag        = "endpoint"
	quoteApiFlag        = "quote-api"
	quoteRateLimitFlag  = "quote-rate-limit"
	keypairFlag         = "keypair"
	feeAccountFlag      = "fee-account"
	programIdFlag       = "program-id"
	postgresUrlFlag     = "postgres-url"
	newRelicLicenseFlag = "newrelic-license"
)

const (
	defaultEndpoint = "https://api.mainnet-beta.solana.com"
	defaultQuoteApi = "https://quote-api.jup.ag/v6"
)

// flagEnvs maps persistent flags to the environment variables that can set
// them. Flags take precedence.
var flagEnvs = map[string]string{
	endpointFlag:        "SOLANA_RPC_ENDPOINT",
	quoteApiFlag:        "JUPITER_API_URL",
	quoteRateLimitFlag:  "JUPITER_RATE_LIMIT",
	keypairFlag:         "FLASH_FILL_KEYPAIR",
	feeAccountFlag:      "FLASH_FILL_FEE_ACCOUNT",
	programIdFlag:       "FLASH_FILL_PROGRAM_ID",
	postgresUrlFlag:     "FLASH_FILL_POSTGRES_URL",
	newRelicLicenseFlag: "NEW_RELIC_LICENSE_KEY",
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "flash-fill",
		Short:         "Borrow, swap and repay within a single atomic Solana transaction",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String(endpointFlag, defaultEndpoint, "Solana RPC endpoint")
	flags.String(quoteApiFlag, defaultQuoteApi, "Jupiter quote API base URL")
	flags.Float64(quoteRateLimitFlag, 0, "Maximum Jupiter requests per second, 0 for unlimited")
	flags.String(keypairFlag, "", "Path to the borrower's Solana CLI JSON keypair")
	flags.String(feeAccountFlag, "", "Account receiving the flash-fill fee")
	flags.String(programIdFlag, base58.Encode(flash_fill.PROGRAM_ID), "Flash-fill program ID")
	flags.String(postgresUrlFlag, "", "Postgres URL for the attempt journal, in memory when empty")
	flags.String(newRelicLicenseFlag, "", "New Relic license key, disabled when empty")

	bindFlags(flags)

	InitRootCmd(rootCmd)

	return rootCmd
}

func bindFlags(flags *pflag.FlagSet) {
	for name, env := range flagEnvs {
		_ = viper.BindPFlag(name, flags.Lookup(name))
		_ = viper.BindEnv(name, env)
	}
}
