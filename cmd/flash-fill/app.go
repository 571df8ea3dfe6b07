package main

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"time"

	"github.com/mr-tron/base58"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	xrate "golang.org/x/time/rate"

	pg "github.com/code-payments/flash-fill/pkg/database/postgres"
	"github.com/code-payments/flash-fill/pkg/flashfill"
	"github.com/code-payments/flash-fill/pkg/flashfill/attempt"
	attempt_memory "github.com/code-payments/flash-fill/pkg/flashfill/attempt/memory"
	attempt_postgres "github.com/code-payments/flash-fill/pkg/flashfill/attempt/postgres"
	"github.com/code-payments/flash-fill/pkg/flashfill/swap"
	"github.com/code-payments/flash-fill/pkg/jupiter"
	"github.com/code-payments/flash-fill/pkg/metrics"
	"github.com/code-payments/flash-fill/pkg/rate"
	"github.com/code-payments/flash-fill/pkg/solana"
)

const (
	appName = "flash-fill"

	newRelicShutdownTimeout = 5 * time.Second
)

var errJournalRequired = errors.Errorf("a persistent journal is required, set --%s", postgresUrlFlag)

// app holds the collaborators shared by commands, built from flags and
// environment variables.
type app struct {
	log *logrus.Entry

	newRelic *newrelic.Application
	db       *sql.DB

	program ed25519.PublicKey
	ledger  flashfill.Ledger
}

func newApp() (*app, error) {
	a := &app{
		log: logrus.StandardLogger().WithField("type", "cmd/flash-fill"),
	}

	program, err := decodeKey(viper.GetString(programIdFlag))
	if err != nil {
		return nil, errors.Wrap(err, "invalid program id")
	}
	a.program = program
	a.ledger = flashfill.NewLedger(solana.New(viper.GetString(endpointFlag)))

	if license := viper.GetString(newRelicLicenseFlag); len(license) > 0 {
		a.newRelic, err = newrelic.NewApplication(
			newrelic.ConfigAppName(appName),
			newrelic.ConfigLicense(license),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			return nil, errors.Wrap(err, "error initializing new relic")
		}

		logrus.SetFormatter(metrics.NewCustomNewRelicLogFormatter(a.newRelic, &logrus.TextFormatter{}))
	}

	if url := viper.GetString(postgresUrlFlag); len(url) > 0 {
		a.db, err = pg.New(url)
		if err != nil {
			a.close()
			return nil, errors.Wrap(err, "error connecting to postgres")
		}
	}

	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("failure closing postgres")
		}
	}
	if a.newRelic != nil {
		a.newRelic.Shutdown(newRelicShutdownTimeout)
	}
}

// newContext returns a context traced under a New Relic transaction for
// command, when New Relic is enabled.
func (a *app) newContext(ctx context.Context, command string) (context.Context, func()) {
	return metrics.NewContext(ctx, a.newRelic, appName+"/"+command)
}

// attempts returns the attempt journal. Without a postgres URL the journal
// only lives for the duration of the command.
func (a *app) attempts() attempt.Store {
	if a.db == nil {
		return attempt_memory.New()
	}
	return attempt_postgres.New(a.db)
}

func (a *app) persistentAttempts() (attempt.Store, error) {
	if a.db == nil {
		return nil, errJournalRequired
	}
	return attempt_postgres.New(a.db), nil
}

func (a *app) quoteClient() *jupiter.Client {
	var limiter rate.Limiter
	if limit := viper.GetFloat64(quoteRateLimitFlag); limit > 0 {
		limiter = rate.NewLocalRateLimiter(xrate.Limit(limit))
	}
	return jupiter.NewClient(viper.GetString(quoteApiFlag), limiter)
}

func (a *app) newSwapService(attempts attempt.Store) (*swap.Service, error) {
	borrower, err := loadKeypair(viper.GetString(keypairFlag))
	if err != nil {
		return nil, err
	}

	feeAccount, err := decodeKey(viper.GetString(feeAccountFlag))
	if err != nil {
		return nil, errors.Wrap(err, "invalid fee account")
	}

	return swap.NewService(
		a.quoteClient(),
		a.ledger,
		attempts,
		a.program,
		borrower,
		feeAccount,
		swap.WithEnvConfigs(),
	)
}

func decodeKey(value string) (ed25519.PublicKey, error) {
	if len(value) == 0 {
		return nil, errors.New("value is required")
	}

	decoded, err := base58.Decode(value)
	if err != nil {
		return nil, err
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, errors.Errorf("expected %d bytes, got %d", ed25519.PublicKeySize, len(decoded))
	}
	return decoded, nil
}
