package flashfill

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/flash-fill/pkg/metrics"
	"github.com/code-payments/flash-fill/pkg/retry"
	"github.com/code-payments/flash-fill/pkg/retry/backoff"
	"github.com/code-payments/flash-fill/pkg/solana"
)

const (
	submitterMetricsStructName = "flashfill.submitter"

	DefaultConfirmationTimeout = time.Minute
	DefaultPollInterval        = time.Second
)

var (
	errNotConfirmed = errors.New("transaction not yet confirmed")
)

// Confirmation is the result of a transaction that landed without error.
type Confirmation struct {
	Signature     solana.Signature
	Slot          uint64
	UnitsConsumed uint64
	Logs          []string
}

// Submitter simulates, sends and confirms signed flash-fill transactions.
// A transaction is sent at most once. Failures are never retried, and a
// confirmation timeout must be resolved by looking up the signature status.
type Submitter struct {
	log     *logrus.Entry
	ledger  Ledger
	program ed25519.PublicKey

	confirmationTimeout time.Duration
	pollInterval        time.Duration
}

func NewSubmitter(ledger Ledger, program ed25519.PublicKey, confirmationTimeout, pollInterval time.Duration) *Submitter {
	if confirmationTimeout <= 0 {
		confirmationTimeout = DefaultConfirmationTimeout
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	return &Submitter{
		log:                 logrus.StandardLogger().WithField("type", "flashfill/submitter"),
		ledger:              ledger,
		program:             program,
		confirmationTimeout: confirmationTimeout,
		pollInterval:        pollInterval,
	}
}

// Submit simulates txn and, only if simulation succeeds, sends it and waits
// for it to be confirmed.
func (s *Submitter) Submit(ctx context.Context, txn *solana.Transaction) (*Confirmation, error) {
	tracer := metrics.TraceMethodCall(ctx, submitterMetricsStructName, "Submit")
	tracer.AddAttribute("signature", txn.Signature().String())
	defer tracer.End()

	confirmation, err := s.submit(ctx, txn)
	tracer.OnError(err)
	return confirmation, err
}

func (s *Submitter) submit(ctx context.Context, txn *solana.Transaction) (*Confirmation, error) {
	sig := txn.Signature()

	log := s.log.WithFields(logrus.Fields{
		"method":    "Submit",
		"signature": sig.String(),
		"blockhash": txn.Message.RecentBlockhash.String(),
	})

	if len(txn.Signatures) == 0 || sig == (solana.Signature{}) {
		return nil, ErrMissingSignature
	}

	simulation, err := s.Simulate(ctx, txn)
	if err != nil {
		var simulationErr *SimulationError
		if errors.As(err, &simulationErr) {
			log.WithError(err).Info("transaction failed simulation")
		} else {
			log.WithError(err).Warn("failure simulating transaction")
		}
		return nil, err
	}

	_, err = s.ledger.SendTransaction(ctx, txn)
	if err != nil {
		var txErr *solana.TransactionError
		if errors.As(err, &txErr) {
			log.WithError(err).Info("transaction rejected by ledger")
			return nil, s.newTransactionFailedError(txn, txErr)
		}

		// The transaction may or may not have been received, so the
		// caller has to resolve this by status lookup.
		log.WithError(err).Warn("failure sending transaction")
		return nil, errors.Wrapf(err, "error sending transaction %s", sig.String())
	}

	log.Debug("transaction sent, awaiting confirmation")

	status, err := s.WaitForConfirmation(ctx, txn)
	if err != nil {
		if errors.Is(err, ErrSubmissionTimeout) {
			log.Warn("timed out waiting for confirmation")
		}
		return nil, err
	}

	log.WithField("slot", status.Slot).Debug("transaction confirmed")

	return &Confirmation{
		Signature:     sig,
		Slot:          status.Slot,
		UnitsConsumed: simulation.UnitsConsumed,
		Logs:          simulation.Logs,
	}, nil
}

// Simulate executes txn against current ledger state. A transaction that
// fails returns a *SimulationError.
func (s *Submitter) Simulate(ctx context.Context, txn *solana.Transaction) (*solana.SimulationResult, error) {
	res, err := s.ledger.SimulateTransaction(ctx, txn)
	if err != nil {
		return nil, errors.Wrap(err, "error simulating transaction")
	}

	if res.Err != nil {
		simulationErr := &SimulationError{
			Logs:          res.Logs,
			UnitsConsumed: res.UnitsConsumed,
			TxError:       res.Err,
		}
		if code, ok := DecodeProgramError(txn, s.program, res.Err); ok {
			simulationErr.Cause = code
		}
		return nil, simulationErr
	}

	return res, nil
}

// WaitForConfirmation polls the signature status of txn until it is
// confirmed, fails, or the confirmation timeout elapses.
func (s *Submitter) WaitForConfirmation(ctx context.Context, txn *solana.Transaction) (*solana.SignatureStatus, error) {
	sig := txn.Signature()

	timeoutCtx, cancel := context.WithTimeout(ctx, s.confirmationTimeout)
	defer cancel()

	var status *solana.SignatureStatus
	_, err := retry.Retry(
		func() error {
			if err := timeoutCtx.Err(); err != nil {
				return err
			}

			var err error
			status, err = s.ledger.GetSignatureStatus(timeoutCtx, sig)
			if err != nil {
				// Status lookups are idempotent, so keep polling
				s.log.WithError(err).WithField("signature", sig.String()).Debug("failure getting signature status")
				return errNotConfirmed
			}

			if status == nil || (status.ErrorResult == nil && !status.Confirmed()) {
				return errNotConfirmed
			}
			return nil
		},
		retry.RetriableErrors(errNotConfirmed),
		retry.Backoff(backoff.Constant(s.pollInterval), s.pollInterval),
	)

	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case timeoutCtx.Err() != nil:
		return nil, errors.Wrapf(ErrSubmissionTimeout, "signature %s", sig.String())
	default:
		return nil, err
	}

	if status.ErrorResult != nil {
		return nil, s.newTransactionFailedError(txn, status.ErrorResult)
	}
	return status, nil
}

// GetStatus performs a single status lookup for sig. It never sends
// anything, so it is safe to use to resolve a timed out submission.
func (s *Submitter) GetStatus(ctx context.Context, sig solana.Signature) (*solana.SignatureStatus, error) {
	tracer := metrics.TraceMethodCall(ctx, submitterMetricsStructName, "GetStatus")
	tracer.AddAttribute("signature", sig.String())
	defer tracer.End()

	status, err := s.ledger.GetSignatureStatus(ctx, sig)
	tracer.OnError(err)
	return status, err
}

func (s *Submitter) newTransactionFailedError(txn *solana.Transaction, txErr *solana.TransactionError) *TransactionFailedError {
	failedErr := &TransactionFailedError{
		Signature: txn.Signature(),
		TxError:   txErr,
	}
	if code, ok := DecodeProgramError(txn, s.program, txErr); ok {
		failedErr.Cause = code
	}
	return failedErr
}
