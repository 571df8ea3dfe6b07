package flashfill

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/flash-fill/pkg/metrics"
	"github.com/code-payments/flash-fill/pkg/retry"
	"github.com/code-payments/flash-fill/pkg/retry/backoff"
	"github.com/code-payments/flash-fill/pkg/solana"
)

const (
	ledgerMetricsStructName = "flashfill.ledger"

	readRetryLimit   = 3
	readRetryBackoff = 250 * time.Millisecond
)

// Ledger is the view of the chain needed to compose and submit flash-fill
// transactions.
type Ledger interface {
	// GetAccountInfo returns solana.ErrNoAccountInfo when the account does
	// not exist.
	GetAccountInfo(ctx context.Context, address ed25519.PublicKey) (*solana.AccountInfo, error)

	GetSlot(ctx context.Context) (uint64, error)

	GetLatestBlockhash(ctx context.Context) (solana.Blockhash, error)

	SimulateTransaction(ctx context.Context, txn *solana.Transaction) (*solana.SimulationResult, error)

	// SendTransaction sends txn exactly once. It is never retried.
	SendTransaction(ctx context.Context, txn *solana.Transaction) (solana.Signature, error)

	// GetSignatureStatus returns a nil status when the signature is unknown.
	GetSignatureStatus(ctx context.Context, sig solana.Signature) (*solana.SignatureStatus, error)
}

type clientLedger struct {
	client solana.Client
}

// NewLedger returns a Ledger backed by a solana.Client, which may be an RPC
// client or an in-process bank.
func NewLedger(client solana.Client) Ledger {
	return &clientLedger{
		client: client,
	}
}

func (l *clientLedger) GetAccountInfo(ctx context.Context, address ed25519.PublicKey) (*solana.AccountInfo, error) {
	tracer := metrics.TraceMethodCall(ctx, ledgerMetricsStructName, "GetAccountInfo")
	tracer.AddAttribute("address", base58.Encode(address))
	defer tracer.End()

	var info solana.AccountInfo
	err := l.read(ctx, func() (err error) {
		info, err = l.client.GetAccountInfo(address, solana.CommitmentConfirmed)
		return err
	}, solana.ErrNoAccountInfo)
	if err != nil {
		if err != solana.ErrNoAccountInfo {
			tracer.OnError(err)
		}
		return nil, err
	}
	return &info, nil
}

func (l *clientLedger) GetSlot(ctx context.Context) (uint64, error) {
	tracer := metrics.TraceMethodCall(ctx, ledgerMetricsStructName, "GetSlot")
	defer tracer.End()

	var slot uint64
	err := l.read(ctx, func() (err error) {
		slot, err = l.client.GetSlot(solana.CommitmentConfirmed)
		return err
	})
	tracer.OnError(err)
	return slot, err
}

func (l *clientLedger) GetLatestBlockhash(ctx context.Context) (solana.Blockhash, error) {
	tracer := metrics.TraceMethodCall(ctx, ledgerMetricsStructName, "GetLatestBlockhash")
	defer tracer.End()

	var blockhash solana.Blockhash
	err := l.read(ctx, func() (err error) {
		blockhash, err = l.client.GetLatestBlockhash()
		return err
	})
	tracer.OnError(err)
	return blockhash, err
}

func (l *clientLedger) SimulateTransaction(ctx context.Context, txn *solana.Transaction) (*solana.SimulationResult, error) {
	tracer := metrics.TraceMethodCall(ctx, ledgerMetricsStructName, "SimulateTransaction")
	tracer.AddAttribute("signature", txn.Signature().String())
	defer tracer.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := l.client.SimulateTransaction(*txn, solana.CommitmentConfirmed)
	tracer.OnError(err)
	return res, err
}

func (l *clientLedger) SendTransaction(ctx context.Context, txn *solana.Transaction) (solana.Signature, error) {
	tracer := metrics.TraceMethodCall(ctx, ledgerMetricsStructName, "SendTransaction")
	tracer.AddAttribute("signature", txn.Signature().String())
	defer tracer.End()

	if err := ctx.Err(); err != nil {
		return solana.Signature{}, err
	}

	sig, err := l.client.SubmitTransaction(*txn, solana.CommitmentConfirmed)
	tracer.OnError(err)
	return sig, err
}

func (l *clientLedger) GetSignatureStatus(ctx context.Context, sig solana.Signature) (*solana.SignatureStatus, error) {
	tracer := metrics.TraceMethodCall(ctx, ledgerMetricsStructName, "GetSignatureStatus")
	tracer.AddAttribute("signature", sig.String())
	defer tracer.End()

	var status *solana.SignatureStatus
	err := l.read(ctx, func() error {
		statuses, err := l.client.GetSignatureStatuses([]solana.Signature{sig})
		if err != nil {
			return err
		}
		if len(statuses) != 1 {
			return errors.Errorf("expected 1 signature status, got %d", len(statuses))
		}
		status = statuses[0]
		return nil
	})
	tracer.OnError(err)
	return status, err
}

// read runs a read-only ledger call with a small bounded retry.
func (l *clientLedger) read(ctx context.Context, action retry.Action, nonRetriable ...error) error {
	_, err := retry.Retry(
		func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return action()
		},
		retry.NonRetriableErrors(append(nonRetriable, context.Canceled, context.DeadlineExceeded)...),
		retry.Limit(readRetryLimit),
		retry.Backoff(backoff.BinaryExponential(readRetryBackoff), time.Second),
	)
	return err
}
