package swap

import (
	"context"
	"crypto/ed25519"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/code-payments/flash-fill/pkg/flashfill"
	"github.com/code-payments/flash-fill/pkg/flashfill/attempt"
	"github.com/code-payments/flash-fill/pkg/jupiter"
	"github.com/code-payments/flash-fill/pkg/metrics"
	"github.com/code-payments/flash-fill/pkg/pointer"
	"github.com/code-payments/flash-fill/pkg/solana"
	compute_budget "github.com/code-payments/flash-fill/pkg/solana/computebudget"
)

const (
	metricsStructName = "swap.service"

	maxSlippageBps = 10_000
)

var (
	ErrInvalidRequest = errors.New("invalid swap request")
)

// QuoteProvider provides swap routes and the instructions that execute them.
type QuoteProvider interface {
	GetQuote(ctx context.Context, req *jupiter.QuoteRequest) (*jupiter.Quote, error)
	GetSwapInstructions(ctx context.Context, quote *jupiter.Quote, owner string) (*jupiter.SwapInstructions, error)
}

// Request is a single flash-filled swap. A zero Amount uses the configured
// borrow amount.
type Request struct {
	InputMint  string
	OutputMint string
	Amount     uint64
}

// Result is the outcome of a submitted swap.
type Result struct {
	AttemptId    string
	Signature    solana.Signature
	Quote        *jupiter.Quote
	Confirmation *flashfill.Confirmation
}

// Service borrows, swaps and repays within a single atomic transaction,
// journaling every submission attempt.
type Service struct {
	log  *logrus.Entry
	conf *conf

	quotes   QuoteProvider
	ledger   flashfill.Ledger
	attempts attempt.Store

	resolver *flashfill.Resolver
	composer *flashfill.Composer

	borrower   ed25519.PrivateKey
	feeAccount ed25519.PublicKey
}

func NewService(
	quotes QuoteProvider,
	ledger flashfill.Ledger,
	attempts attempt.Store,
	program ed25519.PublicKey,
	borrower ed25519.PrivateKey,
	feeAccount ed25519.PublicKey,
	configProvider ConfigProvider,
) (*Service, error) {
	composer, err := flashfill.NewComposer(program)
	if err != nil {
		return nil, err
	}

	if len(borrower) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid borrower key")
	}
	if len(feeAccount) != ed25519.PublicKeySize {
		return nil, errors.New("invalid fee account")
	}

	return &Service{
		log:        logrus.StandardLogger().WithField("type", "flashfill/swap/service"),
		conf:       configProvider(),
		quotes:     quotes,
		ledger:     ledger,
		attempts:   attempts,
		resolver:   flashfill.NewResolver(ledger),
		composer:   composer,
		borrower:   borrower,
		feeAccount: feeAccount,
	}, nil
}

// Borrower returns the public key of the borrowing wallet.
func (s *Service) Borrower() ed25519.PublicKey {
	return s.borrower.Public().(ed25519.PublicKey)
}

// Swap quotes, composes and submits a flash-filled swap. The attempt is
// journaled before it is submitted, and is submitted at most once.
func (s *Service) Swap(ctx context.Context, req *Request) (*Result, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Swap")
	tracer.AddAttributes(map[string]interface{}{
		"input_mint":  req.InputMint,
		"output_mint": req.OutputMint,
	})
	defer tracer.End()

	res, err := s.swap(ctx, req)
	tracer.OnError(err)
	return res, err
}

func (s *Service) swap(ctx context.Context, req *Request) (*Result, error) {
	borrower := s.Borrower()

	log := s.log.WithFields(logrus.Fields{
		"method":      "Swap",
		"borrower":    base58.Encode(borrower),
		"input_mint":  req.InputMint,
		"output_mint": req.OutputMint,
	})

	if len(req.InputMint) == 0 || len(req.OutputMint) == 0 {
		return nil, errors.Wrap(ErrInvalidRequest, "input and output mints are required")
	}

	amount := req.Amount
	if amount == 0 {
		amount = s.conf.borrowAmount.Get(ctx)
	}
	if amount == 0 {
		return nil, errors.Wrap(ErrInvalidRequest, "amount must be positive")
	}

	repayAmount := s.conf.repayAmount.Get(ctx)
	if repayAmount == 0 {
		repayAmount = amount
	}

	slippageBps := s.conf.slippageBps.Get(ctx)
	if slippageBps > maxSlippageBps {
		return nil, errors.Errorf("slippage %d bps exceeds maximum", slippageBps)
	}
	maxAccounts := s.conf.maxAccounts.Get(ctx)
	if maxAccounts > math.MaxUint8 {
		return nil, errors.Errorf("max accounts %d exceeds maximum", maxAccounts)
	}

	log = log.WithField("amount", amount)

	var quote *jupiter.Quote
	var instructions *jupiter.SwapInstructions
	var tables []*flashfill.LookupTable
	var blockhash solana.Blockhash

	start := time.Now()

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quote, err = s.quotes.GetQuote(groupCtx, &jupiter.QuoteRequest{
			InputMint:        req.InputMint,
			OutputMint:       req.OutputMint,
			Amount:           amount,
			SlippageBps:      uint32(slippageBps),
			OnlyDirectRoutes: s.conf.onlyDirectRoutes.Get(groupCtx),
			MaxAccounts:      uint8(maxAccounts),
		})
		if err != nil {
			return err
		}

		instructions, err = s.quotes.GetSwapInstructions(groupCtx, quote, base58.Encode(borrower))
		if err != nil {
			return err
		}

		tables, err = s.resolver.Resolve(groupCtx, instructions.AddressLookupTableAddresses)
		return err
	})
	g.Go(func() error {
		var err error
		blockhash, err = s.ledger.GetLatestBlockhash(groupCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Warn("failure preparing swap")
		return nil, err
	}

	recordPreparationLatencyEvent(ctx, time.Since(start))

	computeBudget, err := s.computeBudgetInstructions(ctx, instructions.ComputeBudgetInstructions)
	if err != nil {
		return nil, err
	}

	composed, err := s.composer.Compose(&flashfill.ComposeRequest{
		Program:       s.composer.Program(),
		ComputeBudget: computeBudget,
		Borrow: flashfill.BorrowRequest{
			Amount:     amount,
			FeeAccount: s.feeAccount,
			Borrower:   borrower,
		},
		Setup:   instructions.SetupInstructions,
		Swap:    instructions.SwapInstruction,
		Cleanup: instructions.CleanupInstruction,
		Repay: flashfill.RepayRequest{
			Amount:   repayAmount,
			Borrower: borrower,
		},
		Tables:    tables,
		Payer:     borrower,
		Blockhash: blockhash,
	})
	if err != nil {
		log.WithError(err).Warn("failure composing transaction")
		return nil, err
	}

	txn := composed.Transaction
	if err := txn.Sign(s.borrower); err != nil {
		return nil, errors.Wrap(err, "error signing transaction")
	}

	record := &attempt.Record{
		AttemptId: uuid.New().String(),
		Signature: txn.Signature().String(),
		Borrower:  base58.Encode(borrower),
		Blockhash: blockhash.String(),
		Amount:    amount,
		State:     attempt.StateSubmitted,
	}

	log = log.WithFields(logrus.Fields{
		"attempt":   record.AttemptId,
		"signature": record.Signature,
		"blockhash": record.Blockhash,
	})

	// Nothing is submitted unless the attempt can be resolved later
	if err := s.attempts.Save(ctx, record); err != nil {
		log.WithError(err).Warn("failure journaling attempt")
		return nil, errors.Wrap(err, "error journaling attempt")
	}

	confirmation, submitErr := s.newSubmitter(ctx).Submit(ctx, &txn)

	updateAttempt(record, confirmation, submitErr)
	if err := s.attempts.Save(ctx, record); err != nil {
		log.WithError(err).Warn("failure updating attempt")
	}

	recordSubmissionEvent(ctx, record, submitErr)

	res := &Result{
		AttemptId:    record.AttemptId,
		Signature:    txn.Signature(),
		Quote:        quote,
		Confirmation: confirmation,
	}

	if submitErr != nil {
		log.WithError(submitErr).WithField("state", record.State.String()).Info("flash fill not confirmed")
		return res, submitErr
	}

	log.WithField("slot", confirmation.Slot).Info("flash fill confirmed")
	return res, nil
}

// Resolve resolves the outcome of an attempt that has not reached a terminal
// state by looking up its signature status. It never resends.
func (s *Service) Resolve(ctx context.Context, attemptId string) (*attempt.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Resolve")
	tracer.AddAttribute("attempt", attemptId)
	defer tracer.End()

	record, err := s.resolve(ctx, attemptId)
	tracer.OnError(err)
	return record, err
}

func (s *Service) resolve(ctx context.Context, attemptId string) (*attempt.Record, error) {
	log := s.log.WithFields(logrus.Fields{
		"method":  "Resolve",
		"attempt": attemptId,
	})

	record, err := s.attempts.GetById(ctx, attemptId)
	if err != nil {
		return nil, err
	}

	if record.State.IsTerminal() {
		return record, nil
	}

	decoded, err := base58.Decode(record.Signature)
	if err != nil || len(decoded) != len(solana.Signature{}) {
		return nil, errors.Errorf("invalid signature for attempt %s", attemptId)
	}
	var sig solana.Signature
	copy(sig[:], decoded)

	status, err := s.newSubmitter(ctx).GetStatus(ctx, sig)
	if err != nil {
		return nil, errors.Wrap(err, "error getting signature status")
	}

	switch {
	case status == nil:
		return record, nil
	case status.ErrorResult != nil:
		record.State = attempt.StateFailed
		record.Slot = status.Slot
		record.ErrorMessage = pointer.String(status.ErrorResult.Error())
	case status.Confirmed():
		record.State = attempt.StateConfirmed
		record.Slot = status.Slot
		record.ErrorMessage = nil
	default:
		return record, nil
	}

	if err := s.attempts.Save(ctx, record); err != nil {
		return nil, errors.Wrap(err, "error updating attempt")
	}

	log.WithField("state", record.State.String()).Info("attempt resolved")
	recordSubmissionEvent(ctx, record, nil)

	return record, nil
}

func (s *Service) newSubmitter(ctx context.Context) *flashfill.Submitter {
	return flashfill.NewSubmitter(
		s.ledger,
		s.composer.Program(),
		s.conf.confirmationTimeout.Get(ctx),
		s.conf.confirmationPollInterval.Get(ctx),
	)
}

// computeBudgetInstructions replaces the provided compute unit limit and
// price instructions with the configured ones, when configured.
func (s *Service) computeBudgetInstructions(ctx context.Context, provided []*flashfill.InstructionPayload) ([]*flashfill.InstructionPayload, error) {
	limit := s.conf.computeUnitLimit.Get(ctx)
	price := s.conf.computeUnitPrice.Get(ctx)

	if limit == 0 && price == 0 {
		return provided, nil
	}
	if limit > uint64(^uint32(0)) {
		return nil, errors.Errorf("compute unit limit %d exceeds maximum", limit)
	}

	var res []*flashfill.InstructionPayload
	if limit > 0 {
		res = append(res, flashfill.NewInstructionPayload(compute_budget.SetComputeUnitLimit(uint32(limit))))
	}
	if price > 0 {
		res = append(res, flashfill.NewInstructionPayload(compute_budget.SetComputeUnitPrice(price)))
	}

	for _, payload := range provided {
		if limit > 0 && isComputeBudgetInstruction(payload, compute_budget.IsSetComputeUnitLimit) {
			continue
		}
		if price > 0 && isComputeBudgetInstruction(payload, compute_budget.IsSetComputeUnitPrice) {
			continue
		}
		res = append(res, payload)
	}
	return res, nil
}

func isComputeBudgetInstruction(payload *flashfill.InstructionPayload, matches func([]byte) bool) bool {
	return payload != nil && payload.ProgramId == base58.Encode(compute_budget.ProgramKey) && matches(payload.Data)
}

func updateAttempt(record *attempt.Record, confirmation *flashfill.Confirmation, err error) {
	var failedErr *flashfill.TransactionFailedError

	switch {
	case err == nil:
		record.State = attempt.StateConfirmed
		record.Slot = confirmation.Slot
		return
	case errors.Is(err, flashfill.ErrSimulationFailed):
		record.State = attempt.StateSimulationFailed
	case errors.As(err, &failedErr):
		record.State = attempt.StateFailed
	case errors.Is(err, flashfill.ErrSubmissionTimeout):
		record.State = attempt.StateTimedOut
	default:
		// The transaction may have been received, so it's left to be
		// resolved by status lookup
		record.State = attempt.StateSubmitted
	}

	record.ErrorMessage = pointer.String(err.Error())
}
