package flashfill

import (
	"context"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/flash-fill/pkg/solana"
	flash_fill "github.com/code-payments/flash-fill/pkg/solana/flashfill"
	"github.com/code-payments/flash-fill/pkg/solana/runtime"
	"github.com/code-payments/flash-fill/pkg/solana/system"
	"github.com/code-payments/flash-fill/pkg/testutil"
)

// Borrow, create token account, swap, close token account, repay.
func TestScenario_BorrowSwapRepay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	borrowerBefore := env.balance(t, env.borrowerKey())

	composed, err := env.composer.Compose(env.composeRequest(t))
	require.NoError(t, err)
	txn := env.sign(t, composed)

	// Loaded through the lookup table rather than listed statically
	require.Len(t, txn.Message.AddressTableLookups, 1)
	assert.EqualValues(t, env.lookupTable, txn.Message.AddressTableLookups[0].PublicKey)

	simulation, err := env.submitter.Simulate(ctx, txn)
	require.NoError(t, err)
	assert.Contains(t, simulation.Logs, "Program log: Instruction: Borrow")
	assert.Contains(t, simulation.Logs, "Program log: Instruction: Swap")
	assert.Contains(t, simulation.Logs, "Program log: Instruction: Repay")

	confirmation, err := env.submitter.Submit(ctx, txn)
	require.NoError(t, err)
	assert.Equal(t, txn.Signature(), confirmation.Signature)
	assert.NotZero(t, confirmation.UnitsConsumed)

	status, err := env.ledger.GetSignatureStatus(ctx, txn.Signature())
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Nil(t, status.ErrorResult)
	assert.True(t, status.Confirmed())

	fee := flash_fill.CalculateFee(testLoanAmount)
	env.assertBalance(t, env.borrowerKey(), borrowerBefore-fee-runtime.LamportsPerSignature)
	env.assertBalance(t, env.feeAccount, runtime.WalletRentExemptMinimum+fee)
	env.assertBalance(t, env.composer.Authority(), testLoanAmount+runtime.WalletRentExemptMinimum)

	_, ok := env.bank.Account(env.tokenAccount)
	assert.False(t, ok)
}

// The same flow without the Repay.
func TestScenario_MissingRepay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	borrowerBefore := env.balance(t, env.borrowerKey())
	req := env.composeRequest(t)

	// The composer refuses to build it at all
	_, err := env.composer.Compose(&ComposeRequest{
		ComputeBudget: req.ComputeBudget,
		Borrow:        req.Borrow,
		Setup:         req.Setup,
		Swap:          req.Swap,
		Cleanup:       req.Cleanup,
		Repay:         RepayRequest{Borrower: req.Borrow.Borrower},
		Tables:        req.Tables,
		Payer:         req.Payer,
		Blockhash:     req.Blockhash,
	})
	assert.True(t, errors.Is(err, ErrInsufficientRepayment))

	instructions := env.instructions(t, req, true, false)
	err = env.composer.Validate(instructions)
	assert.True(t, errors.Is(err, ErrRepaymentNotScheduled))

	composed, err := env.composer.Build(req.Payer, req.Blockhash, req.Tables, instructions)
	require.NoError(t, err)
	txn := env.sign(t, composed)

	// Simulation catches it, so nothing is sent
	_, err = env.submitter.Submit(ctx, txn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSimulationFailed))
	assert.True(t, errors.Is(err, ErrRepaymentNotScheduled))

	var simulationErr *SimulationError
	require.True(t, errors.As(err, &simulationErr))
	assert.NotEmpty(t, simulationErr.Logs)
	require.NotNil(t, simulationErr.TxError.InstructionError())
	assert.Equal(t, 2, simulationErr.TxError.InstructionError().Index)
	env.assertNotLanded(t, txn.Signature())

	// Sending it anyway is rejected by the ledger
	_, err = env.ledger.SendTransaction(ctx, txn)
	require.Error(t, err)
	code, ok := DecodeProgramError(txn, flash_fill.PROGRAM_ID, asTransactionError(t, err))
	require.True(t, ok)
	assert.Equal(t, flash_fill.ErrorMissingRepay, code)

	env.assertNotLanded(t, txn.Signature())
	env.assertBalance(t, env.borrowerKey(), borrowerBefore)
	env.assertBalance(t, env.feeAccount, runtime.WalletRentExemptMinimum)
	env.assertBalance(t, env.composer.Authority(), testLoanAmount+runtime.WalletRentExemptMinimum)
}

// Borrow, Borrow, setup, cleanup, Repay.
func TestScenario_DoubleBorrow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	borrowerBefore := env.balance(t, env.borrowerKey())
	req := env.composeRequest(t)

	borrow, err := env.composer.NewBorrowInstruction(&req.Borrow)
	require.NoError(t, err)
	setup, err := Compile(req.Setup[0])
	require.NoError(t, err)
	cleanup, err := Compile(req.Cleanup)
	require.NoError(t, err)
	repay, err := env.composer.NewRepayInstruction(&req.Repay)
	require.NoError(t, err)

	instructions := []solana.Instruction{borrow, borrow, setup, cleanup, repay}

	err = env.composer.Validate(instructions)
	assert.True(t, errors.Is(err, ErrDoubleBorrowDetected))

	composed, err := env.composer.Build(req.Payer, req.Blockhash, req.Tables, instructions)
	require.NoError(t, err)
	txn := env.sign(t, composed)

	_, err = env.submitter.Submit(ctx, txn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSimulationFailed))
	assert.True(t, errors.Is(err, ErrDoubleBorrowDetected))

	_, err = env.ledger.SendTransaction(ctx, txn)
	require.Error(t, err)
	code, ok := DecodeProgramError(txn, flash_fill.PROGRAM_ID, asTransactionError(t, err))
	require.True(t, ok)
	assert.Equal(t, flash_fill.ErrorCannotBorrowBeforeRepay, code)

	env.assertNotLanded(t, txn.Signature())
	env.assertBalance(t, env.borrowerKey(), borrowerBefore)
	env.assertBalance(t, env.composer.Authority(), testLoanAmount+runtime.WalletRentExemptMinimum)
}

func TestScenario_RepayWithoutBorrow(t *testing.T) {
	env := newTestEnv(t)
	req := env.composeRequest(t)

	repay, err := env.composer.NewRepayInstruction(&req.Repay)
	require.NoError(t, err)

	composed, err := env.composer.Build(req.Payer, req.Blockhash, nil, []solana.Instruction{repay})
	require.NoError(t, err)

	_, err = env.submitter.Submit(context.Background(), env.sign(t, composed))
	assert.True(t, errors.Is(err, ErrSimulationFailed))
	assert.True(t, errors.Is(err, ErrRepaymentWithoutBorrow))
}

func TestScenario_InsufficientRepayment(t *testing.T) {
	env := newTestEnv(t)
	req := env.composeRequest(t)

	underpaid := req.Repay
	underpaid.Amount = testLoanAmount - 1

	instructions := env.instructions(t, req, true, true)
	repay, err := env.composer.NewRepayInstruction(&underpaid)
	require.NoError(t, err)
	instructions[len(instructions)-1] = repay

	assert.True(t, errors.Is(env.composer.Validate(instructions), ErrInsufficientRepayment))

	composed, err := env.composer.Build(req.Payer, req.Blockhash, req.Tables, instructions)
	require.NoError(t, err)

	_, err = env.submitter.Submit(context.Background(), env.sign(t, composed))
	assert.True(t, errors.Is(err, ErrSimulationFailed))
	assert.True(t, errors.Is(err, ErrInsufficientRepayment))
}

// The swap spends the loan, so the Repay finds the borrower short even though
// the declared amount is enough.
func TestScenario_BorrowerCannotCoverRepayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := env.composeRequest(t)
	borrowerBefore := env.balance(t, env.borrowerKey())
	sink := testutil.GenerateSolanaKeys(t, 1)[0]

	borrow, err := env.composer.NewBorrowInstruction(&req.Borrow)
	require.NoError(t, err)
	repay, err := env.composer.NewRepayInstruction(&req.Repay)
	require.NoError(t, err)

	instructions := []solana.Instruction{
		borrow,
		system.Transfer(env.borrowerKey(), sink, borrowerBefore-flash_fill.CalculateFee(testLoanAmount)),
		repay,
	}
	require.NoError(t, env.composer.Validate(instructions))

	composed, err := env.composer.Build(req.Payer, req.Blockhash, nil, instructions)
	require.NoError(t, err)
	txn := env.sign(t, composed)

	_, err = env.submitter.Submit(ctx, txn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSimulationFailed))
	assert.True(t, errors.Is(err, ErrInsufficientRepayment))

	var simulationErr *SimulationError
	require.True(t, errors.As(err, &simulationErr))
	require.NotNil(t, simulationErr.TxError.InstructionError())
	assert.Equal(t, 2, simulationErr.TxError.InstructionError().Index)

	env.assertNotLanded(t, txn.Signature())
	env.assertBalance(t, env.borrowerKey(), borrowerBefore)
	env.assertBalance(t, env.composer.Authority(), testLoanAmount+runtime.WalletRentExemptMinimum)
}

// The ledger rejects a table that is fully deactivated, while the resolver
// already refuses one that is still deactivating.
func TestScenario_DeactivatedLookupTable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := env.composeRequest(t)
	composed, err := env.composer.Compose(req)
	require.NoError(t, err)
	txn := env.sign(t, composed)

	env.deactivateLookupTable(t, env.bank.Slot())

	_, err = env.resolver.Resolve(ctx, []string{base58.Encode(env.lookupTable)})
	assert.True(t, errors.Is(err, ErrStaleLookupTable))

	env.bank.AdvanceSlots(513)

	// Re-sign against a blockhash that is still recent
	blockhash, err := env.ledger.GetLatestBlockhash(ctx)
	require.NoError(t, err)
	txn.SetBlockhash(blockhash)
	require.NoError(t, txn.Sign(env.borrower))

	_, err = env.submitter.Submit(ctx, txn)
	require.Error(t, err)
	var simulationErr *SimulationError
	require.True(t, errors.As(err, &simulationErr))
	assert.Equal(t, solana.TransactionErrorAddressLookupTableNotFound, simulationErr.TxError.ErrorKey())
}

func TestScenario_SubmissionTimeout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Nothing is ever confirmed without slots advancing
	env.bank.SetAutoAdvance(false)
	env.submitter = NewSubmitter(env.ledger, flash_fill.PROGRAM_ID, 5*testPollInterval, testPollInterval)

	composed, err := env.composer.Compose(env.composeRequest(t))
	require.NoError(t, err)
	txn := env.sign(t, composed)

	_, err = env.submitter.Submit(ctx, txn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubmissionTimeout))

	// It landed, and is resolved by status lookup
	status, err := env.submitter.GetStatus(ctx, txn.Signature())
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.False(t, status.Confirmed())

	env.bank.AdvanceSlots(1)

	status, err = env.submitter.WaitForConfirmation(ctx, txn)
	require.NoError(t, err)
	assert.True(t, status.Confirmed())
}

func TestScenario_DuplicateSubmissionRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	composed, err := env.composer.Compose(env.composeRequest(t))
	require.NoError(t, err)
	txn := env.sign(t, composed)

	_, err = env.submitter.Submit(ctx, txn)
	require.NoError(t, err)

	_, err = env.submitter.Submit(ctx, txn)
	require.Error(t, err)
	var simulationErr *SimulationError
	require.True(t, errors.As(err, &simulationErr))
	assert.Equal(t, solana.TransactionErrorDuplicateSignature, simulationErr.TxError.ErrorKey())
}

// instructions returns the composed instruction list of req with the Repay
// and cleanup optionally left out.
func (e *testEnv) instructions(t *testing.T, req *ComposeRequest, withCleanup, withRepay bool) []solana.Instruction {
	computeBudget, err := CompileAll(req.ComputeBudget)
	require.NoError(t, err)
	borrow, err := e.composer.NewBorrowInstruction(&req.Borrow)
	require.NoError(t, err)
	setup, err := CompileAll(req.Setup)
	require.NoError(t, err)
	swap, err := Compile(req.Swap)
	require.NoError(t, err)

	instructions := append(computeBudget, borrow)
	instructions = append(instructions, setup...)
	instructions = append(instructions, swap)

	if withCleanup {
		cleanup, err := Compile(req.Cleanup)
		require.NoError(t, err)
		instructions = append(instructions, cleanup)
	}
	if withRepay {
		repay, err := e.composer.NewRepayInstruction(&req.Repay)
		require.NoError(t, err)
		instructions = append(instructions, repay)
	}
	return instructions
}

func asTransactionError(t *testing.T, err error) *solana.TransactionError {
	var txErr *solana.TransactionError
	require.True(t, errors.As(err, &txErr))
	return txErr
}
