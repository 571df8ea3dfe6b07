package flash_fill

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/flash-fill/pkg/solana"
	"github.com/code-payments/flash-fill/pkg/solana/sysvar"
)

type guardEnv struct {
	guard      *Guard
	borrower   ed25519.PublicKey
	feeAccount ed25519.PublicKey
	swap       solana.Instruction
}

func setupGuard(t *testing.T) *guardEnv {
	guard, err := NewGuard(PROGRAM_ID)
	require.NoError(t, err)

	return &guardEnv{
		guard:      guard,
		borrower:   newKey(t),
		feeAccount: newKey(t),
		swap:       solana.NewInstruction(newKey(t), []byte{1}),
	}
}

func (e *guardEnv) borrow(t *testing.T, amount uint64) solana.Instruction {
	return newBorrow(t, PROGRAM_ID, e.borrower, e.guard.Authority(), e.feeAccount, amount)
}

func (e *guardEnv) repay(t *testing.T, amount uint64) solana.Instruction {
	return newRepay(t, PROGRAM_ID, e.borrower, e.guard.Authority(), amount)
}

// logAt serializes the instructions with current pointing at index.
func logAt(t *testing.T, instructions []solana.Instruction, index int) []byte {
	log := sysvar.SerializeInstructions(instructions)
	require.NoError(t, sysvar.StoreCurrentIndex(log, uint16(index)))
	return log
}

func TestGuard_BorrowThenRepay(t *testing.T) {
	env := setupGuard(t)

	instructions := []solana.Instruction{
		env.borrow(t, 1_000_000),
		env.swap,
		env.repay(t, 1_000_000),
	}

	args, accounts, err := env.guard.CheckBorrow(instructions[0], logAt(t, instructions, 0))
	require.NoError(t, err)
	assert.EqualValues(t, 1_000_000, args.Amount)
	assert.EqualValues(t, env.borrower, accounts.Borrower)

	state, loan, err := env.guard.LoanStateAt(logAt(t, instructions, 2), 2, env.borrower)
	require.NoError(t, err)
	assert.Equal(t, LoanStateOpen, state)
	assert.EqualValues(t, 1_000_000, loan.Amount)

	repayArgs, _, err := env.guard.CheckRepay(instructions[2], logAt(t, instructions, 2))
	require.NoError(t, err)
	assert.EqualValues(t, 1_000_000, repayArgs.Amount)

	state, _, err = env.guard.LoanStateAt(logAt(t, instructions, 2), 3, env.borrower)
	require.NoError(t, err)
	assert.Equal(t, LoanStateClosed, state)
}

func TestGuard_MissingRepay(t *testing.T) {
	env := setupGuard(t)

	instructions := []solana.Instruction{
		env.borrow(t, 1_000_000),
		env.swap,
	}

	_, _, err := env.guard.CheckBorrow(instructions[0], logAt(t, instructions, 0))
	assert.Equal(t, ErrorMissingRepay, err)
}

func TestGuard_DoubleBorrow(t *testing.T) {
	env := setupGuard(t)

	instructions := []solana.Instruction{
		env.borrow(t, 1_000_000),
		env.borrow(t, 1_000_000),
		env.swap,
		env.repay(t, 1_000_000),
	}

	// The first Borrow sees another Borrow before its Repay
	_, _, err := env.guard.CheckBorrow(instructions[0], logAt(t, instructions, 0))
	assert.Equal(t, ErrorCannotBorrowBeforeRepay, err)

	// The second Borrow sees an open loan
	_, _, err = env.guard.CheckBorrow(instructions[1], logAt(t, instructions, 1))
	assert.Equal(t, ErrorCannotBorrowBeforeRepay, err)
}

func TestGuard_SequentialLoans(t *testing.T) {
	env := setupGuard(t)

	instructions := []solana.Instruction{
		env.borrow(t, 1_000_000),
		env.repay(t, 1_000_000),
		env.borrow(t, 500_000),
		env.repay(t, 500_000),
	}

	for _, i := range []int{0, 2} {
		_, _, err := env.guard.CheckBorrow(instructions[i], logAt(t, instructions, i))
		assert.NoError(t, err)
	}
	for _, i := range []int{1, 3} {
		_, _, err := env.guard.CheckRepay(instructions[i], logAt(t, instructions, i))
		assert.NoError(t, err)
	}
}

func TestGuard_IndependentBorrowers(t *testing.T) {
	env := setupGuard(t)
	other := setupGuard(t)
	other.guard = env.guard

	instructions := []solana.Instruction{
		env.borrow(t, 1_000_000),
		other.borrow(t, 2_000_000),
		env.repay(t, 1_000_000),
		other.repay(t, 2_000_000),
	}

	_, _, err := env.guard.CheckBorrow(instructions[0], logAt(t, instructions, 0))
	assert.NoError(t, err)
	_, _, err = env.guard.CheckBorrow(instructions[1], logAt(t, instructions, 1))
	assert.NoError(t, err)
	_, _, err = env.guard.CheckRepay(instructions[2], logAt(t, instructions, 2))
	assert.NoError(t, err)
	_, _, err = env.guard.CheckRepay(instructions[3], logAt(t, instructions, 3))
	assert.NoError(t, err)
}

func TestGuard_RepayWithoutBorrow(t *testing.T) {
	env := setupGuard(t)

	instructions := []solana.Instruction{
		env.swap,
		env.repay(t, 1_000_000),
	}

	_, _, err := env.guard.CheckRepay(instructions[1], logAt(t, instructions, 1))
	assert.Equal(t, ErrorRepaymentWithoutBorrow, err)
}

func TestGuard_InsufficientRepayment(t *testing.T) {
	env := setupGuard(t)

	instructions := []solana.Instruction{
		env.borrow(t, 1_000_000),
		env.repay(t, 999_999),
	}

	_, _, err := env.guard.CheckBorrow(instructions[0], logAt(t, instructions, 0))
	require.NoError(t, err)

	_, _, err = env.guard.CheckRepay(instructions[1], logAt(t, instructions, 1))
	assert.Equal(t, ErrorInsufficientRepayment, err)
}

func TestGuard_AccountChecks(t *testing.T) {
	env := setupGuard(t)

	repay := env.repay(t, 1_000_000)

	wrongSysvar := env.borrow(t, 1_000_000)
	wrongSysvar.Accounts[3].PublicKey = newKey(t)
	instructions := []solana.Instruction{wrongSysvar, repay}
	_, _, err := env.guard.CheckBorrow(wrongSysvar, logAt(t, instructions, 0))
	assert.Equal(t, ErrorAddressMismatch, err)

	wrongFee := env.borrow(t, 1_000_000)
	wrongFee.Accounts[2].PublicKey = newKey(t)
	instructions = []solana.Instruction{wrongFee, repay}
	_, _, err = env.guard.CheckBorrow(wrongFee, logAt(t, instructions, 0))
	assert.Equal(t, ErrorAddressMismatch, err)

	wrongAuthority := env.borrow(t, 1_000_000)
	wrongAuthority.Accounts[1].PublicKey = newKey(t)
	instructions = []solana.Instruction{wrongAuthority, repay}
	_, _, err = env.guard.CheckBorrow(wrongAuthority, logAt(t, instructions, 0))
	assert.Equal(t, ErrorIncorrectProgramAuthority, err)

	// The matching Repay must send funds back to the program authority
	badRepay := env.repay(t, 1_000_000)
	badRepay.Accounts[1].PublicKey = newKey(t)
	borrow := env.borrow(t, 1_000_000)
	instructions = []solana.Instruction{borrow, badRepay}
	_, _, err = env.guard.CheckBorrow(borrow, logAt(t, instructions, 0))
	assert.Equal(t, ErrorIncorrectProgramAuthority, err)
}

func TestGuard_ProgramMismatch(t *testing.T) {
	env := setupGuard(t)

	borrow := env.borrow(t, 1_000_000)
	instructions := []solana.Instruction{
		env.swap,
		borrow,
		env.repay(t, 1_000_000),
	}

	// Current index points at a different program, as it would during a CPI
	_, _, err := env.guard.CheckBorrow(borrow, logAt(t, instructions, 0))
	assert.Equal(t, ErrorProgramMismatch, err)
}

func TestGuard_UnknownInstruction(t *testing.T) {
	env := setupGuard(t)

	instructions := []solana.Instruction{
		env.borrow(t, 1_000_000),
		solana.NewInstruction(PROGRAM_ID, []byte{1, 2, 3, 4, 5, 6, 7, 8}),
		env.repay(t, 1_000_000),
	}

	_, _, err := env.guard.CheckBorrow(instructions[0], logAt(t, instructions, 0))
	assert.Equal(t, ErrorUnknownInstruction, err)
}
