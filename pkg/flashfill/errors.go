package flashfill

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/pkg/errors"

	"github.com/code-payments/flash-fill/pkg/solana"
	flash_fill "github.com/code-payments/flash-fill/pkg/solana/flashfill"
)

var (
	// Composition time errors, returned before anything is built or sent
	ErrInvalidPayload      = errors.New("invalid instruction payload")
	ErrStaleLookupTable    = errors.New("stale address lookup table")
	ErrQuoteUnavailable    = errors.New("quote unavailable")
	ErrInvalidSwapResponse = errors.New("invalid swap response")

	// Submission errors
	ErrSimulationFailed    = errors.New("transaction simulation failed")
	ErrTransactionFailed   = errors.New("transaction failed")
	ErrSubmissionTimeout   = errors.New("timed out waiting for transaction confirmation")
	ErrMissingSignature    = errors.New("transaction is not signed")
	ErrTransactionTooLarge = errors.New("transaction exceeds maximum size")

	// Atomicity guard violations, surfaced from the program's error codes
	ErrRepaymentNotScheduled  error = flash_fill.ErrorMissingRepay
	ErrDoubleBorrowDetected   error = flash_fill.ErrorCannotBorrowBeforeRepay
	ErrRepaymentWithoutBorrow error = flash_fill.ErrorRepaymentWithoutBorrow
	ErrInsufficientRepayment  error = flash_fill.ErrorInsufficientRepayment
)

// SimulationError is returned when a transaction fails simulation. The
// transaction is never sent in that case.
type SimulationError struct {
	Logs          []string
	UnitsConsumed uint64
	TxError       *solana.TransactionError

	// Cause is the decoded flash-fill program error, if the failing
	// instruction was a flash-fill instruction.
	Cause error
}

func (e *SimulationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", ErrSimulationFailed.Error(), e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", ErrSimulationFailed.Error(), e.TxError.Error())
}

func (e *SimulationError) Is(target error) bool {
	return target == ErrSimulationFailed
}

func (e *SimulationError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return e.TxError
}

// TransactionFailedError is returned when the ledger rejects a sent
// transaction, or confirms it with an error.
type TransactionFailedError struct {
	Signature solana.Signature
	TxError   *solana.TransactionError
	Cause     error
}

func (e *TransactionFailedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", ErrTransactionFailed.Error(), e.Signature.String(), e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s: %s", ErrTransactionFailed.Error(), e.Signature.String(), e.TxError.Error())
}

func (e *TransactionFailedError) Is(target error) bool {
	return target == ErrTransactionFailed
}

func (e *TransactionFailedError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return e.TxError
}

// DecodeProgramError extracts the flash-fill program error from a ledger
// transaction error. It only succeeds when the failing instruction targets
// the flash-fill program.
func DecodeProgramError(txn *solana.Transaction, program ed25519.PublicKey, txErr *solana.TransactionError) (flash_fill.ErrorCode, bool) {
	if txErr == nil {
		return 0, false
	}

	ixnErr := txErr.InstructionError()
	if ixnErr == nil {
		return 0, false
	}

	custom := ixnErr.CustomError()
	if custom == nil {
		return 0, false
	}

	if txn != nil {
		msg := txn.Message
		if ixnErr.Index < 0 || ixnErr.Index >= len(msg.Instructions) {
			return 0, false
		}
		programIndex := int(msg.Instructions[ixnErr.Index].ProgramIndex)
		if programIndex >= len(msg.Accounts) || !bytes.Equal(msg.Accounts[programIndex], program) {
			return 0, false
		}
	}

	return flash_fill.ErrorCodeFromCustom(*custom)
}
