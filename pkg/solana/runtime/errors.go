package runtime

import (
	"github.com/pkg/errors"

	"github.com/code-payments/flash-fill/pkg/solana"
)

// instructionError is a builtin instruction error a processor can return.
type instructionError solana.InstructionErrorKey

func (e instructionError) Error() string {
	return string(e)
}

var (
	ErrGenericError                error = instructionError(solana.InstructionErrorGenericError)
	ErrInvalidArgument             error = instructionError(solana.InstructionErrorInvalidArgument)
	ErrInvalidInstructionData      error = instructionError(solana.InstructionErrorInvalidInstructionData)
	ErrInvalidAccountData          error = instructionError(solana.InstructionErrorInvalidAccountData)
	ErrInsufficientFunds           error = instructionError(solana.InstructionErrorInsufficientFunds)
	ErrIncorrectProgramID          error = instructionError(solana.InstructionErrorIncorrectProgramID)
	ErrMissingRequiredSignature    error = instructionError(solana.InstructionErrorMissingRequiredSignature)
	ErrAccountAlreadyInitialized   error = instructionError(solana.InstructionErrorAccountAlreadyInitialized)
	ErrUninitializedAccount        error = instructionError(solana.InstructionErrorUninitializedAccount)
	ErrUnbalancedInstruction       error = instructionError(solana.InstructionErrorUnbalancedInstruction)
	ErrModifiedProgramID           error = instructionError(solana.InstructionErrorModifiedProgramID)
	ErrExternalAccountLamportSpend error = instructionError(solana.InstructionErrorExternalAccountLamportSpend)
	ErrExternalAccountDataModified error = instructionError(solana.InstructionErrorExternalAccountDataModified)
	ErrReadonlyLamportChange       error = instructionError(solana.InstructionErrorReadonlyLamportChange)
	ErrReadonlyDataModified        error = instructionError(solana.InstructionErrorReadonlyDataModified)
	ErrNotEnoughAccountKeys        error = instructionError(solana.InstructionErrorNotEnoughAccountKeys)
	ErrUnsupportedProgramID        error = instructionError(solana.InstructionErrorUnsupportedProgramID)
	ErrCallDepth                   error = instructionError(solana.InstructionErrorCallDepth)
	ErrMissingAccount              error = instructionError(solana.InstructionErrorMissingAccount)
	ErrInvalidSeeds                error = instructionError(solana.InstructionErrorInvalidSeeds)
	ErrComputationalBudgetExceeded error = instructionError(solana.InstructionErrorComputationalBudgetExceeded)
	ErrPrivilegeEscalation         error = instructionError(solana.InstructionErrorPrivilegeEscalation)
	ErrInvalidAccountOwner         error = instructionError(solana.InstructionErrorInvalidAccountOwner)
	ErrImmutable                   error = instructionError(solana.InstructionErrorImmutable)
	ErrIncorrectAuthority          error = instructionError(solana.InstructionErrorIncorrectAuthority)
)

// System program custom errors.
//
// Reference: https://github.com/solana-labs/solana/blob/v1.17.0/sdk/program/src/system_instruction.rs#L24
const (
	SystemErrorAccountAlreadyInUse solana.CustomError = iota
	SystemErrorResultWithNegativeLamports
	SystemErrorInvalidProgramId
	SystemErrorInvalidAccountDataLength
	SystemErrorMaxSeedLengthExceeded
	SystemErrorAddressWithSeedMismatch
)

type customError interface {
	CustomError() solana.CustomError
}

// toInstructionError converts an error returned while processing the
// instruction at index into the ledger's instruction error model.
func toInstructionError(index int, err error) *solana.InstructionError {
	var custom customError
	if errors.As(err, &custom) {
		return &solana.InstructionError{Index: index, Err: custom.CustomError()}
	}

	var code solana.CustomError
	if errors.As(err, &code) {
		return &solana.InstructionError{Index: index, Err: code}
	}

	var builtin instructionError
	if errors.As(err, &builtin) {
		return solana.NewInstructionError(index, solana.InstructionErrorKey(builtin))
	}

	return solana.NewInstructionError(index, solana.InstructionErrorGenericError)
}

func newTransactionError(index int, err error) *solana.TransactionError {
	txErr, convErr := solana.TransactionErrorFromInstructionError(toInstructionError(index, err))
	if convErr != nil {
		return solana.NewTransactionError(solana.TransactionErrorInstructionError)
	}
	return txErr
}
