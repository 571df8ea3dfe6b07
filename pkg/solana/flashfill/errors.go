package flash_fill

import (
	"fmt"

	"github.com/code-payments/flash-fill/pkg/solana"
)

// ErrorCode is a custom program error returned by the flash-fill program.
type ErrorCode uint32

const (
	// Address Mismatch
	ErrorAddressMismatch ErrorCode = iota + 0x1770

	// Program Mismatch
	ErrorProgramMismatch

	// Missing Repay
	ErrorMissingRepay

	// Incorrect Program Authority
	ErrorIncorrectProgramAuthority

	// Cannot Borrow Before Repay
	ErrorCannotBorrowBeforeRepay

	// Unknown Instruction
	ErrorUnknownInstruction

	// Repay Without Borrow
	ErrorRepaymentWithoutBorrow

	// Insufficient Repayment
	ErrorInsufficientRepayment
)

var errorMessages = map[ErrorCode]string{
	ErrorAddressMismatch:           "Address Mismatch",
	ErrorProgramMismatch:           "Program Mismatch",
	ErrorMissingRepay:              "Missing Repay",
	ErrorIncorrectProgramAuthority: "Incorrect Program Authority",
	ErrorCannotBorrowBeforeRepay:   "Cannot Borrow Before Repay",
	ErrorUnknownInstruction:        "Unknown Instruction",
	ErrorRepaymentWithoutBorrow:    "Repay Without Borrow",
	ErrorInsufficientRepayment:     "Insufficient Repayment",
}

// Message returns the human readable message for the code.
func (e ErrorCode) Message() string {
	return errorMessages[e]
}

func (e ErrorCode) Error() string {
	msg, ok := errorMessages[e]
	if !ok {
		return fmt.Sprintf("flash fill error: unknown code %d", uint32(e))
	}
	return fmt.Sprintf("flash fill error: %s (%d)", msg, uint32(e))
}

// CustomError returns the code as it is surfaced in an InstructionError.
func (e ErrorCode) CustomError() solana.CustomError {
	return solana.CustomError(e)
}

// ErrorCodeFromCustom maps a custom instruction error back to a program error
// code, if it is one.
func ErrorCodeFromCustom(custom solana.CustomError) (ErrorCode, bool) {
	code := ErrorCode(custom)
	_, ok := errorMessages[code]
	return code, ok
}
