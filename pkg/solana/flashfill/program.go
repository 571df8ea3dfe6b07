package flash_fill

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/flash-fill/pkg/solana/system"
	"github.com/code-payments/flash-fill/pkg/solana/sysvar"
)

var (
	ErrInvalidProgram         = errors.New("invalid program id")
	ErrInvalidInstructionData = errors.New("unexpected instruction data")
	ErrInvalidAccountData     = errors.New("unexpected account data")
)

var (
	PROGRAM_ADDRESS = mustBase58Decode("JUPLdTqUdKztWJ1isGMV92W2QvmEmzs9WTJjhZe4QdJ")
	PROGRAM_ID      = ed25519.PublicKey(PROGRAM_ADDRESS)
)

var (
	SYSTEM_PROGRAM_ID = ed25519.PublicKey(system.ProgramKey[:])

	SYSVAR_INSTRUCTIONS_PUBKEY = sysvar.InstructionsKey
)

// FeeNumerator and FeeDenominator define the share of a borrowed amount that
// is routed to the fee account. The borrower receives the remainder, so a
// repayment of the full borrowed amount covers principal and fee.
const (
	FeeNumerator   = 1
	FeeDenominator = 100
)

// CalculateFee returns the fee charged on a borrow of amount.
func CalculateFee(amount uint64) uint64 {
	return amount * FeeNumerator / FeeDenominator
}

// RequiredRepayment is the minimum a Repay must return for a Borrow of amount.
func RequiredRepayment(amount uint64) uint64 {
	return amount
}

func mustBase58Decode(value string) []byte {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}
