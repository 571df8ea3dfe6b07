package flash_fill

import (
	"bytes"
	"crypto/ed25519"

	"github.com/near/borsh-go"
	"github.com/pkg/errors"

	"github.com/code-payments/flash-fill/pkg/solana"
)

var borrowInstructionDiscriminator = []byte{
	228, 253, 131, 202, 207, 116, 89, 18,
}

const (
	BorrowInstructionArgsSize = (8 + // amount
		32) // fee_account

	BorrowInstructionAccountsSize = 5
)

type BorrowInstructionArgs struct {
	Amount     uint64
	FeeAccount [ed25519.PublicKeySize]byte
}

type BorrowInstructionAccounts struct {
	Borrower         ed25519.PublicKey
	ProgramAuthority ed25519.PublicKey
	FeeAccount       ed25519.PublicKey
}

// NewBorrowInstruction builds a Borrow that lends args.Amount lamports from
// the program authority to the borrower.
func NewBorrowInstruction(
	program ed25519.PublicKey,
	accounts *BorrowInstructionAccounts,
	args *BorrowInstructionArgs,
) (solana.Instruction, error) {
	encoded, err := borsh.Serialize(*args)
	if err != nil {
		return solana.Instruction{}, errors.Wrap(err, "error serializing borrow args")
	}

	data := make([]byte, 0, len(borrowInstructionDiscriminator)+BorrowInstructionArgsSize)
	data = append(data, borrowInstructionDiscriminator...)
	data = append(data, encoded...)

	return solana.Instruction{
		Program: program,

		// Instruction args
		Data: data,

		// Instruction accounts
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Borrower,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.ProgramAuthority,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.FeeAccount,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  SYSVAR_INSTRUCTIONS_PUBKEY,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  SYSTEM_PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}, nil
}

// BorrowInstructionFromInstruction decodes a Borrow targeting program.
func BorrowInstructionFromInstruction(program ed25519.PublicKey, ixn solana.Instruction) (*BorrowInstructionArgs, *BorrowInstructionAccounts, error) {
	if !bytes.Equal(ixn.Program, program) {
		return nil, nil, ErrInvalidProgram
	}
	if GetInstructionType(ixn.Data) != InstructionTypeBorrow {
		return nil, nil, ErrInvalidInstructionData
	}
	if len(ixn.Data) != len(borrowInstructionDiscriminator)+BorrowInstructionArgsSize {
		return nil, nil, ErrInvalidInstructionData
	}
	if len(ixn.Accounts) < BorrowInstructionAccountsSize {
		return nil, nil, ErrInvalidAccountData
	}

	var args BorrowInstructionArgs
	if err := borsh.Deserialize(&args, ixn.Data[len(borrowInstructionDiscriminator):]); err != nil {
		return nil, nil, errors.Wrap(ErrInvalidInstructionData, err.Error())
	}

	return &args, &BorrowInstructionAccounts{
		Borrower:         ixn.Accounts[0].PublicKey,
		ProgramAuthority: ixn.Accounts[1].PublicKey,
		FeeAccount:       ixn.Accounts[2].PublicKey,
	}, nil
}
