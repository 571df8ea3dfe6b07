package flash_fill

import (
	"bytes"
	"crypto/ed25519"

	"github.com/near/borsh-go"
	"github.com/pkg/errors"

	"github.com/code-payments/flash-fill/pkg/solana"
)

var repayInstructionDiscriminator = []byte{
	234, 103, 67, 82, 208, 234, 219, 166,
}

const (
	RepayInstructionArgsSize = 8 // amount

	RepayInstructionAccountsSize = 4
)

type RepayInstructionArgs struct {
	Amount uint64
}

type RepayInstructionAccounts struct {
	Borrower         ed25519.PublicKey
	ProgramAuthority ed25519.PublicKey
}

// NewRepayInstruction builds a Repay that returns args.Amount lamports from
// the borrower to the program authority.
func NewRepayInstruction(
	program ed25519.PublicKey,
	accounts *RepayInstructionAccounts,
	args *RepayInstructionArgs,
) (solana.Instruction, error) {
	encoded, err := borsh.Serialize(*args)
	if err != nil {
		return solana.Instruction{}, errors.Wrap(err, "error serializing repay args")
	}

	data := make([]byte, 0, len(repayInstructionDiscriminator)+RepayInstructionArgsSize)
	data = append(data, repayInstructionDiscriminator...)
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

// RepayInstructionFromInstruction decodes a Repay targeting program.
func RepayInstructionFromInstruction(program ed25519.PublicKey, ixn solana.Instruction) (*RepayInstructionArgs, *RepayInstructionAccounts, error) {
	if !bytes.Equal(ixn.Program, program) {
		return nil, nil, ErrInvalidProgram
	}
	if GetInstructionType(ixn.Data) != InstructionTypeRepay {
		return nil, nil, ErrInvalidInstructionData
	}
	if len(ixn.Data) != len(repayInstructionDiscriminator)+RepayInstructionArgsSize {
		return nil, nil, ErrInvalidInstructionData
	}
	if len(ixn.Accounts) < RepayInstructionAccountsSize {
		return nil, nil, ErrInvalidAccountData
	}

	var args RepayInstructionArgs
	if err := borsh.Deserialize(&args, ixn.Data[len(repayInstructionDiscriminator):]); err != nil {
		return nil, nil, errors.Wrap(ErrInvalidInstructionData, err.Error())
	}

	return &args, &RepayInstructionAccounts{
		Borrower:         ixn.Accounts[0].PublicKey,
		ProgramAuthority: ixn.Accounts[1].PublicKey,
	}, nil
}
