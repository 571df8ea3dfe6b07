package runtime

import (
	"crypto/ed25519"

	"github.com/pkg/errors"

	flash_fill "github.com/code-payments/flash-fill/pkg/solana/flashfill"
	"github.com/code-payments/flash-fill/pkg/solana/system"
)

const flashFillProgramComputeUnits = 12_000

// NewFlashFillProgram hosts the flash-fill lending program deployed at
// program. Borrow and Repay are both gated by the atomicity guard.
func NewFlashFillProgram(program ed25519.PublicKey) (Program, error) {
	guard, err := flash_fill.NewGuard(program)
	if err != nil {
		return Program{}, err
	}

	_, bump, err := flash_fill.GetProgramAuthorityAddress(program)
	if err != nil {
		return Program{}, err
	}

	return Program{
		Name:         "flash_fill",
		ComputeUnits: flashFillProgramComputeUnits,
		Process: func(ctx *InvokeContext) error {
			err := processFlashFill(ctx, guard, bump)

			var code flash_fill.ErrorCode
			if errors.As(err, &code) {
				ctx.Log(
					"AnchorError occurred. Error Code: %s. Error Number: %d. Error Message: %s.",
					code.Message(),
					uint32(code),
					code.Message(),
				)
			}
			return err
		},
	}, nil
}

func processFlashFill(ctx *InvokeContext, guard *flash_fill.Guard, bump uint8) error {
	switch flash_fill.GetInstructionType(ctx.Instruction().Data) {
	case flash_fill.InstructionTypeBorrow:
		ctx.Log("Instruction: Borrow")
		return processBorrow(ctx, guard, bump)
	case flash_fill.InstructionTypeRepay:
		ctx.Log("Instruction: Repay")
		return processRepay(ctx, guard)
	default:
		return ErrInvalidInstructionData
	}
}

func processBorrow(ctx *InvokeContext, guard *flash_fill.Guard, bump uint8) error {
	_, log, err := ctx.Account(3)
	if err != nil {
		return err
	}

	args, accounts, err := guard.CheckBorrow(ctx.Instruction(), log.Data)
	if err != nil {
		return toFlashFillError(err)
	}

	fee := flash_fill.CalculateFee(args.Amount)
	net := args.Amount - fee
	seeds := flash_fill.ProgramAuthoritySeeds(bump)

	err = ctx.Invoke(system.Transfer(accounts.ProgramAuthority, accounts.FeeAccount, fee), seeds)
	if err != nil {
		return err
	}
	return ctx.Invoke(system.Transfer(accounts.ProgramAuthority, accounts.Borrower, net), seeds)
}

func processRepay(ctx *InvokeContext, guard *flash_fill.Guard) error {
	_, log, err := ctx.Account(2)
	if err != nil {
		return err
	}

	args, accounts, err := guard.CheckRepay(ctx.Instruction(), log.Data)
	if err != nil {
		return toFlashFillError(err)
	}

	// Whatever ran since the Borrow may have left the borrower short
	_, borrower, err := ctx.Account(0)
	if err != nil {
		return err
	}
	if borrower.Lamports < args.Amount {
		ctx.Log("Borrower holds %d lamports, repayment needs %d", borrower.Lamports, args.Amount)
		return flash_fill.ErrorInsufficientRepayment
	}

	return ctx.Invoke(system.Transfer(accounts.Borrower, accounts.ProgramAuthority, args.Amount))
}

func toFlashFillError(err error) error {
	switch errors.Cause(err) {
	case flash_fill.ErrInvalidProgram:
		return ErrIncorrectProgramID
	case flash_fill.ErrInvalidInstructionData:
		return ErrInvalidInstructionData
	case flash_fill.ErrInvalidAccountData:
		return ErrNotEnoughAccountKeys
	}

	var code flash_fill.ErrorCode
	if errors.As(err, &code) {
		return code
	}
	return ErrInvalidAccountData
}
