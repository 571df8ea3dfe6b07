package runtime

import (
	"github.com/code-payments/flash-fill/pkg/solana/system"
)

const systemProgramComputeUnits = 150

// maxPermittedDataLength is the largest account a single CreateAccount may allocate.
const maxPermittedDataLength = 10 * 1024 * 1024

func newSystemProgram() Program {
	return Program{
		Name:         "system",
		ComputeUnits: systemProgramComputeUnits,
		Process:      processSystem,
	}
}

func processSystem(ctx *InvokeContext) error {
	command, err := system.GetCommand(ctx.Instruction().Data)
	if err != nil {
		return ErrInvalidInstructionData
	}

	switch command {
	case system.CommandCreateAccount:
		return processCreateAccount(ctx)
	case system.CommandTransfer:
		return processSystemTransfer(ctx)
	default:
		return ErrInvalidInstructionData
	}
}

// Reference: https://github.com/solana-labs/solana/blob/v1.17.0/programs/system/src/system_processor.rs#L148
func processCreateAccount(ctx *InvokeContext) error {
	decompiled, err := system.DecompileCreateAccount(ctx.Instruction())
	if err != nil {
		return ErrInvalidInstructionData
	}

	_, funder, err := ctx.Account(0)
	if err != nil {
		return err
	}
	_, account, err := ctx.Account(1)
	if err != nil {
		return err
	}

	if !ctx.IsSigner(decompiled.Funder) || !ctx.IsSigner(decompiled.Address) {
		return ErrMissingRequiredSignature
	}
	if account.Lamports > 0 || len(account.Data) > 0 || !account.IsOwnedBy(systemProgramKey) {
		ctx.Log("Create Account: account %s already in use", encodeKey(decompiled.Address))
		return SystemErrorAccountAlreadyInUse
	}
	if decompiled.Size > maxPermittedDataLength {
		return SystemErrorInvalidAccountDataLength
	}
	if funder.Lamports < decompiled.Lamports {
		ctx.Log("Transfer: insufficient lamports %d, need %d", funder.Lamports, decompiled.Lamports)
		return SystemErrorResultWithNegativeLamports
	}

	funder.Lamports -= decompiled.Lamports
	account.Lamports += decompiled.Lamports
	account.Data = make([]byte, decompiled.Size)
	account.Owner = decompiled.Owner
	return nil
}

// Reference: https://github.com/solana-labs/solana/blob/v1.17.0/programs/system/src/system_processor.rs#L196
func processSystemTransfer(ctx *InvokeContext) error {
	decompiled, err := system.DecompileTransfer(ctx.Instruction())
	if err != nil {
		return ErrInvalidInstructionData
	}

	_, from, err := ctx.Account(0)
	if err != nil {
		return err
	}
	_, to, err := ctx.Account(1)
	if err != nil {
		return err
	}

	if !ctx.IsSigner(decompiled.From) {
		ctx.Log("Transfer: `from` account %s must sign", encodeKey(decompiled.From))
		return ErrMissingRequiredSignature
	}
	if len(from.Data) > 0 {
		ctx.Log("Transfer: `from` must not carry data")
		return ErrInvalidArgument
	}
	if from.Lamports < decompiled.Lamports {
		ctx.Log("Transfer: insufficient lamports %d, need %d", from.Lamports, decompiled.Lamports)
		return SystemErrorResultWithNegativeLamports
	}

	from.Lamports -= decompiled.Lamports
	to.Lamports += decompiled.Lamports
	return nil
}
