package runtime

import (
	"bytes"

	"github.com/code-payments/flash-fill/pkg/solana/token"
)

const tokenProgramComputeUnits = 4_500

// MintAccountSize is the size of an SPL token mint.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/state.rs#L34
const MintAccountSize = 82

func newTokenProgram() Program {
	return Program{
		Name:         "spl_token",
		ComputeUnits: tokenProgramComputeUnits,
		Process:      processToken,
	}
}

func processToken(ctx *InvokeContext) error {
	command, err := token.GetCommand(ctx.Instruction())
	if err != nil {
		return ErrInvalidInstructionData
	}

	switch command {
	case token.CommandInitializeAccount:
		ctx.Log("Instruction: InitializeAccount")
		return processInitializeAccount(ctx)
	case token.CommandTransfer:
		ctx.Log("Instruction: Transfer")
		return processTokenTransfer(ctx)
	case token.CommandCloseAccount:
		ctx.Log("Instruction: CloseAccount")
		return processCloseAccount(ctx)
	case token.CommandSyncNative:
		ctx.Log("Instruction: SyncNative")
		return processSyncNative(ctx)
	default:
		return token.ErrorInvalidInstruction
	}
}

func loadTokenAccount(ctx *InvokeContext, index int) (*Account, *token.Account, error) {
	_, account, err := ctx.Account(index)
	if err != nil {
		return nil, nil, err
	}
	if !account.IsOwnedBy(token.ProgramKey) {
		return nil, nil, ErrIncorrectProgramID
	}

	var state token.Account
	if !state.Unmarshal(account.Data) {
		return nil, nil, ErrInvalidAccountData
	}
	if state.State == token.AccountStateUninitialized {
		return nil, nil, token.ErrorUninitializedState
	}
	return account, &state, nil
}

func processInitializeAccount(ctx *InvokeContext) error {
	decompiled, err := token.DecompileInitializeAccount(ctx.Instruction())
	if err != nil {
		return ErrInvalidInstructionData
	}

	_, account, err := ctx.Account(0)
	if err != nil {
		return err
	}
	_, mint, err := ctx.Account(1)
	if err != nil {
		return err
	}

	if !account.IsOwnedBy(token.ProgramKey) || len(account.Data) != token.AccountSize {
		return ErrInvalidAccountData
	}

	var existing token.Account
	if existing.Unmarshal(account.Data) && existing.State != token.AccountStateUninitialized {
		return token.ErrorAlreadyInUse
	}

	if !mint.IsOwnedBy(token.ProgramKey) || len(mint.Data) != MintAccountSize {
		return token.ErrorInvalidMint
	}

	rentReserve := RentExemptMinimum(token.AccountSize)
	if account.Lamports < rentReserve {
		return token.ErrorNotRentExempt
	}

	state := token.Account{
		Mint:  decompiled.Mint,
		Owner: decompiled.Owner,
		State: token.AccountStateInitialized,
	}
	if bytes.Equal(decompiled.Mint, token.NativeMint) {
		state.IsNative = &rentReserve
		state.Amount = account.Lamports - rentReserve
	}

	account.Data = state.Marshal()
	return nil
}

func processTokenTransfer(ctx *InvokeContext) error {
	decompiled, err := token.DecompileTransfer(ctx.Instruction())
	if err != nil {
		return ErrInvalidInstructionData
	}

	source, sourceState, err := loadTokenAccount(ctx, 0)
	if err != nil {
		return err
	}
	destination, destinationState, err := loadTokenAccount(ctx, 1)
	if err != nil {
		return err
	}

	if !bytes.Equal(sourceState.Mint, destinationState.Mint) {
		return token.ErrorMintMismatch
	}
	if !bytes.Equal(sourceState.Owner, decompiled.Owner) {
		return token.ErrorOwnerMismatch
	}
	if !ctx.IsSigner(decompiled.Owner) {
		return ErrMissingRequiredSignature
	}
	if sourceState.Amount < decompiled.Amount {
		return token.ErrorInsufficientFunds
	}

	if source == destination {
		return nil
	}

	sourceState.Amount -= decompiled.Amount
	destinationState.Amount += decompiled.Amount

	// Wrapped SOL moves its backing lamports along with the amount
	if sourceState.IsNative != nil {
		source.Lamports -= decompiled.Amount
		destination.Lamports += decompiled.Amount
	}

	source.Data = sourceState.Marshal()
	destination.Data = destinationState.Marshal()
	return nil
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/processor.rs#L688
func processCloseAccount(ctx *InvokeContext) error {
	decompiled, err := token.DecompileCloseAccount(ctx.Instruction())
	if err != nil {
		return ErrInvalidInstructionData
	}

	source, sourceState, err := loadTokenAccount(ctx, 0)
	if err != nil {
		return err
	}
	_, destination, err := ctx.Account(1)
	if err != nil {
		return err
	}

	if bytes.Equal(decompiled.Account, decompiled.Destination) {
		return ErrInvalidAccountData
	}
	if sourceState.IsNative == nil && sourceState.Amount != 0 {
		return token.ErrorNonNativeHasBalance
	}

	authority := sourceState.Owner
	if sourceState.CloseAuthority != nil {
		authority = sourceState.CloseAuthority
	}
	if !bytes.Equal(authority, decompiled.Owner) {
		return token.ErrorOwnerMismatch
	}
	if !ctx.IsSigner(decompiled.Owner) {
		return ErrMissingRequiredSignature
	}

	destination.Lamports += source.Lamports
	source.Lamports = 0
	source.Data = nil
	source.Owner = systemProgramKey
	return nil
}

func processSyncNative(ctx *InvokeContext) error {
	if _, err := token.DecompileSyncNative(ctx.Instruction()); err != nil {
		return ErrInvalidInstructionData
	}

	account, state, err := loadTokenAccount(ctx, 0)
	if err != nil {
		return err
	}
	if state.IsNative == nil {
		return token.ErrorNonNativeNotSupported
	}

	if account.Lamports < *state.IsNative {
		return token.ErrorInvalidState
	}
	state.Amount = account.Lamports - *state.IsNative

	account.Data = state.Marshal()
	return nil
}
