package runtime

import (
	"bytes"

	"github.com/code-payments/flash-fill/pkg/solana"
	"github.com/code-payments/flash-fill/pkg/solana/system"
	"github.com/code-payments/flash-fill/pkg/solana/token"
)

const associatedTokenProgramComputeUnits = 20_000

// AssociatedTokenErrorInvalidOwner is returned when an existing associated
// account belongs to a different wallet.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/master/associated-token-account/program/src/error.rs
const AssociatedTokenErrorInvalidOwner solana.CustomError = 0

func newAssociatedTokenProgram() Program {
	return Program{
		Name:         "spl_associated_token_account",
		ComputeUnits: associatedTokenProgramComputeUnits,
		Process:      processAssociatedToken,
	}
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/master/associated-token-account/program/src/processor.rs
func processAssociatedToken(ctx *InvokeContext) error {
	decompiled, err := token.DecompileCreateAssociatedAccount(ctx.Instruction())
	if err != nil {
		return ErrInvalidInstructionData
	}

	if decompiled.Idempotent {
		ctx.Log("CreateIdempotent")
	} else {
		ctx.Log("Create")
	}

	address, bump, err := solana.FindProgramAddressAndBump(
		token.AssociatedTokenAccountProgramKey,
		decompiled.Owner,
		token.ProgramKey,
		decompiled.Mint,
	)
	if err != nil {
		return ErrInvalidSeeds
	}
	if !bytes.Equal(address, decompiled.Address) {
		ctx.Log("Error: Associated address does not match seed derivation")
		return ErrInvalidSeeds
	}

	_, account, err := ctx.Account(1)
	if err != nil {
		return err
	}

	if decompiled.Idempotent && account.IsOwnedBy(token.ProgramKey) {
		var existing token.Account
		if existing.Unmarshal(account.Data) && existing.State != token.AccountStateUninitialized {
			if !bytes.Equal(existing.Owner, decompiled.Owner) {
				ctx.Log("Error: owner does not match")
				return AssociatedTokenErrorInvalidOwner
			}
			if !bytes.Equal(existing.Mint, decompiled.Mint) {
				return ErrInvalidAccountData
			}
			return nil
		}
	}

	seeds := [][]byte{
		decompiled.Owner,
		token.ProgramKey,
		decompiled.Mint,
		{bump},
	}

	err = ctx.Invoke(
		system.CreateAccount(
			decompiled.Subsidizer,
			decompiled.Address,
			token.ProgramKey,
			TokenAccountLamports,
			token.AccountSize,
		),
		seeds,
	)
	if err != nil {
		return err
	}

	ctx.Log("Initialize the associated token account")
	return ctx.Invoke(token.InitializeAccount(decompiled.Address, decompiled.Mint, decompiled.Owner))
}
