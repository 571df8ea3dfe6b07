package runtime

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"

	"github.com/code-payments/flash-fill/pkg/solana"
	address_lookup_table "github.com/code-payments/flash-fill/pkg/solana/addresslookuptable"
	"github.com/code-payments/flash-fill/pkg/solana/system"
)

const lookupTableProgramComputeUnits = 750

func newLookupTableProgram() Program {
	return Program{
		Name:         "address_lookup_table",
		ComputeUnits: lookupTableProgramComputeUnits,
		Process:      processLookupTable,
	}
}

// Reference: https://github.com/solana-program/address-lookup-table/blob/main/program/src/processor.rs
func processLookupTable(ctx *InvokeContext) error {
	command, err := address_lookup_table.GetCommand(ctx.Instruction())
	if err != nil {
		return ErrInvalidInstructionData
	}

	switch command {
	case address_lookup_table.CommandCreate:
		ctx.Log("Instruction: CreateLookupTable")
		return processCreateLookupTable(ctx)
	case address_lookup_table.CommandExtend:
		ctx.Log("Instruction: ExtendLookupTable")
		return processExtendLookupTable(ctx)
	case address_lookup_table.CommandDeactivate:
		ctx.Log("Instruction: DeactivateLookupTable")
		return processDeactivateLookupTable(ctx)
	default:
		return ErrInvalidInstructionData
	}
}

func processCreateLookupTable(ctx *InvokeContext) error {
	decompiled, err := address_lookup_table.DecompileCreate(ctx.Instruction())
	if err != nil {
		return ErrInvalidInstructionData
	}

	if decompiled.RecentSlot > ctx.Slot() {
		ctx.Log("%d is not a recent slot", decompiled.RecentSlot)
		return ErrInvalidInstructionData
	}

	var slot [8]byte
	binary.LittleEndian.PutUint64(slot[:], decompiled.RecentSlot)

	seeds := [][]byte{decompiled.Authority, slot[:], {decompiled.BumpSeed}}
	address, err := solana.CreateProgramAddress(address_lookup_table.ProgramKey, seeds...)
	if err != nil || !bytes.Equal(address, decompiled.Table) {
		ctx.Log("Table address must match derived address")
		return ErrInvalidArgument
	}

	err = ctx.Invoke(
		system.CreateAccount(
			decompiled.Payer,
			decompiled.Table,
			address_lookup_table.ProgramKey,
			RentExemptMinimum(address_lookup_table.MetadataSize),
			address_lookup_table.MetadataSize,
		),
		seeds,
	)
	if err != nil {
		return err
	}

	_, table, err := ctx.Account(0)
	if err != nil {
		return err
	}

	state := address_lookup_table.AddressLookupTableAccount{
		DeactivationSlot: address_lookup_table.DeactivationSlotNone,
		Authority:        decompiled.Authority,
	}
	table.Data = state.Marshal()
	return nil
}

func loadLookupTable(ctx *InvokeContext, authority ed25519.PublicKey) (*Account, *address_lookup_table.AddressLookupTableAccount, error) {
	_, table, err := ctx.Account(0)
	if err != nil {
		return nil, nil, err
	}
	if !table.IsOwnedBy(address_lookup_table.ProgramKey) {
		return nil, nil, ErrInvalidAccountOwner
	}

	var state address_lookup_table.AddressLookupTableAccount
	if err := state.Unmarshal(table.Data); err != nil {
		return nil, nil, ErrInvalidAccountData
	}

	if state.Authority == nil {
		ctx.Log("Lookup table is frozen")
		return nil, nil, ErrImmutable
	}
	if !bytes.Equal(state.Authority, authority) {
		return nil, nil, ErrIncorrectAuthority
	}
	if !ctx.IsSigner(authority) {
		ctx.Log("Authority account must be a signer")
		return nil, nil, ErrMissingRequiredSignature
	}
	if state.DeactivationSlot != address_lookup_table.DeactivationSlotNone {
		ctx.Log("Deactivated tables cannot be modified")
		return nil, nil, ErrInvalidArgument
	}

	return table, &state, nil
}

func processExtendLookupTable(ctx *InvokeContext) error {
	decompiled, err := address_lookup_table.DecompileExtend(ctx.Instruction())
	if err != nil {
		return ErrInvalidInstructionData
	}

	table, state, err := loadLookupTable(ctx, decompiled.Authority)
	if err != nil {
		return err
	}

	if len(state.Addresses)+len(decompiled.Addresses) > address_lookup_table.MaxAddresses {
		ctx.Log("Extended lookup table length %d would exceed max capacity of %d", len(state.Addresses)+len(decompiled.Addresses), address_lookup_table.MaxAddresses)
		return ErrInvalidInstructionData
	}

	if state.LastExtendedSlot != ctx.Slot() {
		state.LastExtendedSlot = ctx.Slot()
		state.LastExtendedSlotStartIndex = uint8(len(state.Addresses))
	}
	state.Addresses = append(state.Addresses, decompiled.Addresses...)

	data := state.Marshal()
	required := RentExemptMinimum(len(data))
	if table.Lamports < required {
		err = ctx.Invoke(system.Transfer(decompiled.Payer, decompiled.Table, required-table.Lamports))
		if err != nil {
			return err
		}
	}

	table.Data = data
	return nil
}

func processDeactivateLookupTable(ctx *InvokeContext) error {
	decompiled, err := address_lookup_table.DecompileDeactivate(ctx.Instruction())
	if err != nil {
		return ErrInvalidInstructionData
	}

	table, state, err := loadLookupTable(ctx, decompiled.Authority)
	if err != nil {
		return err
	}

	state.DeactivationSlot = ctx.Slot()
	table.Data = state.Marshal()
	return nil
}
