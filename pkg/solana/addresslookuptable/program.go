package address_lookup_table

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/flash-fill/pkg/solana"
	"github.com/code-payments/flash-fill/pkg/solana/binary"
	"github.com/code-payments/flash-fill/pkg/solana/system"
)

// Reference: https://github.com/solana-program/address-lookup-table/blob/main/program/src/instruction.rs

// AddressLookupTab1e1111111111111111111111111
var ProgramKey = ed25519.PublicKey{2, 119, 166, 175, 151, 51, 155, 122, 200, 141, 24, 146, 201, 4, 70, 245, 0, 2, 48, 146, 102, 246, 46, 83, 193, 24, 36, 73, 130, 0, 0, 0}

const (
	commandCreateLookupTable uint32 = iota
	commandFreezeLookupTable
	commandExtendLookupTable
	commandDeactivateLookupTable
	commandCloseLookupTable
)

func Create(alt, authority, payer ed25519.PublicKey, recentSlot uint64, bumpSeed uint8) solana.Instruction {
	data := make([]byte, 4+8+1)

	var offset int
	binary.PutUint32(data[offset:], commandCreateLookupTable, &offset)
	binary.PutUint64(data[offset:], recentSlot, &offset)
	binary.PutUint8(data[offset:], bumpSeed, &offset)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(alt, false),
		solana.NewReadonlyAccountMeta(authority, true),
		solana.NewAccountMeta(payer, true),
		solana.NewReadonlyAccountMeta(system.ProgramKey[:], false),
	)
}

func Extend(alt, authority, payer ed25519.PublicKey, addresses ...ed25519.PublicKey) solana.Instruction {
	data := make([]byte, 4+8+len(addresses)*ed25519.PublicKeySize)

	var offset int
	binary.PutUint32(data[offset:], commandExtendLookupTable, &offset)
	binary.PutUint64(data[offset:], uint64(len(addresses)), &offset)
	for _, address := range addresses {
		binary.PutKey32(data[offset:], address, &offset)
	}

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(alt, false),
		solana.NewReadonlyAccountMeta(authority, true),
		solana.NewAccountMeta(payer, true),
		solana.NewReadonlyAccountMeta(system.ProgramKey[:], false),
	)
}

func Deactivate(alt, authority ed25519.PublicKey) solana.Instruction {
	data := make([]byte, 4)

	var offset int
	binary.PutUint32(data[offset:], commandDeactivateLookupTable, &offset)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(alt, false),
		solana.NewReadonlyAccountMeta(authority, true),
	)
}

// Command identifies an address lookup table program instruction.
type Command uint32

const (
	CommandCreate     = Command(commandCreateLookupTable)
	CommandFreeze     = Command(commandFreezeLookupTable)
	CommandExtend     = Command(commandExtendLookupTable)
	CommandDeactivate = Command(commandDeactivateLookupTable)
	CommandClose      = Command(commandCloseLookupTable)
)

func GetCommand(ixn solana.Instruction) (Command, error) {
	if !bytes.Equal(ixn.Program, ProgramKey) {
		return 0, solana.ErrIncorrectProgram
	}
	if len(ixn.Data) < 4 {
		return 0, solana.ErrIncorrectInstruction
	}

	var command uint32
	var offset int
	binary.GetUint32(ixn.Data, &command, &offset)
	if command > commandCloseLookupTable {
		return 0, solana.ErrIncorrectInstruction
	}
	return Command(command), nil
}

type DecompiledCreate struct {
	Table      ed25519.PublicKey
	Authority  ed25519.PublicKey
	Payer      ed25519.PublicKey
	RecentSlot uint64
	BumpSeed   uint8
}

func DecompileCreate(ixn solana.Instruction) (*DecompiledCreate, error) {
	if err := checkCommand(ixn, CommandCreate); err != nil {
		return nil, err
	}
	if len(ixn.Data) != 4+8+1 {
		return nil, errors.Errorf("invalid data size: %d (expected %d)", len(ixn.Data), 4+8+1)
	}
	if len(ixn.Accounts) != 4 {
		return nil, errors.Errorf("invalid number of accounts: %d (expected 4)", len(ixn.Accounts))
	}

	decompiled := &DecompiledCreate{
		Table:     ixn.Accounts[0].PublicKey,
		Authority: ixn.Accounts[1].PublicKey,
		Payer:     ixn.Accounts[2].PublicKey,
	}

	offset := 4
	binary.GetUint64(ixn.Data[offset:], &decompiled.RecentSlot, &offset)
	binary.GetUint8(ixn.Data[offset:], &decompiled.BumpSeed, &offset)
	return decompiled, nil
}

type DecompiledExtend struct {
	Table     ed25519.PublicKey
	Authority ed25519.PublicKey
	Payer     ed25519.PublicKey
	Addresses []ed25519.PublicKey
}

func DecompileExtend(ixn solana.Instruction) (*DecompiledExtend, error) {
	if err := checkCommand(ixn, CommandExtend); err != nil {
		return nil, err
	}
	if len(ixn.Data) < 4+8 {
		return nil, errors.Errorf("invalid data size: %d", len(ixn.Data))
	}
	if len(ixn.Accounts) != 4 {
		return nil, errors.Errorf("invalid number of accounts: %d (expected 4)", len(ixn.Accounts))
	}

	var count uint64
	offset := 4
	binary.GetUint64(ixn.Data[offset:], &count, &offset)
	if count == 0 || count > maxAddresses {
		return nil, errors.Errorf("invalid address count: %d", count)
	}
	if uint64(len(ixn.Data)-offset) != count*ed25519.PublicKeySize {
		return nil, errors.Errorf("invalid data size: %d", len(ixn.Data))
	}

	decompiled := &DecompiledExtend{
		Table:     ixn.Accounts[0].PublicKey,
		Authority: ixn.Accounts[1].PublicKey,
		Payer:     ixn.Accounts[2].PublicKey,
		Addresses: make([]ed25519.PublicKey, count),
	}
	for i := range decompiled.Addresses {
		binary.GetKey32(ixn.Data[offset:], &decompiled.Addresses[i], &offset)
	}
	return decompiled, nil
}

type DecompiledDeactivate struct {
	Table     ed25519.PublicKey
	Authority ed25519.PublicKey
}

func DecompileDeactivate(ixn solana.Instruction) (*DecompiledDeactivate, error) {
	if err := checkCommand(ixn, CommandDeactivate); err != nil {
		return nil, err
	}
	if len(ixn.Data) != 4 {
		return nil, errors.Errorf("invalid data size: %d (expected 4)", len(ixn.Data))
	}
	if len(ixn.Accounts) != 2 {
		return nil, errors.Errorf("invalid number of accounts: %d (expected 2)", len(ixn.Accounts))
	}

	return &DecompiledDeactivate{
		Table:     ixn.Accounts[0].PublicKey,
		Authority: ixn.Accounts[1].PublicKey,
	}, nil
}

func checkCommand(ixn solana.Instruction, expected Command) error {
	command, err := GetCommand(ixn)
	if err != nil {
		return err
	}
	if command != expected {
		return solana.ErrIncorrectInstruction
	}
	return nil
}
