package system

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/code-payments/flash-fill/pkg/solana"
)

// ProgramKey is the system program: 11111111111111111111111111111111
var ProgramKey [32]byte

type Command uint32

const (
	CommandCreateAccount Command = iota
	CommandAssign
	CommandTransfer
)

const (
	createAccountDataSize = 4 + 2*8 + ed25519.PublicKeySize
	transferDataSize      = 4 + 8
)

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L58-L72
func CreateAccount(funder, address, owner ed25519.PublicKey, lamports, size uint64) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Funding account
	//   1. [WRITE, SIGNER] New account
	data := make([]byte, createAccountDataSize)
	binary.LittleEndian.PutUint32(data, uint32(CommandCreateAccount))
	binary.LittleEndian.PutUint64(data[4:], lamports)
	binary.LittleEndian.PutUint64(data[4+8:], size)
	copy(data[4+2*8:], owner)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(funder, true),
		solana.NewAccountMeta(address, true),
	)
}

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L80-L84
func Transfer(from, to ed25519.PublicKey, lamports uint64) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Funding account
	//   1. [WRITE] Recipient account
	data := make([]byte, transferDataSize)
	binary.LittleEndian.PutUint32(data, uint32(CommandTransfer))
	binary.LittleEndian.PutUint64(data[4:], lamports)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(from, true),
		solana.NewAccountMeta(to, false),
	)
}

// GetCommand returns the command encoded in system program instruction data.
func GetCommand(data []byte) (Command, error) {
	if len(data) < 4 {
		return 0, solana.ErrIncorrectInstruction
	}
	return Command(binary.LittleEndian.Uint32(data)), nil
}

type DecompiledCreateAccount struct {
	Funder  ed25519.PublicKey
	Address ed25519.PublicKey

	Lamports uint64
	Size     uint64
	Owner    ed25519.PublicKey
}

func DecompileCreateAccount(ixn solana.Instruction) (*DecompiledCreateAccount, error) {
	if err := checkCommand(ixn, CommandCreateAccount); err != nil {
		return nil, err
	}

	if len(ixn.Accounts) != 2 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ixn.Accounts))
	}
	if len(ixn.Data) != createAccountDataSize {
		return nil, errors.Errorf("invalid instruction data size: %d", len(ixn.Data))
	}

	v := &DecompiledCreateAccount{
		Funder:   ixn.Accounts[0].PublicKey,
		Address:  ixn.Accounts[1].PublicKey,
		Lamports: binary.LittleEndian.Uint64(ixn.Data[4:]),
		Size:     binary.LittleEndian.Uint64(ixn.Data[4+8:]),
		Owner:    make(ed25519.PublicKey, ed25519.PublicKeySize),
	}
	copy(v.Owner, ixn.Data[4+2*8:])

	return v, nil
}

type DecompiledTransfer struct {
	From     ed25519.PublicKey
	To       ed25519.PublicKey
	Lamports uint64
}

func DecompileTransfer(ixn solana.Instruction) (*DecompiledTransfer, error) {
	if err := checkCommand(ixn, CommandTransfer); err != nil {
		return nil, err
	}

	if len(ixn.Accounts) != 2 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ixn.Accounts))
	}
	if len(ixn.Data) != transferDataSize {
		return nil, errors.Errorf("invalid instruction data size: %d", len(ixn.Data))
	}

	return &DecompiledTransfer{
		From:     ixn.Accounts[0].PublicKey,
		To:       ixn.Accounts[1].PublicKey,
		Lamports: binary.LittleEndian.Uint64(ixn.Data[4:]),
	}, nil
}

func checkCommand(ixn solana.Instruction, command Command) error {
	if !bytes.Equal(ixn.Program, ProgramKey[:]) {
		return solana.ErrIncorrectProgram
	}

	actual, err := GetCommand(ixn.Data)
	if err != nil || actual != command {
		return solana.ErrIncorrectInstruction
	}
	return nil
}
