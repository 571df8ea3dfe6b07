package sysvar

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/code-payments/flash-fill/pkg/solana"
)

// InstructionsKey is the instructions sysvar: Sysvar1nstructions1111111111111111111111111
var InstructionsKey = ed25519.PublicKey{6, 167, 213, 23, 24, 123, 209, 102, 53, 218, 212, 4, 85, 253, 194, 192, 193, 36, 198, 143, 33, 86, 117, 165, 219, 186, 203, 95, 8, 0, 0, 0}

const (
	flagIsSigner   byte = 1 << 0
	flagIsWritable byte = 1 << 1

	u16Size = 2
)

var (
	ErrInvalidInstructionsData    = errors.New("invalid instructions sysvar data")
	ErrInstructionIndexOutOfRange = errors.New("instruction index out of range")
)

// SerializeInstructions encodes the full instruction list of a transaction
// into the layout exposed by the instructions sysvar. The current instruction
// index is appended as a trailing u16, initially zero.
//
// Reference: https://github.com/solana-labs/solana/blob/v1.17.0/sdk/program/src/sysvar/instructions.rs#L85
func SerializeInstructions(instructions []solana.Instruction) []byte {
	size := u16Size + u16Size*len(instructions)
	for _, ixn := range instructions {
		size += u16Size + len(ixn.Accounts)*(1+ed25519.PublicKeySize) + ed25519.PublicKeySize + u16Size + len(ixn.Data)
	}
	size += u16Size

	b := make([]byte, size)
	binary.LittleEndian.PutUint16(b, uint16(len(instructions)))

	offset := u16Size + u16Size*len(instructions)
	for i, ixn := range instructions {
		binary.LittleEndian.PutUint16(b[u16Size+u16Size*i:], uint16(offset))

		binary.LittleEndian.PutUint16(b[offset:], uint16(len(ixn.Accounts)))
		offset += u16Size

		for _, account := range ixn.Accounts {
			var flags byte
			if account.IsSigner {
				flags |= flagIsSigner
			}
			if account.IsWritable {
				flags |= flagIsWritable
			}
			b[offset] = flags
			offset++

			offset += copy(b[offset:], account.PublicKey)
		}

		offset += copy(b[offset:], ixn.Program)

		binary.LittleEndian.PutUint16(b[offset:], uint16(len(ixn.Data)))
		offset += u16Size
		offset += copy(b[offset:], ixn.Data)
	}

	return b
}

// StoreCurrentIndex sets the trailing current instruction index in place.
func StoreCurrentIndex(data []byte, index uint16) error {
	if len(data) < 2*u16Size {
		return ErrInvalidInstructionsData
	}

	binary.LittleEndian.PutUint16(data[len(data)-u16Size:], index)
	return nil
}

// LoadCurrentIndex returns the index of the currently executing instruction.
func LoadCurrentIndex(data []byte) (uint16, error) {
	if len(data) < 2*u16Size {
		return 0, ErrInvalidInstructionsData
	}

	return binary.LittleEndian.Uint16(data[len(data)-u16Size:]), nil
}

// LoadInstructionCount returns the number of instructions in the transaction.
func LoadInstructionCount(data []byte) (int, error) {
	if len(data) < 2*u16Size {
		return 0, ErrInvalidInstructionsData
	}

	return int(binary.LittleEndian.Uint16(data)), nil
}

// LoadInstructionAt decodes the instruction at the provided absolute index.
func LoadInstructionAt(data []byte, index int) (solana.Instruction, error) {
	count, err := LoadInstructionCount(data)
	if err != nil {
		return solana.Instruction{}, err
	}
	if index < 0 || index >= count {
		return solana.Instruction{}, ErrInstructionIndexOutOfRange
	}

	r := reader{data: data, offset: u16Size + u16Size*index}

	start, err := r.uint16()
	if err != nil {
		return solana.Instruction{}, err
	}
	r.offset = int(start)

	numAccounts, err := r.uint16()
	if err != nil {
		return solana.Instruction{}, err
	}

	ixn := solana.Instruction{
		Accounts: make([]solana.AccountMeta, numAccounts),
	}
	for i := range ixn.Accounts {
		flags, err := r.bytes(1)
		if err != nil {
			return solana.Instruction{}, err
		}
		key, err := r.bytes(ed25519.PublicKeySize)
		if err != nil {
			return solana.Instruction{}, err
		}

		ixn.Accounts[i] = solana.AccountMeta{
			PublicKey:  key,
			IsSigner:   flags[0]&flagIsSigner != 0,
			IsWritable: flags[0]&flagIsWritable != 0,
		}
	}

	if ixn.Program, err = r.bytes(ed25519.PublicKeySize); err != nil {
		return solana.Instruction{}, err
	}

	dataLen, err := r.uint16()
	if err != nil {
		return solana.Instruction{}, err
	}
	if ixn.Data, err = r.bytes(int(dataLen)); err != nil {
		return solana.Instruction{}, err
	}

	return ixn, nil
}

// LoadInstructionRelativeTo decodes the instruction at an offset from the
// currently executing one.
func LoadInstructionRelativeTo(data []byte, relative int) (solana.Instruction, error) {
	current, err := LoadCurrentIndex(data)
	if err != nil {
		return solana.Instruction{}, err
	}

	return LoadInstructionAt(data, int(current)+relative)
}

type reader struct {
	data   []byte
	offset int
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.bytes(u16Size)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// bytes returns a copy so decoded instructions never alias the sysvar data.
func (r *reader) bytes(n int) ([]byte, error) {
	// The trailing current index is not part of any instruction
	if r.offset+n > len(r.data)-u16Size {
		return nil, ErrInvalidInstructionsData
	}

	b := make([]byte, n)
	copy(b, r.data[r.offset:r.offset+n])
	r.offset += n
	return b, nil
}
