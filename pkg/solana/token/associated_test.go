package token

import (
	"testing"

	"github.com/mr-tron/base58/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/flash-fill/pkg/solana"
	"github.com/code-payments/flash-fill/pkg/solana/system"
)

func TestGetAssociatedAccount(t *testing.T) {
	// Values generated from taken from spl code.
	wallet, err := base58.Decode("4uQeVj5tqViQh7yWWGStvkEG1Zmhx6uasJtWCJziofM")
	require.NoError(t, err)
	mint, err := base58.Decode("8opHzTAnfzRpPEx21XtnrVTX28YQuCpAjcn1PczScKh")
	require.NoError(t, err)
	addr, err := base58.Decode("H7MQwEzt97tUJryocn3qaEoy2ymWstwyEk1i9Yv3EmuZ")
	require.NoError(t, err)

	actual, err := GetAssociatedAccount(wallet, mint)
	require.NoError(t, err)
	assert.EqualValues(t, addr, actual)
}

func TestCreateAssociatedAccount(t *testing.T) {
	for _, tc := range []struct {
		name       string
		create     func(subsidizer, wallet, mint []byte) (solana.Instruction, []byte, error)
		command    byte
		idempotent bool
	}{
		{
			name: "create",
			create: func(subsidizer, wallet, mint []byte) (solana.Instruction, []byte, error) {
				return CreateAssociatedTokenAccount(subsidizer, wallet, mint)
			},
			command: commandCreate,
		},
		{
			name: "idempotent",
			create: func(subsidizer, wallet, mint []byte) (solana.Instruction, []byte, error) {
				return CreateAssociatedTokenAccountIdempotent(subsidizer, wallet, mint)
			},
			command:    commandCreateIdempotent,
			idempotent: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			keys := generateKeys(t, 3)

			expectedAddr, err := GetAssociatedAccount(keys[1], keys[2])
			require.NoError(t, err)

			instruction, addr, err := tc.create(keys[0], keys[1], keys[2])
			require.NoError(t, err)
			assert.EqualValues(t, expectedAddr, addr)

			assert.Equal(t, []byte{tc.command}, instruction.Data)
			require.Len(t, instruction.Accounts, 7)
			assert.True(t, instruction.Accounts[0].IsSigner)
			assert.True(t, instruction.Accounts[0].IsWritable)
			assert.False(t, instruction.Accounts[1].IsSigner)
			assert.True(t, instruction.Accounts[1].IsWritable)
			for i := 2; i < len(instruction.Accounts); i++ {
				assert.False(t, instruction.Accounts[i].IsSigner)
				assert.False(t, instruction.Accounts[i].IsWritable)
			}

			assert.EqualValues(t, system.ProgramKey[:], instruction.Accounts[4].PublicKey)
			assert.EqualValues(t, ProgramKey, instruction.Accounts[5].PublicKey)
			assert.EqualValues(t, system.RentSysVar, instruction.Accounts[6].PublicKey)

			decompiled, err := DecompileCreateAssociatedAccount(roundTrip(t, keys[0], instruction))
			require.NoError(t, err)
			assert.EqualValues(t, keys[0], decompiled.Subsidizer)
			assert.EqualValues(t, addr, decompiled.Address)
			assert.EqualValues(t, keys[1], decompiled.Owner)
			assert.EqualValues(t, keys[2], decompiled.Mint)
			assert.Equal(t, tc.idempotent, decompiled.Idempotent)
		})
	}
}

func TestDecompileCreateAssociatedAccount_Errors(t *testing.T) {
	keys := generateKeys(t, 4)

	instruction, _, err := CreateAssociatedTokenAccountIdempotent(keys[0], keys[1], keys[2])
	require.NoError(t, err)

	// Rent sysvar is optional
	withoutRent := instruction
	withoutRent.Accounts = instruction.Accounts[:6]
	_, err = DecompileCreateAssociatedAccount(withoutRent)
	assert.NoError(t, err)

	badData := instruction
	badData.Data = []byte{2}
	_, err = DecompileCreateAssociatedAccount(badData)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)

	badAccounts := instruction
	badAccounts.Accounts = instruction.Accounts[:5]
	_, err = DecompileCreateAssociatedAccount(badAccounts)
	assert.Contains(t, err.Error(), "invalid number of accounts")

	badProgram := instruction
	badProgram.Program = keys[3]
	_, err = DecompileCreateAssociatedAccount(badProgram)
	assert.Equal(t, solana.ErrIncorrectProgram, err)
}
