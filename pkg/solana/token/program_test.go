package token

import (
	"crypto/ed25519"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/flash-fill/pkg/solana"
)

func TestGetCommand_Error(t *testing.T) {
	keys := generateKeys(t, 1)

	// invalid program
	cmd, err := GetCommand(solana.NewInstruction(keys[0], []byte{}))
	assert.Equal(t, CommandUnknown, cmd)
	assert.Equal(t, solana.ErrIncorrectProgram, err)

	// no data
	cmd, err = GetCommand(solana.NewInstruction(ProgramKey, []byte{}))
	assert.Equal(t, CommandUnknown, cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing data")
}

func TestInitializeAccount(t *testing.T) {
	keys := generateKeys(t, 4)

	instruction := InitializeAccount(keys[0], keys[1], keys[2])

	assert.Equal(t, []byte{byte(CommandInitializeAccount)}, instruction.Data)
	assert.False(t, instruction.Accounts[0].IsSigner)
	assert.True(t, instruction.Accounts[0].IsWritable)
	for i := 1; i < 4; i++ {
		assert.False(t, instruction.Accounts[i].IsSigner)
		assert.False(t, instruction.Accounts[i].IsWritable)
	}

	decompiled, err := DecompileInitializeAccount(roundTrip(t, keys[3], instruction))
	require.NoError(t, err)
	assert.EqualValues(t, keys[0], decompiled.Account)
	assert.EqualValues(t, keys[1], decompiled.Mint)
	assert.EqualValues(t, keys[2], decompiled.Owner)

	instruction.Accounts[3].PublicKey = keys[3]
	_, err = DecompileInitializeAccount(instruction)
	assert.Contains(t, err.Error(), "invalid rent program")

	instruction.Accounts = instruction.Accounts[:2]
	_, err = DecompileInitializeAccount(instruction)
	assert.Contains(t, err.Error(), "invalid number of accounts")

	instruction.Data[0] = byte(CommandTransfer)
	_, err = DecompileInitializeAccount(instruction)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)

	instruction.Program = keys[3]
	_, err = DecompileInitializeAccount(instruction)
	assert.Equal(t, solana.ErrIncorrectProgram, err)
}

func TestTransfer(t *testing.T) {
	keys := generateKeys(t, 4)

	instruction := Transfer(keys[0], keys[1], keys[2], 123456789)

	expectedAmount := make([]byte, 8)
	binary.LittleEndian.PutUint64(expectedAmount, 123456789)
	assert.Equal(t, append([]byte{byte(CommandTransfer)}, expectedAmount...), instruction.Data)

	assert.False(t, instruction.Accounts[0].IsSigner)
	assert.True(t, instruction.Accounts[0].IsWritable)
	assert.False(t, instruction.Accounts[1].IsSigner)
	assert.True(t, instruction.Accounts[1].IsWritable)
	assert.True(t, instruction.Accounts[2].IsSigner)
	assert.False(t, instruction.Accounts[2].IsWritable)

	cmd, err := GetCommand(instruction)
	require.NoError(t, err)
	assert.Equal(t, CommandTransfer, cmd)

	decompiled, err := DecompileTransfer(roundTrip(t, keys[2], instruction))
	require.NoError(t, err)
	assert.EqualValues(t, keys[0], decompiled.Source)
	assert.EqualValues(t, keys[1], decompiled.Destination)
	assert.EqualValues(t, keys[2], decompiled.Owner)
	assert.EqualValues(t, 123456789, decompiled.Amount)

	instruction.Data = instruction.Data[:5]
	_, err = DecompileTransfer(instruction)
	assert.Contains(t, err.Error(), "invalid instruction data size")

	instruction.Accounts = instruction.Accounts[:2]
	_, err = DecompileTransfer(instruction)
	assert.Contains(t, err.Error(), "invalid number of accounts")

	instruction.Data[0] = byte(CommandCloseAccount)
	_, err = DecompileTransfer(instruction)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)

	instruction.Program = keys[3]
	_, err = DecompileTransfer(instruction)
	assert.Equal(t, solana.ErrIncorrectProgram, err)
}

func TestCloseAccount(t *testing.T) {
	keys := generateKeys(t, 4)

	instruction := CloseAccount(keys[0], keys[1], keys[2])
	assert.Equal(t, []byte{byte(CommandCloseAccount)}, instruction.Data)

	cmd, err := GetCommand(instruction)
	require.NoError(t, err)
	assert.Equal(t, CommandCloseAccount, cmd)

	assert.False(t, instruction.Accounts[0].IsSigner)
	assert.True(t, instruction.Accounts[0].IsWritable)
	assert.False(t, instruction.Accounts[1].IsSigner)
	assert.True(t, instruction.Accounts[1].IsWritable)

	assert.True(t, instruction.Accounts[2].IsSigner)
	assert.False(t, instruction.Accounts[2].IsWritable)

	decompiled, err := DecompileCloseAccount(roundTrip(t, keys[2], instruction))
	require.NoError(t, err)
	assert.EqualValues(t, keys[0], decompiled.Account)
	assert.EqualValues(t, keys[1], decompiled.Destination)
	assert.EqualValues(t, keys[2], decompiled.Owner)

	instruction.Accounts = instruction.Accounts[:2]
	decompiled, err = DecompileCloseAccount(instruction)
	assert.Contains(t, err.Error(), "invalid number of accounts")
	assert.Nil(t, decompiled)

	instruction.Data = append(instruction.Data, 1)
	decompiled, err = DecompileCloseAccount(instruction)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)
	assert.Nil(t, decompiled)

	instruction.Data = nil
	decompiled, err = DecompileCloseAccount(instruction)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)
	assert.Nil(t, decompiled)

	instruction.Program = keys[3]
	_, err = DecompileCloseAccount(instruction)
	assert.Equal(t, solana.ErrIncorrectProgram, err)
}

func TestSyncNative(t *testing.T) {
	keys := generateKeys(t, 2)

	instruction := SyncNative(keys[0])
	assert.Equal(t, []byte{byte(CommandSyncNative)}, instruction.Data)
	require.Len(t, instruction.Accounts, 1)
	assert.True(t, instruction.Accounts[0].IsWritable)

	decompiled, err := DecompileSyncNative(roundTrip(t, keys[1], instruction))
	require.NoError(t, err)
	assert.EqualValues(t, keys[0], decompiled.Account)

	instruction.Data = []byte{byte(CommandTransfer)}
	_, err = DecompileSyncNative(instruction)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)
}

// roundTrip compiles the instruction into a transaction and decompiles it back.
func roundTrip(t *testing.T, payer ed25519.PublicKey, instruction solana.Instruction) solana.Instruction {
	txn := solana.NewLegacyTransaction(payer, instruction)

	var decoded solana.Transaction
	require.NoError(t, decoded.Unmarshal(txn.Marshal()))

	decompiled, err := decoded.Message.DecompileInstructions(solana.LoadedAddresses{})
	require.NoError(t, err)
	require.Len(t, decompiled, 1)
	return decompiled[0]
}

func generateKeys(t *testing.T, amount int) []ed25519.PublicKey {
	keys := make([]ed25519.PublicKey, amount)

	for i := 0; i < amount; i++ {
		pub, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		keys[i] = pub
	}

	return keys
}
