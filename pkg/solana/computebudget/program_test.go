package compute_budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetComputeUnitLimit(t *testing.T) {
	ixn := SetComputeUnitLimit(1_400_000)
	assert.EqualValues(t, ProgramKey, ixn.Program)
	assert.Empty(t, ixn.Accounts)

	limit, err := ParseSetComputeUnitLimitIxnData(ixn.Data)
	require.NoError(t, err)
	assert.EqualValues(t, 1_400_000, limit)

	_, err = ParseSetComputeUnitPriceIxnData(ixn.Data)
	assert.Error(t, err)
}

func TestSetComputeUnitPrice(t *testing.T) {
	ixn := SetComputeUnitPrice(50_000)

	price, err := ParseSetComputeUnitPriceIxnData(ixn.Data)
	require.NoError(t, err)
	assert.EqualValues(t, 50_000, price)

	_, err = ParseSetComputeUnitLimitIxnData(ixn.Data)
	assert.Error(t, err)
}

func TestIsComputeBudgetInstruction(t *testing.T) {
	assert.True(t, IsValidInstructionData(SetComputeUnitLimit(1).Data))
	assert.True(t, IsValidInstructionData(SetComputeUnitPrice(1).Data))
	assert.False(t, IsValidInstructionData(nil))
	assert.False(t, IsValidInstructionData([]byte{commandSetComputeUnitLimit, 1}))
	assert.False(t, IsValidInstructionData([]byte{99, 0, 0, 0, 0}))

	assert.True(t, IsSetComputeUnitLimit(SetComputeUnitLimit(1).Data))
	assert.False(t, IsSetComputeUnitLimit(SetComputeUnitPrice(1).Data))
	assert.True(t, IsSetComputeUnitPrice(SetComputeUnitPrice(1).Data))
	assert.False(t, IsSetComputeUnitPrice(SetComputeUnitLimit(1).Data))
}
