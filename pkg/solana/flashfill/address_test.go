package flash_fill

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProgramAuthorityAddress(t *testing.T) {
	address, bump, err := GetProgramAuthorityAddress(PROGRAM_ID)
	require.NoError(t, err)
	assert.Equal(t, "36ruqG5gYCyszymi4VaU6GmQzjJXGQoXXiVUnRXwFdoF", base58.Encode(address))
	assert.EqualValues(t, 254, bump)
}
