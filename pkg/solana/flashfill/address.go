package flash_fill

import (
	"crypto/ed25519"

	"github.com/code-payments/flash-fill/pkg/solana"
)

var (
	authorityPrefix = []byte("authority")
)

// GetProgramAuthorityAddress derives the PDA that holds the lendable funds
// for a deployment of the program.
func GetProgramAuthorityAddress(program ed25519.PublicKey) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		program,
		authorityPrefix,
	)
}

// ProgramAuthoritySeeds returns the signer seeds for the program authority.
func ProgramAuthoritySeeds(bump uint8) [][]byte {
	return [][]byte{authorityPrefix, {bump}}
}
