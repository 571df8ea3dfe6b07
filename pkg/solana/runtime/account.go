package runtime

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58"

	"github.com/code-payments/flash-fill/pkg/solana"
	"github.com/code-payments/flash-fill/pkg/solana/system"
)

const (
	// Reference: https://github.com/solana-labs/solana/blob/v1.17.0/sdk/program/src/rent.rs
	lamportsPerByteYear  = 3480
	exemptionThreshold   = 2
	accountStorageOffset = 128

	// LamportsPerSignature is the fee charged for every required signature.
	LamportsPerSignature = 5000

	// WalletRentExemptMinimum is the rent exempt minimum for an account with no data.
	WalletRentExemptMinimum = 890_880

	// TokenAccountLamports is the rent exempt minimum for an SPL token account.
	TokenAccountLamports = 2_039_280
)

var (
	nativeLoaderKey = mustBase58Decode("NativeLoader1111111111111111111111111111111")
	sysvarOwnerKey  = mustBase58Decode("Sysvar1111111111111111111111111111111111111")
)

// RentExemptMinimum returns the lamports an account holding size bytes needs
// to be exempt from rent.
func RentExemptMinimum(size int) uint64 {
	return uint64(accountStorageOffset+size) * lamportsPerByteYear * exemptionThreshold
}

// Account is the ledger state stored at an address.
type Account struct {
	Lamports   uint64
	Owner      ed25519.PublicKey
	Data       []byte
	Executable bool
}

// NewSystemAccount returns a data-less account owned by the system program.
func NewSystemAccount(lamports uint64) *Account {
	return &Account{
		Lamports: lamports,
		Owner:    system.ProgramKey[:],
	}
}

func (a *Account) Clone() *Account {
	cloned := &Account{
		Lamports:   a.Lamports,
		Executable: a.Executable,
	}
	cloned.Owner = append(ed25519.PublicKey{}, a.Owner...)
	if a.Data != nil {
		cloned.Data = append([]byte{}, a.Data...)
	}
	return cloned
}

func (a *Account) IsOwnedBy(program ed25519.PublicKey) bool {
	return bytes.Equal(a.Owner, program)
}


func (a *Account) toAccountInfo() solana.AccountInfo {
	return solana.AccountInfo{
		Data:       append([]byte{}, a.Data...),
		Owner:      append(ed25519.PublicKey{}, a.Owner...),
		Lamports:   a.Lamports,
		Executable: a.Executable,
	}
}

func mustBase58Decode(value string) ed25519.PublicKey {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}

var systemProgramKey = ed25519.PublicKey(system.ProgramKey[:])

func encodeKey(key ed25519.PublicKey) string {
	return base58.Encode(key)
}
