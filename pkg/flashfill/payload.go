package flashfill

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/flash-fill/pkg/solana"
	compute_budget "github.com/code-payments/flash-fill/pkg/solana/computebudget"
)

// AccountReference is an account an instruction payload operates on.
type AccountReference struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// InstructionPayload is a provider agnostic instruction descriptor. Data is
// opaque and passed through untouched.
type InstructionPayload struct {
	ProgramId string             `json:"programId"`
	Accounts  []AccountReference `json:"accounts"`
	Data      []byte             `json:"data"`
}

// Programs that can be invoked without any accounts
var accountlessPrograms = []ed25519.PublicKey{
	compute_budget.ProgramKey,
}

// Compile converts a required payload into a native instruction.
func Compile(payload *InstructionPayload) (solana.Instruction, error) {
	if payload == nil {
		return solana.Instruction{}, errors.Wrap(ErrInvalidPayload, "required payload is absent")
	}

	program, err := decodePublicKey(payload.ProgramId)
	if err != nil {
		return solana.Instruction{}, errors.Wrapf(ErrInvalidPayload, "invalid program id: %s", err)
	}

	if len(payload.Accounts) == 0 && !isAccountless(program) {
		return solana.Instruction{}, errors.Wrapf(ErrInvalidPayload, "no accounts provided for program %s", payload.ProgramId)
	}

	accounts := make([]solana.AccountMeta, len(payload.Accounts))
	for i, account := range payload.Accounts {
		pubkey, err := decodePublicKey(account.Pubkey)
		if err != nil {
			return solana.Instruction{}, errors.Wrapf(ErrInvalidPayload, "invalid account at index %d: %s", i, err)
		}

		accounts[i] = solana.AccountMeta{
			PublicKey:  pubkey,
			IsSigner:   account.IsSigner,
			IsWritable: account.IsWritable,
		}
	}

	return solana.Instruction{
		Program:  program,
		Accounts: accounts,
		Data:     append([]byte(nil), payload.Data...),
	}, nil
}

// CompileOptional compiles a payload that may be absent. An absent payload
// yields a nil instruction and no error.
func CompileOptional(payload *InstructionPayload) (*solana.Instruction, error) {
	if payload == nil {
		return nil, nil
	}

	ixn, err := Compile(payload)
	if err != nil {
		return nil, err
	}
	return &ixn, nil
}

// CompileAll compiles an ordered list of required payloads.
func CompileAll(payloads []*InstructionPayload) ([]solana.Instruction, error) {
	instructions := make([]solana.Instruction, len(payloads))
	for i, payload := range payloads {
		ixn, err := Compile(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "payload %d", i)
		}
		instructions[i] = ixn
	}
	return instructions, nil
}

// NewInstructionPayload converts a native instruction back into a payload.
func NewInstructionPayload(ixn solana.Instruction) *InstructionPayload {
	accounts := make([]AccountReference, len(ixn.Accounts))
	for i, account := range ixn.Accounts {
		accounts[i] = AccountReference{
			Pubkey:     base58.Encode(account.PublicKey),
			IsSigner:   account.IsSigner,
			IsWritable: account.IsWritable,
		}
	}

	return &InstructionPayload{
		ProgramId: base58.Encode(ixn.Program),
		Accounts:  accounts,
		Data:      append([]byte(nil), ixn.Data...),
	}
}

func decodePublicKey(value string) (ed25519.PublicKey, error) {
	decoded, err := base58.Decode(value)
	if err != nil {
		return nil, err
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, errors.Errorf("invalid public key length: %d", len(decoded))
	}
	return decoded, nil
}

func isAccountless(program ed25519.PublicKey) bool {
	for _, accountless := range accountlessPrograms {
		if bytes.Equal(program, accountless) {
			return true
		}
	}
	return false
}
