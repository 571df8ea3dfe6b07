package runtime

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/flash-fill/pkg/solana"
)

const (
	// Reference: https://github.com/solana-labs/solana/blob/v1.17.0/program-runtime/src/compute_budget.rs
	maxInvokeDepth = 4

	defaultInstructionComputeUnitLimit = 200_000
	maxComputeUnitLimit                = 1_400_000
)

// Processor executes an instruction on behalf of a program.
type Processor func(ctx *InvokeContext) error

// Program is a natively implemented program hosted by the Bank.
type Program struct {
	Name         string
	ComputeUnits uint64
	Process      Processor
}

type accountSnapshot struct {
	lamports uint64
	owner    ed25519.PublicKey
	data     []byte
}

// transactionContext is the state shared by every instruction of a single
// transaction execution.
type transactionContext struct {
	bank *Bank

	accounts map[string]*Account
	writable map[string]bool
	signers  map[string]bool

	logs          []string
	unitsLimit    uint64
	unitsConsumed uint64
}

func (tx *transactionContext) logf(format string, args ...interface{}) {
	tx.logs = append(tx.logs, fmt.Sprintf(format, args...))
}

// InvokeContext is handed to a Processor for the duration of one instruction
// invocation.
type InvokeContext struct {
	tx *transactionContext

	program ed25519.PublicKey
	ixn     solana.Instruction
	signers map[string]bool
	depth   int

	pre map[string]accountSnapshot
}

func (c *InvokeContext) Instruction() solana.Instruction {
	return c.ixn
}

func (c *InvokeContext) Slot() uint64 {
	return c.tx.bank.slot
}

// Account returns the key and mutable state of the instruction account at
// index.
func (c *InvokeContext) Account(index int) (ed25519.PublicKey, *Account, error) {
	if index >= len(c.ixn.Accounts) {
		return nil, nil, ErrNotEnoughAccountKeys
	}

	key := c.ixn.Accounts[index].PublicKey
	account, ok := c.tx.accounts[string(key)]
	if !ok {
		return nil, nil, ErrMissingAccount
	}
	return key, account, nil
}

// IsSigner reports whether key signed for this invocation.
func (c *InvokeContext) IsSigner(key ed25519.PublicKey) bool {
	for _, meta := range c.ixn.Accounts {
		if meta.IsSigner && bytes.Equal(meta.PublicKey, key) {
			return c.signers[string(key)]
		}
	}
	return false
}

// IsWritable reports whether key may be modified by this invocation.
func (c *InvokeContext) IsWritable(key ed25519.PublicKey) bool {
	if !c.tx.writable[string(key)] {
		return false
	}
	for _, meta := range c.ixn.Accounts {
		if meta.IsWritable && bytes.Equal(meta.PublicKey, key) {
			return true
		}
	}
	return false
}

// Log appends a program log line.
func (c *InvokeContext) Log(format string, args ...interface{}) {
	c.tx.logf("Program log: "+format, args...)
}

// Invoke performs a cross-program invocation. Accounts derived from the
// calling program with any of signerSeeds are granted signer privileges.
func (c *InvokeContext) Invoke(ixn solana.Instruction, signerSeeds ...[][]byte) error {
	if c.depth >= maxInvokeDepth {
		return ErrCallDepth
	}

	// Changes made so far belong to the caller, and are verified before
	// handing the accounts to the callee.
	if err := c.verify(); err != nil {
		return err
	}

	var derived []ed25519.PublicKey
	for _, seeds := range signerSeeds {
		address, err := solana.CreateProgramAddress(c.program, seeds...)
		if err != nil {
			return ErrInvalidSeeds
		}
		derived = append(derived, address)
	}

	signers := make(map[string]bool)
	for _, meta := range ixn.Accounts {
		if _, ok := c.tx.accounts[string(meta.PublicKey)]; !ok {
			return ErrMissingAccount
		}

		if meta.IsWritable && !c.IsWritable(meta.PublicKey) {
			return ErrPrivilegeEscalation
		}

		if !meta.IsSigner {
			continue
		}
		if c.IsSigner(meta.PublicKey) {
			signers[string(meta.PublicKey)] = true
			continue
		}

		var isDerived bool
		for _, address := range derived {
			if bytes.Equal(address, meta.PublicKey) {
				isDerived = true
				break
			}
		}
		if !isDerived {
			return ErrPrivilegeEscalation
		}
		signers[string(meta.PublicKey)] = true
	}

	callee := &InvokeContext{
		tx:      c.tx,
		program: ixn.Program,
		ixn:     ixn,
		signers: signers,
		depth:   c.depth + 1,
	}
	if err := c.tx.bank.process(callee); err != nil {
		return err
	}

	c.pre = c.snapshot()
	return nil
}

func (c *InvokeContext) snapshot() map[string]accountSnapshot {
	snapshots := make(map[string]accountSnapshot)
	for _, meta := range c.ixn.Accounts {
		key := string(meta.PublicKey)
		if _, ok := snapshots[key]; ok {
			continue
		}

		account, ok := c.tx.accounts[key]
		if !ok {
			continue
		}
		snapshots[key] = accountSnapshot{
			lamports: account.Lamports,
			owner:    append(ed25519.PublicKey{}, account.Owner...),
			data:     append([]byte{}, account.Data...),
		}
	}
	return snapshots
}

// verify checks the account changes made by the program since the last
// snapshot against the ledger's ownership and writability rules.
//
// Reference: https://github.com/solana-labs/solana/blob/v1.17.0/sdk/src/transaction_context.rs
func (c *InvokeContext) verify() error {
	var preTotal, postTotal uint64
	for key, pre := range c.pre {
		account := c.tx.accounts[key]
		pubkey := ed25519.PublicKey(key)

		preTotal += pre.lamports
		postTotal += account.Lamports

		lamportsChanged := pre.lamports != account.Lamports
		dataChanged := !bytes.Equal(pre.data, account.Data)
		ownerChanged := !bytes.Equal(pre.owner, account.Owner)
		ownedByProgram := bytes.Equal(pre.owner, c.program)

		if !c.IsWritable(pubkey) {
			switch {
			case lamportsChanged:
				return ErrReadonlyLamportChange
			case dataChanged:
				return ErrReadonlyDataModified
			case ownerChanged:
				return ErrModifiedProgramID
			}
			continue
		}

		if account.Lamports < pre.lamports && !ownedByProgram {
			return ErrExternalAccountLamportSpend
		}
		if dataChanged && !ownedByProgram {
			return ErrExternalAccountDataModified
		}
		if ownerChanged && !ownedByProgram {
			return ErrModifiedProgramID
		}
	}

	if preTotal != postTotal {
		return ErrUnbalancedInstruction
	}
	return nil
}

// process runs a single invocation, including its bookkeeping and checks.
func (b *Bank) process(ctx *InvokeContext) error {
	program, ok := b.programs[string(ctx.program)]
	if !ok {
		return ErrUnsupportedProgramID
	}

	id := base58.Encode(ctx.program)
	ctx.tx.logf("Program %s invoke [%d]", id, ctx.depth)

	ctx.tx.unitsConsumed += program.ComputeUnits
	if ctx.tx.unitsConsumed > ctx.tx.unitsLimit {
		ctx.tx.logf("Program %s failed: %s", id, ErrComputationalBudgetExceeded)
		return ErrComputationalBudgetExceeded
	}

	ctx.pre = ctx.snapshot()

	err := program.Process(ctx)
	if err == nil {
		err = ctx.verify()
	}
	if err != nil {
		ctx.tx.logf("Program %s failed: %s", id, describe(err))
		return err
	}

	ctx.tx.logf("Program %s consumed %d of %d compute units", id, program.ComputeUnits, ctx.tx.unitsLimit)
	ctx.tx.logf("Program %s success", id)
	return nil
}

func describe(err error) string {
	ixnErr := toInstructionError(0, err)
	if custom := ixnErr.CustomError(); custom != nil {
		return custom.Error()
	}
	return errors.Cause(err).Error()
}
