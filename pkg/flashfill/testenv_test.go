package flashfill

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/flash-fill/pkg/solana"
	address_lookup_table "github.com/code-payments/flash-fill/pkg/solana/addresslookuptable"
	compute_budget "github.com/code-payments/flash-fill/pkg/solana/computebudget"
	flash_fill "github.com/code-payments/flash-fill/pkg/solana/flashfill"
	"github.com/code-payments/flash-fill/pkg/solana/runtime"
	"github.com/code-payments/flash-fill/pkg/solana/system"
	"github.com/code-payments/flash-fill/pkg/solana/token"
	"github.com/code-payments/flash-fill/pkg/testutil"
)

const (
	testLoanAmount   = 1_000_000
	testSwapAmount   = 500_000
	testPollInterval = 10 * time.Millisecond
)

// testEnv is an in-process ledger with the flash-fill program deployed, a
// funded lending authority and a stub swap program that wraps native lamports
// into the borrower's token account.
type testEnv struct {
	bank      *runtime.Bank
	ledger    Ledger
	composer  *Composer
	submitter *Submitter
	resolver  *Resolver

	borrower     ed25519.PrivateKey
	feeAccount   ed25519.PublicKey
	swapProgram  ed25519.PublicKey
	tokenAccount ed25519.PublicKey
	lookupTable  ed25519.PublicKey
}

func newTestEnv(t *testing.T) *testEnv {
	bank := runtime.NewBank()
	require.NoError(t, bank.AddFlashFillProgram(flash_fill.PROGRAM_ID))

	composer, err := NewComposer(flash_fill.PROGRAM_ID)
	require.NoError(t, err)

	ledger := NewLedger(bank)

	env := &testEnv{
		bank:        bank,
		ledger:      ledger,
		composer:    composer,
		submitter:   NewSubmitter(ledger, flash_fill.PROGRAM_ID, time.Second, testPollInterval),
		resolver:    NewResolver(ledger),
		borrower:    testutil.GenerateSolanaKeypair(t),
		feeAccount:  testutil.GenerateSolanaKeys(t, 1)[0],
		swapProgram: testutil.GenerateSolanaKeys(t, 1)[0],
	}

	env.tokenAccount, err = token.GetAssociatedAccount(env.borrowerKey(), token.NativeMint)
	require.NoError(t, err)

	bank.AddProgram(env.swapProgram, runtime.Program{
		Name:         "swap",
		ComputeUnits: 10_000,
		Process:      processStubSwap,
	})

	bank.Airdrop(composer.Authority(), testLoanAmount+runtime.WalletRentExemptMinimum)
	bank.Airdrop(env.feeAccount, runtime.WalletRentExemptMinimum)
	bank.Airdrop(env.borrowerKey(), 10*runtime.WalletRentExemptMinimum)

	env.lookupTable = env.addLookupTable(t, address_lookup_table.DeactivationSlotNone, token.NativeMint, env.feeAccount)

	return env
}

// processStubSwap moves the amount in its data from the user to the user's
// native token account and syncs the token balance.
//
// Accounts: [user (signer, writable), token account (writable), system
// program, token program]
func processStubSwap(ctx *runtime.InvokeContext) error {
	ixn := ctx.Instruction()
	if len(ixn.Accounts) < 4 {
		return runtime.ErrNotEnoughAccountKeys
	}
	if len(ixn.Data) != 8 {
		return runtime.ErrInvalidInstructionData
	}

	user := ixn.Accounts[0].PublicKey
	destination := ixn.Accounts[1].PublicKey
	amount := binary.LittleEndian.Uint64(ixn.Data)

	ctx.Log("Instruction: Swap")

	if err := ctx.Invoke(system.Transfer(user, destination, amount)); err != nil {
		return err
	}
	return ctx.Invoke(token.SyncNative(destination))
}

func (e *testEnv) borrowerKey() ed25519.PublicKey {
	return testutil.PublicKey(e.borrower)
}

func (e *testEnv) addLookupTable(t *testing.T, deactivationSlot uint64, addresses ...ed25519.PublicKey) ed25519.PublicKey {
	address := testutil.GenerateSolanaKeys(t, 1)[0]

	table := &address_lookup_table.AddressLookupTableAccount{
		DeactivationSlot: deactivationSlot,
		Authority:        e.borrowerKey(),
		Addresses:        addresses,
	}
	data := table.Marshal()

	e.bank.SetAccount(address, &runtime.Account{
		Lamports: runtime.RentExemptMinimum(len(data)),
		Owner:    address_lookup_table.ProgramKey,
		Data:     data,
	})
	return address
}

func (e *testEnv) deactivateLookupTable(t *testing.T, slot uint64) {
	account, ok := e.bank.Account(e.lookupTable)
	require.True(t, ok)

	var table address_lookup_table.AddressLookupTableAccount
	require.NoError(t, table.Unmarshal(account.Data))
	table.DeactivationSlot = slot
	account.Data = table.Marshal()

	e.bank.SetAccount(e.lookupTable, account)
}

func (e *testEnv) computeBudgetPayloads() []*InstructionPayload {
	return []*InstructionPayload{
		NewInstructionPayload(compute_budget.SetComputeUnitLimit(200_000)),
		NewInstructionPayload(compute_budget.SetComputeUnitPrice(1)),
	}
}

func (e *testEnv) setupPayload(t *testing.T) *InstructionPayload {
	ixn, address, err := token.CreateAssociatedTokenAccountIdempotent(e.borrowerKey(), e.borrowerKey(), token.NativeMint)
	require.NoError(t, err)
	require.Equal(t, e.tokenAccount, address)
	return NewInstructionPayload(ixn)
}

func (e *testEnv) swapPayload() *InstructionPayload {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, testSwapAmount)

	return NewInstructionPayload(solana.NewInstruction(
		e.swapProgram,
		data,
		solana.NewAccountMeta(e.borrowerKey(), true),
		solana.NewAccountMeta(e.tokenAccount, false),
		solana.NewReadonlyAccountMeta(system.ProgramKey[:], false),
		solana.NewReadonlyAccountMeta(token.ProgramKey, false),
	))
}

func (e *testEnv) cleanupPayload() *InstructionPayload {
	return NewInstructionPayload(token.CloseAccount(e.tokenAccount, e.borrowerKey(), e.borrowerKey()))
}

func (e *testEnv) borrowRequest(amount uint64) BorrowRequest {
	return BorrowRequest{
		Amount:     amount,
		FeeAccount: e.feeAccount,
		Borrower:   e.borrowerKey(),
	}
}

func (e *testEnv) repayRequest(amount uint64) RepayRequest {
	return RepayRequest{
		Amount:   amount,
		Borrower: e.borrowerKey(),
	}
}

// composeRequest returns the full swap flow: compute budget, borrow, create
// token account, swap, close token account, repay.
func (e *testEnv) composeRequest(t *testing.T) *ComposeRequest {
	tables, err := e.resolver.Resolve(context.Background(), []string{base58.Encode(e.lookupTable)})
	require.NoError(t, err)

	blockhash, err := e.ledger.GetLatestBlockhash(context.Background())
	require.NoError(t, err)

	return &ComposeRequest{
		Program:       flash_fill.PROGRAM_ID,
		ComputeBudget: e.computeBudgetPayloads(),
		Borrow:        e.borrowRequest(testLoanAmount),
		Setup:         []*InstructionPayload{e.setupPayload(t)},
		Swap:          e.swapPayload(),
		Cleanup:       e.cleanupPayload(),
		Repay:         e.repayRequest(testLoanAmount),
		Tables:        tables,
		Payer:         e.borrowerKey(),
		Blockhash:     blockhash,
	}
}

func (e *testEnv) sign(t *testing.T, composed *ComposedTransaction) *solana.Transaction {
	txn := composed.Transaction
	require.NoError(t, txn.Sign(e.borrower))
	return &txn
}

func (e *testEnv) balance(t *testing.T, account ed25519.PublicKey) uint64 {
	lamports, err := e.bank.GetBalance(account)
	require.NoError(t, err)
	return lamports
}

func (e *testEnv) assertBalance(t *testing.T, account ed25519.PublicKey, expected uint64) {
	assert.Equal(t, expected, e.balance(t, account))
}

func (e *testEnv) assertNotLanded(t *testing.T, sig solana.Signature) {
	status, err := e.ledger.GetSignatureStatus(context.Background(), sig)
	require.NoError(t, err)
	assert.Nil(t, status)
}
