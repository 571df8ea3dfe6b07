package runtime

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/flash-fill/pkg/solana"
	address_lookup_table "github.com/code-payments/flash-fill/pkg/solana/addresslookuptable"
	compute_budget "github.com/code-payments/flash-fill/pkg/solana/computebudget"
	"github.com/code-payments/flash-fill/pkg/solana/system"
	"github.com/code-payments/flash-fill/pkg/solana/sysvar"
	"github.com/code-payments/flash-fill/pkg/solana/token"
)

const (
	// Reference: https://github.com/solana-labs/solana/blob/v1.17.0/sdk/program/src/clock.rs#L149
	maxRecentBlockhashes = 150

	// Number of slots after which a landed transaction is reported as finalized
	finalizedDepth = 32

	rentSysvarSize = 17
)

var bpfLoaderUpgradeableKey = mustBase58Decode("BPFLoaderUpgradeab1e11111111111111111111111")

type landedTransaction struct {
	slot uint64
	err  *solana.TransactionError
}

// Bank is an in-process ledger. Transactions execute atomically against an
// in-memory account set: either every account change of a transaction is
// committed, or none is.
//
// Bank implements solana.Client, so it can stand in for an RPC node.
type Bank struct {
	log *logrus.Entry

	mu            sync.RWMutex
	accounts      map[string]*Account
	programs      map[string]Program
	slot          uint64
	blockhashes   []solana.Blockhash
	landed        map[solana.Signature]*landedTransaction
	autoAdvance   bool
	feesCollected uint64
}

// NewBank returns a bank hosting the builtin programs, the rent sysvar and
// the native mint.
func NewBank() *Bank {
	b := &Bank{
		log:         logrus.StandardLogger().WithField("type", "solana/runtime"),
		accounts:    make(map[string]*Account),
		programs:    make(map[string]Program),
		slot:        1,
		landed:      make(map[solana.Signature]*landedTransaction),
		autoAdvance: true,
	}
	b.blockhashes = []solana.Blockhash{sha256.Sum256([]byte("genesis"))}

	b.registerProgram(system.ProgramKey[:], newSystemProgram(), nativeLoaderKey)
	b.registerProgram(compute_budget.ProgramKey, newComputeBudgetProgram(), nativeLoaderKey)
	b.registerProgram(address_lookup_table.ProgramKey, newLookupTableProgram(), nativeLoaderKey)
	b.registerProgram(token.ProgramKey, newTokenProgram(), bpfLoaderUpgradeableKey)
	b.registerProgram(token.AssociatedTokenAccountProgramKey, newAssociatedTokenProgram(), bpfLoaderUpgradeableKey)

	rent := make([]byte, rentSysvarSize)
	binary.LittleEndian.PutUint64(rent, lamportsPerByteYear)
	binary.LittleEndian.PutUint64(rent[8:], math.Float64bits(exemptionThreshold))
	b.accounts[string(system.RentSysVar)] = &Account{
		Lamports: RentExemptMinimum(rentSysvarSize),
		Owner:    sysvarOwnerKey,
		Data:     rent,
	}

	// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/state.rs#L16
	mint := make([]byte, MintAccountSize)
	mint[44] = 9 // decimals
	mint[45] = 1 // is_initialized
	b.accounts[string(token.NativeMint)] = &Account{
		Lamports: RentExemptMinimum(MintAccountSize),
		Owner:    token.ProgramKey,
		Data:     mint,
	}

	return b
}

// AddProgram hosts program at address.
func (b *Bank) AddProgram(address ed25519.PublicKey, program Program) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.registerProgram(address, program, bpfLoaderUpgradeableKey)
}

// AddFlashFillProgram hosts the flash-fill program at address.
func (b *Bank) AddFlashFillProgram(address ed25519.PublicKey) error {
	program, err := NewFlashFillProgram(address)
	if err != nil {
		return errors.Wrap(err, "error creating flash fill program")
	}

	b.AddProgram(address, program)
	return nil
}

func (b *Bank) registerProgram(address ed25519.PublicKey, program Program, loader ed25519.PublicKey) {
	b.programs[string(address)] = program
	b.accounts[string(address)] = &Account{
		Lamports:   1,
		Owner:      loader,
		Data:       []byte(program.Name),
		Executable: true,
	}
}

// SetAccount stores a copy of account at address.
func (b *Bank) SetAccount(address ed25519.PublicKey, account *Account) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.accounts[string(address)] = account.Clone()
}

// Account returns a copy of the account at address.
func (b *Bank) Account(address ed25519.PublicKey) (*Account, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	account, ok := b.accounts[string(address)]
	if !ok {
		return nil, false
	}
	return account.Clone(), true
}

// Airdrop credits lamports to address, creating a system account if needed.
func (b *Bank) Airdrop(address ed25519.PublicKey, lamports uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	account, ok := b.accounts[string(address)]
	if !ok {
		account = NewSystemAccount(0)
		b.accounts[string(address)] = account
	}
	account.Lamports += lamports
}

// Slot returns the current slot.
func (b *Bank) Slot() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.slot
}

// AdvanceSlots moves the bank forward by n slots, producing a new blockhash
// for each.
func (b *Bank) AdvanceSlots(n uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advanceSlots(n)
}

func (b *Bank) advanceSlots(n uint64) {
	for i := uint64(0); i < n; i++ {
		b.slot++

		var slot [8]byte
		binary.LittleEndian.PutUint64(slot[:], b.slot)

		previous := b.blockhashes[len(b.blockhashes)-1]
		next := sha256.Sum256(append(previous[:], slot[:]...))
		b.blockhashes = append(b.blockhashes, next)
		if len(b.blockhashes) > maxRecentBlockhashes {
			b.blockhashes = b.blockhashes[len(b.blockhashes)-maxRecentBlockhashes:]
		}
	}
}

// SetAutoAdvance controls whether the bank moves to the next slot after
// every landed transaction. With it disabled, landed transactions stay at
// processed commitment until AdvanceSlots is called.
func (b *Bank) SetAutoAdvance(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.autoAdvance = enabled
}

// FeesCollected returns the total transaction fees charged so far.
func (b *Bank) FeesCollected() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.feesCollected
}

// GetAccountInfo implements solana.Client.GetAccountInfo.
func (b *Bank) GetAccountInfo(address ed25519.PublicKey, _ solana.Commitment) (solana.AccountInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	account, ok := b.accounts[string(address)]
	if !ok {
		return solana.AccountInfo{}, solana.ErrNoAccountInfo
	}
	return account.toAccountInfo(), nil
}

// GetBalance implements solana.Client.GetBalance.
func (b *Bank) GetBalance(address ed25519.PublicKey) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	account, ok := b.accounts[string(address)]
	if !ok {
		return 0, nil
	}
	return account.Lamports, nil
}

// GetLatestBlockhash implements solana.Client.GetLatestBlockhash.
func (b *Bank) GetLatestBlockhash() (solana.Blockhash, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.blockhashes[len(b.blockhashes)-1], nil
}

// GetMinimumBalanceForRentExemption implements solana.Client.GetMinimumBalanceForRentExemption.
func (b *Bank) GetMinimumBalanceForRentExemption(size uint64) (uint64, error) {
	return RentExemptMinimum(int(size)), nil
}

// GetSlot implements solana.Client.GetSlot.
func (b *Bank) GetSlot(_ solana.Commitment) (uint64, error) {
	return b.Slot(), nil
}

// GetSignatureStatus implements solana.Client.GetSignatureStatus. Unlike
// the RPC client it does not poll, as the bank only moves forward when
// told to.
func (b *Bank) GetSignatureStatus(sig solana.Signature, _ solana.Commitment) (*solana.SignatureStatus, error) {
	statuses, err := b.GetSignatureStatuses([]solana.Signature{sig})
	if err != nil {
		return nil, err
	}
	if statuses[0] == nil {
		return nil, solana.ErrSignatureNotFound
	}
	return statuses[0], nil
}

// GetSignatureStatuses implements solana.Client.GetSignatureStatuses.
func (b *Bank) GetSignatureStatuses(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	statuses := make([]*solana.SignatureStatus, len(sigs))
	for i, sig := range sigs {
		landed, ok := b.landed[sig]
		if !ok {
			continue
		}

		commitment := solana.CommitmentProcessed
		switch depth := b.slot - landed.slot; {
		case depth >= finalizedDepth:
			commitment = solana.CommitmentFinalized
		case depth >= 1:
			commitment = solana.CommitmentConfirmed
		}
		statuses[i] = solana.NewSignatureStatus(landed.slot, commitment, landed.err)
	}
	return statuses, nil
}

// SimulateTransaction implements solana.Client.SimulateTransaction. The
// transaction is fully executed, including signature verification, but
// nothing is committed.
func (b *Bank) SimulateTransaction(txn solana.Transaction, _ solana.Commitment) (*solana.SimulationResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result, txErr := b.execute(txn)

	log := b.log.WithFields(logrus.Fields{
		"method":    "SimulateTransaction",
		"signature": txn.Signature().String(),
	})
	if txErr != nil {
		log.WithError(txErr).Debug("simulation failed")
	} else {
		log.Debug("simulation succeeded")
	}

	return &solana.SimulationResult{
		Err:           txErr,
		Logs:          result.logs,
		UnitsConsumed: result.unitsConsumed,
	}, nil
}

// SubmitTransaction implements solana.Client.SubmitTransaction. A failing
// transaction is rejected as it would be by preflight, leaving every
// account, including the fee payer, untouched.
func (b *Bank) SubmitTransaction(txn solana.Transaction, _ solana.Commitment) (solana.Signature, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sig := txn.Signature()
	log := b.log.WithFields(logrus.Fields{
		"method":    "SubmitTransaction",
		"signature": sig.String(),
	})

	result, txErr := b.execute(txn)
	if txErr != nil {
		log.WithError(txErr).Debug("transaction rejected")
		return sig, txErr
	}

	for key, account := range result.accounts {
		if !result.writable[key] {
			continue
		}
		if account.Lamports == 0 {
			delete(b.accounts, key)
			continue
		}
		b.accounts[key] = account
	}
	b.feesCollected += result.fee
	b.landed[sig] = &landedTransaction{slot: b.slot}

	log.WithField("slot", b.slot).Debug("transaction landed")

	if b.autoAdvance {
		b.advanceSlots(1)
	}
	return sig, nil
}

type executionResult struct {
	accounts      map[string]*Account
	writable      map[string]bool
	fee           uint64
	logs          []string
	unitsConsumed uint64
}

// execute runs txn against a copy of the referenced accounts. The caller
// must hold the bank lock.
func (b *Bank) execute(txn solana.Transaction) (*executionResult, *solana.TransactionError) {
	result := &executionResult{}
	msg := &txn.Message

	if msg.Header.NumSignatures == 0 || len(txn.Signatures) == 0 {
		return result, solana.NewTransactionError(solana.TransactionErrorMissingSignatureForFee)
	}
	if err := txn.VerifySignatures(); err != nil {
		return result, solana.NewTransactionError(solana.TransactionErrorSignatureFailure)
	}

	if !b.isRecentBlockhash(msg.RecentBlockhash) {
		return result, solana.NewTransactionError(solana.TransactionErrorBlockhashNotFound)
	}
	if _, ok := b.landed[txn.Signature()]; ok {
		return result, solana.NewTransactionError(solana.TransactionErrorDuplicateSignature)
	}

	loaded, txErr := b.loadAddresses(msg)
	if txErr != nil {
		return result, txErr
	}

	keys := msg.AccountKeys(loaded)
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[string(key)]; ok {
			return result, solana.NewTransactionError(solana.TransactionErrorAccountLoadedTwice)
		}
		seen[string(key)] = struct{}{}
	}

	instructions, err := msg.DecompileInstructions(loaded)
	if err != nil {
		return result, solana.NewTransactionError(solana.TransactionErrorInvalidAccountIndex)
	}
	for _, ixn := range instructions {
		if _, ok := b.programs[string(ixn.Program)]; ok {
			continue
		}
		if _, ok := b.accounts[string(ixn.Program)]; !ok {
			return result, solana.NewTransactionError(solana.TransactionErrorProgramAccountNotFound)
		}
		return result, solana.NewTransactionError(solana.TransactionErrorInvalidProgramForExecution)
	}

	tx := &transactionContext{
		bank:       b,
		accounts:   make(map[string]*Account, len(keys)+2),
		writable:   make(map[string]bool, len(keys)),
		signers:    make(map[string]bool, msg.Header.NumSignatures),
		unitsLimit: computeUnitLimit(instructions),
	}

	for i, key := range keys {
		account, ok := b.accounts[string(key)]
		if ok {
			account = account.Clone()
		} else {
			account = NewSystemAccount(0)
		}
		tx.accounts[string(key)] = account

		tx.writable[string(key)] = msg.IsWritable(i, loaded) && !isReserved(key, account)
		if msg.IsSigner(i) {
			tx.signers[string(key)] = true
		}
	}

	introspection := sysvar.SerializeInstructions(instructions)
	tx.accounts[string(sysvar.InstructionsKey)] = &Account{
		Lamports: RentExemptMinimum(len(introspection)),
		Owner:    sysvarOwnerKey,
		Data:     introspection,
	}
	tx.writable[string(sysvar.InstructionsKey)] = false
	if _, ok := tx.accounts[string(system.RentSysVar)]; !ok {
		tx.accounts[string(system.RentSysVar)] = b.accounts[string(system.RentSysVar)].Clone()
	}

	// Fees are charged before execution
	payer := tx.accounts[string(keys[0])]
	result.fee = uint64(msg.Header.NumSignatures) * LamportsPerSignature
	switch {
	case !tx.writable[string(keys[0])] || !payer.IsOwnedBy(systemProgramKey) || len(payer.Data) > 0:
		return result, solana.NewTransactionError(solana.TransactionErrorInvalidAccountForFee)
	case payer.Lamports == 0:
		return result, solana.NewTransactionError(solana.TransactionErrorAccountNotFound)
	case payer.Lamports < result.fee:
		return result, solana.NewTransactionError(solana.TransactionErrorInsufficientFundsForFee)
	}
	payer.Lamports -= result.fee

	pre := make(map[string]*Account, len(tx.accounts))
	for key, account := range tx.accounts {
		pre[key] = account.Clone()
	}

	for i, ixn := range instructions {
		// Each instruction sees its own position in the introspection log
		if err := sysvar.StoreCurrentIndex(introspection, uint16(i)); err != nil {
			return result, solana.NewTransactionError(solana.TransactionErrorSanitizeFailure)
		}

		ctx := &InvokeContext{
			tx:      tx,
			program: ixn.Program,
			ixn:     ixn,
			signers: tx.signers,
			depth:   1,
		}
		err := b.process(ctx)

		result.logs = tx.logs
		result.unitsConsumed = tx.unitsConsumed
		if err != nil {
			return result, newTransactionError(i, err)
		}
	}

	for key, account := range tx.accounts {
		if !tx.writable[key] {
			continue
		}
		if isRentPaying(account) && !isRentPaying(pre[key]) {
			return result, solana.NewTransactionError(solana.TransactionErrorInsufficientFundsForRent)
		}
	}

	result.accounts = tx.accounts
	result.writable = tx.writable
	return result, nil
}

func (b *Bank) isRecentBlockhash(blockhash solana.Blockhash) bool {
	for _, recent := range b.blockhashes {
		if recent == blockhash {
			return true
		}
	}
	return false
}

// loadAddresses expands the lookup tables referenced by a v0 message.
//
// Reference: https://github.com/solana-labs/solana/blob/v1.17.0/sdk/program/src/address_lookup_table/state.rs#L170
func (b *Bank) loadAddresses(msg *solana.Message) (solana.LoadedAddresses, *solana.TransactionError) {
	var loaded solana.LoadedAddresses

	for _, lookup := range msg.AddressTableLookups {
		account, ok := b.accounts[string(lookup.PublicKey)]
		if !ok {
			return loaded, solana.NewTransactionError(solana.TransactionErrorAddressLookupTableNotFound)
		}
		if !account.IsOwnedBy(address_lookup_table.ProgramKey) {
			return loaded, solana.NewTransactionError(solana.TransactionErrorInvalidAddressLookupTableOwner)
		}

		var table address_lookup_table.AddressLookupTableAccount
		if err := table.Unmarshal(account.Data); err != nil {
			return loaded, solana.NewTransactionError(solana.TransactionErrorInvalidAddressLookupTableData)
		}
		if table.State(b.slot) == address_lookup_table.StateDeactivated {
			return loaded, solana.NewTransactionError(solana.TransactionErrorAddressLookupTableNotFound)
		}

		// Addresses appended in the current slot are not usable until the next one
		active := len(table.Addresses)
		if table.LastExtendedSlot == b.slot {
			active = int(table.LastExtendedSlotStartIndex)
		}

		for _, index := range lookup.WritableIndexes {
			if int(index) >= active {
				return loaded, solana.NewTransactionError(solana.TransactionErrorInvalidAddressLookupTableIndex)
			}
			loaded.Writable = append(loaded.Writable, table.Addresses[index])
		}
		for _, index := range lookup.ReadonlyIndexes {
			if int(index) >= active {
				return loaded, solana.NewTransactionError(solana.TransactionErrorInvalidAddressLookupTableIndex)
			}
			loaded.Readonly = append(loaded.Readonly, table.Addresses[index])
		}
	}

	return loaded, nil
}

// isReserved reports whether a message-writable account is demoted to
// read-only, as is done for programs and sysvars.
func isReserved(key ed25519.PublicKey, account *Account) bool {
	return account.Executable || account.IsOwnedBy(sysvarOwnerKey) || string(key) == string(sysvar.InstructionsKey)
}

func isRentPaying(account *Account) bool {
	if account == nil || account.Lamports == 0 {
		return false
	}
	return account.Lamports < RentExemptMinimum(len(account.Data))
}
