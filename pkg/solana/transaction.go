package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
)

const (
	// MaxTransactionSize taken from: https://github.com/solana-labs/solana/blob/39b3ac6a8d29e14faa1de73d8b46d390ad41797b/sdk/src/packet.rs#L9-L13
	MaxTransactionSize = 1232
)

type Signature [ed25519.SignatureSize]byte
type Blockhash [sha256.Size]byte

func (s Signature) String() string {
	return base58.Encode(s[:])
}

func (b Blockhash) String() string {
	return base58.Encode(b[:])
}

type MessageVersion uint8

const (
	MessageVersionLegacy MessageVersion = iota
	MessageVersion0
)

type Header struct {
	NumSignatures     byte
	NumReadonlySigned byte
	NumReadOnly       byte
}

type MessageAddressTableLookup struct {
	PublicKey       ed25519.PublicKey
	WritableIndexes []byte
	ReadonlyIndexes []byte
}

type Message struct {
	Version             MessageVersion
	Header              Header
	Accounts            []ed25519.PublicKey
	RecentBlockhash     Blockhash
	Instructions        []CompiledInstruction
	AddressTableLookups []MessageAddressTableLookup
}

type Transaction struct {
	Signatures []Signature
	Message    Message
}

// NewLegacyTransaction compiles instructions into a legacy transaction where
// every account is referenced statically.
func NewLegacyTransaction(payer ed25519.PublicKey, instructions ...Instruction) Transaction {
	return compileTransaction(MessageVersionLegacy, payer, nil, instructions)
}

// NewV0Transaction compiles instructions into a versioned transaction. Any
// non-signer, non-program account found in one of the provided address lookup
// tables is loaded dynamically instead of being listed statically.
func NewV0Transaction(payer ed25519.PublicKey, addressLookupTables []AddressLookupTable, instructions []Instruction) Transaction {
	return compileTransaction(MessageVersion0, payer, addressLookupTables, instructions)
}

type tableIndexes struct {
	writable [][]byte
	readonly [][]byte
}

func compileTransaction(version MessageVersion, payer ed25519.PublicKey, addressLookupTables []AddressLookupTable, instructions []Instruction) Transaction {
	accounts := []AccountMeta{
		{
			PublicKey:  payer,
			IsSigner:   true,
			IsWritable: true,
			isPayer:    true,
		},
	}
	for _, ixn := range instructions {
		accounts = append(accounts, AccountMeta{
			PublicKey: ixn.Program,
			isProgram: true,
		})
		accounts = append(accounts, ixn.Accounts...)
	}

	// Payer first, then signers, then writable before read-only, programs last
	accounts = filterUnique(accounts)
	sort.Sort(SortableAccountMeta(accounts))

	tables := make([]AddressLookupTable, len(addressLookupTables))
	copy(tables, addressLookupTables)
	sort.Sort(SortableAddressLookupTables(tables))

	indexes := tableIndexes{
		writable: make([][]byte, len(tables)),
		readonly: make([][]byte, len(tables)),
	}

	m := Message{Version: version}
	for _, account := range accounts {
		if version == MessageVersion0 && isLoadable(account) && indexes.load(tables, account) {
			continue
		}

		m.Accounts = append(m.Accounts, account.PublicKey)

		if account.IsSigner {
			m.Header.NumSignatures++

			if !account.IsWritable {
				m.Header.NumReadonlySigned++
			}
		} else if !account.IsWritable {
			m.Header.NumReadOnly++
		}
	}

	// Index references are resolved against static keys, then all writable
	// loaded keys, then all readonly loaded keys.
	allAccounts := append([]ed25519.PublicKey{}, m.Accounts...)
	for i := range tables {
		for _, index := range indexes.writable[i] {
			allAccounts = append(allAccounts, tables[i].Addresses[index])
		}
	}
	for i := range tables {
		for _, index := range indexes.readonly[i] {
			allAccounts = append(allAccounts, tables[i].Addresses[index])
		}
	}

	for _, ixn := range instructions {
		compiled := CompiledInstruction{
			ProgramIndex: byte(indexOf(allAccounts, ixn.Program)),
			Data:         ixn.Data,
		}
		for _, account := range ixn.Accounts {
			compiled.Accounts = append(compiled.Accounts, byte(indexOf(allAccounts, account.PublicKey)))
		}
		m.Instructions = append(m.Instructions, compiled)
	}

	for i, table := range tables {
		if len(indexes.writable[i]) == 0 && len(indexes.readonly[i]) == 0 {
			continue
		}

		m.AddressTableLookups = append(m.AddressTableLookups, MessageAddressTableLookup{
			PublicKey:       table.PublicKey,
			WritableIndexes: indexes.writable[i],
			ReadonlyIndexes: indexes.readonly[i],
		})
	}

	for i := range m.Accounts {
		if len(m.Accounts[i]) == 0 {
			m.Accounts[i] = make([]byte, ed25519.PublicKeySize)
		}
	}

	return Transaction{
		Signatures: make([]Signature, m.Header.NumSignatures),
		Message:    m,
	}
}

func isLoadable(account AccountMeta) bool {
	return !account.isPayer && !account.IsSigner && !account.isProgram
}

// load records the account against the first table that contains it.
func (t *tableIndexes) load(tables []AddressLookupTable, account AccountMeta) bool {
	for i, table := range tables {
		for j, address := range table.Addresses {
			if !bytes.Equal(address, account.PublicKey) {
				continue
			}

			if account.IsWritable {
				t.writable[i] = append(t.writable[i], byte(j))
			} else {
				t.readonly[i] = append(t.readonly[i], byte(j))
			}
			return true
		}
	}
	return false
}

// Signature returns the first signature, which identifies the transaction.
func (t *Transaction) Signature() Signature {
	if len(t.Signatures) == 0 {
		return Signature{}
	}
	return t.Signatures[0]
}

func (t *Transaction) SetBlockhash(bh Blockhash) {
	t.Message.RecentBlockhash = bh
}

func (t *Transaction) Sign(signers ...ed25519.PrivateKey) error {
	messageBytes := t.Message.Marshal()

	for _, s := range signers {
		pub := s.Public().(ed25519.PublicKey)
		index := indexOf(t.Message.Accounts, pub)
		if index < 0 {
			return errors.Errorf("signing account %s is not in the account list", base58.Encode(pub))
		}
		if index >= len(t.Signatures) {
			return errors.Errorf("signing account %s is not in the list of signers", base58.Encode(pub))
		}

		copy(t.Signatures[index][:], ed25519.Sign(s, messageBytes))
	}

	return nil
}

// VerifySignatures checks every required signature against the message.
func (t *Transaction) VerifySignatures() error {
	if len(t.Signatures) != int(t.Message.Header.NumSignatures) {
		return errors.Errorf("expected %d signatures, got %d", t.Message.Header.NumSignatures, len(t.Signatures))
	}

	messageBytes := t.Message.Marshal()
	for i, sig := range t.Signatures {
		if !ed25519.Verify(t.Message.Accounts[i], messageBytes, sig[:]) {
			return errors.Errorf("invalid signature for %s", base58.Encode(t.Message.Accounts[i]))
		}
	}
	return nil
}

// LoadedAddresses are the accounts a v0 message pulls in from lookup tables.
type LoadedAddresses struct {
	Writable []ed25519.PublicKey
	Readonly []ed25519.PublicKey
}

// AccountKeys returns the full ordered account key list the compiled
// instruction indexes refer to.
func (m *Message) AccountKeys(loaded LoadedAddresses) []ed25519.PublicKey {
	keys := make([]ed25519.PublicKey, 0, len(m.Accounts)+len(loaded.Writable)+len(loaded.Readonly))
	keys = append(keys, m.Accounts...)
	keys = append(keys, loaded.Writable...)
	keys = append(keys, loaded.Readonly...)
	return keys
}

// IsSigner reports whether the account at index is a required signer.
func (m *Message) IsSigner(index int) bool {
	return index < int(m.Header.NumSignatures)
}

// IsWritable reports whether the account at index, within the key list
// returned by AccountKeys, is writable.
func (m *Message) IsWritable(index int, loaded LoadedAddresses) bool {
	numStatic := len(m.Accounts)
	if index >= numStatic {
		return index < numStatic+len(loaded.Writable)
	}

	numSigned := int(m.Header.NumSignatures)
	if index < numSigned {
		return index < numSigned-int(m.Header.NumReadonlySigned)
	}
	return index < numStatic-int(m.Header.NumReadOnly)
}

// DecompileInstructions expands compiled instructions back into their account
// metas using the resolved account key list.
func (m *Message) DecompileInstructions(loaded LoadedAddresses) ([]Instruction, error) {
	keys := m.AccountKeys(loaded)

	instructions := make([]Instruction, len(m.Instructions))
	for i, compiled := range m.Instructions {
		if int(compiled.ProgramIndex) >= len(keys) {
			return nil, errors.Errorf("instruction %d: program index %d out of range", i, compiled.ProgramIndex)
		}

		ixn := Instruction{
			Program: keys[compiled.ProgramIndex],
			Data:    compiled.Data,
		}
		for _, index := range compiled.Accounts {
			if int(index) >= len(keys) {
				return nil, errors.Errorf("instruction %d: account index %d out of range", i, index)
			}
			ixn.Accounts = append(ixn.Accounts, AccountMeta{
				PublicKey:  keys[index],
				IsSigner:   m.IsSigner(int(index)),
				IsWritable: m.IsWritable(int(index), loaded),
			})
		}
		instructions[i] = ixn
	}
	return instructions, nil
}

func (t *Transaction) String() string {
	var sb strings.Builder
	sb.WriteString("Signatures:\n")
	for i, s := range t.Signatures {
		sb.WriteString(fmt.Sprintf("  %d: %s\n", i, s.String()))
	}
	sb.WriteString("Message:\n")
	sb.WriteString(fmt.Sprintf("  Version: %s\n", t.Message.Version.String()))
	sb.WriteString(fmt.Sprintf("  Recent Blockhash: %s\n", t.Message.RecentBlockhash.String()))
	sb.WriteString("  Header:\n")
	sb.WriteString(fmt.Sprintf("    NumSignatures: %d\n", t.Message.Header.NumSignatures))
	sb.WriteString(fmt.Sprintf("    NumReadOnly: %d\n", t.Message.Header.NumReadOnly))
	sb.WriteString(fmt.Sprintf("    NumReadOnlySigned: %d\n", t.Message.Header.NumReadonlySigned))
	sb.WriteString("  Static Accounts:\n")
	for i, a := range t.Message.Accounts {
		sb.WriteString(fmt.Sprintf("    %d: %s\n", i, base58.Encode(a)))
	}
	sb.WriteString("  Instructions:\n")
	for i, ixn := range t.Message.Instructions {
		sb.WriteString(fmt.Sprintf("    %d:\n", i))
		sb.WriteString(fmt.Sprintf("      ProgramIndex: %d\n", ixn.ProgramIndex))
		sb.WriteString(fmt.Sprintf("      Accounts: %v\n", ixn.Accounts))
		sb.WriteString(fmt.Sprintf("      Data: %v\n", ixn.Data))
	}
	if len(t.Message.AddressTableLookups) > 0 {
		sb.WriteString("  Address Table Lookups:\n")
		for _, lookup := range t.Message.AddressTableLookups {
			sb.WriteString(fmt.Sprintf("    %s:\n", base58.Encode(lookup.PublicKey)))
			sb.WriteString(fmt.Sprintf("      Writable Indexes: %v\n", lookup.WritableIndexes))
			sb.WriteString(fmt.Sprintf("      Readonly Indexes: %v\n", lookup.ReadonlyIndexes))
		}
	}
	return sb.String()
}

func filterUnique(accounts []AccountMeta) []AccountMeta {
	filtered := make([]AccountMeta, 0, len(accounts))

	for i := range accounts {
		existing := -1
		for j := range filtered {
			if bytes.Equal(accounts[i].PublicKey, filtered[j].PublicKey) {
				existing = j
				break
			}
		}

		if existing < 0 {
			filtered = append(filtered, accounts[i])
			continue
		}

		// Permissions are only ever promoted
		if accounts[i].IsSigner {
			filtered[existing].IsSigner = true
		}
		if accounts[i].IsWritable {
			filtered[existing].IsWritable = true
		}
		if accounts[i].isPayer {
			filtered[existing].isPayer = true
		}
		if accounts[i].isProgram {
			filtered[existing].isProgram = true
		}
	}

	return filtered
}

func indexOf(slice []ed25519.PublicKey, item ed25519.PublicKey) int {
	for i, val := range slice {
		if bytes.Equal(val, item) {
			return i
		}
	}

	return -1
}

func (v MessageVersion) String() string {
	switch v {
	case MessageVersionLegacy:
		return "legacy"
	case MessageVersion0:
		return "v0"
	}
	return "unknown"
}
