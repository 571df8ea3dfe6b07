package address_lookup_table

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/code-payments/flash-fill/pkg/solana"
	"github.com/code-payments/flash-fill/pkg/solana/binary"
)

var (
	ErrInvalidAccountSize = errors.New("invalid address lookup table account size")
	ErrInvalidAccountType = errors.New("invalid account type")
)

const (
	lookupTableDiscriminator = 1

	metadataSize = 56
	maxAddresses = 256

	optionSize = 1

	// A deactivated table stays usable until its deactivation slot falls out
	// of the SlotHashes sysvar.
	//
	// Reference: https://github.com/solana-labs/solana/blob/master/sdk/program/src/slot_hashes.rs
	slotHashesMaxEntries = 512
)

// MetadataSize is the size of a lookup table account holding no addresses.
const MetadataSize = metadataSize

// MaxAddresses is the most addresses a single table can hold.
const MaxAddresses = maxAddresses

// DeactivationSlotNone marks a table that has not been deactivated.
const DeactivationSlotNone = math.MaxUint64

type State uint8

const (
	StateUnknown State = iota
	StateActive
	StateDeactivating
	StateDeactivated
)

type AddressLookupTableAccount struct {
	DeactivationSlot           uint64
	LastExtendedSlot           uint64
	LastExtendedSlotStartIndex uint8
	Authority                  ed25519.PublicKey
	Addresses                  []ed25519.PublicKey
}

func (obj *AddressLookupTableAccount) Marshal() []byte {
	data := make([]byte, metadataSize+len(obj.Addresses)*ed25519.PublicKeySize)

	var offset int
	binary.PutUint32(data[offset:], lookupTableDiscriminator, &offset)
	binary.PutUint64(data[offset:], obj.DeactivationSlot, &offset)
	binary.PutUint64(data[offset:], obj.LastExtendedSlot, &offset)
	binary.PutUint8(data[offset:], obj.LastExtendedSlotStartIndex, &offset)
	binary.PutOptionalKey32(data[offset:], obj.Authority, &offset, optionSize)

	offset = metadataSize
	for _, address := range obj.Addresses {
		binary.PutKey32(data[offset:], address, &offset)
	}

	return data
}

func (obj *AddressLookupTableAccount) Unmarshal(data []byte) error {
	if len(data) < metadataSize {
		return ErrInvalidAccountSize
	}

	var offset int

	var discriminator uint32
	binary.GetUint32(data[offset:], &discriminator, &offset)
	if discriminator != lookupTableDiscriminator {
		return ErrInvalidAccountType
	}

	binary.GetUint64(data[offset:], &obj.DeactivationSlot, &offset)
	binary.GetUint64(data[offset:], &obj.LastExtendedSlot, &offset)
	binary.GetUint8(data[offset:], &obj.LastExtendedSlotStartIndex, &offset)
	binary.GetOptionalKey32(data[offset:], &obj.Authority, &offset, optionSize)

	offset = metadataSize

	addressBufferSize := len(data) - offset
	addressCount := addressBufferSize / ed25519.PublicKeySize
	if addressBufferSize%ed25519.PublicKeySize != 0 {
		return ErrInvalidAccountSize
	} else if addressCount > maxAddresses {
		return ErrInvalidAccountSize
	}

	obj.Addresses = make([]ed25519.PublicKey, addressCount)
	for i := 0; i < addressCount; i++ {
		binary.GetKey32(data[offset:], &obj.Addresses[i], &offset)
	}

	return nil
}

// State returns the liveness of the table as of currentSlot.
func (obj *AddressLookupTableAccount) State(currentSlot uint64) State {
	if obj.DeactivationSlot == DeactivationSlotNone {
		return StateActive
	}

	if currentSlot < obj.DeactivationSlot || currentSlot-obj.DeactivationSlot <= slotHashesMaxEntries {
		return StateDeactivating
	}
	return StateDeactivated
}

// ToAddressLookupTable converts the account into the form used to compile
// versioned messages.
func (obj *AddressLookupTableAccount) ToAddressLookupTable(address ed25519.PublicKey) solana.AddressLookupTable {
	return solana.AddressLookupTable{
		PublicKey: address,
		Addresses: obj.Addresses,
	}
}

func (obj *AddressLookupTableAccount) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, address := range obj.Addresses {
		sb.WriteString(fmt.Sprintf("%d:%s,", i, base58.Encode(address)))
	}
	sb.WriteString("}")

	return fmt.Sprintf(
		"AddressLookupTable{deactivation_slot=%d,last_extended_slot=%d,last_extended_slot_start_index=%d,authority=%s,addresses=%s}",
		obj.DeactivationSlot,
		obj.LastExtendedSlot,
		obj.LastExtendedSlotStartIndex,
		base58.Encode(obj.Authority),
		sb.String(),
	)
}

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDeactivating:
		return "deactivating"
	case StateDeactivated:
		return "deactivated"
	}
	return "unknown"
}
