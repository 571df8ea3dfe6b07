package flashfill

import (
	"bytes"
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/code-payments/flash-fill/pkg/metrics"
	"github.com/code-payments/flash-fill/pkg/solana"
	address_lookup_table "github.com/code-payments/flash-fill/pkg/solana/addresslookuptable"
)

const (
	resolverMetricsStructName = "flashfill.resolver"

	maxConcurrentTableFetches = 8
)

// LookupTable is an address lookup table as of resolution time.
type LookupTable struct {
	Address   ed25519.PublicKey
	Addresses []ed25519.PublicKey
	State     address_lookup_table.State
}

// ToAddressLookupTable converts the table into the form used to compile
// versioned messages.
func (t *LookupTable) ToAddressLookupTable() solana.AddressLookupTable {
	return solana.AddressLookupTable{
		PublicKey: t.Address,
		Addresses: t.Addresses,
	}
}

// Resolver fetches address lookup tables fresh from the ledger.
type Resolver struct {
	log    *logrus.Entry
	ledger Ledger
}

func NewResolver(ledger Ledger) *Resolver {
	return &Resolver{
		log:    logrus.StandardLogger().WithField("type", "flashfill/resolver"),
		ledger: ledger,
	}
}

// Resolve fetches each distinct table in addresses, preserving first
// occurrence order. Any table that is no longer active fails resolution with
// ErrStaleLookupTable.
func (r *Resolver) Resolve(ctx context.Context, addresses []string) ([]*LookupTable, error) {
	tracer := metrics.TraceMethodCall(ctx, resolverMetricsStructName, "Resolve")
	defer tracer.End()

	tables, err := r.resolve(ctx, addresses)
	tracer.OnError(err)
	return tables, err
}

func (r *Resolver) resolve(ctx context.Context, addresses []string) ([]*LookupTable, error) {
	log := r.log.WithField("method", "Resolve")

	keys, err := dedupeTableAddresses(addresses)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	slot, err := r.ledger.GetSlot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "error getting current slot")
	}

	tables := make([]*LookupTable, len(keys))

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTableFetches)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			table, err := r.fetch(groupCtx, key, slot)
			if err != nil {
				return err
			}
			tables[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.WithError(err).Debug("failure resolving lookup tables")
		return nil, err
	}

	return tables, nil
}

func (r *Resolver) fetch(ctx context.Context, key ed25519.PublicKey, slot uint64) (*LookupTable, error) {
	address := base58.Encode(key)

	info, err := r.ledger.GetAccountInfo(ctx, key)
	if err == solana.ErrNoAccountInfo {
		// A closed table is as unusable as a deactivated one
		return nil, errors.Wrapf(ErrStaleLookupTable, "lookup table %s not found", address)
	} else if err != nil {
		return nil, errors.Wrapf(err, "error getting lookup table %s", address)
	}

	if !bytes.Equal(info.Owner, address_lookup_table.ProgramKey) {
		return nil, errors.Wrapf(ErrStaleLookupTable, "account %s is not a lookup table", address)
	}

	var account address_lookup_table.AddressLookupTableAccount
	if err := account.Unmarshal(info.Data); err != nil {
		return nil, errors.Wrapf(err, "invalid lookup table %s", address)
	}

	state := account.State(slot)
	if state != address_lookup_table.StateActive {
		return nil, errors.Wrapf(ErrStaleLookupTable, "lookup table %s is %s", address, state)
	}

	return &LookupTable{
		Address:   key,
		Addresses: account.Addresses,
		State:     state,
	}, nil
}

func dedupeTableAddresses(addresses []string) ([]ed25519.PublicKey, error) {
	seen := make(map[string]struct{})

	var keys []ed25519.PublicKey
	for _, address := range addresses {
		if _, ok := seen[address]; ok {
			continue
		}
		seen[address] = struct{}{}

		key, err := decodePublicKey(address)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidSwapResponse, "invalid lookup table address %q", address)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
