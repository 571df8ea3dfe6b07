package attempt

import (
	"context"

	"github.com/pkg/errors"

	"github.com/code-payments/flash-fill/pkg/database/query"
)

var (
	ErrNotFound     = errors.New("attempt not found")
	ErrExists       = errors.New("attempt with signature already exists")
	ErrStaleVersion = errors.New("attempt version is stale")
)

type Store interface {
	// Save creates or updates an attempt. Only the outcome fields of an
	// existing attempt can be updated.
	Save(ctx context.Context, record *Record) error

	// GetById gets an attempt by its ID
	GetById(ctx context.Context, attemptId string) (*Record, error)

	// GetBySignature gets an attempt by its transaction signature
	GetBySignature(ctx context.Context, signature string) (*Record, error)

	// GetAllByState gets all attempts in a state
	GetAllByState(ctx context.Context, state State, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*Record, error)

	// CountByState returns the count of attempts in the requested state
	CountByState(ctx context.Context, state State) (uint64, error)
}
