package attempt

import (
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/flash-fill/pkg/pointer"
)

type State uint8

const (
	StateUnknown State = iota
	StateSimulationFailed
	StateSubmitted
	StateConfirmed
	StateFailed
	StateTimedOut
)

// Record journals a single flash-fill submission attempt. An attempt is
// submitted at most once, so a timed out attempt is only ever resolved by
// looking up the status of Signature.
type Record struct {
	Id uint64

	AttemptId string

	Signature string
	Borrower  string
	Blockhash string

	Amount uint64

	Slot uint64

	State        State
	ErrorMessage *string

	Version uint64

	CreatedAt time.Time
}

func (r *Record) Clone() Record {
	return Record{
		Id: r.Id,

		AttemptId: r.AttemptId,

		Signature: r.Signature,
		Borrower:  r.Borrower,
		Blockhash: r.Blockhash,

		Amount: r.Amount,

		Slot: r.Slot,

		State:        r.State,
		ErrorMessage: pointer.StringCopy(r.ErrorMessage),

		Version: r.Version,

		CreatedAt: r.CreatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id

	dst.AttemptId = r.AttemptId

	dst.Signature = r.Signature
	dst.Borrower = r.Borrower
	dst.Blockhash = r.Blockhash

	dst.Amount = r.Amount

	dst.Slot = r.Slot

	dst.State = r.State
	dst.ErrorMessage = pointer.StringCopy(r.ErrorMessage)

	dst.Version = r.Version

	dst.CreatedAt = r.CreatedAt
}

func (r *Record) Validate() error {
	if len(r.AttemptId) == 0 {
		return errors.New("attempt id is required")
	}

	if len(r.Signature) == 0 {
		return errors.New("signature is required")
	}

	if len(r.Borrower) == 0 {
		return errors.New("borrower is required")
	}

	if len(r.Blockhash) == 0 {
		return errors.New("blockhash is required")
	}

	if r.Amount == 0 {
		return errors.New("amount is required")
	}

	if r.State == StateUnknown {
		return errors.New("state is required")
	}

	if r.State == StateConfirmed && r.Slot == 0 {
		return errors.New("slot is required for confirmed attempts")
	}

	if r.ErrorMessage != nil && len(*r.ErrorMessage) == 0 {
		return errors.New("error message is empty")
	}

	return nil
}

// IsTerminal returns whether the attempt has a final outcome.
func (s State) IsTerminal() bool {
	switch s {
	case StateSimulationFailed, StateConfirmed, StateFailed:
		return true
	}
	return false
}

func (s State) String() string {
	switch s {
	case StateSimulationFailed:
		return "simulation-failed"
	case StateSubmitted:
		return "submitted"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed-out"
	}
	return "unknown"
}

// ToState parses the name returned by State.String.
func ToState(name string) (State, error) {
	for _, s := range []State{
		StateSimulationFailed,
		StateSubmitted,
		StateConfirmed,
		StateFailed,
		StateTimedOut,
	} {
		if s.String() == name {
			return s, nil
		}
	}
	return StateUnknown, errors.Errorf("unknown attempt state: %s", name)
}
