package flash_fill

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/flash-fill/pkg/solana"
	"github.com/code-payments/flash-fill/pkg/solana/sysvar"
)

// LoanState is the state of a borrower's loan at a point in the instruction
// log of a transaction.
type LoanState uint8

const (
	LoanStateIdle LoanState = iota
	LoanStateOpen
	LoanStateClosed
)

func (s LoanState) String() string {
	switch s {
	case LoanStateIdle:
		return "idle"
	case LoanStateOpen:
		return "open"
	case LoanStateClosed:
		return "closed"
	}
	return "unknown"
}

// Guard is the ledger-side check run by Borrow and Repay. It only ever reads
// the instruction log of the enclosing transaction, so its state is local to
// a single transaction and rebuilt on every invocation.
type Guard struct {
	program   ed25519.PublicKey
	authority ed25519.PublicKey
}

func NewGuard(program ed25519.PublicKey) (*Guard, error) {
	authority, _, err := GetProgramAuthorityAddress(program)
	if err != nil {
		return nil, errors.Wrap(err, "error deriving program authority")
	}

	return &Guard{
		program:   program,
		authority: authority,
	}, nil
}

func (g *Guard) Program() ed25519.PublicKey {
	return g.program
}

func (g *Guard) Authority() ed25519.PublicKey {
	return g.authority
}

// CheckBorrow validates the Borrow currently executing. ixn is the
// instruction as invoked, and log is the data of the instructions sysvar.
//
// A Borrow is only allowed when the borrower has no open loan and the first
// later flash-fill instruction for the same borrower is a Repay.
func (g *Guard) CheckBorrow(ixn solana.Instruction, log []byte) (*BorrowInstructionArgs, *BorrowInstructionAccounts, error) {
	args, accounts, err := BorrowInstructionFromInstruction(g.program, ixn)
	if err != nil {
		return nil, nil, err
	}

	if !bytes.Equal(ixn.Accounts[3].PublicKey, sysvar.InstructionsKey) {
		return nil, nil, ErrorAddressMismatch
	}
	if !bytes.Equal(accounts.ProgramAuthority, g.authority) {
		return nil, nil, ErrorIncorrectProgramAuthority
	}
	if !bytes.Equal(args.FeeAccount[:], accounts.FeeAccount) {
		return nil, nil, ErrorAddressMismatch
	}

	current, err := g.loadCurrent(log)
	if err != nil {
		return nil, nil, err
	}

	state, _, err := g.replay(log, current, accounts.Borrower)
	if err != nil {
		return nil, nil, err
	}
	if state == LoanStateOpen {
		return nil, nil, ErrorCannotBorrowBeforeRepay
	}

	if err := g.findRepay(log, current, accounts.Borrower); err != nil {
		return nil, nil, err
	}

	return args, accounts, nil
}

// CheckRepay validates the Repay currently executing against the borrower's
// open loan.
func (g *Guard) CheckRepay(ixn solana.Instruction, log []byte) (*RepayInstructionArgs, *RepayInstructionAccounts, error) {
	args, accounts, err := RepayInstructionFromInstruction(g.program, ixn)
	if err != nil {
		return nil, nil, err
	}

	if !bytes.Equal(ixn.Accounts[2].PublicKey, sysvar.InstructionsKey) {
		return nil, nil, ErrorAddressMismatch
	}
	if !bytes.Equal(accounts.ProgramAuthority, g.authority) {
		return nil, nil, ErrorIncorrectProgramAuthority
	}

	current, err := g.loadCurrent(log)
	if err != nil {
		return nil, nil, err
	}

	state, loan, err := g.replay(log, current, accounts.Borrower)
	if err != nil {
		return nil, nil, err
	}
	if state != LoanStateOpen {
		return nil, nil, ErrorRepaymentWithoutBorrow
	}
	if args.Amount < RequiredRepayment(loan.Amount) {
		return nil, nil, ErrorInsufficientRepayment
	}

	return args, accounts, nil
}

// LoanStateAt returns the borrower's loan state just before the instruction
// at index executes, along with the open Borrow, if any.
func (g *Guard) LoanStateAt(log []byte, index int, borrower ed25519.PublicKey) (LoanState, *BorrowInstructionArgs, error) {
	return g.replay(log, index, borrower)
}

// loadCurrent returns the index of the executing instruction, rejecting
// invocations that did not come directly from the transaction.
func (g *Guard) loadCurrent(log []byte) (int, error) {
	current, err := sysvar.LoadCurrentIndex(log)
	if err != nil {
		return 0, errors.Wrap(err, "error loading current index")
	}

	ixn, err := sysvar.LoadInstructionAt(log, int(current))
	if err != nil {
		return 0, errors.Wrap(err, "error loading current instruction")
	}
	if !bytes.Equal(ixn.Program, g.program) {
		return 0, ErrorProgramMismatch
	}

	return int(current), nil
}

// replay walks the instructions before end and tracks the borrower's loan.
func (g *Guard) replay(log []byte, end int, borrower ed25519.PublicKey) (LoanState, *BorrowInstructionArgs, error) {
	state := LoanStateIdle
	var loan *BorrowInstructionArgs

	for i := 0; i < end; i++ {
		ixn, err := sysvar.LoadInstructionAt(log, i)
		if err != nil {
			return state, nil, errors.Wrapf(err, "error loading instruction %d", i)
		}
		if !bytes.Equal(ixn.Program, g.program) {
			continue
		}

		switch GetInstructionType(ixn.Data) {
		case InstructionTypeBorrow:
			args, accounts, err := BorrowInstructionFromInstruction(g.program, ixn)
			if err != nil {
				return state, nil, ErrorUnknownInstruction
			}
			if !bytes.Equal(accounts.Borrower, borrower) {
				continue
			}
			if state == LoanStateOpen {
				return state, nil, ErrorCannotBorrowBeforeRepay
			}
			state = LoanStateOpen
			loan = args
		case InstructionTypeRepay:
			_, accounts, err := RepayInstructionFromInstruction(g.program, ixn)
			if err != nil {
				return state, nil, ErrorUnknownInstruction
			}
			if !bytes.Equal(accounts.Borrower, borrower) {
				continue
			}
			if state != LoanStateOpen {
				return state, nil, ErrorRepaymentWithoutBorrow
			}
			state = LoanStateClosed
			loan = nil
		default:
			return state, nil, ErrorUnknownInstruction
		}
	}

	return state, loan, nil
}

// findRepay scans forward from the executing Borrow for the first flash-fill
// instruction belonging to the borrower, which must be a Repay.
func (g *Guard) findRepay(log []byte, current int, borrower ed25519.PublicKey) error {
	count, err := sysvar.LoadInstructionCount(log)
	if err != nil {
		return errors.Wrap(err, "error loading instruction count")
	}

	for i := current + 1; i < count; i++ {
		ixn, err := sysvar.LoadInstructionAt(log, i)
		if err != nil {
			return errors.Wrapf(err, "error loading instruction %d", i)
		}
		if !bytes.Equal(ixn.Program, g.program) {
			continue
		}

		switch GetInstructionType(ixn.Data) {
		case InstructionTypeRepay:
			_, accounts, err := RepayInstructionFromInstruction(g.program, ixn)
			if err != nil {
				return ErrorUnknownInstruction
			}
			if !bytes.Equal(accounts.Borrower, borrower) {
				continue
			}
			if !bytes.Equal(accounts.ProgramAuthority, g.authority) {
				return ErrorIncorrectProgramAuthority
			}
			return nil
		case InstructionTypeBorrow:
			_, accounts, err := BorrowInstructionFromInstruction(g.program, ixn)
			if err != nil {
				return ErrorUnknownInstruction
			}
			if !bytes.Equal(accounts.Borrower, borrower) {
				continue
			}
			return ErrorCannotBorrowBeforeRepay
		default:
			return ErrorUnknownInstruction
		}
	}

	return ErrorMissingRepay
}
