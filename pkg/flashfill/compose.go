package flashfill

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/flash-fill/pkg/solana"
	flash_fill "github.com/code-payments/flash-fill/pkg/solana/flashfill"
	"github.com/code-payments/flash-fill/pkg/solana/sysvar"
)

// MaxTransactionSize is the largest serialized transaction the ledger accepts.
const MaxTransactionSize = 1232

var (
	ErrInvalidComposition = errors.New("invalid flash fill composition")
)

type BorrowRequest struct {
	Amount     uint64
	FeeAccount ed25519.PublicKey
	Borrower   ed25519.PublicKey
}

type RepayRequest struct {
	Amount   uint64
	Borrower ed25519.PublicKey
}

// ComposeRequest is everything needed to build a flash-fill transaction.
// Cleanup is optional, every other payload is required.
type ComposeRequest struct {
	Program ed25519.PublicKey

	ComputeBudget []*InstructionPayload
	Borrow        BorrowRequest
	Setup         []*InstructionPayload
	Swap          *InstructionPayload
	Cleanup       *InstructionPayload
	Repay         RepayRequest

	Tables    []*LookupTable
	Payer     ed25519.PublicKey
	Blockhash solana.Blockhash
}

// ComposedTransaction is an unsigned flash-fill transaction.
type ComposedTransaction struct {
	Payer        ed25519.PublicKey
	Blockhash    solana.Blockhash
	Instructions []solana.Instruction
	Tables       []*LookupTable

	Transaction solana.Transaction
}

// Composer builds flash-fill transactions for a single program deployment.
type Composer struct {
	program ed25519.PublicKey
	guard   *flash_fill.Guard
}

func NewComposer(program ed25519.PublicKey) (*Composer, error) {
	guard, err := flash_fill.NewGuard(program)
	if err != nil {
		return nil, err
	}

	return &Composer{
		program: program,
		guard:   guard,
	}, nil
}

// Program returns the flash-fill program the composer targets.
func (c *Composer) Program() ed25519.PublicKey {
	return c.program
}

// Authority returns the program authority lending out funds.
func (c *Composer) Authority() ed25519.PublicKey {
	return c.guard.Authority()
}

// Compose orders the request into compute budget, Borrow, setup, swap,
// cleanup and Repay, and builds the message. Nothing is built when any part
// of the request is invalid.
func (c *Composer) Compose(req *ComposeRequest) (*ComposedTransaction, error) {
	if req.Program != nil && !bytes.Equal(req.Program, c.program) {
		return nil, errors.Wrap(ErrInvalidComposition, "program does not match composer")
	}
	if err := validateLoan(&req.Borrow, &req.Repay); err != nil {
		return nil, err
	}

	computeBudget, err := CompileAll(req.ComputeBudget)
	if err != nil {
		return nil, errors.Wrap(err, "compute budget")
	}

	borrow, err := c.NewBorrowInstruction(&req.Borrow)
	if err != nil {
		return nil, err
	}

	setup, err := CompileAll(req.Setup)
	if err != nil {
		return nil, errors.Wrap(err, "setup")
	}

	swap, err := Compile(req.Swap)
	if err != nil {
		return nil, errors.Wrap(err, "swap")
	}

	cleanup, err := CompileOptional(req.Cleanup)
	if err != nil {
		return nil, errors.Wrap(err, "cleanup")
	}

	repay, err := c.NewRepayInstruction(&req.Repay)
	if err != nil {
		return nil, err
	}

	instructions := make([]solana.Instruction, 0, len(computeBudget)+len(setup)+4)
	instructions = append(instructions, computeBudget...)
	instructions = append(instructions, borrow)
	instructions = append(instructions, setup...)
	instructions = append(instructions, swap)
	if cleanup != nil {
		instructions = append(instructions, *cleanup)
	}
	instructions = append(instructions, repay)

	if err := c.Validate(instructions); err != nil {
		return nil, err
	}

	return c.Build(req.Payer, req.Blockhash, req.Tables, instructions)
}

// Build assembles a message from already ordered instructions. It performs
// no flash-fill validation, which is left to Compose and the ledger.
func (c *Composer) Build(payer ed25519.PublicKey, blockhash solana.Blockhash, tables []*LookupTable, instructions []solana.Instruction) (*ComposedTransaction, error) {
	if len(payer) != ed25519.PublicKeySize {
		return nil, errors.Wrap(ErrInvalidComposition, "invalid payer")
	}
	if len(instructions) == 0 {
		return nil, errors.Wrap(ErrInvalidComposition, "no instructions")
	}

	addressTables := make([]solana.AddressLookupTable, len(tables))
	for i, table := range tables {
		addressTables[i] = table.ToAddressLookupTable()
	}

	txn := solana.NewV0Transaction(payer, addressTables, instructions)
	txn.SetBlockhash(blockhash)

	if size := len(txn.Marshal()); size > MaxTransactionSize {
		return nil, errors.Wrapf(ErrTransactionTooLarge, "%d bytes", size)
	}

	return &ComposedTransaction{
		Payer:        payer,
		Blockhash:    blockhash,
		Instructions: instructions,
		Tables:       tables,
		Transaction:  txn,
	}, nil
}

// NewBorrowInstruction builds the Borrow for req against the composer's
// program authority.
func (c *Composer) NewBorrowInstruction(req *BorrowRequest) (solana.Instruction, error) {
	var feeAccount [ed25519.PublicKeySize]byte
	copy(feeAccount[:], req.FeeAccount)

	return flash_fill.NewBorrowInstruction(
		c.program,
		&flash_fill.BorrowInstructionAccounts{
			Borrower:         req.Borrower,
			ProgramAuthority: c.guard.Authority(),
			FeeAccount:       req.FeeAccount,
		},
		&flash_fill.BorrowInstructionArgs{
			Amount:     req.Amount,
			FeeAccount: feeAccount,
		},
	)
}

// NewRepayInstruction builds the Repay for req against the composer's
// program authority.
func (c *Composer) NewRepayInstruction(req *RepayRequest) (solana.Instruction, error) {
	return flash_fill.NewRepayInstruction(
		c.program,
		&flash_fill.RepayInstructionAccounts{
			Borrower:         req.Borrower,
			ProgramAuthority: c.guard.Authority(),
		},
		&flash_fill.RepayInstructionArgs{
			Amount: req.Amount,
		},
	)
}

// Validate runs the ledger-side guard over instructions locally, and then
// requires exactly one Borrow followed by exactly one Repay.
func (c *Composer) Validate(instructions []solana.Instruction) error {
	log := sysvar.SerializeInstructions(instructions)

	var borrows, repays int
	for i, ixn := range instructions {
		if !bytes.Equal(ixn.Program, c.program) {
			continue
		}

		if err := sysvar.StoreCurrentIndex(log, uint16(i)); err != nil {
			return errors.Wrap(err, "error storing current index")
		}

		var err error
		switch flash_fill.GetInstructionType(ixn.Data) {
		case flash_fill.InstructionTypeBorrow:
			_, _, err = c.guard.CheckBorrow(ixn, log)
			borrows++
		case flash_fill.InstructionTypeRepay:
			_, _, err = c.guard.CheckRepay(ixn, log)
			repays++
		default:
			err = flash_fill.ErrorUnknownInstruction
		}
		if err != nil {
			return errors.Wrapf(err, "instruction %d", i)
		}
	}

	if borrows != 1 || repays != 1 {
		return errors.Wrapf(ErrInvalidComposition, "expected exactly one borrow and one repay, got %d and %d", borrows, repays)
	}
	return nil
}

func validateLoan(borrow *BorrowRequest, repay *RepayRequest) error {
	if borrow.Amount == 0 {
		return errors.Wrap(ErrInvalidComposition, "borrow amount must be positive")
	}
	if len(borrow.Borrower) != ed25519.PublicKeySize {
		return errors.Wrap(ErrInvalidComposition, "invalid borrower")
	}
	if len(borrow.FeeAccount) != ed25519.PublicKeySize {
		return errors.Wrap(ErrInvalidComposition, "invalid fee account")
	}
	if !bytes.Equal(borrow.Borrower, repay.Borrower) {
		return errors.Wrap(ErrInvalidComposition, "repay borrower does not match borrow borrower")
	}
	if repay.Amount < flash_fill.RequiredRepayment(borrow.Amount) {
		return errors.Wrapf(ErrInsufficientRepayment, "repay %d is below required %d", repay.Amount, flash_fill.RequiredRepayment(borrow.Amount))
	}
	return nil
}
