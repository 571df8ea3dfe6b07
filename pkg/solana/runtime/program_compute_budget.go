package runtime

import (
	"bytes"

	"github.com/code-payments/flash-fill/pkg/solana"
	compute_budget "github.com/code-payments/flash-fill/pkg/solana/computebudget"
)

const computeBudgetProgramComputeUnits = 150

func newComputeBudgetProgram() Program {
	return Program{
		Name:         "compute_budget",
		ComputeUnits: computeBudgetProgramComputeUnits,
		Process: func(ctx *InvokeContext) error {
			// The requested budget is applied before execution starts
			if !compute_budget.IsValidInstructionData(ctx.Instruction().Data) {
				return ErrInvalidInstructionData
			}
			return nil
		},
	}
}

// computeUnitLimit returns the compute budget for a transaction, honoring the
// last SetComputeUnitLimit instruction if present.
func computeUnitLimit(instructions []solana.Instruction) uint64 {
	var requested *uint32
	var numNonBudget uint64
	for _, ixn := range instructions {
		if !bytes.Equal(ixn.Program, compute_budget.ProgramKey) {
			numNonBudget++
			continue
		}

		if limit, err := compute_budget.ParseSetComputeUnitLimitIxnData(ixn.Data); err == nil {
			requested = &limit
		}
	}

	limit := numNonBudget * defaultInstructionComputeUnitLimit
	if requested != nil {
		limit = uint64(*requested)
	}
	if limit > maxComputeUnitLimit {
		limit = maxComputeUnitLimit
	}
	return limit
}
