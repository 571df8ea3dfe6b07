package swap

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/flash-fill/pkg/flashfill"
	"github.com/code-payments/flash-fill/pkg/flashfill/attempt"
	"github.com/code-payments/flash-fill/pkg/metrics"
)

const (
	submissionEventName      = "FlashFillSubmission"
	preparationLatencyMetric = "FlashFillPreparationLatency"
)

func recordSubmissionEvent(ctx context.Context, record *attempt.Record, err error) {
	metrics.RecordEvent(ctx, submissionEventName, map[string]interface{}{
		"attempt":    record.AttemptId,
		"signature":  record.Signature,
		"amount":     record.Amount,
		"state":      record.State.String(),
		"error_kind": errorKind(err),
	})
}

func recordPreparationLatencyEvent(ctx context.Context, latency time.Duration) {
	metrics.RecordDuration(ctx, preparationLatencyMetric, latency)
}

// errorKind classifies err by the error taxonomy, preferring the decoded
// program error when one is available.
func errorKind(err error) string {
	if err == nil {
		return "none"
	}

	for _, kind := range []struct {
		target error
		name   string
	}{
		{flashfill.ErrRepaymentNotScheduled, "repayment_not_scheduled"},
		{flashfill.ErrDoubleBorrowDetected, "double_borrow_detected"},
		{flashfill.ErrRepaymentWithoutBorrow, "repayment_without_borrow"},
		{flashfill.ErrInsufficientRepayment, "insufficient_repayment"},
		{flashfill.ErrInvalidPayload, "invalid_payload"},
		{flashfill.ErrStaleLookupTable, "stale_lookup_table"},
		{flashfill.ErrQuoteUnavailable, "quote_unavailable"},
		{flashfill.ErrInvalidSwapResponse, "invalid_swap_response"},
		{flashfill.ErrSimulationFailed, "simulation_failed"},
		{flashfill.ErrTransactionFailed, "transaction_failed"},
		{flashfill.ErrSubmissionTimeout, "submission_timeout"},
	} {
		if errors.Is(err, kind.target) {
			return kind.name
		}
	}
	return "unknown"
}
