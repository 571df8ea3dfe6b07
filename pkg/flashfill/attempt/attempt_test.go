package attempt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/flash-fill/pkg/pointer"
)

func TestValidate(t *testing.T) {
	valid := func() *Record {
		return &Record{
			AttemptId: "attempt",
			Signature: "signature",
			Borrower:  "borrower",
			Blockhash: "blockhash",
			Amount:    1,
			State:     StateSubmitted,
		}
	}
	require.NoError(t, valid().Validate())

	for _, mutate := range []func(r *Record){
		func(r *Record) { r.AttemptId = "" },
		func(r *Record) { r.Signature = "" },
		func(r *Record) { r.Borrower = "" },
		func(r *Record) { r.Blockhash = "" },
		func(r *Record) { r.Amount = 0 },
		func(r *Record) { r.State = StateUnknown },
		func(r *Record) { r.State = StateConfirmed },
		func(r *Record) { r.ErrorMessage = pointer.String("") },
	} {
		r := valid()
		mutate(r)
		assert.Error(t, r.Validate())
	}
}

func TestClone(t *testing.T) {
	r := &Record{
		AttemptId:    "attempt",
		ErrorMessage: pointer.String("error"),
	}

	cloned := r.Clone()
	*cloned.ErrorMessage = "other"
	assert.Equal(t, "error", *r.ErrorMessage)

	var dst Record
	r.CopyTo(&dst)
	assert.Equal(t, "attempt", dst.AttemptId)
	*dst.ErrorMessage = "other"
	assert.Equal(t, "error", *r.ErrorMessage)
}

func TestState(t *testing.T) {
	for _, tc := range []struct {
		state    State
		name     string
		terminal bool
	}{
		{StateUnknown, "unknown", false},
		{StateSimulationFailed, "simulation-failed", true},
		{StateSubmitted, "submitted", false},
		{StateConfirmed, "confirmed", true},
		{StateFailed, "failed", true},
		{StateTimedOut, "timed-out", false},
	} {
		assert.Equal(t, tc.name, tc.state.String())
		assert.Equal(t, tc.terminal, tc.state.IsTerminal())

		parsed, err := ToState(tc.name)
		if tc.state == StateUnknown {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.state, parsed)
	}
}
