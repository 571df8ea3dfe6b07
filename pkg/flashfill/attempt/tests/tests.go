package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/flash-fill/pkg/database/query"
	"github.com/code-payments/flash-fill/pkg/flashfill/attempt"
	"github.com/code-payments/flash-fill/pkg/pointer"
)

func RunTests(t *testing.T, s attempt.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s attempt.Store){
		testRoundTrip,
		testUpdateHappyPath,
		testUpdateStaleRecord,
		testDuplicateSignature,
		testGetAllByState,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s attempt.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		actual, err := s.GetById(ctx, "test_attempt_id")
		require.Error(t, err)
		assert.Equal(t, attempt.ErrNotFound, err)
		assert.Nil(t, actual)

		actual, err = s.GetBySignature(ctx, "test_signature")
		require.Error(t, err)
		assert.Equal(t, attempt.ErrNotFound, err)
		assert.Nil(t, actual)

		expected := &attempt.Record{
			AttemptId: "test_attempt_id",

			Signature: "test_signature",
			Borrower:  "test_borrower",
			Blockhash: "test_blockhash",

			Amount: 12345,

			State:        attempt.StateSimulationFailed,
			ErrorMessage: pointer.String("test_error_message"),

			CreatedAt: time.Now(),
		}
		cloned := expected.Clone()
		err = s.Save(ctx, expected)
		require.NoError(t, err)
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 1, expected.Version)

		actual, err = s.GetById(ctx, "test_attempt_id")
		require.NoError(t, err)
		assertEquivalentRecords(t, &cloned, actual)

		actual, err = s.GetBySignature(ctx, "test_signature")
		require.NoError(t, err)
		assertEquivalentRecords(t, &cloned, actual)
	})
}

func testUpdateHappyPath(t *testing.T, s attempt.Store) {
	t.Run("testUpdateHappyPath", func(t *testing.T) {
		ctx := context.Background()

		expected := &attempt.Record{
			AttemptId: "test_attempt_id",

			Signature: "test_signature",
			Borrower:  "test_borrower",
			Blockhash: "test_blockhash",

			Amount: 12345,

			State: attempt.StateSubmitted,

			CreatedAt: time.Now(),
		}
		require.NoError(t, s.Save(ctx, expected))
		assert.EqualValues(t, 1, expected.Version)

		expected.State = attempt.StateTimedOut
		expected.ErrorMessage = pointer.String("timed out waiting for confirmation")
		require.NoError(t, s.Save(ctx, expected))
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 2, expected.Version)

		expected.State = attempt.StateConfirmed
		expected.Slot = 1234
		expected.ErrorMessage = nil
		require.NoError(t, s.Save(ctx, expected))
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 3, expected.Version)

		actual, err := s.GetById(ctx, "test_attempt_id")
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)
		assert.Nil(t, actual.ErrorMessage)

		// Identifying fields are immutable
		mutated := actual.Clone()
		mutated.Borrower = "other_borrower"
		mutated.Amount = 1
		require.NoError(t, s.Save(ctx, &mutated))

		actual, err = s.GetById(ctx, "test_attempt_id")
		require.NoError(t, err)
		assert.Equal(t, "test_borrower", actual.Borrower)
		assert.EqualValues(t, 12345, actual.Amount)
		assert.EqualValues(t, 4, actual.Version)
	})
}

func testUpdateStaleRecord(t *testing.T, s attempt.Store) {
	t.Run("testUpdateStaleRecord", func(t *testing.T) {
		ctx := context.Background()

		expected := &attempt.Record{
			AttemptId: "test_attempt_id",

			Signature: "test_signature",
			Borrower:  "test_borrower",
			Blockhash: "test_blockhash",

			Amount: 12345,

			State: attempt.StateSubmitted,

			CreatedAt: time.Now(),
		}
		require.NoError(t, s.Save(ctx, expected))

		stale := expected.Clone()

		expected.State = attempt.StateConfirmed
		expected.Slot = 1234
		require.NoError(t, s.Save(ctx, expected))

		stale.State = attempt.StateFailed
		stale.ErrorMessage = pointer.String("failed")
		assert.Equal(t, attempt.ErrStaleVersion, s.Save(ctx, &stale))

		actual, err := s.GetById(ctx, "test_attempt_id")
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)
	})
}

func testDuplicateSignature(t *testing.T, s attempt.Store) {
	t.Run("testDuplicateSignature", func(t *testing.T) {
		ctx := context.Background()

		record := &attempt.Record{
			AttemptId: "test_attempt_id_1",

			Signature: "test_signature",
			Borrower:  "test_borrower",
			Blockhash: "test_blockhash",

			Amount: 12345,

			State: attempt.StateSubmitted,
		}
		require.NoError(t, s.Save(ctx, record))

		duplicate := record.Clone()
		duplicate.Id = 0
		duplicate.AttemptId = "test_attempt_id_2"
		duplicate.Version = 0
		assert.Equal(t, attempt.ErrExists, s.Save(ctx, &duplicate))

		_, err := s.GetById(ctx, "test_attempt_id_2")
		assert.Equal(t, attempt.ErrNotFound, err)
	})
}

func testGetAllByState(t *testing.T, s attempt.Store) {
	t.Run("testGetAllByState", func(t *testing.T) {
		ctx := context.Background()

		var expected []*attempt.Record
		for i := 0; i < 10; i++ {
			state := attempt.StateTimedOut
			if i%2 == 0 {
				state = attempt.StateConfirmed
			}

			record := &attempt.Record{
				AttemptId: fmt.Sprintf("test_attempt_id_%d", i),

				Signature: fmt.Sprintf("test_signature_%d", i),
				Borrower:  "test_borrower",
				Blockhash: "test_blockhash",

				Amount: uint64(i + 1),

				Slot: uint64(i + 1),

				State: state,
			}
			require.NoError(t, s.Save(ctx, record))
			expected = append(expected, record)
		}

		count, err := s.CountByState(ctx, attempt.StateTimedOut)
		require.NoError(t, err)
		assert.EqualValues(t, 5, count)

		count, err = s.CountByState(ctx, attempt.StateFailed)
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)

		_, err = s.GetAllByState(ctx, attempt.StateFailed, query.EmptyCursor, 10, query.Ascending)
		assert.Equal(t, attempt.ErrNotFound, err)

		actual, err := s.GetAllByState(ctx, attempt.StateTimedOut, query.EmptyCursor, 10, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 5)
		for i, record := range actual {
			assertEquivalentRecords(t, expected[2*i+1], record)
		}

		actual, err = s.GetAllByState(ctx, attempt.StateTimedOut, query.EmptyCursor, 10, query.Descending)
		require.NoError(t, err)
		require.Len(t, actual, 5)
		for i, record := range actual {
			assertEquivalentRecords(t, expected[9-2*i], record)
		}

		actual, err = s.GetAllByState(ctx, attempt.StateTimedOut, query.ToCursor(expected[3].Id), 2, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 2)
		assertEquivalentRecords(t, expected[5], actual[0])
		assertEquivalentRecords(t, expected[7], actual[1])

		actual, err = s.GetAllByState(ctx, attempt.StateTimedOut, query.ToCursor(expected[3].Id), 10, query.Descending)
		require.NoError(t, err)
		require.Len(t, actual, 1)
		assertEquivalentRecords(t, expected[1], actual[0])
	})
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *attempt.Record) {
	assert.Equal(t, obj1.AttemptId, obj2.AttemptId)
	assert.Equal(t, obj1.Signature, obj2.Signature)
	assert.Equal(t, obj1.Borrower, obj2.Borrower)
	assert.Equal(t, obj1.Blockhash, obj2.Blockhash)
	assert.Equal(t, obj1.Amount, obj2.Amount)
	assert.Equal(t, obj1.Slot, obj2.Slot)
	assert.Equal(t, obj1.State, obj2.State)
	assert.EqualValues(t, obj1.ErrorMessage, obj2.ErrorMessage)
	assert.Equal(t, obj1.CreatedAt.Unix(), obj2.CreatedAt.Unix())
}
