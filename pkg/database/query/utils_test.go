package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginateQuery(t *testing.T) {
	base := "SELECT * FROM table WHERE (state = $1)"

	for _, tc := range []struct {
		cursor       Cursor
		limit        uint64
		direction    Ordering
		expected     string
		expectedOpts []interface{}
	}{
		{
			cursor:       EmptyCursor,
			direction:    Ascending,
			expected:     base + " ORDER BY id ASC",
			expectedOpts: []interface{}{1},
		},
		{
			cursor:       ToCursor(5),
			limit:        10,
			direction:    Ascending,
			expected:     base + " AND id > $2 ORDER BY id ASC LIMIT $3",
			expectedOpts: []interface{}{1, uint64(5), uint64(10)},
		},
		{
			cursor:       ToCursor(5),
			limit:        10,
			direction:    Descending,
			expected:     base + " AND id < $2 ORDER BY id DESC LIMIT $3",
			expectedOpts: []interface{}{1, uint64(5), uint64(10)},
		},
		{
			cursor:       EmptyCursor,
			limit:        10,
			direction:    Descending,
			expected:     base + " ORDER BY id DESC LIMIT $2",
			expectedOpts: []interface{}{1, uint64(10)},
		},
	} {
		actual, opts := PaginateQuery(base, []interface{}{1}, tc.cursor, tc.limit, tc.direction)
		assert.Equal(t, tc.expected, actual)
		assert.Equal(t, tc.expectedOpts, opts)
	}
}

func TestCursor(t *testing.T) {
	cursor := ToCursor(1234)
	assert.EqualValues(t, 1234, cursor.ToUint64())
	assert.NotEmpty(t, cursor.ToBase58())
}

func TestOrdering(t *testing.T) {
	for _, tc := range []struct {
		value    string
		ordering Ordering
	}{
		{"asc", Ascending},
		{"desc", Descending},
	} {
		actual, err := ToOrdering(tc.value)
		assert.NoError(t, err)
		assert.Equal(t, tc.ordering, actual)

		value, err := FromOrdering(tc.ordering)
		assert.NoError(t, err)
		assert.Equal(t, tc.value, value)
	}

	_, err := ToOrdering("sideways")
	assert.Error(t, err)

	_, err = FromOrdering(Ordering(10))
	assert.Error(t, err)
}
