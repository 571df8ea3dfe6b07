package memory

import (
	"testing"

	"github.com/code-payments/flash-fill/pkg/flashfill/attempt/tests"
)

func TestAttemptMemoryStore(t *testing.T) {
	testStore := New()
	teardown := func() {
		testStore.(*store).reset()
	}
	tests.RunTests(t, testStore, teardown)
}
