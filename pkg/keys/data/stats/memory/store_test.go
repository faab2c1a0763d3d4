package memory

import (
	"testing"

	"github.com/code-payments/keys-server/pkg/keys/data/stats/tests"
)

func TestStatsMemoryStore(t *testing.T) {
	testStore := New()
	teardown := func() {
		testStore.(*store).reset()
	}
	tests.RunTests(t, testStore, teardown)
}
