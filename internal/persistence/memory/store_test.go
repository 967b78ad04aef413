package memory_test

import (
	"testing"

	"github.com/example/shared-calendar/internal/testfixtures"
)

func TestStoreRepositoryContract(t *testing.T) {
	testfixtures.RunRepositoryContract(t, func(tb testing.TB) *testfixtures.Harness {
		return testfixtures.NewMemoryHarness(tb)
	})
}
