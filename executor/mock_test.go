package executor

import (
	"os"
	"testing"
)

// mockLanguage implements Language for testing executor logic
// without the overhead of a real JavaScript runtime.
type mockLanguage struct {
	module []byte
}

func (m *mockLanguage) Name() string {
	return "mock"
}

func (m *mockLanguage) Module() []byte {
	return m.module
}

func (m *mockLanguage) Runtime() string {
	return ""
}

func (m *mockLanguage) Args(program string) []string {
	return []string{"mock"}
}

// newMockLanguage loads testdata/mock.wasm, skipping the test when it has
// not been built.
func newMockLanguage(t testing.TB) *mockLanguage {
	t.Helper()
	module, err := os.ReadFile("testdata/mock.wasm")
	if err != nil {
		t.Skip("testdata/mock.wasm not built; see testdata/mock.go")
	}
	return &mockLanguage{module: module}
}
