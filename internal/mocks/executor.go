package mocks

import (
	"github.com/brettbedarf/treestore/server"
	"github.com/stretchr/testify/mock"
)

// MockExecutor implements server.CommandExecutor for testing across packages
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(cmd, path, value string) string {
	args := m.Called(cmd, path, value)

	// Handle function return types (for echo-style tests)
	if fn, ok := args.Get(0).(func(string, string, string) string); ok {
		return fn(cmd, path, value)
	}
	return args.String(0)
}

var _ server.CommandExecutor = (*MockExecutor)(nil)
