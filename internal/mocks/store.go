package mocks

import (
	"github.com/brettbedarf/treestore/executor"
	"github.com/brettbedarf/treestore/tree"
	"github.com/stretchr/testify/mock"
)

// MockTreeStore implements executor.TreeStore for testing across packages
type MockTreeStore struct {
	mock.Mock
}

func (m *MockTreeStore) CreateNode(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockTreeStore) CreateLeaf(path string, value []byte) error {
	args := m.Called(path, value)
	return args.Error(0)
}

func (m *MockTreeStore) DeleteNode(path string) (bool, error) {
	args := m.Called(path)
	return args.Bool(0), args.Error(1)
}

func (m *MockTreeStore) DeleteLeaf(path string) (bool, error) {
	args := m.Called(path)
	return args.Bool(0), args.Error(1)
}

func (m *MockTreeStore) RenderPath(path string) (string, error) {
	args := m.Called(path)
	return args.String(0), args.Error(1)
}

func (m *MockTreeStore) Stats() tree.Stats {
	args := m.Called()

	// Handle function return types (for tests tracking mutations)
	if fn, ok := args.Get(0).(func() tree.Stats); ok {
		return fn()
	}
	if args.Get(0) == nil {
		return tree.Stats{}
	}
	return args.Get(0).(tree.Stats)
}

var _ executor.TreeStore = (*MockTreeStore)(nil)
