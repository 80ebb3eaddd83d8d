package executor_test

import (
	"errors"
	"testing"

	"github.com/brettbedarf/treestore/config"
	"github.com/brettbedarf/treestore/executor"
	"github.com/brettbedarf/treestore/internal/mocks"
	"github.com/brettbedarf/treestore/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed_Default(t *testing.T) {
	t.Parallel()

	g := tree.NewGuard(tree.NewStore())
	n, err := executor.Seed(g, config.DefaultSeed())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	leaf, err := g.FindLeaf("/Users/readme")
	require.NoError(t, err)
	assert.Equal(t, "This is a user directory.", string(leaf.Value))
}

func TestSeed_SkipsExisting(t *testing.T) {
	t.Parallel()

	g := tree.NewGuard(tree.NewStore())
	require.NoError(t, g.CreateNode("/Users"))

	n, err := executor.Seed(g, config.DefaultSeed())

	require.NoError(t, err)
	assert.Equal(t, 1, n, "existing /Users is skipped")
	assert.Equal(t, tree.Stats{Nodes: 2, Leaves: 1}, g.Stats())
}

func TestSeed_StopsOnFailure(t *testing.T) {
	t.Parallel()

	g := tree.NewGuard(tree.NewStore())
	entries := []config.SeedEntry{
		{Type: config.SeedNode, Path: "/a"},
		{Type: config.SeedLeaf, Path: "/missing/x", Value: "v"},
		{Type: config.SeedNode, Path: "/b"},
	}

	n, err := executor.Seed(g, entries)

	require.Error(t, err)
	assert.ErrorIs(t, err, tree.ErrParentNotFound)
	assert.Contains(t, err.Error(), "seed[1]")
	assert.Equal(t, 1, n)
	_, err = g.FindNode("/b")
	assert.ErrorIs(t, err, tree.ErrNotFound, "entries after the failure are not applied")
}

func TestSeed_UnknownType(t *testing.T) {
	t.Parallel()

	store := &mocks.MockTreeStore{}
	n, err := executor.Seed(store, []config.SeedEntry{{Type: "dir", Path: "/a"}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown seed type")
	assert.Zero(t, n)
	store.AssertExpectations(t)
}

func TestSeed_Empty(t *testing.T) {
	t.Parallel()

	store := &mocks.MockTreeStore{}
	n, err := executor.Seed(store, nil)

	require.NoError(t, err)
	assert.Zero(t, n)
	store.AssertNotCalled(t, "Stats")
}

func TestSeed_PropagatesStoreError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	store := &mocks.MockTreeStore{}
	store.On("CreateNode", "/a").Return(boom)

	_, err := executor.Seed(store, []config.SeedEntry{{Type: config.SeedNode, Path: "/a"}})

	assert.ErrorIs(t, err, boom)
	store.AssertExpectations(t)
}
