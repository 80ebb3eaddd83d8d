package tree

import (
	"sync"
)

// Guard serializes every operation on a Store behind one exclusive lock.
// Reads take the same lock as mutations so callers always observe a tree
// state produced by some total order of completed operations.
//
// The lock is held only while the tree is traversed or mutated. Methods
// return snapshots ([NodeInfo], [LeafInfo], rendered text) rather than live
// pointers so nothing escapes the critical section.
type Guard struct {
	mu    sync.Mutex
	store *Store
}

// NewGuard wraps store. All further access to store must go through the guard.
func NewGuard(store *Store) *Guard {
	return &Guard{store: store}
}

// Acquire locks the store and returns a context for working with it
// directly. Caller is responsible for closing the context when done
// `defer ctx.Close()`.
func (g *Guard) Acquire() *StoreContext {
	g.mu.Lock()
	ctx := &StoreContext{store: g.store}
	ctx.AddClose(g.mu.Unlock)
	return ctx
}

// CreateNode runs [Store.CreateNode] under the lock.
func (g *Guard) CreateNode(path string) error {
	ctx := g.Acquire()
	defer ctx.Close()
	_, err := ctx.store.CreateNode(path)
	return err
}

// CreateLeaf runs [Store.CreateLeaf] under the lock.
func (g *Guard) CreateLeaf(path string, value []byte) error {
	ctx := g.Acquire()
	defer ctx.Close()
	_, err := ctx.store.CreateLeaf(path, value)
	return err
}

// FindNode returns a snapshot of the node at path or [ErrNotFound].
func (g *Guard) FindNode(path string) (NodeInfo, error) {
	ctx := g.Acquire()
	defer ctx.Close()
	node, err := ctx.store.FindNode(path)
	if err != nil {
		return NodeInfo{}, err
	}
	return node.Info(), nil
}

// FindLeaf returns a snapshot of the leaf at path or [ErrNotFound].
func (g *Guard) FindLeaf(path string) (LeafInfo, error) {
	ctx := g.Acquire()
	defer ctx.Close()
	leaf, err := ctx.store.FindLeaf(path)
	if err != nil {
		return LeafInfo{}, err
	}
	return leaf.Info(), nil
}

// DeleteNode runs [Store.DeleteNode] under the lock.
func (g *Guard) DeleteNode(path string) (bool, error) {
	ctx := g.Acquire()
	defer ctx.Close()
	return ctx.store.DeleteNode(path)
}

// DeleteLeaf runs [Store.DeleteLeaf] under the lock.
func (g *Guard) DeleteLeaf(path string) (bool, error) {
	ctx := g.Acquire()
	defer ctx.Close()
	return ctx.store.DeleteLeaf(path)
}

// Render dumps the whole tree under the lock.
func (g *Guard) Render() string {
	ctx := g.Acquire()
	defer ctx.Close()
	return ctx.store.Render()
}

// RenderPath resolves the node at path and renders its subtree within a
// single acquisition, or returns [ErrNotFound].
func (g *Guard) RenderPath(path string) (string, error) {
	ctx := g.Acquire()
	defer ctx.Close()
	node, err := ctx.store.FindNode(path)
	if err != nil {
		return "", err
	}
	return Render(node), nil
}

// Stats returns the store's live entry counts.
func (g *Guard) Stats() Stats {
	ctx := g.Acquire()
	defer ctx.Close()
	return ctx.store.Stats()
}
