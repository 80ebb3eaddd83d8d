// Package tree implements the in-memory hierarchy of nodes and leaves
// addressed by absolute slash-delimited paths, plus the [Guard] that
// serializes access to it.
package tree

import (
	"fmt"
	"strings"

	"github.com/brettbedarf/treestore/internal/paths"
	"github.com/brettbedarf/treestore/internal/util"
)

// Store owns the root node and everything reachable from it.
// Store itself is not safe for concurrent use; share it through a [Guard].
type Store struct {
	root   *Node
	nodes  int // live nodes including root
	leaves int // live leaves
}

// Stats holds live entry counts of a Store
type Stats struct {
	Nodes  int // includes the root
	Leaves int
}

// NewStore creates a Store holding only the root node "/".
func NewStore() *Store {
	return &Store{
		root:  newNode(paths.Root),
		nodes: 1,
	}
}

// Root returns the root node.
func (s *Store) Root() *Node {
	return s.root
}

// Stats returns the number of live nodes and leaves.
func (s *Store) Stats() Stats {
	return Stats{Nodes: s.nodes, Leaves: s.leaves}
}

// CreateNode creates the node at path under its existing parent node.
// Parents are never created implicitly; multi-level paths must be created
// one level at a time.
//
// Errors: [ErrInvalidPath], [ErrPathExists], [ErrParentNotFound].
// Nothing is allocated unless every check passes.
func (s *Store) CreateNode(path string) (*Node, error) {
	logger := util.GetLogger("Store.CreateNode")

	parent, err := s.resolveCreate(path)
	if err != nil {
		logger.Debug().Err(err).Str("path", path).Msg("Failed to create node")
		return nil, err
	}

	node := newNode(path)
	parent.addChild(node)
	s.nodes++
	logger.Trace().Str("path", path).Msg("Created node")
	return node, nil
}

// CreateLeaf creates the leaf at path with a copy of value and appends it to
// the tail of its parent's leaf chain. Same error taxonomy as [Store.CreateNode].
func (s *Store) CreateLeaf(path string, value []byte) (*Leaf, error) {
	logger := util.GetLogger("Store.CreateLeaf")

	parent, err := s.resolveCreate(path)
	if err != nil {
		logger.Debug().Err(err).Str("path", path).Msg("Failed to create leaf")
		return nil, err
	}

	leaf := newLeaf(path, value)
	parent.appendLeaf(leaf)
	s.leaves++
	logger.Trace().Str("path", path).Int("size", len(value)).Msg("Created leaf")
	return leaf, nil
}

// resolveCreate checks the create preconditions for path and returns the
// parent node the new entry belongs to
func (s *Store) resolveCreate(path string) (*Node, error) {
	if !paths.IsMutable(path) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	if s.occupied(path) {
		return nil, fmt.Errorf("%w: %s", ErrPathExists, path)
	}
	parent := s.findNode(paths.Parent(path))
	if parent == nil {
		return nil, fmt.Errorf("%w: %s", ErrParentNotFound, path)
	}
	return parent, nil
}

// occupied reports whether a node or leaf already lives at path
func (s *Store) occupied(path string) bool {
	return s.findNode(path) != nil || s.findLeaf(path) != nil
}

// FindNode returns the node at path or [ErrNotFound].
func (s *Store) FindNode(path string) (*Node, error) {
	if node := s.findNode(path); node != nil {
		return node, nil
	}
	return nil, fmt.Errorf("%w: node %s", ErrNotFound, path)
}

// FindLeaf returns the leaf at path or [ErrNotFound].
func (s *Store) FindLeaf(path string) (*Leaf, error) {
	if leaf := s.findLeaf(path); leaf != nil {
		return leaf, nil
	}
	return nil, fmt.Errorf("%w: leaf %s", ErrNotFound, path)
}

// findNode runs a depth-first search from root for the node whose path equals
// path. Subtrees whose path is not a prefix of the target are skipped.
func (s *Store) findNode(path string) *Node {
	if path == "" {
		return nil
	}
	stack := []*Node{s.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.path == path {
			return n
		}
		if !n.IsRoot() && !strings.HasPrefix(path, n.path+"/") {
			continue
		}
		// push in reverse so children are visited in insertion order
		for i := len(n.children) - 1; i >= 0; i-- {
			stack = append(stack, n.children[i])
		}
	}
	return nil
}

// findLeaf resolves the parent node of path, then scans its chain
func (s *Store) findLeaf(path string) *Leaf {
	if !paths.IsMutable(path) {
		return nil
	}
	parent := s.findNode(paths.Parent(path))
	if parent == nil {
		return nil
	}
	return parent.findLeaf(path)
}

// DeleteNode removes the node at path together with its whole subtree.
// It returns false when path is the root or does not resolve to a node; that
// is a normal outcome, not an error. The error is reserved for
// [ErrInconsistent], in which case nothing is modified.
func (s *Store) DeleteNode(path string) (bool, error) {
	logger := util.GetLogger("Store.DeleteNode")

	if !paths.IsMutable(path) {
		return false, nil
	}
	node := s.findNode(path)
	if node == nil {
		return false, nil
	}

	parent := node.parent
	if parent == nil {
		err := fmt.Errorf("%w: node %s has no parent", ErrInconsistent, path)
		logger.Error().Err(err).Str("path", path).Msg("Refusing to delete node")
		return false, err
	}
	nodes, leaves := node.count()
	if !parent.removeChild(node) {
		err := fmt.Errorf("%w: node %s missing from %s", ErrInconsistent, path, parent.path)
		logger.Error().Err(err).Str("path", path).Msg("Refusing to delete node")
		return false, err
	}
	s.nodes -= nodes
	s.leaves -= leaves
	logger.Trace().Str("path", path).Int("nodes", nodes).Int("leaves", leaves).Msg("Deleted node")
	return true, nil
}

// DeleteLeaf splices the leaf at path out of its chain. It returns false
// when no such leaf exists; the error is reserved for [ErrInconsistent].
func (s *Store) DeleteLeaf(path string) (bool, error) {
	logger := util.GetLogger("Store.DeleteLeaf")

	if !paths.IsMutable(path) {
		return false, nil
	}
	parent := s.findNode(paths.Parent(path))
	if parent == nil {
		return false, nil
	}
	leaf := parent.findLeaf(path)
	if leaf == nil {
		return false, nil
	}
	if err := parent.unlinkLeaf(leaf); err != nil {
		logger.Error().Err(err).Str("path", path).Msg("Refusing to delete leaf")
		return false, err
	}
	s.leaves--
	logger.Trace().Str("path", path).Msg("Deleted leaf")
	return true, nil
}
