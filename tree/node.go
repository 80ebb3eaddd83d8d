package tree

import (
	"fmt"
	"slices"
)

// Node is a directory-like container. It owns its sub-nodes, kept in
// insertion order, and the chain of leaves starting at head.
//
// NOTE: Node fields are not synchronized. Hold the store's [Guard] (or work
// inside a [StoreContext]) while reading or mutating them.
type Node struct {
	path     string
	parent   *Node   // nil for the root and for detached nodes
	children []*Node // owned sub-nodes in insertion order
	head     *Leaf   // first leaf of the chain; nil when there are no leaves
}

// Leaf is a terminal key/value entry attached to a Node. Leaves form a
// doubly-linked chain under their parent: head.prev and tail.next are nil.
type Leaf struct {
	path   string
	value  []byte
	parent *Node // owning node; never a leaf
	prev   *Leaf
	next   *Leaf
}

// NodeInfo is a snapshot of a Node that is safe to use after the guard is released
type NodeInfo struct {
	Path     string
	Children []string // sub-node paths in insertion order
	Leaves   []string // leaf paths in chain order
}

// LeafInfo is a snapshot of a Leaf that is safe to use after the guard is released
type LeafInfo struct {
	Path  string
	Value []byte
}

func newNode(path string) *Node {
	return &Node{path: path}
}

func newLeaf(path string, value []byte) *Leaf {
	return &Leaf{path: path, value: slices.Clone(value)}
}

// Path returns the node's absolute path.
func (n *Node) Path() string {
	return n.path
}

// Parent returns the owning node, or nil for the root and detached nodes.
func (n *Node) Parent() *Node {
	return n.parent
}

// IsRoot reports whether n is the root of its store.
func (n *Node) IsRoot() bool {
	return n.parent == nil && n.path == "/"
}

// Children returns the sub-nodes in insertion order in a new slice.
func (n *Node) Children() []*Node {
	return slices.Clone(n.children)
}

// FirstLeaf returns the head of the leaf chain.
func (n *Node) FirstLeaf() *Leaf {
	return n.head
}

// LastLeaf returns the tail of the leaf chain. O(chain length).
func (n *Node) LastLeaf() *Leaf {
	if n.head == nil {
		return nil
	}
	cur := n.head
	for cur.next != nil {
		cur = cur.next
	}
	return cur
}

// Leaves walks the chain forward from head and returns its leaves.
func (n *Node) Leaves() []*Leaf {
	var leaves []*Leaf
	for l := n.head; l != nil; l = l.next {
		leaves = append(leaves, l)
	}
	return leaves
}

// Info returns a snapshot of the node.
func (n *Node) Info() NodeInfo {
	info := NodeInfo{
		Path:     n.path,
		Children: make([]string, 0, len(n.children)),
	}
	for _, c := range n.children {
		info.Children = append(info.Children, c.path)
	}
	for l := n.head; l != nil; l = l.next {
		info.Leaves = append(info.Leaves, l.path)
	}
	return info
}

// addChild appends child to the node's sub-nodes and sets its parent ref
func (n *Node) addChild(child *Node) {
	n.children = append(n.children, child)
	child.parent = n
}

// removeChild detaches child, keeping the order of the remaining siblings.
// Returns false if child is not one of n's sub-nodes.
func (n *Node) removeChild(child *Node) bool {
	i := slices.Index(n.children, child)
	if i < 0 {
		return false
	}
	n.children = slices.Delete(n.children, i, i+1)
	child.parent = nil
	return true
}

// findLeaf linear-scans the chain for path
func (n *Node) findLeaf(path string) *Leaf {
	for l := n.head; l != nil; l = l.next {
		if l.path == path {
			return l
		}
	}
	return nil
}

// appendLeaf links leaf at the tail of the chain
func (n *Node) appendLeaf(leaf *Leaf) {
	leaf.parent = n
	tail := n.LastLeaf()
	if tail == nil {
		n.head = leaf
		return
	}
	tail.next = leaf
	leaf.prev = tail
}

// unlinkLeaf splices leaf out of the chain. The links around leaf are
// verified first; on mismatch nothing is modified.
func (n *Node) unlinkLeaf(leaf *Leaf) error {
	if leaf.parent != n {
		return fmt.Errorf("%w: leaf %s is not owned by %s", ErrInconsistent, leaf.path, n.path)
	}
	if leaf.prev == nil && n.head != leaf {
		return fmt.Errorf("%w: leaf %s has no previous but is not head", ErrInconsistent, leaf.path)
	}
	if leaf.prev != nil && leaf.prev.next != leaf {
		return fmt.Errorf("%w: broken previous link at %s", ErrInconsistent, leaf.path)
	}
	if leaf.next != nil && leaf.next.prev != leaf {
		return fmt.Errorf("%w: broken next link at %s", ErrInconsistent, leaf.path)
	}

	if leaf.prev == nil {
		n.head = leaf.next
	} else {
		leaf.prev.next = leaf.next
	}
	if leaf.next != nil {
		leaf.next.prev = leaf.prev
	}
	leaf.prev, leaf.next, leaf.parent = nil, nil, nil
	return nil
}

// count returns the number of nodes (n included) and leaves in n's subtree
func (n *Node) count() (nodes, leaves int) {
	nodes = 1
	for l := n.head; l != nil; l = l.next {
		leaves++
	}
	for _, c := range n.children {
		cn, cl := c.count()
		nodes += cn
		leaves += cl
	}
	return nodes, leaves
}

// Path returns the leaf's absolute path.
func (l *Leaf) Path() string {
	return l.path
}

// Value returns a copy of the leaf's value.
func (l *Leaf) Value() []byte {
	return slices.Clone(l.value)
}

// Parent returns the owning node; nil once the leaf is deleted.
func (l *Leaf) Parent() *Node {
	return l.parent
}

// Prev returns the previous sibling in the chain.
func (l *Leaf) Prev() *Leaf {
	return l.prev
}

// Next returns the next sibling in the chain.
func (l *Leaf) Next() *Leaf {
	return l.next
}

// Info returns a snapshot of the leaf.
func (l *Leaf) Info() LeafInfo {
	return LeafInfo{Path: l.path, Value: l.Value()}
}
