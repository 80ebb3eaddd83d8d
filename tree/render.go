package tree

import (
	"github.com/xlab/treeprint"
)

// Render returns an indented dump of n's subtree. Sub-nodes are listed
// before leaves at every level, both in their stored order, so the output is
// deterministic for a given tree shape. Leaves are shown as "path = value".
func Render(n *Node) string {
	tree := treeprint.NewWithRoot(n.path)
	addBranch(tree, n)
	return tree.String()
}

// Render dumps the whole store starting at the root.
func (s *Store) Render() string {
	return Render(s.root)
}

func addBranch(tree treeprint.Tree, n *Node) {
	for _, child := range n.children {
		addBranch(tree.AddBranch(child.path), child)
	}
	for l := n.head; l != nil; l = l.next {
		tree.AddNode(leafLabel(l))
	}
}

func leafLabel(l *Leaf) string {
	return l.path + " = " + string(l.value)
}
