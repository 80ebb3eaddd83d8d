// Package paths parses and validates the slash-delimited absolute paths that
// address nodes and leaves in the tree.
package paths

import "strings"

// Root is the path of the tree's root node.
const Root = "/"

// Separator between path segments.
const Separator = '/'

// IsValid reports whether p is a canonical absolute path: non-empty, starting
// with "/", without a trailing "/" (except the root itself) and without empty
// segments.
func IsValid(p string) bool {
	if p == "" || p[0] != Separator {
		return false
	}
	if p == Root {
		return true
	}
	if p[len(p)-1] == Separator {
		return false
	}
	return !strings.Contains(p, "//")
}

// IsMutable reports whether p can be the target of a create or delete.
// The root is valid but immutable.
func IsMutable(p string) bool {
	return p != Root && IsValid(p)
}

// Parent returns everything before the last "/" of p, or "/" when that slash
// is the leading one. It returns "" for the root and for strings without a
// slash, which have no parent.
func Parent(p string) string {
	if p == Root {
		return ""
	}
	i := strings.LastIndexByte(p, Separator)
	switch {
	case i < 0:
		return ""
	case i == 0:
		return Root
	default:
		return p[:i]
	}
}

// Base returns the final segment of p, the text after its last "/".
func Base(p string) string {
	i := strings.LastIndexByte(p, Separator)
	return p[i+1:]
}

// Join appends segment to parent.
func Join(parent, segment string) string {
	if parent == Root {
		return Root + segment
	}
	return parent + string(Separator) + segment
}

// Depth returns the number of segments in p; the root has depth 0.
func Depth(p string) int {
	if p == Root || p == "" {
		return 0
	}
	return strings.Count(p, string(Separator))
}
