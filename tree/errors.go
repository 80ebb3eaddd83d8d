package tree

import "errors"

// Store errors. They are returned wrapped with the offending path; compare
// with errors.Is.
var (
	// ErrInvalidPath is returned for malformed paths and for operations that
	// target the immutable root
	ErrInvalidPath = errors.New("invalid path")
	// ErrPathExists is returned when a create collides with an existing node or leaf
	ErrPathExists = errors.New("path exists")
	// ErrParentNotFound is returned when a create targets a path whose parent
	// node has not been created
	ErrParentNotFound = errors.New("parent not found")
	// ErrNotFound is returned when a lookup target is absent
	ErrNotFound = errors.New("not found")
	// ErrInconsistent signals a broken store invariant. The operation that
	// detected it is aborted before mutating anything.
	ErrInconsistent = errors.New("store inconsistency")
)
