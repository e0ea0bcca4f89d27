package bptree

import "github.com/cockroachdb/errors"

var (
	// ErrCompactMismatch is returned by Compact when the number of values
	// differs from the number of keys.
	ErrCompactMismatch   = errors.New("bptree: compaction input does not match key count")
	ErrMalformedSnapshot = errors.New("bptree: malformed snapshot")
	// ErrInvariant is returned by Check for a structurally broken tree.
	ErrInvariant = errors.New("bptree: invariant violated")
)
