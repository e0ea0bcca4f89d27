package vlog

import "github.com/cockroachdb/errors"

var (
	// ErrLocked is returned by Open and Create when another handle owns the file.
	ErrLocked = errors.New("vlog: log file is locked")
	// ErrBadOffset is returned by ReadAt for offsets outside the file.
	ErrBadOffset = errors.New("vlog: offset out of range")
	ErrClosed    = errors.New("vlog: log is closed")
)
