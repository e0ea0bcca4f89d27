// Package sys wraps the platform calls the storage layer needs.
package sys

import "github.com/cockroachdb/errors"

// ErrWouldBlock is returned by Lock when another handle holds the lock.
var ErrWouldBlock = errors.New("sys: file is locked by another handle")
