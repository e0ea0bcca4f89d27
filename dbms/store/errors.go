package store

import "github.com/cockroachdb/errors"

var (
	// ErrDuplicateKey is returned when inserting a primary key that already exists.
	ErrDuplicateKey = errors.New("store: duplicate primary key")

	// ErrKeyNotFound is returned when deleting a record that does not exist.
	ErrKeyNotFound = errors.New("store: record does not exist")

	// ErrUnknownOp is returned for a journal line with an unrecognized operation.
	ErrUnknownOp = errors.New("store: unknown journal operation")

	// ErrBadTableName is returned for names that cannot be used as file names.
	ErrBadTableName = errors.New("store: invalid table name")

	// ErrEmptyKey is returned for a primary key with no columns.
	ErrEmptyKey = errors.New("store: empty primary key")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store: closed")
)
