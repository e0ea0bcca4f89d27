// Package lsm wraps Pebble (CockroachDB's LSM storage engine) behind the
// common Index interface so it can serve as the reference index for the
// B+ tree in benchmarks and differential tests.
package lsm

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/btree-query-bench/vlogdb/dbms/index"
)

var _ index.Index[int64, string] = (*LSM)(nil)

type LSM struct {
	db     *pebble.DB
	logger *zap.Logger
}

// Open opens (or creates) a Pebble database at the given directory path.
func Open(dir string, logger *zap.Logger) (*LSM, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := &pebble.Options{
		MemTableSize: 16 << 20,
		// Keep several memtables so one can be flushed while another is active.
		MemTableStopWritesThreshold: 4,
		L0CompactionThreshold:       4,
		L0StopWritesThreshold:       12,
	}

	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "lsm: open %s", dir)
	}
	logger.Debug("pebble opened", zap.String("dir", dir))
	return &LSM{db: db, logger: logger}, nil
}

// Close cleanly shuts down Pebble, flushing any in-memory state.
func (l *LSM) Close() error {
	return errors.Wrap(l.db.Close(), "lsm: close")
}

// Insert inserts or updates the value for key.
func (l *LSM) Insert(key int64, value string) error {
	return errors.Wrap(l.db.Set(encodeKey(key), []byte(value), pebble.NoSync), "lsm: set")
}

func (l *LSM) Get(key int64) (string, bool, error) {
	val, closer, err := l.db.Get(encodeKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "lsm: get")
	}
	// val is only valid until closer.Close(); string() copies it.
	result := string(val)
	_ = closer.Close()
	return result, true, nil
}

// Delete removes the key from the store.
func (l *LSM) Delete(key int64) error {
	return errors.Wrap(l.db.Delete(encodeKey(key), pebble.NoSync), "lsm: delete")
}

// Range returns an iterator over all keys in [start, end] inclusive.
func (l *LSM) Range(start, end int64) (index.Iterator[int64, string], error) {
	if start > end {
		return &rangeIterator{}, nil
	}
	iterOpts := &pebble.IterOptions{LowerBound: encodeKey(start)}
	if end < maxKey {
		iterOpts.UpperBound = encodeKey(end + 1)
	}
	iter, err := l.db.NewIter(iterOpts)
	if err != nil {
		return nil, errors.Wrap(err, "lsm: range")
	}
	iter.First()
	return &rangeIterator{iter: iter, first: true}, nil
}

// ─── Key encoding ─────────────────────────────────────────────────────────────

const maxKey = int64(^uint64(0) >> 1)

// encodeKey encodes an int64 as a big-endian 8-byte slice with the sign bit
// flipped, so byte order matches signed integer order.
func encodeKey(k int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(k)^(1<<63))
	return b
}

func decodeKey(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b) ^ (1 << 63))
}

// ─── Range Iterator ───────────────────────────────────────────────────────────

type rangeIterator struct {
	iter  *pebble.Iterator
	first bool
	key   int64
	val   string
	err   error
}

func (it *rangeIterator) Next() bool {
	if it.iter == nil {
		return false
	}
	var valid bool
	if it.first {
		// iter.First() was already called in Range(); just check validity.
		it.first = false
		valid = it.iter.Valid()
	} else {
		valid = it.iter.Next()
	}
	if !valid {
		return false
	}
	k := it.iter.Key()
	if len(k) != 8 {
		it.err = errors.Newf("lsm: unexpected key length %d", len(k))
		return false
	}
	it.key = decodeKey(k)
	it.val = string(it.iter.Value())
	return true
}

func (it *rangeIterator) Key() int64    { return it.key }
func (it *rangeIterator) Value() string { return it.val }
func (it *rangeIterator) Error() error  { return it.err }

func (it *rangeIterator) Close() error {
	if it.iter == nil {
		return nil
	}
	return it.iter.Close()
}
