// Package vlog implements the append-only value log backing B+ tree leaves.
//
// A record is one line of space-separated tokens and is addressed by the byte
// offset of its first character. Records are never rewritten; a leaf that
// changes appends a fresh line and repoints its offset. Stale lines are
// reclaimed by compacting into a new log and swapping it in.
package vlog

import (
	"bufio"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/btree-query-bench/vlogdb/internal/sys"
)

// InvalidOffset addresses the empty record. It is used for leaves whose
// last append failed.
const InvalidOffset int64 = -1

// Log is an append-only, offset-addressed record file. A Log is owned by a
// single handle at a time and is not safe for concurrent use.
type Log struct {
	path   string
	file   *os.File
	size   int64 // append position
	cache  *lruCache
	logger *zap.Logger
}

// Open opens (or creates) the log at path for appending and takes an
// exclusive lock on it.
func Open(path string, opts ...Option) (*Log, error) {
	return open(path, os.O_RDWR|os.O_CREATE, opts)
}

// Create is like Open but truncates any existing file.
func Create(path string, opts ...Option) (*Log, error) {
	return open(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, opts)
}

func open(path string, flag int, opts []Option) (*Log, error) {
	o := buildOptions(opts)

	// Lock before truncating so a second Create cannot wipe a live log.
	f, err := os.OpenFile(path, flag&^os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "vlog: open %s", path)
	}
	if err := sys.Lock(f); err != nil {
		_ = f.Close()
		if errors.Is(err, sys.ErrWouldBlock) {
			return nil, errors.Wrapf(ErrLocked, "vlog: open %s", path)
		}
		return nil, errors.Wrapf(err, "vlog: lock %s", path)
	}
	if flag&os.O_TRUNC != 0 {
		if err := f.Truncate(0); err != nil {
			_ = sys.Unlock(f)
			_ = f.Close()
			return nil, errors.Wrapf(err, "vlog: truncate %s", path)
		}
	}

	info, err := f.Stat()
	if err != nil {
		_ = sys.Unlock(f)
		_ = f.Close()
		return nil, errors.Wrapf(err, "vlog: stat %s", path)
	}

	o.logger.Debug("value log opened",
		zap.String("path", path),
		zap.Int64("size", info.Size()))

	return &Log{
		path:   path,
		file:   f,
		size:   info.Size(),
		cache:  newLRUCache(o.cacheSize),
		logger: o.logger,
	}, nil
}

// Append writes tokens as one record at the end of the log and returns its
// offset. An empty token list is written as a bare newline.
func (l *Log) Append(tokens []string) (int64, error) {
	if l.file == nil {
		return InvalidOffset, ErrClosed
	}
	line := strings.Join(tokens, " ") + "\n"
	off := l.size
	n, err := l.file.WriteAt([]byte(line), off)
	if err != nil {
		// A short write leaves garbage past size; the next append overwrites it.
		return InvalidOffset, errors.Wrapf(err, "vlog: append at %d", off)
	}
	l.size += int64(n)
	l.cache.put(off, slices.Clone(tokens))
	return off, nil
}

// ReadAt returns the tokens of the record starting at off. InvalidOffset
// yields an empty record.
func (l *Log) ReadAt(off int64) ([]string, error) {
	if off == InvalidOffset {
		return nil, nil
	}
	if l.file == nil {
		return nil, ErrClosed
	}
	if off < 0 || off >= l.size {
		return nil, errors.Wrapf(ErrBadOffset, "vlog: read at %d (size %d)", off, l.size)
	}
	if tokens, ok := l.cache.get(off); ok {
		return slices.Clone(tokens), nil
	}

	r := bufio.NewReader(io.NewSectionReader(l.file, off, l.size-off))
	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrapf(err, "vlog: read at %d", off)
	}
	tokens := strings.Fields(line)
	l.cache.put(off, tokens)
	return slices.Clone(tokens), nil
}

// Swap replaces this log's file with next: next is renamed onto this path,
// its handle adopted and the old file closed. next must not be used
// afterwards. If the rename fails both logs are left as they were.
func (l *Log) Swap(next *Log) error {
	if l.file == nil || next.file == nil {
		return ErrClosed
	}
	if err := next.file.Sync(); err != nil {
		return errors.Wrapf(err, "vlog: sync %s", next.path)
	}
	if err := os.Rename(next.path, l.path); err != nil {
		return errors.Wrapf(err, "vlog: rename %s -> %s", next.path, l.path)
	}

	oldSize := l.size
	if err := l.closeFile(); err != nil {
		// The old file is already unlinked.
		l.logger.Warn("closing replaced value log", zap.String("path", l.path), zap.Error(err))
	}
	l.file = next.file
	l.size = next.size
	next.file = nil
	next.cache.reset()

	l.logger.Info("value log swapped",
		zap.String("path", l.path),
		zap.Int64("old_size", oldSize),
		zap.Int64("new_size", l.size))
	return nil
}

// Rename moves the log file to path, keeping the open handle and its lock.
func (l *Log) Rename(path string) error {
	if l.file == nil {
		return ErrClosed
	}
	if err := os.Rename(l.path, path); err != nil {
		return errors.Wrapf(err, "vlog: rename %s -> %s", l.path, path)
	}
	l.path = path
	return nil
}

// Size returns the number of bytes written to the log.
func (l *Log) Size() int64 { return l.size }

func (l *Log) Path() string { return l.path }

// CachedRecords reports how many decoded records are held in memory.
func (l *Log) CachedRecords() int { return l.cache.len() }

func (l *Log) Sync() error {
	if l.file == nil {
		return ErrClosed
	}
	return errors.Wrapf(l.file.Sync(), "vlog: sync %s", l.path)
}

// Close releases the lock and closes the file. Closing twice is a no-op.
func (l *Log) Close() error {
	if l.file == nil {
		return nil
	}
	return l.closeFile()
}

// Remove closes the log and deletes its file.
func (l *Log) Remove() error {
	err := l.Close()
	if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
		err = errors.CombineErrors(err, errors.Wrapf(rmErr, "vlog: remove %s", l.path))
	}
	return err
}

func (l *Log) closeFile() error {
	f := l.file
	l.file = nil
	l.cache.reset()
	err := sys.Unlock(f)
	if cerr := f.Close(); cerr != nil {
		err = errors.CombineErrors(err, cerr)
	}
	return errors.Wrapf(err, "vlog: close %s", l.path)
}
