package store

import (
	"path/filepath"
	"slices"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/btree-query-bench/vlogdb/dbms/codec"
	"github.com/btree-query-bench/vlogdb/dbms/index/bptree"
	"github.com/btree-query-bench/vlogdb/dbms/vlog"
)

const (
	rowsSuffix    = ".rows"
	compactSuffix = ".compact"
)

// Row is a primary key with its stored column values.
type Row struct {
	Key    []string
	Values []string
}

// Table maps composite primary keys to rows. The index tree stores, for
// each key, the offset of the row in the table's row log.
type Table struct {
	name     string
	index    *bptree.Tree[[]string, int64]
	rows     *vlog.Log
	rowsPath string
	logOpts  []vlog.Option
	logger   *zap.Logger
}

func openTable(cfg Config, name string) (*Table, error) {
	logger := cfg.Logger.With(zap.String("table", name))
	tree, err := bptree.Open(bptree.Config[[]string, int64]{
		Dir:        cfg.Dir,
		Name:       name,
		Degree:     cfg.Degree,
		KeyCodec:   codec.Tuple,
		ValueCodec: codec.Int64{},
		Compare:    slices.Compare[[]string],
		CacheSize:  cfg.CacheSize,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	logOpts := []vlog.Option{vlog.WithLogger(logger), vlog.WithCacheSize(cfg.CacheSize)}
	rowsPath := filepath.Join(cfg.Dir, name+rowsSuffix)
	rows, err := vlog.Open(rowsPath, logOpts...)
	if err != nil {
		return nil, errors.CombineErrors(err, tree.Close())
	}
	return &Table{
		name:     name,
		index:    tree,
		rows:     rows,
		rowsPath: rowsPath,
		logOpts:  logOpts,
		logger:   logger,
	}, nil
}

func (tb *Table) Name() string { return tb.name }

// Len returns the number of rows.
func (tb *Table) Len() int { return tb.index.Len() }

// Insert stores row under key, which must not exist yet.
func (tb *Table) Insert(key, row []string) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if tb.index.Contains(key) {
		return errors.Wrapf(ErrDuplicateKey, "table %s key %v", tb.name, key)
	}
	off, err := tb.rows.Append(encodeRow(row))
	if err != nil {
		return errors.Wrapf(err, "store: table %s insert", tb.name)
	}
	return tb.index.Insert(slices.Clone(key), off)
}

// Delete removes the row stored under key.
func (tb *Table) Delete(key []string) error {
	if !tb.index.Contains(key) {
		return errors.Wrapf(ErrKeyNotFound, "table %s key %v", tb.name, key)
	}
	return tb.index.Remove(key)
}

// Get returns the row values stored under key.
func (tb *Table) Get(key []string) ([]string, bool, error) {
	off, ok, err := tb.index.Search(key)
	if err != nil || !ok {
		return nil, false, err
	}
	values, err := tb.readRow(off)
	if err != nil {
		return nil, false, err
	}
	return values, true, nil
}

// Range returns the rows with keys in [lo, hi] in key order.
func (tb *Table) Range(lo, hi []string) ([]Row, error) {
	entries, err := tb.index.RangeQuery(lo, hi)
	if err != nil {
		return nil, err
	}
	return tb.materialize(entries)
}

// Scan returns every row in key order.
func (tb *Table) Scan() ([]Row, error) {
	entries, err := tb.index.Scan()
	if err != nil {
		return nil, err
	}
	return tb.materialize(entries)
}

func (tb *Table) Min() ([]string, bool) { return tb.index.Min() }

func (tb *Table) Max() ([]string, bool) { return tb.index.Max() }

// Index exposes the key index for inspection.
func (tb *Table) Index() *bptree.Tree[[]string, int64] { return tb.index }

func (tb *Table) materialize(entries []bptree.Entry[[]string, int64]) ([]Row, error) {
	out := make([]Row, 0, len(entries))
	for _, e := range entries {
		values, err := tb.readRow(e.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, Row{Key: e.Key, Values: values})
	}
	return out, nil
}

func (tb *Table) readRow(off int64) ([]string, error) {
	tokens, err := tb.rows.ReadAt(off)
	if err != nil {
		return nil, errors.Wrapf(err, "store: table %s row at %d", tb.name, off)
	}
	return decodeRow(tokens)
}

// GC copies the live rows into a fresh row log, compacts the index with the
// new row offsets, swaps the row log in and snapshots the index.
func (tb *Table) GC() error {
	if err := tb.settleRows(); err != nil {
		return err
	}
	entries, err := tb.index.Scan()
	if err != nil {
		return errors.Wrapf(err, "store: table %s gc", tb.name)
	}
	oldSize := tb.rows.Size()

	next, err := vlog.Create(tb.rowsPath+compactSuffix, tb.logOpts...)
	if err != nil {
		return errors.Wrapf(err, "store: table %s gc", tb.name)
	}
	offsets := make([]int64, 0, len(entries))
	for _, e := range entries {
		tokens, err := tb.rows.ReadAt(e.Value)
		if err == nil {
			var off int64
			off, err = next.Append(tokens)
			offsets = append(offsets, off)
		}
		if err != nil {
			return errors.CombineErrors(errors.Wrapf(err, "store: table %s gc", tb.name), next.Remove())
		}
	}

	if err := tb.index.Compact(offsets); err != nil {
		return errors.CombineErrors(err, next.Remove())
	}
	if err := tb.rows.Swap(next); err != nil {
		// The index already points into next. Read rows from it until
		// settleRows moves it into place.
		tb.logger.Warn("row log swap failed, serving from compacted log",
			zap.String("path", next.Path()),
			zap.Error(err))
		old := tb.rows
		tb.rows = next
		return errors.CombineErrors(errors.Wrapf(err, "store: table %s gc", tb.name), old.Close())
	}
	if err := tb.index.Save(); err != nil {
		return err
	}

	tb.logger.Info("table compacted",
		zap.Int("rows", len(entries)),
		zap.Int64("old_bytes", oldSize),
		zap.Int64("new_bytes", tb.rows.Size()))
	return nil
}

// settleRows moves a row log left under its compaction name by a failed
// swap back onto the table's row path.
func (tb *Table) settleRows() error {
	if tb.rows.Path() == tb.rowsPath {
		return nil
	}
	if err := tb.rows.Rename(tb.rowsPath); err != nil {
		return errors.Wrapf(err, "store: table %s", tb.name)
	}
	tb.logger.Info("row log moved into place", zap.String("path", tb.rowsPath))
	return nil
}

// Save snapshots the index without compacting.
func (tb *Table) Save() error {
	if err := tb.settleRows(); err != nil {
		return err
	}
	return tb.index.Save()
}

func (tb *Table) Close() error {
	err := tb.settleRows()
	err = errors.CombineErrors(err, tb.index.Close())
	return errors.CombineErrors(err, tb.rows.Close())
}
