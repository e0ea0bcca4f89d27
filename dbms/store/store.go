// Package store manages a directory of tables on top of the B+ tree index.
//
// Each table keeps three files: <name>.vlog and <name>.snap for its key
// index, and <name>.rows for row data. Operations are journaled until the
// store runs a GC, which compacts every open table, snapshots it and clears
// the journal. Open replays whatever the journal still holds.
package store

import (
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/btree-query-bench/vlogdb/dbms/index/bptree"
	"github.com/btree-query-bench/vlogdb/dbms/vlog"
)

const journalName = "journal.log"

// Config configures a Store.
type Config struct {
	Dir string
	// Degree is the minimum degree of every table index.
	Degree int
	// GCThreshold is the number of operations between GCs.
	GCThreshold int
	CacheSize   int
	Logger      *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:         dir,
		Degree:      bptree.DefaultDegree,
		GCThreshold: 5000,
		CacheSize:   vlog.DefaultCacheSize,
	}
}

// Store owns the tables of one directory, the operation journal and the
// counter that triggers GC. It is not safe for concurrent use.
type Store struct {
	cfg     Config
	tables  map[string]*Table
	journal *Journal
	ops     int
	logger  *zap.Logger
}

// Open opens the store in cfg.Dir and replays its journal.
func Open(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.GCThreshold <= 0 {
		cfg.GCThreshold = DefaultConfig(cfg.Dir).GCThreshold
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "store: mkdir %s", cfg.Dir)
	}

	path := filepath.Join(cfg.Dir, journalName)
	ops, err := RecoverJournal(path)
	if err != nil {
		return nil, err
	}
	journal, err := OpenJournal(path)
	if err != nil {
		return nil, err
	}
	s := &Store{
		cfg:     cfg,
		tables:  make(map[string]*Table),
		journal: journal,
		logger:  cfg.Logger,
	}

	if len(ops) > 0 {
		if err := s.replay(ops); err != nil {
			return nil, errors.CombineErrors(err, s.closeAll())
		}
		if err := s.GC(); err != nil {
			return nil, errors.CombineErrors(err, s.closeAll())
		}
	}
	return s, nil
}

// replay applies recovered ops without journaling them. Ops that conflict
// with the loaded state were already persisted before the crash and are
// skipped.
func (s *Store) replay(ops []Op) error {
	skipped := 0
	for _, op := range ops {
		err := s.apply(op)
		switch {
		case err == nil:
		case errors.Is(err, ErrDuplicateKey), errors.Is(err, ErrKeyNotFound):
			skipped++
		default:
			return errors.Wrapf(err, "store: replay %s %s", op.Kind, op.Table)
		}
	}
	s.logger.Info("journal replayed",
		zap.Int("ops", len(ops)),
		zap.Int("skipped", skipped))
	return nil
}

func (s *Store) apply(op Op) error {
	tb, err := s.Table(op.Table)
	if err != nil {
		return err
	}
	switch op.Kind {
	case OpInsert:
		return tb.Insert(op.Key, op.Row)
	case OpDelete:
		return tb.Delete(op.Key)
	}
	return errors.Wrapf(ErrUnknownOp, "%q", op.Kind)
}

// Table returns the named table, opening or creating it on first use.
func (s *Store) Table(name string) (*Table, error) {
	if s.journal == nil {
		return nil, ErrClosed
	}
	if tb, ok := s.tables[name]; ok {
		return tb, nil
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	tb, err := openTable(s.cfg, name)
	if err != nil {
		return nil, err
	}
	s.tables[name] = tb
	return tb, nil
}

// Tables lists every table in the store directory, open or not.
func (s *Store) Tables() ([]string, error) {
	names := make(map[string]struct{}, len(s.tables))
	for name := range s.tables {
		names[name] = struct{}{}
	}
	matches, err := filepath.Glob(filepath.Join(s.cfg.Dir, "*"+rowsSuffix))
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		names[strings.TrimSuffix(filepath.Base(m), rowsSuffix)] = struct{}{}
	}
	return slices.Sorted(maps.Keys(names)), nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		filepath.Base(name) != name || strings.ContainsFunc(name, isSpace) {
		return errors.Wrapf(ErrBadTableName, "%q", name)
	}
	return nil
}

func isSpace(r rune) bool { return strings.ContainsRune(" \t\r\n\v\f", r) }

// Insert adds row under key to the named table.
func (s *Store) Insert(table string, key, row []string) error {
	tb, err := s.Table(table)
	if err != nil {
		return err
	}
	if err := tb.Insert(key, row); err != nil {
		return err
	}
	return s.record(Op{Kind: OpInsert, Table: table, Key: key, Row: row})
}

// Delete removes the row stored under key from the named table.
func (s *Store) Delete(table string, key []string) error {
	tb, err := s.Table(table)
	if err != nil {
		return err
	}
	if err := tb.Delete(key); err != nil {
		return err
	}
	return s.record(Op{Kind: OpDelete, Table: table, Key: key})
}

// record counts a successful op and either journals it or, once the
// threshold is reached, runs a GC that makes it durable.
func (s *Store) record(op Op) error {
	s.ops++
	if s.ops >= s.cfg.GCThreshold {
		return s.GC()
	}
	return s.journal.Append(op)
}

// Pending returns the number of operations since the last GC.
func (s *Store) Pending() int { return s.ops }

// GC compacts and snapshots every open table, then clears the journal.
func (s *Store) GC() error {
	if s.journal == nil {
		return ErrClosed
	}
	var errs error
	for _, name := range slices.Sorted(maps.Keys(s.tables)) {
		if err := s.tables[name].GC(); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	if errs != nil {
		return errs
	}
	if err := s.journal.Reset(); err != nil {
		return err
	}
	s.logger.Info("gc complete",
		zap.Int("tables", len(s.tables)),
		zap.Int("ops", s.ops))
	s.ops = 0
	return nil
}

// Close runs a final GC and closes every table.
func (s *Store) Close() error {
	if s.journal == nil {
		return nil
	}
	err := s.GC()
	return errors.CombineErrors(err, s.closeAll())
}

// closeAll releases every file without persisting anything.
func (s *Store) closeAll() error {
	var errs error
	for _, tb := range s.tables {
		errs = errors.CombineErrors(errs, tb.Close())
	}
	s.tables = make(map[string]*Table)
	if s.journal != nil {
		errs = errors.CombineErrors(errs, s.journal.Close())
		s.journal = nil
	}
	return errs
}
