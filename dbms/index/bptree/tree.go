// Package bptree implements a generic B+ tree whose leaves keep their values
// in an append-only value log.
//
// Internal nodes store only separator keys and child IDs. keys[i] of an
// internal node equals the minimum key reachable through children[i+1].
// Each leaf stores its keys in memory and points at one value log record
// holding its values, positionally aligned with the keys. Any change to a
// leaf appends a fresh record; Compact reclaims the garbage.
//
// Tree shape and leaf offsets are persisted with Save and restored by Open
// through a level-order snapshot file. A Tree is not safe for concurrent
// use, and iterators are invalidated by any mutation.
package bptree

import (
	"cmp"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/btree-query-bench/vlogdb/dbms/codec"
	"github.com/btree-query-bench/vlogdb/dbms/vlog"
)

const (
	DefaultDegree = 3
	MinDegree     = 2

	logSuffix      = ".vlog"
	snapshotSuffix = ".snap"
)

// Config describes one tree and its files.
type Config[K, V any] struct {
	Dir  string
	Name string // base name of the .vlog and .snap files
	// Degree is the minimum degree t: non-root nodes hold [t-1, 2t-1] keys.
	Degree     int
	KeyCodec   codec.Codec[K]
	ValueCodec codec.Codec[V]
	Compare    func(a, b K) int
	CacheSize  int // value log records kept decoded in memory
	Logger     *zap.Logger
}

// DefaultConfig returns a config for naturally ordered keys.
func DefaultConfig[K cmp.Ordered, V any](dir, name string, keys codec.Codec[K], values codec.Codec[V]) Config[K, V] {
	return Config[K, V]{
		Dir:        dir,
		Name:       name,
		Degree:     DefaultDegree,
		KeyCodec:   keys,
		ValueCodec: values,
		Compare:    cmp.Compare[K],
		CacheSize:  vlog.DefaultCacheSize,
	}
}

func (c Config[K, V]) validate() error {
	switch {
	case c.Name == "":
		return errors.New("bptree: config: empty name")
	case c.Degree < MinDegree:
		return errors.Newf("bptree: config: degree %d below %d", c.Degree, MinDegree)
	case c.KeyCodec == nil || c.ValueCodec == nil:
		return errors.New("bptree: config: missing codec")
	case c.Compare == nil:
		return errors.New("bptree: config: missing compare")
	}
	return nil
}

type Tree[K, V any] struct {
	degree   int
	keys     codec.Codec[K]
	values   codec.Codec[V]
	cmp      func(a, b K) int
	logger   *zap.Logger
	log      *vlog.Log
	snapPath string
	logOpts  []vlog.Option

	root  nodeID
	nodes []node[K]
	free  []nodeID
	count int

	pending error // I/O failures of the running mutation
}

// Open opens the tree's value log and restores its shape from the snapshot,
// if one exists.
func Open[K, V any](cfg Config[K, V]) (*Tree[K, V], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "bptree: mkdir %s", cfg.Dir)
		}
	}
	logger := cfg.Logger.With(zap.String("tree", cfg.Name))
	base := filepath.Join(cfg.Dir, cfg.Name)
	logOpts := []vlog.Option{vlog.WithLogger(logger), vlog.WithCacheSize(cfg.CacheSize)}

	l, err := vlog.Open(base+logSuffix, logOpts...)
	if err != nil {
		return nil, err
	}
	t := &Tree[K, V]{
		degree:   cfg.Degree,
		keys:     cfg.KeyCodec,
		values:   cfg.ValueCodec,
		cmp:      cfg.Compare,
		logger:   logger,
		log:      l,
		snapPath: base + snapshotSuffix,
		logOpts:  logOpts,
		root:     nilNode,
	}
	if err := t.Load(); err != nil {
		_ = l.Close()
		return nil, err
	}
	return t, nil
}

func (t *Tree[K, V]) maxKeys() int { return 2*t.degree - 1 }

// Degree returns the minimum degree t.
func (t *Tree[K, V]) Degree() int { return t.degree }

// Len returns the number of keys in the tree.
func (t *Tree[K, V]) Len() int { return t.count }

func (t *Tree[K, V]) Empty() bool { return t.root == nilNode }

func (t *Tree[K, V]) LogPath() string { return t.log.Path() }

func (t *Tree[K, V]) SnapshotPath() string { return t.snapPath }

// Close closes the value log. It does not write a snapshot.
func (t *Tree[K, V]) Close() error {
	return t.log.Close()
}
