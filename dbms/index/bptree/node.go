package bptree

import (
	"slices"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/btree-query-bench/vlogdb/dbms/vlog"
)

// nodeID addresses a node in the tree's arena. IDs stay stable for the
// lifetime of a node; a released ID may be handed out again.
type nodeID int32

const nilNode nodeID = -1

type node[K any] struct {
	leaf     bool
	keys     []K
	children []nodeID // internal only, len(keys)+1
	next     nodeID   // leaf only, next leaf in key order
	offset   int64    // leaf only, value log record aligned with keys
}

// ─── Arena ────────────────────────────────────────────────────────────────────

// node returns a pointer into the arena. It is invalidated by alloc.
func (t *Tree[K, V]) node(id nodeID) *node[K] {
	return &t.nodes[id]
}

func (t *Tree[K, V]) alloc(leaf bool) nodeID {
	n := node[K]{leaf: leaf, next: nilNode, offset: vlog.InvalidOffset}
	if k := len(t.free); k > 0 {
		id := t.free[k-1]
		t.free = t.free[:k-1]
		t.nodes[id] = n
		return id
	}
	t.nodes = append(t.nodes, n)
	return nodeID(len(t.nodes) - 1)
}

func (t *Tree[K, V]) release(id nodeID) {
	t.nodes[id] = node[K]{next: nilNode, offset: vlog.InvalidOffset}
	t.free = append(t.free, id)
}

func (t *Tree[K, V]) resetArena() {
	t.nodes = t.nodes[:0]
	t.free = t.free[:0]
	t.root = nilNode
	t.count = 0
}

// ─── Key search ───────────────────────────────────────────────────────────────

// lowerBound returns the first position with keys[i] >= key.
func (t *Tree[K, V]) lowerBound(keys []K, key K) int {
	i, _ := slices.BinarySearchFunc(keys, key, t.cmp)
	return i
}

// upperBound returns the first position with keys[i] > key.
func (t *Tree[K, V]) upperBound(keys []K, key K) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		m := int(uint(lo+hi) >> 1)
		if t.cmp(keys[m], key) <= 0 {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return lo
}

// findLeaf descends to the leaf whose key range covers key. Separators equal
// the minimum of their right subtree, so an exact match goes right.
func (t *Tree[K, V]) findLeaf(key K) nodeID {
	id := t.root
	for id != nilNode && !t.nodes[id].leaf {
		n := &t.nodes[id]
		id = n.children[t.upperBound(n.keys, key)]
	}
	return id
}

func (t *Tree[K, V]) leftmostLeaf(id nodeID) nodeID {
	for id != nilNode && !t.nodes[id].leaf {
		id = t.nodes[id].children[0]
	}
	return id
}

func (t *Tree[K, V]) rightmostLeaf(id nodeID) nodeID {
	for id != nilNode && !t.nodes[id].leaf {
		c := t.nodes[id].children
		id = c[len(c)-1]
	}
	return id
}

// smallest returns the minimum key reachable from id.
func (t *Tree[K, V]) smallest(id nodeID) (K, bool) {
	leaf := t.leftmostLeaf(id)
	if leaf == nilNode || len(t.nodes[leaf].keys) == 0 {
		var zero K
		return zero, false
	}
	return t.nodes[leaf].keys[0], true
}

// ─── Leaf value lines ─────────────────────────────────────────────────────────

// readLine returns the leaf's value tokens. Failures are recorded for the
// running mutation and read as an empty record.
func (t *Tree[K, V]) readLine(id nodeID) []string {
	off := t.nodes[id].offset
	tokens, err := t.log.ReadAt(off)
	if err != nil {
		t.logger.Warn("value log read failed",
			zap.Int32("node", int32(id)),
			zap.Int64("offset", off),
			zap.Error(err))
		t.pending = errors.CombineErrors(t.pending, err)
		return nil
	}
	return tokens
}

// writeLine appends tokens as the leaf's new record and repoints its offset.
// On failure the leaf is left at InvalidOffset.
func (t *Tree[K, V]) writeLine(id nodeID, tokens []string) {
	off, err := t.log.Append(tokens)
	if err != nil {
		t.logger.Warn("value log append failed",
			zap.Int32("node", int32(id)),
			zap.Int("tokens", len(tokens)),
			zap.Error(err))
		t.pending = errors.CombineErrors(t.pending, err)
		off = vlog.InvalidOffset
	}
	t.nodes[id].offset = off
}

// takePending returns and clears the I/O errors recorded by the last mutation.
func (t *Tree[K, V]) takePending() error {
	err := t.pending
	t.pending = nil
	return err
}
