package bptree

import (
	"github.com/cockroachdb/errors"

	"github.com/btree-query-bench/vlogdb/dbms/index"
)

var _ index.Index[int64, int64] = (*Tree[int64, int64])(nil)

// Get is Search under the index.Index name.
func (t *Tree[K, V]) Get(key K) (V, bool, error) {
	return t.Search(key)
}

// Delete is Remove under the index.Index name.
func (t *Tree[K, V]) Delete(key K) error {
	return t.Remove(key)
}

// Range returns a lazy iterator over [start, end] that follows the leaf
// chain and reads each leaf's record once.
func (t *Tree[K, V]) Range(start, end K) (index.Iterator[K, V], error) {
	it := &rangeIterator[K, V]{t: t, end: end, curr: nilNode}
	if t.cmp(start, end) <= 0 {
		it.curr = t.findLeaf(start)
		if it.curr != nilNode {
			it.i = t.lowerBound(t.nodes[it.curr].keys, start)
		}
	}
	return it, nil
}

type rangeIterator[K, V any] struct {
	t      *Tree[K, V]
	curr   nodeID
	i      int
	end    K
	tokens []string
	loaded bool
	key    K
	val    V
	err    error
}

func (it *rangeIterator[K, V]) Next() bool {
	t := it.t
	for it.curr != nilNode && it.err == nil {
		n := t.node(it.curr)
		if it.i < len(n.keys) {
			k := n.keys[it.i]
			if t.cmp(k, it.end) > 0 {
				it.curr = nilNode
				return false
			}
			if !it.loaded {
				it.tokens, it.err = t.log.ReadAt(n.offset)
				if it.err != nil {
					return false
				}
				it.loaded = true
			}
			if it.i < len(it.tokens) {
				v, err := t.values.Decode(it.tokens[it.i])
				if err != nil {
					it.err = errors.Wrapf(err, "bptree: leaf %d slot %d", it.curr, it.i)
					return false
				}
				it.key, it.val = k, v
				it.i++
				return true
			}
			it.i++
			continue
		}
		// Follow the leaf chain
		it.curr = n.next
		it.i = 0
		it.tokens, it.loaded = nil, false
	}
	return false
}

func (it *rangeIterator[K, V]) Key() K       { return it.key }
func (it *rangeIterator[K, V]) Value() V     { return it.val }
func (it *rangeIterator[K, V]) Error() error { return it.err }

func (it *rangeIterator[K, V]) Close() error {
	it.curr = nilNode
	it.tokens = nil
	return nil
}
