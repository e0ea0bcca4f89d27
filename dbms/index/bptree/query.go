package bptree

import (
	"github.com/cockroachdb/errors"
)

// Entry is a key with its decoded value.
type Entry[K, V any] struct {
	Key   K
	Value V
}

// Search returns the value stored under key. A missing key, or a key whose
// leaf record was lost to a log failure, reports found == false.
func (t *Tree[K, V]) Search(key K) (value V, found bool, err error) {
	id := t.findLeaf(key)
	if id == nilNode {
		return value, false, nil
	}
	n := t.node(id)
	i := t.lowerBound(n.keys, key)
	if i == len(n.keys) || t.cmp(n.keys[i], key) != 0 {
		return value, false, nil
	}
	tokens, err := t.log.ReadAt(n.offset)
	if err != nil {
		return value, false, err
	}
	if i >= len(tokens) {
		return value, false, nil
	}
	value, err = t.values.Decode(tokens[i])
	if err != nil {
		return value, false, errors.Wrapf(err, "bptree: search")
	}
	return value, true, nil
}

// Contains reports whether key is present without touching the value log.
func (t *Tree[K, V]) Contains(key K) bool {
	id := t.findLeaf(key)
	if id == nilNode {
		return false
	}
	n := t.node(id)
	i := t.lowerBound(n.keys, key)
	return i < len(n.keys) && t.cmp(n.keys[i], key) == 0
}

// leafSpan returns the positions [from, to) of a leaf's keys inside [lo, hi].
func (t *Tree[K, V]) leafSpan(n *node[K], lo, hi K) (int, int) {
	if len(n.keys) > 0 && t.cmp(lo, n.keys[0]) <= 0 && t.cmp(n.keys[len(n.keys)-1], hi) <= 0 {
		return 0, len(n.keys)
	}
	return t.lowerBound(n.keys, lo), t.upperBound(n.keys, hi)
}

// RangeQueryKeys returns the keys in [lo, hi] in ascending order.
func (t *Tree[K, V]) RangeQueryKeys(lo, hi K) []K {
	var out []K
	if t.cmp(lo, hi) > 0 {
		return out
	}
	for id := t.findLeaf(lo); id != nilNode; id = t.nodes[id].next {
		n := t.node(id)
		if len(n.keys) > 0 && t.cmp(n.keys[0], hi) > 0 {
			break
		}
		from, to := t.leafSpan(n, lo, hi)
		if from < to {
			out = append(out, n.keys[from:to]...)
		}
	}
	return out
}

// RangeQuery returns the entries with keys in [lo, hi] in ascending order.
func (t *Tree[K, V]) RangeQuery(lo, hi K) ([]Entry[K, V], error) {
	var out []Entry[K, V]
	if t.cmp(lo, hi) > 0 {
		return out, nil
	}
	for id := t.findLeaf(lo); id != nilNode; id = t.nodes[id].next {
		n := t.node(id)
		if len(n.keys) > 0 && t.cmp(n.keys[0], hi) > 0 {
			break
		}
		from, to := t.leafSpan(n, lo, hi)
		if from >= to {
			continue
		}
		entries, err := t.leafEntries(id, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// leafEntries pairs keys[from:to] of a leaf with their decoded values. Keys
// past the end of a short record are skipped.
func (t *Tree[K, V]) leafEntries(id nodeID, from, to int) ([]Entry[K, V], error) {
	n := t.node(id)
	tokens, err := t.log.ReadAt(n.offset)
	if err != nil {
		return nil, err
	}
	to = min(to, len(tokens))
	out := make([]Entry[K, V], 0, max(to-from, 0))
	for i := from; i < to; i++ {
		v, err := t.values.Decode(tokens[i])
		if err != nil {
			return nil, errors.Wrapf(err, "bptree: leaf %d slot %d", id, i)
		}
		out = append(out, Entry[K, V]{Key: n.keys[i], Value: v})
	}
	return out, nil
}

// GetAllKeys returns every key in ascending order.
func (t *Tree[K, V]) GetAllKeys() []K {
	out := make([]K, 0, t.count)
	for id := t.leftmostLeaf(t.root); id != nilNode; id = t.nodes[id].next {
		out = append(out, t.nodes[id].keys...)
	}
	return out
}

// GetAllValues returns every value in key order. This is the order Compact
// expects its input in.
func (t *Tree[K, V]) GetAllValues() ([]V, error) {
	out := make([]V, 0, t.count)
	for id := t.leftmostLeaf(t.root); id != nilNode; id = t.nodes[id].next {
		tokens, err := t.log.ReadAt(t.nodes[id].offset)
		if err != nil {
			return nil, err
		}
		for i, tok := range tokens {
			v, err := t.values.Decode(tok)
			if err != nil {
				return nil, errors.Wrapf(err, "bptree: leaf %d slot %d", id, i)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// Scan returns every entry in key order.
func (t *Tree[K, V]) Scan() ([]Entry[K, V], error) {
	out := make([]Entry[K, V], 0, t.count)
	for id := t.leftmostLeaf(t.root); id != nilNode; id = t.nodes[id].next {
		entries, err := t.leafEntries(id, 0, len(t.nodes[id].keys))
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

func (t *Tree[K, V]) Min() (K, bool) {
	return t.smallest(t.root)
}

func (t *Tree[K, V]) Max() (K, bool) {
	id := t.rightmostLeaf(t.root)
	if id == nilNode || len(t.nodes[id].keys) == 0 {
		var zero K
		return zero, false
	}
	keys := t.nodes[id].keys
	return keys[len(keys)-1], true
}
