package bptree

import (
	"github.com/cockroachdb/errors"
)

// Check walks the whole tree and verifies its structural invariants:
//
//   - every non-root node holds [t-1, 2t-1] keys, the root at least one
//   - an internal node with k keys has k+1 children
//   - keys ascend strictly within a node and across the tree
//   - separators bound their children: max(left) < sep <= min(right)
//   - all leaves sit at the same depth
//   - the leaf chain visits exactly the leaves in key order
//   - each leaf record holds one value per key
//
// It returns an error wrapping ErrInvariant for the first violation found.
func (t *Tree[K, V]) Check() error {
	if t.root == nilNode {
		if t.count != 0 {
			return errors.Wrapf(ErrInvariant, "empty tree counts %d keys", t.count)
		}
		return nil
	}
	c := checker[K, V]{t: t, leafDepth: -1}
	if err := c.visit(t.root, 0, nil, nil); err != nil {
		return err
	}
	if c.keys != t.count {
		return errors.Wrapf(ErrInvariant, "tree counts %d keys, found %d", t.count, c.keys)
	}

	id := t.leftmostLeaf(t.root)
	for i, want := range c.leaves {
		if id != want {
			return errors.Wrapf(ErrInvariant, "leaf chain position %d: node %d, want %d", i, id, want)
		}
		id = t.nodes[id].next
	}
	if id != nilNode {
		return errors.Wrapf(ErrInvariant, "leaf chain continues past last leaf to node %d", id)
	}
	return nil
}

type checker[K, V any] struct {
	t         *Tree[K, V]
	leafDepth int
	leaves    []nodeID
	keys      int
	last      *K
}

// visit checks the subtree at id, whose keys must lie in [lo, hi).
func (c *checker[K, V]) visit(id nodeID, depth int, lo, hi *K) error {
	t := c.t
	n := t.node(id)
	nk := len(n.keys)

	if nk > t.maxKeys() {
		return errors.Wrapf(ErrInvariant, "node %d holds %d keys, max %d", id, nk, t.maxKeys())
	}
	if id != t.root && nk < t.degree-1 {
		return errors.Wrapf(ErrInvariant, "node %d holds %d keys, min %d", id, nk, t.degree-1)
	}
	if nk == 0 {
		return errors.Wrapf(ErrInvariant, "node %d is empty", id)
	}
	for i, k := range n.keys {
		if i > 0 && t.cmp(n.keys[i-1], k) >= 0 {
			return errors.Wrapf(ErrInvariant, "node %d keys not ascending at %d", id, i)
		}
		if lo != nil && t.cmp(k, *lo) < 0 {
			return errors.Wrapf(ErrInvariant, "node %d key %d below its separator", id, i)
		}
		if hi != nil && t.cmp(k, *hi) >= 0 {
			return errors.Wrapf(ErrInvariant, "node %d key %d not below its separator", id, i)
		}
	}

	if n.leaf {
		if c.leafDepth < 0 {
			c.leafDepth = depth
		} else if depth != c.leafDepth {
			return errors.Wrapf(ErrInvariant, "leaf %d at depth %d, others at %d", id, depth, c.leafDepth)
		}
		if c.last != nil && t.cmp(*c.last, n.keys[0]) >= 0 {
			return errors.Wrapf(ErrInvariant, "leaf %d overlaps its predecessor", id)
		}
		tokens, err := t.log.ReadAt(n.offset)
		if err != nil {
			return errors.CombineErrors(errors.Wrapf(ErrInvariant, "leaf %d record unreadable", id), err)
		}
		if len(tokens) != nk {
			return errors.Wrapf(ErrInvariant, "leaf %d has %d keys but %d values", id, nk, len(tokens))
		}
		c.last = &n.keys[nk-1]
		c.leaves = append(c.leaves, id)
		c.keys += nk
		return nil
	}

	if len(n.children) != nk+1 {
		return errors.Wrapf(ErrInvariant, "node %d has %d keys and %d children", id, nk, len(n.children))
	}
	for i, child := range n.children {
		clo, chi := lo, hi
		if i > 0 {
			clo = &n.keys[i-1]
		}
		if i < nk {
			chi = &n.keys[i]
		}
		if err := c.visit(child, depth+1, clo, chi); err != nil {
			return err
		}
	}
	return nil
}
