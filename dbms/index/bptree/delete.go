package bptree

import (
	"slices"

	"go.uber.org/zap"
)

// Remove deletes key. Removing an absent key is a no-op.
func (t *Tree[K, V]) Remove(key K) error {
	if t.root == nilNode {
		return nil
	}
	if t.removeFrom(t.root, key) {
		t.count--
	}

	root := t.node(t.root)
	if len(root.keys) == 0 {
		old := t.root
		if root.leaf {
			t.root = nilNode
		} else {
			t.root = root.children[0]
		}
		t.release(old)
		t.logger.Debug("root collapsed", zap.Int("height", t.height()))
	}
	return t.takePending()
}

// removeFrom deletes key from the subtree at id and reports whether it was
// found. Every child it descends into is left with at least t keys, or
// merged, and the separator in front of that child is reset to the child's
// minimum, before and after the repair, even when nothing was removed.
func (t *Tree[K, V]) removeFrom(id nodeID, key K) bool {
	n := t.node(id)
	idx := t.lowerBound(n.keys, key)
	hit := idx < len(n.keys) && t.cmp(n.keys[idx], key) == 0

	if n.leaf {
		if !hit {
			return false
		}
		tokens := t.readLine(id)
		n.keys = slices.Delete(n.keys, idx, idx+1)
		if idx < len(tokens) {
			tokens = slices.Delete(tokens, idx, idx+1)
		}
		t.writeLine(id, tokens)
		return true
	}

	ci := idx
	if hit {
		ci = idx + 1
	}
	found := t.removeFrom(n.children[ci], key)

	// fill copies keys[ci-1] down on an internal borrow or merge, so it must
	// not still hold the removed key.
	t.refreshSeparator(id, ci)
	if len(t.node(t.node(id).children[ci]).keys) < t.degree {
		ci = t.fill(id, ci)
	}
	t.refreshSeparator(id, ci)
	return found
}

// refreshSeparator resets the key in front of children[ci] to that child's
// minimum.
func (t *Tree[K, V]) refreshSeparator(id nodeID, ci int) {
	n := t.node(id)
	if ci == 0 || ci-1 >= len(n.keys) {
		return
	}
	if k, ok := t.smallest(n.children[ci]); ok {
		n.keys[ci-1] = k
	}
}

// fill brings children[ci] of id back above the underflow threshold and
// returns the child's index afterwards, which moves left when it was merged
// into its left sibling.
func (t *Tree[K, V]) fill(id nodeID, ci int) int {
	n := t.node(id)
	switch {
	case ci > 0 && len(t.node(n.children[ci-1]).keys) >= t.degree:
		t.borrowFromPrev(id, ci)
		return ci
	case ci < len(n.keys) && len(t.node(n.children[ci+1]).keys) >= t.degree:
		t.borrowFromNext(id, ci)
		return ci
	case ci < len(n.keys):
		t.merge(id, ci)
		return ci
	default:
		t.merge(id, ci-1)
		return ci - 1
	}
}

// borrowFromPrev moves the last key of children[ci-1] to the front of
// children[ci].
func (t *Tree[K, V]) borrowFromPrev(id nodeID, ci int) {
	n := t.node(id)
	childID, prevID := n.children[ci], n.children[ci-1]
	child, prev := t.node(childID), t.node(prevID)
	last := len(prev.keys) - 1

	if child.leaf {
		ct, pt := t.readLine(childID), t.readLine(prevID)
		child.keys = slices.Insert(child.keys, 0, prev.keys[last])
		prev.keys = prev.keys[:last]
		if last < len(pt) {
			ct = slices.Insert(ct, 0, pt[last])
			pt = pt[:last]
		}
		t.writeLine(childID, ct)
		t.writeLine(prevID, pt)
		n.keys[ci-1] = child.keys[0]
		return
	}

	child.keys = slices.Insert(child.keys, 0, n.keys[ci-1])
	child.children = slices.Insert(child.children, 0, prev.children[last+1])
	n.keys[ci-1] = prev.keys[last]
	prev.keys = prev.keys[:last]
	prev.children = prev.children[:last+1]
}

// borrowFromNext moves the first key of children[ci+1] to the end of
// children[ci].
func (t *Tree[K, V]) borrowFromNext(id nodeID, ci int) {
	n := t.node(id)
	childID, nextID := n.children[ci], n.children[ci+1]
	child, next := t.node(childID), t.node(nextID)

	if child.leaf {
		ct, nt := t.readLine(childID), t.readLine(nextID)
		child.keys = append(child.keys, next.keys[0])
		next.keys = slices.Delete(next.keys, 0, 1)
		if len(nt) > 0 {
			ct = append(ct, nt[0])
			nt = nt[1:]
		}
		t.writeLine(childID, ct)
		t.writeLine(nextID, nt)
		n.keys[ci] = next.keys[0]
		return
	}

	child.keys = append(child.keys, n.keys[ci])
	child.children = append(child.children, next.children[0])
	n.keys[ci] = next.keys[0]
	next.keys = slices.Delete(next.keys, 0, 1)
	next.children = slices.Delete(next.children, 0, 1)
}

// merge absorbs children[ci+1] into children[ci] and drops the separator
// between them from id.
func (t *Tree[K, V]) merge(id nodeID, ci int) {
	n := t.node(id)
	leftID, rightID := n.children[ci], n.children[ci+1]
	left, right := t.node(leftID), t.node(rightID)

	if left.leaf {
		lt, rt := t.readLine(leftID), t.readLine(rightID)
		left.keys = append(left.keys, right.keys...)
		t.writeLine(leftID, append(lt, rt...))
		left.next = right.next
	} else {
		left.keys = append(left.keys, n.keys[ci])
		left.keys = append(left.keys, right.keys...)
		left.children = append(left.children, right.children...)
	}

	n.keys = slices.Delete(n.keys, ci, ci+1)
	n.children = slices.Delete(n.children, ci+1, ci+2)
	t.release(rightID)
}
