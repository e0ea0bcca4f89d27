package bptree

import (
	"slices"

	"go.uber.org/zap"
)

// Insert adds key with value. Keys are not checked for duplicates: callers
// must make sure key is absent, otherwise lookups see the older entry.
//
// A value log failure does not abort the insert. The key is placed, the
// affected leaf reads back as an empty record, and the error is returned.
func (t *Tree[K, V]) Insert(key K, value V) error {
	t.insert(key, t.values.Encode(value))
	return t.takePending()
}

func (t *Tree[K, V]) insert(key K, token string) {
	t.count++
	if t.root == nilNode {
		id := t.alloc(true)
		t.node(id).keys = []K{key}
		t.writeLine(id, []string{token})
		t.root = id
		return
	}

	// A full root is split before descending, growing the tree by one level.
	if len(t.node(t.root).keys) == t.maxKeys() {
		newRoot := t.alloc(false)
		t.node(newRoot).children = []nodeID{t.root}
		t.splitChild(newRoot, 0)
		t.root = newRoot
		t.logger.Debug("root split", zap.Int("height", t.height()))
	}
	t.insertNonFull(t.root, key, token)
}

func (t *Tree[K, V]) insertNonFull(id nodeID, key K, token string) {
	for {
		n := t.node(id)
		i := t.upperBound(n.keys, key)
		if n.leaf {
			tokens := t.readLine(id)
			n.keys = slices.Insert(n.keys, i, key)
			tokens = slices.Insert(tokens, min(i, len(tokens)), token)
			t.writeLine(id, tokens)
			return
		}

		if len(t.node(n.children[i]).keys) == t.maxKeys() {
			t.splitChild(id, i)
			if t.cmp(key, t.node(id).keys[i]) > 0 {
				i++
			}
		}
		id = t.node(id).children[i]
	}
}

// splitChild splits the full child at parent.children[i] around its median
// keys[t-1]. Leaves copy the median up and keep it as the first key of the
// new right leaf; internal nodes move it up.
func (t *Tree[K, V]) splitChild(parentID nodeID, i int) {
	childID := t.node(parentID).children[i]
	sibID := t.alloc(t.node(childID).leaf)

	parent, child, sib := t.node(parentID), t.node(childID), t.node(sibID)
	d := t.degree
	median := child.keys[d-1]

	if child.leaf {
		tokens := t.readLine(childID)
		sib.keys = slices.Clone(child.keys[d-1:])
		child.keys = slices.Clone(child.keys[:d-1])

		cut := min(d-1, len(tokens))
		t.writeLine(childID, tokens[:cut])
		t.writeLine(sibID, tokens[cut:])

		sib.next = child.next
		child.next = sibID
	} else {
		sib.keys = slices.Clone(child.keys[d:])
		sib.children = slices.Clone(child.children[d:])
		child.keys = slices.Clone(child.keys[:d-1])
		child.children = slices.Clone(child.children[:d])
	}

	parent.keys = slices.Insert(parent.keys, i, median)
	parent.children = slices.Insert(parent.children, i+1, sibID)
}
