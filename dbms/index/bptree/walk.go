package bptree

// NodeInfo describes one node to a Walk callback. Keys aliases tree memory
// and must not be modified or retained across mutations.
type NodeInfo[K any] struct {
	ID       int
	Depth    int
	Leaf     bool
	Keys     []K
	Children []int // internal only
	Next     int   // leaf only, -1 at the end of the chain
	Offset   int64 // leaf only
}

// Walk visits every node in pre-order, children left to right. It stops at
// the first error returned by fn.
func (t *Tree[K, V]) Walk(fn func(NodeInfo[K]) error) error {
	if t.root == nilNode {
		return nil
	}
	return t.walk(t.root, 0, fn)
}

func (t *Tree[K, V]) walk(id nodeID, depth int, fn func(NodeInfo[K]) error) error {
	n := t.node(id)
	info := NodeInfo[K]{
		ID:     int(id),
		Depth:  depth,
		Leaf:   n.leaf,
		Keys:   n.keys,
		Next:   int(n.next),
		Offset: n.offset,
	}
	if !n.leaf {
		info.Next = int(nilNode)
		info.Children = make([]int, len(n.children))
		for i, c := range n.children {
			info.Children[i] = int(c)
		}
	}
	if err := fn(info); err != nil {
		return err
	}
	for _, c := range n.children {
		if err := t.walk(c, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// LeafValues returns the raw value tokens of the leaf with the given Walk ID.
func (t *Tree[K, V]) LeafValues(id int) ([]string, error) {
	return t.log.ReadAt(t.nodes[id].offset)
}

// Stats summarizes the tree's shape and value log.
type Stats struct {
	Height    int
	Nodes     int
	Leaves    int
	Keys      int
	FreeNodes int
	LogBytes  int64
	Cached    int // decoded value log records held in memory
}

func (t *Tree[K, V]) Stats() Stats {
	s := Stats{
		Height:    t.height(),
		Keys:      t.count,
		FreeNodes: len(t.free),
		LogBytes:  t.log.Size(),
		Cached:    t.log.CachedRecords(),
	}
	_ = t.Walk(func(n NodeInfo[K]) error {
		s.Nodes++
		if n.Leaf {
			s.Leaves++
		}
		return nil
	})
	return s
}

func (t *Tree[K, V]) height() int {
	h := 0
	for id := t.root; id != nilNode; h++ {
		n := t.node(id)
		if n.leaf {
			return h + 1
		}
		id = n.children[0]
	}
	return h
}
