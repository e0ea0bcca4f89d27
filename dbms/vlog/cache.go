package vlog

// ─── LRU Cache ────────────────────────────────────────────────────────────────

type lruEntry struct {
	off    int64
	tokens []string
	prev   *lruEntry
	next   *lruEntry
}

// lruCache maps record offsets to decoded token lists. Records never change
// once written, so entries are only dropped by eviction or reset.
type lruCache struct {
	capacity int
	items    map[int64]*lruEntry
	head     *lruEntry // most recent
	tail     *lruEntry // least recent
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		items:    make(map[int64]*lruEntry, capacity),
	}
}

func (c *lruCache) get(off int64) ([]string, bool) {
	e, ok := c.items[off]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.tokens, true
}

func (c *lruCache) put(off int64, tokens []string) {
	if c.capacity <= 0 {
		return
	}
	if e, ok := c.items[off]; ok {
		e.tokens = tokens
		c.moveToFront(e)
		return
	}
	e := &lruEntry{off: off, tokens: tokens}
	c.items[off] = e
	c.pushFront(e)
	if len(c.items) > c.capacity {
		c.evict()
	}
}

func (c *lruCache) len() int { return len(c.items) }

func (c *lruCache) reset() {
	c.items = make(map[int64]*lruEntry, c.capacity)
	c.head = nil
	c.tail = nil
}

func (c *lruCache) pushFront(e *lruEntry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) moveToFront(e *lruEntry) {
	if c.head == e {
		return
	}
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if c.tail == e {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
}

func (c *lruCache) evict() {
	if c.tail == nil {
		return
	}
	delete(c.items, c.tail.off)
	if c.tail.prev != nil {
		c.tail.prev.next = nil
	}
	c.tail = c.tail.prev
	if c.tail == nil {
		c.head = nil
	}
}
