package bptree

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/btree-query-bench/vlogdb/dbms/vlog"
)

const compactSuffix = ".compact"

// Compact rewrites the value log with one record per leaf holding values,
// which must be in GetAllValues order, and swaps it in for the old log. The
// new offsets live only in memory until the next Save.
//
// Only the count is checked: values shifted by position are stored as given.
func (t *Tree[K, V]) Compact(values []V) error {
	if len(values) != t.count {
		return errors.Wrapf(ErrCompactMismatch, "bptree: compact: %d values for %d keys", len(values), t.count)
	}
	oldSize := t.log.Size()

	next, err := vlog.Create(t.log.Path()+compactSuffix, t.logOpts...)
	if err != nil {
		return errors.Wrapf(err, "bptree: compact")
	}

	var (
		offsets []int64
		pos     int
		tokens  []string
	)
	for id := t.leftmostLeaf(t.root); id != nilNode; id = t.nodes[id].next {
		k := len(t.nodes[id].keys)
		tokens = tokens[:0]
		for _, v := range values[pos : pos+k] {
			tokens = append(tokens, t.values.Encode(v))
		}
		pos += k

		off, err := next.Append(tokens)
		if err != nil {
			return errors.CombineErrors(errors.Wrapf(err, "bptree: compact"), next.Remove())
		}
		offsets = append(offsets, off)
	}

	if err := t.log.Swap(next); err != nil {
		return errors.CombineErrors(errors.Wrapf(err, "bptree: compact"), next.Remove())
	}

	i := 0
	for id := t.leftmostLeaf(t.root); id != nilNode; id = t.nodes[id].next {
		t.nodes[id].offset = offsets[i]
		i++
	}

	t.logger.Info("value log compacted",
		zap.Int("leaves", len(offsets)),
		zap.Int("keys", t.count),
		zap.Int64("old_bytes", oldSize),
		zap.Int64("new_bytes", t.log.Size()))
	return nil
}
