package bptree

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Snapshot file format, one record per node in level order:
//
//	keys (space-joined key tokens) | 1 (leaf) or 0 (internal) | offset or child count
//
// Values are not part of the snapshot; leaf records point into the value log.

const (
	flagLeaf     = "1"
	flagInternal = "0"
)

// Save writes the tree shape to the snapshot file, replacing it atomically.
// An empty tree produces an empty file.
func (t *Tree[K, V]) Save() error {
	tmp := t.snapPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "bptree: save")
	}
	w := bufio.NewWriter(f)
	records, err := t.writeSnapshot(w)
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, t.snapPath)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "bptree: save %s", t.snapPath)
	}
	t.logger.Debug("snapshot saved",
		zap.String("path", t.snapPath),
		zap.Int("records", records))
	return nil
}

func (t *Tree[K, V]) writeSnapshot(w io.Writer) (int, error) {
	if t.root == nilNode {
		return 0, nil
	}
	var (
		queue   = []nodeID{t.root}
		records int
		buf     strings.Builder
	)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := t.node(id)

		buf.Reset()
		for i, k := range n.keys {
			if i > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(t.keys.Encode(k))
		}
		buf.WriteByte('|')
		if n.leaf {
			buf.WriteString(flagLeaf)
			buf.WriteByte('|')
			buf.WriteString(strconv.FormatInt(n.offset, 10))
		} else {
			buf.WriteString(flagInternal)
			buf.WriteByte('|')
			buf.WriteString(strconv.Itoa(len(n.children)))
			queue = append(queue, n.children...)
		}
		buf.WriteByte('\n')
		if _, err := io.WriteString(w, buf.String()); err != nil {
			return records, err
		}
		records++
	}
	return records, nil
}

type snapRecord[K any] struct {
	keys     []K
	leaf     bool
	offset   int64
	children int
}

// Load replaces the in-memory tree with the snapshot on disk. A missing
// snapshot file leaves the tree untouched.
func (t *Tree[K, V]) Load() error {
	f, err := os.Open(t.snapPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "bptree: load")
	}
	defer f.Close()

	records, err := t.readSnapshot(bufio.NewReader(f))
	if err != nil {
		return errors.Wrapf(err, "bptree: load %s", t.snapPath)
	}
	if err := t.rebuild(records); err != nil {
		return errors.Wrapf(err, "bptree: load %s", t.snapPath)
	}
	t.logger.Debug("snapshot loaded",
		zap.String("path", t.snapPath),
		zap.Int("records", len(records)),
		zap.Int("keys", t.count))
	return nil
}

func (t *Tree[K, V]) readSnapshot(r *bufio.Reader) ([]snapRecord[K], error) {
	var records []snapRecord[K]
	for lineNo := 1; ; lineNo++ {
		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			rec, perr := t.parseRecord(line)
			if perr != nil {
				return nil, errors.Wrapf(perr, "line %d", lineNo)
			}
			records = append(records, rec)
		}
		if err != nil {
			return records, nil
		}
	}
}

func (t *Tree[K, V]) parseRecord(line string) (snapRecord[K], error) {
	var rec snapRecord[K]
	fields := strings.SplitN(line, "|", 3)
	if len(fields) != 3 {
		return rec, errors.Wrapf(ErrMalformedSnapshot, "want 3 fields, got %d", len(fields))
	}
	for _, tok := range strings.Fields(fields[0]) {
		k, err := t.keys.Decode(tok)
		if err != nil {
			return rec, errors.CombineErrors(ErrMalformedSnapshot, err)
		}
		rec.keys = append(rec.keys, k)
	}
	num, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return rec, errors.CombineErrors(ErrMalformedSnapshot, err)
	}
	switch fields[1] {
	case flagLeaf:
		rec.leaf = true
		rec.offset = num
	case flagInternal:
		if num < 1 {
			return rec, errors.Wrapf(ErrMalformedSnapshot, "internal node with %d children", num)
		}
		rec.children = int(num)
	default:
		return rec, errors.Wrapf(ErrMalformedSnapshot, "bad leaf flag %q", fields[1])
	}
	return rec, nil
}

// rebuild allocates one node per record in file order. Each internal record
// claims the next unclaimed records as its children, and the leaves are
// chained in file order, which is left to right because all leaves share a
// depth.
func (t *Tree[K, V]) rebuild(records []snapRecord[K]) error {
	t.resetArena()
	if len(records) == 0 {
		return nil
	}

	nextChild := 1
	prevLeaf := nilNode
	for i, rec := range records {
		id := t.alloc(rec.leaf)
		n := t.node(id)
		n.keys = rec.keys
		if rec.leaf {
			n.offset = rec.offset
			t.count += len(rec.keys)
			if prevLeaf != nilNode {
				t.node(prevLeaf).next = id
			}
			prevLeaf = id
			continue
		}
		if nextChild+rec.children > len(records) {
			t.resetArena()
			return errors.Wrapf(ErrMalformedSnapshot, "record %d claims %d children past end", i, rec.children)
		}
		n.children = make([]nodeID, rec.children)
		for c := range n.children {
			n.children[c] = nodeID(nextChild)
			nextChild++
		}
	}
	if nextChild != len(records) {
		t.resetArena()
		return errors.Wrapf(ErrMalformedSnapshot, "%d records not reachable from the root", len(records)-nextChild)
	}
	t.root = 0
	return nil
}
