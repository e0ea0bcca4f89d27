package bptree

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/btree-query-bench/vlogdb/dbms/codec"
	"github.com/btree-query-bench/vlogdb/dbms/vlog"
)

func testConfig(t *testing.T, dir string, degree int) Config[int64, int64] {
	cfg := DefaultConfig(dir, "test", codec.Int64{}, codec.Int64{})
	cfg.Degree = degree
	cfg.Logger = zaptest.NewLogger(t)
	return cfg
}

func openTest(t *testing.T, degree int) *Tree[int64, int64] {
	t.Helper()
	tr, err := Open(testConfig(t, t.TempDir(), degree))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func insertDoubled(t *testing.T, tr *Tree[int64, int64], keys ...int64) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, tr.Insert(k, 2*k))
	}
}

// leafChain returns the keys of each leaf, following the next links.
func leafChain(tr *Tree[int64, int64]) [][]int64 {
	var out [][]int64
	for id := tr.leftmostLeaf(tr.root); id != nilNode; id = tr.nodes[id].next {
		out = append(out, slices.Clone(tr.nodes[id].keys))
	}
	return out
}

func TestDegreeTwoScenario(t *testing.T) {
	tr := openTest(t, 2)
	insertDoubled(t, tr, 8, 20, 5, 6, 12, 30, 7, 17)
	require.NoError(t, tr.Check())

	v, ok, err := tr.Search(12)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(24), v)

	_, ok, err = tr.Search(99)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := tr.RangeQuery(6, 20)
	require.NoError(t, err)
	require.Equal(t, []Entry[int64, int64]{
		{6, 12}, {7, 14}, {8, 16}, {12, 24}, {17, 34}, {20, 40},
	}, got)

	require.Equal(t, [][]int64{{5, 6, 7}, {8}, {12, 17}, {20, 30}}, leafChain(tr))

	require.NoError(t, tr.Remove(5))
	require.NoError(t, tr.Remove(6))
	require.Equal(t, []int64{7, 8, 12, 17, 20, 30}, tr.GetAllKeys())
	require.NoError(t, tr.Check())
	require.Equal(t, 6, tr.Len())
}

func TestEmptyTree(t *testing.T) {
	tr := openTest(t, 3)

	require.True(t, tr.Empty())
	_, ok, err := tr.Search(1)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, tr.GetAllKeys())
	require.Empty(t, tr.RangeQueryKeys(0, 100))
	_, ok = tr.Min()
	require.False(t, ok)
	_, ok = tr.Max()
	require.False(t, ok)
	require.NoError(t, tr.Remove(1))
	require.NoError(t, tr.Check())
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	tr := openTest(t, 2)
	insertDoubled(t, tr, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	before := tr.GetAllKeys()

	for _, k := range []int64{0, 10, -5, 100} {
		require.NoError(t, tr.Remove(k))
		require.NoError(t, tr.Check())
	}
	require.Equal(t, before, tr.GetAllKeys())
}

func TestMinMax(t *testing.T) {
	tr := openTest(t, 2)
	insertDoubled(t, tr, 40, -3, 17, 99, 0, 12)

	lo, ok := tr.Min()
	require.True(t, ok)
	require.Equal(t, int64(-3), lo)

	hi, ok := tr.Max()
	require.True(t, ok)
	require.Equal(t, int64(99), hi)
}

func TestSplitThenMergeKeepsChain(t *testing.T) {
	tr := openTest(t, 2)
	insertDoubled(t, tr, 1, 2, 3, 4, 5, 6)
	require.Equal(t, [][]int64{{1}, {2}, {3}, {4, 5, 6}}, leafChain(tr))

	require.NoError(t, tr.Remove(2))
	require.NoError(t, tr.Check())
	require.Equal(t, [][]int64{{1}, {3}, {4, 5, 6}}, leafChain(tr))

	for _, k := range []int64{1, 3, 4, 5} {
		require.NoError(t, tr.Remove(k))
		require.NoError(t, tr.Check())
	}
	require.Equal(t, [][]int64{{6}}, leafChain(tr))
	require.True(t, tr.node(tr.root).leaf)
	require.Equal(t, nilNode, tr.node(tr.root).next)

	v, ok, err := tr.Search(6)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(12), v)

	require.NoError(t, tr.Remove(6))
	require.True(t, tr.Empty())
	require.NoError(t, tr.Check())

	// Freed nodes are reused.
	insertDoubled(t, tr, 10, 11, 12, 13)
	require.NoError(t, tr.Check())
	require.Equal(t, []int64{10, 11, 12, 13}, tr.GetAllKeys())
}

func TestRandomInterleavings(t *testing.T) {
	for _, degree := range []int{2, 3, 5} {
		t.Run(fmt.Sprintf("t=%d", degree), func(t *testing.T) {
			tr := openTest(t, degree)
			rng := rand.New(rand.NewPCG(uint64(degree), 7))
			oracle := make(map[int64]int64)

			for i := 0; i < 2000; i++ {
				k := rng.Int64N(300)
				if _, ok := oracle[k]; ok || rng.IntN(3) == 0 {
					require.NoError(t, tr.Remove(k))
					delete(oracle, k)
				} else {
					v := rng.Int64()
					require.NoError(t, tr.Insert(k, v))
					oracle[k] = v
				}
				require.NoError(t, tr.Check(), "after op %d", i)
			}
			require.NoError(t, tr.Check())

			want := make([]int64, 0, len(oracle))
			for k := range oracle {
				want = append(want, k)
			}
			slices.Sort(want)
			require.Equal(t, want, tr.GetAllKeys())
			require.Equal(t, len(oracle), tr.Len())

			for k, v := range oracle {
				got, ok, err := tr.Search(k)
				require.NoError(t, err)
				require.True(t, ok)
				require.Equal(t, v, got)
			}
		})
	}
}

// Upserts remove a key and insert it again at once. When the key was also a
// separator, the rebalancing on the way back up must not push it down into
// the subtree, or the reinserted key lands left of where lookups go.
func TestUpsertAfterSeparatorRemoval(t *testing.T) {
	for degree := 2; degree <= 5; degree++ {
		t.Run(fmt.Sprintf("t=%d", degree), func(t *testing.T) {
			dir := t.TempDir()
			tr, err := Open(testConfig(t, dir, degree))
			require.NoError(t, err)
			defer func() { _ = tr.Close() }()

			rng := rand.New(rand.NewPCG(uint64(degree-2), 2))
			oracle := make(map[int64]int64)
			for step := 1; step <= 3600; step++ {
				k := rng.Int64N(300)
				if rng.IntN(100) < 55 {
					v := rng.Int64N(1000)
					require.NoError(t, tr.Remove(k))
					require.NoError(t, tr.Insert(k, v))
					oracle[k] = v
				} else {
					require.NoError(t, tr.Remove(k))
					delete(oracle, k)
				}
				require.NoError(t, tr.Check(), "step %d key %d", step, k)

				if step%250 == 0 {
					values, err := tr.GetAllValues()
					require.NoError(t, err)
					require.NoError(t, tr.Compact(values))
					require.NoError(t, tr.Save())
					require.NoError(t, tr.Close())
					tr, err = Open(testConfig(t, dir, degree))
					require.NoError(t, err)
					require.NoError(t, tr.Check(), "reopen at step %d", step)
				}
			}

			require.Equal(t, len(oracle), tr.Len())
			for k, v := range oracle {
				got, ok, err := tr.Search(k)
				require.NoError(t, err)
				require.True(t, ok, "key %d", k)
				require.Equal(t, v, got, "key %d", k)
			}
		})
	}
}

func TestRangeLaw(t *testing.T) {
	tr := openTest(t, 3)
	rng := rand.New(rand.NewPCG(1, 2))
	seen := make(map[int64]bool)
	for len(seen) < 400 {
		k := rng.Int64N(2000) - 1000
		if !seen[k] {
			seen[k] = true
			require.NoError(t, tr.Insert(k, k*3))
		}
	}
	all := tr.GetAllKeys()

	for i := 0; i < 200; i++ {
		lo := rng.Int64N(2400) - 1200
		hi := lo + rng.Int64N(600)

		var want []int64
		for _, k := range all {
			if lo <= k && k <= hi {
				want = append(want, k)
			}
		}
		require.Equal(t, want, tr.RangeQueryKeys(lo, hi), "range [%d, %d]", lo, hi)

		entries, err := tr.RangeQuery(lo, hi)
		require.NoError(t, err)
		require.Len(t, entries, len(want))
		for j, e := range entries {
			require.Equal(t, want[j], e.Key)
			require.Equal(t, e.Key*3, e.Value)
		}
	}

	require.Empty(t, tr.RangeQueryKeys(10, 5))
}

func TestRangeIterator(t *testing.T) {
	tr := openTest(t, 2)
	for k := int64(0); k < 50; k += 2 {
		require.NoError(t, tr.Insert(k, k+1))
	}

	it, err := tr.Range(7, 21)
	require.NoError(t, err)
	var keys, vals []int64
	for it.Next() {
		keys = append(keys, it.Key())
		vals = append(vals, it.Value())
	}
	require.NoError(t, it.Error())
	require.NoError(t, it.Close())
	require.Equal(t, []int64{8, 10, 12, 14, 16, 18, 20}, keys)
	require.Equal(t, []int64{9, 11, 13, 15, 17, 19, 21}, vals)

	it, err = tr.Range(100, 200)
	require.NoError(t, err)
	require.False(t, it.Next())

	it, err = tr.Range(20, 10)
	require.NoError(t, err)
	require.False(t, it.Next())
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, 3)

	tr, err := Open(cfg)
	require.NoError(t, err)
	for k := int64(0); k < 200; k++ {
		require.NoError(t, tr.Insert(k*7%201, k))
	}
	for k := int64(0); k < 200; k += 3 {
		require.NoError(t, tr.Remove(k*7%201))
	}
	keys := tr.GetAllKeys()
	vals, err := tr.GetAllValues()
	require.NoError(t, err)
	chain := leafChain(tr)
	stats := tr.Stats()

	require.NoError(t, tr.Save())
	require.NoError(t, tr.Close())

	tr, err = Open(cfg)
	require.NoError(t, err)
	defer tr.Close()

	require.NoError(t, tr.Check())
	require.Equal(t, keys, tr.GetAllKeys())
	require.Equal(t, chain, leafChain(tr))
	got, err := tr.GetAllValues()
	require.NoError(t, err)
	require.Equal(t, vals, got)
	require.Equal(t, len(keys), tr.Len())

	reloaded := tr.Stats()
	require.Equal(t, stats.Height, reloaded.Height)
	require.Equal(t, stats.Nodes, reloaded.Nodes)
	require.Equal(t, stats.Leaves, reloaded.Leaves)
}

func TestSnapshotFormat(t *testing.T) {
	tr := openTest(t, 2)
	insertDoubled(t, tr, 1, 2, 3, 4)
	require.NoError(t, tr.Save())

	raw, err := os.ReadFile(tr.SnapshotPath())
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))
	require.Len(t, lines, 3)
	require.Equal(t, "2|0|2", string(lines[0]))
	require.True(t, bytes.HasPrefix(lines[1], []byte("1|1|")))
	require.True(t, bytes.HasPrefix(lines[2], []byte("2 3 4|1|")))
}

func TestSnapshotEmptyTree(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, 2)

	tr, err := Open(cfg)
	require.NoError(t, err)
	insertDoubled(t, tr, 1)
	require.NoError(t, tr.Remove(1))
	require.NoError(t, tr.Save())
	require.NoError(t, tr.Close())

	raw, err := os.ReadFile(tr.SnapshotPath())
	require.NoError(t, err)
	require.Empty(t, raw)

	tr, err = Open(cfg)
	require.NoError(t, err)
	defer tr.Close()
	require.True(t, tr.Empty())
}

func TestLoadMalformedSnapshot(t *testing.T) {
	cases := map[string]string{
		"missing field":  "1 2|1\n",
		"bad flag":       "1 2|x|0\n",
		"bad offset":     "1 2|1|abc\n",
		"bad key":        "one|1|0\n",
		"too many kids":  "5|0|2\n1|1|0\n",
		"unclaimed node": "1|1|0\n2|1|0\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			cfg := testConfig(t, dir, 2)
			tr, err := Open(cfg)
			require.NoError(t, err)
			require.NoError(t, tr.Close())

			require.NoError(t, os.WriteFile(tr.SnapshotPath(), []byte(content), 0o644))
			_, err = Open(cfg)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrMalformedSnapshot), "got %v", err)
		})
	}
}

func TestCompactPreservesValues(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, 3)
	tr, err := Open(cfg)
	require.NoError(t, err)

	for k := int64(0); k < 300; k++ {
		require.NoError(t, tr.Insert(k, k*k))
	}
	for k := int64(0); k < 300; k += 2 {
		require.NoError(t, tr.Remove(k))
	}
	before, err := tr.GetAllValues()
	require.NoError(t, err)
	sizeBefore := tr.Stats().LogBytes

	require.NoError(t, tr.Compact(before))
	require.NoError(t, tr.Check())

	after, err := tr.GetAllValues()
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Less(t, tr.Stats().LogBytes, sizeBefore)

	_, err = os.Stat(tr.LogPath() + compactSuffix)
	require.True(t, os.IsNotExist(err))

	// New offsets survive a snapshot round trip.
	require.NoError(t, tr.Save())
	require.NoError(t, tr.Close())
	tr, err = Open(cfg)
	require.NoError(t, err)
	defer tr.Close()
	got, err := tr.GetAllValues()
	require.NoError(t, err)
	require.Equal(t, before, got)
}

func TestCompactRewritesValues(t *testing.T) {
	tr := openTest(t, 2)
	insertDoubled(t, tr, 3, 1, 2)

	require.NoError(t, tr.Compact([]int64{10, 20, 30}))
	v, ok, err := tr.Search(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(20), v)
}

func TestCompactMismatch(t *testing.T) {
	tr := openTest(t, 2)
	insertDoubled(t, tr, 1, 2, 3)

	err := tr.Compact([]int64{1, 2})
	require.True(t, errors.Is(err, ErrCompactMismatch))

	got, err := tr.GetAllValues()
	require.NoError(t, err)
	require.Equal(t, []int64{2, 4, 6}, got)
}

func TestCompactEmptyTree(t *testing.T) {
	tr := openTest(t, 2)
	insertDoubled(t, tr, 1)
	require.NoError(t, tr.Remove(1))

	require.NoError(t, tr.Compact(nil))
	require.Equal(t, int64(0), tr.Stats().LogBytes)
}

func TestLogFailureYieldsEmptyRecord(t *testing.T) {
	tr := openTest(t, 2)
	insertDoubled(t, tr, 1)

	require.NoError(t, tr.log.Close())
	err := tr.Insert(2, 4)
	require.True(t, errors.Is(err, vlog.ErrClosed), "got %v", err)

	// The structural insert went through; the leaf lost its record.
	require.True(t, tr.Contains(2))
	require.Equal(t, []int64{1, 2}, tr.GetAllKeys())
	require.Equal(t, vlog.InvalidOffset, tr.node(tr.root).offset)

	_, ok, err := tr.Search(1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOpenLocksLog(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, 2)
	tr, err := Open(cfg)
	require.NoError(t, err)
	defer tr.Close()

	_, err = Open(cfg)
	require.True(t, errors.Is(err, vlog.ErrLocked), "got %v", err)
}

func TestOpenRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t, t.TempDir(), 1)
	_, err := Open(cfg)
	require.Error(t, err)

	cfg = testConfig(t, t.TempDir(), 2)
	cfg.Compare = nil
	_, err = Open(cfg)
	require.Error(t, err)
}

func TestWalkAndDOT(t *testing.T) {
	tr := openTest(t, 2)
	insertDoubled(t, tr, 1, 2, 3, 4, 5, 6)

	var leaves, internal int
	require.NoError(t, tr.Walk(func(n NodeInfo[int64]) error {
		if n.Leaf {
			leaves++
			require.Empty(t, n.Children)
		} else {
			internal++
			require.Len(t, n.Children, len(n.Keys)+1)
		}
		return nil
	}))
	stats := tr.Stats()
	require.Equal(t, 4, leaves)
	require.Equal(t, stats.Leaves, leaves)
	require.Equal(t, stats.Nodes, leaves+internal)
	require.Equal(t, 2, stats.Height)
	require.Equal(t, 6, stats.Keys)

	var buf bytes.Buffer
	require.NoError(t, tr.WriteDOT(&buf))
	out := buf.String()
	require.Contains(t, out, "digraph BPlusTree {")
	require.Contains(t, out, "(INTERNAL)")
	require.Contains(t, out, "(LEAF)")
	require.Contains(t, out, "style=dashed")
}

func TestCheckDetectsCorruption(t *testing.T) {
	tr := openTest(t, 2)
	insertDoubled(t, tr, 1, 2, 3, 4, 5, 6)
	require.NoError(t, tr.Check())

	leaf := tr.leftmostLeaf(tr.root)
	tr.nodes[leaf].next = nilNode
	require.True(t, errors.Is(tr.Check(), ErrInvariant))
}
