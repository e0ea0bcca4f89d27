package main

import (
	"bytes"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/btree-query-bench/vlogdb/dbms/codec"
	"github.com/btree-query-bench/vlogdb/dbms/index/bptree"
)

func TestParseDegrees(t *testing.T) {
	got, err := parseDegrees("3, 8,,32")
	require.NoError(t, err)
	require.Equal(t, []int{3, 8, 32}, got)

	_, err = parseDegrees("3,x")
	require.Error(t, err)
	_, err = parseDegrees("")
	require.Error(t, err)
}

func TestWorkloadsKeepTreeValid(t *testing.T) {
	cfg := bptree.DefaultConfig(t.TempDir(), "wl", codec.Int64{}, codec.String{})
	cfg.Degree = 2
	cfg.Logger = zaptest.NewLogger(t)
	tree, err := bptree.Open(cfg)
	require.NoError(t, err)
	defer tree.Close()

	idx := upsertTree{tree}
	rng := rand.New(rand.NewPCG(3, 4))
	const keys = 200
	for k := int64(0); k < keys; k++ {
		require.NoError(t, idx.Insert(k, "seed"))
	}
	for _, w := range []WorkloadType{OLTP, OLAP, Reporting, Churn} {
		require.NoError(t, ExecuteWorkload(idx, w, 300, keys, rng), "%s", w)
		require.NoError(t, tree.Check(), "%s", w)
	}

	// Upserts never leave duplicate keys behind.
	all := tree.GetAllKeys()
	for i := 1; i < len(all); i++ {
		require.Less(t, all[i-1], all[i])
	}
}

func TestPlotAndCSV(t *testing.T) {
	dir := t.TempDir()
	results := []BenchResult{
		{"BPlusTree", "3", "Workload_OLTP", 1200, 1, 0},
		{"BPlusTree", "3", "Workload_OLAP", 2500, 1, 0},
		{"Pebble", "default", "Workload_OLTP", 900, 2, 0},
		{"Pebble", "default", "Workload_OLAP", 700, 2, 0},
	}

	csvPath := filepath.Join(dir, "out.csv")
	require.NoError(t, writeCSV(csvPath, results))
	raw, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	require.Contains(t, string(raw), "Structure,Config,TestType,LatencyNs,MemMB,HeapObjects\n")
	require.Contains(t, string(raw), "Pebble,default,Workload_OLAP,700,2,0\n")

	pngPath := filepath.Join(dir, "out.png")
	require.NoError(t, plotResults(pngPath, results))
	info, err := os.Stat(pngPath)
	require.NoError(t, err)
	require.Positive(t, info.Size())
}

func TestPrintTree(t *testing.T) {
	cfg := bptree.DefaultConfig(t.TempDir(), "dump", codec.Int64{}, codec.String{})
	cfg.Degree = 2
	tree, err := bptree.Open(cfg)
	require.NoError(t, err)
	defer tree.Close()
	for k := int64(1); k <= 6; k++ {
		require.NoError(t, tree.Insert(k, "v"))
	}

	var buf bytes.Buffer
	require.NoError(t, printTree(&buf, tree))
	out := buf.String()
	require.Contains(t, out, "height=2 nodes=5 leaves=4 keys=6")
	require.Contains(t, out, "[2 3 4]")
	require.Contains(t, out, "(4 5 6)")
	require.NotContains(t, out, "check:")
}
