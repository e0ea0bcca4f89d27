package bptree

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/btree-query-bench/vlogdb/dbms/codec"
	"github.com/btree-query-bench/vlogdb/dbms/index"
	"github.com/btree-query-bench/vlogdb/dbms/index/lsm"
)

// put upserts into the tree, which itself does not replace existing keys.
func put(t *testing.T, tr *Tree[int64, string], k int64, v string) {
	t.Helper()
	if tr.Contains(k) {
		require.NoError(t, tr.Delete(k))
	}
	require.NoError(t, tr.Insert(k, v))
}

func TestMatchesPebble(t *testing.T) {
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)

	cfg := DefaultConfig(filepath.Join(dir, "tree"), "diff", codec.Int64{}, codec.String{})
	cfg.Degree = 3
	cfg.Logger = logger
	tr, err := Open(cfg)
	require.NoError(t, err)
	defer tr.Close()

	ref, err := lsm.Open(filepath.Join(dir, "pebble"), logger)
	require.NoError(t, err)
	defer ref.Close()

	indexes := []index.Index[int64, string]{tr, ref}
	rng := rand.New(rand.NewPCG(42, 42))

	for i := 0; i < 3000; i++ {
		k := rng.Int64N(500) - 250
		switch rng.IntN(4) {
		case 0:
			for _, ix := range indexes {
				require.NoError(t, ix.Delete(k))
			}
		default:
			// Values with spaces and separators exercise the string codec.
			v := fmt.Sprintf("value %d|%d, %%", k, i)
			put(t, tr, k, v)
			require.NoError(t, ref.Insert(k, v))
		}

		if i%250 == 0 {
			require.NoError(t, tr.Check())
		}
	}
	require.NoError(t, tr.Check())

	for i := 0; i < 100; i++ {
		lo := rng.Int64N(600) - 300
		hi := lo + rng.Int64N(200)

		it, err := tr.Range(lo, hi)
		require.NoError(t, err)
		gotKeys, gotVals, err := index.Collect(it)
		require.NoError(t, err)

		it, err = ref.Range(lo, hi)
		require.NoError(t, err)
		wantKeys, wantVals, err := index.Collect(it)
		require.NoError(t, err)

		require.Equal(t, wantKeys, gotKeys, "range [%d, %d]", lo, hi)
		require.Equal(t, wantVals, gotVals, "range [%d, %d]", lo, hi)
	}

	for k := int64(-260); k <= 260; k++ {
		want, wantOK, err := ref.Get(k)
		require.NoError(t, err)
		got, gotOK, err := tr.Get(k)
		require.NoError(t, err)
		require.Equal(t, wantOK, gotOK, "key %d", k)
		require.Equal(t, want, got, "key %d", k)
	}
}
