package main

import (
	"encoding/csv"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-faker/faker/v4"
	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/btree-query-bench/vlogdb/dbms/codec"
	"github.com/btree-query-bench/vlogdb/dbms/index"
	"github.com/btree-query-bench/vlogdb/dbms/index/bptree"
	"github.com/btree-query-bench/vlogdb/dbms/index/lsm"
)

type BenchResult struct {
	Name      string
	Config    string
	Operation string
	LatencyNs int64
	MemMB     uint64
	Objects   uint64
}

type MemoryStats struct {
	AllocMB      uint64
	TotalAllocMB uint64
	HeapObjects  uint64
}

func GetDetailedMem() MemoryStats {
	var m runtime.MemStats
	// Force GC to ensure we measure actual live data, not garbage
	runtime.GC()
	runtime.ReadMemStats(&m)
	return MemoryStats{
		AllocMB:      m.Alloc / 1024 / 1024,
		TotalAllocMB: m.TotalAlloc / 1024 / 1024,
		HeapObjects:  m.HeapObjects,
	}
}

var csvHeader = []string{"Structure", "Config", "TestType", "LatencyNs", "MemMB", "HeapObjects"}

func Record(w *csv.Writer, res BenchResult) error {
	return w.Write([]string{
		res.Name,
		res.Config,
		res.Operation,
		strconv.FormatInt(res.LatencyNs, 10),
		strconv.FormatUint(res.MemMB, 10),
		strconv.FormatUint(res.Objects, 10),
	})
}

func runBench(logger *zap.Logger) error {
	ds, err := parseDegrees(*degrees)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(*dir, 0o755); err != nil {
		return err
	}

	var results []BenchResult
	for _, d := range ds {
		res, err := benchTree(logger, d, *scale)
		if err != nil {
			return errors.Wrapf(err, "bptree t=%d", d)
		}
		results = append(results, res...)
	}
	res, err := benchPebble(logger, *scale)
	if err != nil {
		return errors.Wrap(err, "pebble")
	}
	results = append(results, res...)

	if err := writeCSV(*csvOut, results); err != nil {
		return err
	}
	if *plotOut != "" {
		if err := plotResults(*plotOut, results); err != nil {
			return err
		}
	}
	logger.Info("benchmark complete",
		zap.String("csv", *csvOut),
		zap.String("plot", *plotOut),
		zap.Int("results", len(results)))
	return nil
}

func benchTree(logger *zap.Logger, degree, n int) ([]BenchResult, error) {
	cfg := bptree.DefaultConfig(*dir, fmt.Sprintf("bench-t%d", degree), codec.Int64{}, codec.String{})
	cfg.Degree = degree
	cfg.Logger = logger
	for _, suffix := range []string{".vlog", ".snap"} {
		_ = os.Remove(filepath.Join(cfg.Dir, cfg.Name+suffix))
	}

	tree, err := bptree.Open(cfg)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	conf := strconv.Itoa(degree)
	results, err := runSuite("BPlusTree", conf, upsertTree{tree}, n)
	if err != nil {
		return nil, err
	}

	// Compaction rewrites every live value once.
	start := time.Now()
	values, err := tree.GetAllValues()
	if err != nil {
		return nil, err
	}
	if err := tree.Compact(values); err != nil {
		return nil, err
	}
	results = append(results, BenchResult{"BPlusTree", conf, "Compact", perOp(time.Since(start), len(values)), GetDetailedMem().AllocMB, 0})

	if err := tree.Check(); err != nil {
		return nil, err
	}
	stats := tree.Stats()
	logger.Info("tree benchmarked",
		zap.Int("degree", degree),
		zap.Int("height", stats.Height),
		zap.Int("nodes", stats.Nodes),
		zap.Int("keys", stats.Keys),
		zap.Int64("log_bytes", stats.LogBytes))
	return results, tree.Save()
}

func benchPebble(logger *zap.Logger, n int) ([]BenchResult, error) {
	path := filepath.Join(*dir, "pebble")
	if err := os.RemoveAll(path); err != nil {
		return nil, err
	}
	db, err := lsm.Open(path, logger)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return runSuite("Pebble", "default", db, n)
}

func runSuite(name, conf string, idx index.Index[int64, string], n int) ([]BenchResult, error) {
	fmt.Printf("Testing %s (Config: %s)\n", name, conf)
	rng := rand.New(rand.NewPCG(uint64(n), 1))
	var results []BenchResult

	// 1. Pure Insert (Initial Load)
	start := time.Now()
	for k := 0; k < n; k++ {
		if err := idx.Insert(int64(k), faker.Word()); err != nil {
			return nil, err
		}
	}
	insertLatency := perOp(time.Since(start), n)

	// Measure memory immediately after load but before workloads
	stats := GetDetailedMem()
	results = append(results, BenchResult{name, conf, "Footprint_SteadyState", insertLatency, stats.AllocMB, stats.HeapObjects})

	suites := []struct {
		op  string
		w   WorkloadType
		ops int
	}{
		{"Workload_OLTP", OLTP, n / 2},
		{"Workload_OLAP", OLAP, n / 2},
		{"Workload_Range", Reporting, 100},
		{"Workload_Churn", Churn, n / 4},
	}
	for _, s := range suites {
		start = time.Now()
		if err := ExecuteWorkload(idx, s.w, s.ops, n, rng); err != nil {
			return nil, errors.Wrapf(err, "%s", s.op)
		}
		results = append(results, BenchResult{name, conf, s.op, perOp(time.Since(start), s.ops), GetDetailedMem().AllocMB, 0})
	}
	return results, nil
}

func perOp(d time.Duration, ops int) int64 {
	if ops <= 0 {
		return 0
	}
	return d.Nanoseconds() / int64(ops)
}

func writeCSV(path string, results []BenchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range results {
		if err := Record(w, r); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// plotResults draws one bar group per operation, one bar per structure.
func plotResults(path string, results []BenchResult) error {
	var (
		ops     []string
		series  []string
		latency = make(map[string]map[string]float64)
	)
	for _, r := range results {
		s := r.Name + " " + r.Config
		if _, ok := latency[s]; !ok {
			latency[s] = make(map[string]float64)
			series = append(series, s)
		}
		if !slices.Contains(ops, r.Operation) {
			ops = append(ops, r.Operation)
		}
		latency[s][r.Operation] = float64(r.LatencyNs)
	}

	p := plot.New()
	p.Title.Text = "Latency per operation"
	p.Y.Label.Text = "ns/op"

	width := vg.Points(12)
	for i, s := range series {
		vals := make(plotter.Values, len(ops))
		for j, op := range ops {
			vals[j] = latency[s][op]
		}
		bars, err := plotter.NewBarChart(vals, width)
		if err != nil {
			return err
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(i)
		bars.Offset = width * vg.Length(i-len(series)/2)
		p.Add(bars)
		p.Legend.Add(s, bars)
	}
	p.Legend.Top = true
	p.NominalX(ops...)

	return p.Save(10*vg.Inch, 5*vg.Inch, path)
}
