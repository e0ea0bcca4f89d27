package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

var (
	mode    = flag.String("mode", "bench", "bench | dump | seed")
	dir     = flag.String("dir", "data", "Directory for tree, pebble and store files.")
	degrees = flag.String("degrees", "3,8,32", "Comma-separated B+ tree minimum degrees to benchmark.")
	scale   = flag.Int("n", 100000, "Number of keys loaded per benchmark suite, or rows seeded.")
	csvOut  = flag.String("out", "results.csv", "Benchmark CSV output.")
	plotOut = flag.String("plot", "results.png", "Benchmark bar chart output, empty to skip.")
	name    = flag.String("name", "bench-t3", "Tree to dump, relative to -dir.")
	dotOut  = flag.String("dot", "", "Write the dumped tree as Graphviz DOT to this file.")
	table   = flag.String("table", "people", "Table to seed.")
	jsonLog = flag.Bool("json", false, "Log JSON instead of the development console format.")
)

func main() {
	flag.Parse()

	logger, err := newLogger(*jsonLog)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	switch *mode {
	case "bench":
		err = runBench(logger)
	case "dump":
		err = runDump(logger)
	case "seed":
		err = runSeed(logger)
	default:
		err = errors.Newf("unknown mode %q", *mode)
	}
	if err != nil {
		logger.Error("run failed", zap.String("mode", *mode), zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(json bool) (*zap.Logger, error) {
	if json {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func parseDegrees(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		d, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Wrapf(err, "degree %q", f)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, errors.New("no degrees given")
	}
	return out, nil
}
