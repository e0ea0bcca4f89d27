package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/go-faker/faker/v4"
	"go.uber.org/zap"

	"github.com/btree-query-bench/vlogdb/dbms/codec"
	"github.com/btree-query-bench/vlogdb/dbms/index/bptree"
	"github.com/btree-query-bench/vlogdb/dbms/store"
)

var (
	internalColor = color.New(color.FgBlue, color.Bold)
	leafColor     = color.New(color.FgGreen)
	metaColor     = color.New(color.FgHiBlack)
	errColor      = color.New(color.FgRed, color.Bold)
)

// runDump loads a saved benchmark tree and prints it level by level.
func runDump(logger *zap.Logger) error {
	cfg := bptree.DefaultConfig(*dir, *name, codec.Int64{}, codec.String{})
	cfg.Logger = logger
	tree, err := bptree.Open(cfg)
	if err != nil {
		return err
	}
	defer tree.Close()

	if err := printTree(os.Stdout, tree); err != nil {
		return err
	}

	if *dotOut != "" {
		f, err := os.Create(*dotOut)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := tree.WriteDOT(f); err != nil {
			return err
		}
		logger.Info("dot written", zap.String("path", *dotOut))
	}
	return nil
}

func printTree[K, V any](w io.Writer, tree *bptree.Tree[K, V]) error {
	s := tree.Stats()
	metaColor.Fprintf(w, "height=%d nodes=%d leaves=%d keys=%d free=%d log=%dB\n",
		s.Height, s.Nodes, s.Leaves, s.Keys, s.FreeNodes, s.LogBytes)

	err := tree.Walk(func(n bptree.NodeInfo[K]) error {
		indent := strings.Repeat("  ", n.Depth)
		keys := make([]string, len(n.Keys))
		for i, k := range n.Keys {
			keys[i] = fmt.Sprint(k)
		}
		if !n.Leaf {
			internalColor.Fprintf(w, "%s[%s]", indent, strings.Join(keys, " "))
			metaColor.Fprintf(w, " #%d children=%v\n", n.ID, n.Children)
			return nil
		}
		values, err := tree.LeafValues(n.ID)
		if err != nil {
			return err
		}
		leafColor.Fprintf(w, "%s(%s)", indent, strings.Join(keys, " "))
		metaColor.Fprintf(w, " #%d @%d next=%d values=%d\n", n.ID, n.Offset, n.Next, len(values))
		return nil
	})
	if err != nil {
		return err
	}

	if err := tree.Check(); err != nil {
		errColor.Fprintf(w, "check: %v\n", err)
	}
	return nil
}

// runSeed fills a store table with faker rows and prints its key index.
func runSeed(logger *zap.Logger) error {
	cfg := store.DefaultConfig(*dir)
	cfg.Logger = logger
	s, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	inserted := 0
	for i := 0; i < *scale; i++ {
		key := []string{faker.LastName(), faker.FirstName()}
		row := []string{faker.Email(), faker.Word() + " " + faker.Word()}
		switch err := s.Insert(*table, key, row); {
		case err == nil:
			inserted++
		case errors.Is(err, store.ErrDuplicateKey):
		default:
			return err
		}
	}

	tb, err := s.Table(*table)
	if err != nil {
		return err
	}
	logger.Info("table seeded",
		zap.String("table", *table),
		zap.Int("inserted", inserted),
		zap.Int("rows", tb.Len()))
	return printTree(os.Stdout, tb.Index())
}
