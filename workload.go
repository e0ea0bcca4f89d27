package main

import (
	"math/rand/v2"

	"github.com/go-faker/faker/v4"

	"github.com/btree-query-bench/vlogdb/dbms/index"
	"github.com/btree-query-bench/vlogdb/dbms/index/bptree"
)

type WorkloadType string

const (
	OLTP      WorkloadType = "OLTP (90/10)"
	OLAP      WorkloadType = "OLAP (10/90)"
	Reporting WorkloadType = "Reporting (Range)"
	Churn     WorkloadType = "Churn (50/50 delete/insert)"
)

// upsertTree gives the tree the replace-on-insert semantics pebble has, so
// both run the same workloads.
type upsertTree struct {
	*bptree.Tree[int64, string]
}

func (u upsertTree) Insert(key int64, value string) error {
	if u.Contains(key) {
		if err := u.Remove(key); err != nil {
			return err
		}
	}
	return u.Tree.Insert(key, value)
}

// ExecuteWorkload runs a mixed distribution of ops over keys in [0, keys).
func ExecuteWorkload(idx index.Index[int64, string], wType WorkloadType, ops, keys int, rng *rand.Rand) error {
	for i := 0; i < ops; i++ {
		choice := rng.IntN(100)
		key := rng.Int64N(int64(keys))

		var err error
		switch wType {
		case OLTP:
			if choice < 90 {
				_, _, err = idx.Get(key)
			} else {
				err = idx.Insert(key, faker.Word())
			}
		case OLAP:
			if choice < 10 {
				_, _, err = idx.Get(key)
			} else {
				err = idx.Insert(key, faker.Word())
			}
		case Reporting:
			var it index.Iterator[int64, string]
			it, err = idx.Range(key, key+100)
			if err == nil {
				_, _, err = index.Collect(it)
			}
		case Churn:
			if choice < 50 {
				err = idx.Delete(key)
			} else {
				err = idx.Insert(key, faker.Word())
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}
