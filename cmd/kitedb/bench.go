package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/latticedb/lattice/pkg/tuple"
)

// benchSchema is a small fixed two-column table (id int, payload
// string) — enough to exercise InsertTuple/DeleteTuple without
// needing any SQL layer to describe it.
func benchSchema() tuple.TupleDesc {
	return tuple.NewTupleDesc(
		tuple.IntFieldDesc("id"),
		tuple.StringFieldDesc("payload", 32),
	)
}

func benchCmd() *cobra.Command {
	var dir string
	var configFile string
	var transactions int
	var rowsPerTxn int

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Open a heap table and hammer it with concurrent insert/delete transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(dir, configFile, transactions, rowsPerTxn)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "directory to create the benchmark table in")
	cmd.Flags().StringVar(&configFile, "config", "", "HCL config file (optional)")
	cmd.Flags().IntVar(&transactions, "transactions", 8, "number of concurrent transactions")
	cmd.Flags().IntVar(&rowsPerTxn, "rows", 100, "rows each transaction inserts (a random subset is then deleted)")
	return cmd
}

func runBench(dir, configFile string, transactions, rowsPerTxn int) error {
	db, err := OpenDB(configFile)
	if err != nil {
		return err
	}
	desc := benchSchema()
	tableID, err := db.OpenHeapTable(dir, "bench", desc)
	if err != nil {
		return err
	}

	start := time.Now()
	var wg sync.WaitGroup
	errs := make(chan error, transactions)

	for i := 0; i < transactions; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			errs <- benchWorker(db, tableID, worker, rowsPerTxn)
		}(i)
	}
	wg.Wait()
	close(errs)

	var failures int
	for err := range errs {
		if err != nil {
			failures++
			db.Log.WithError(err).Warn("bench worker failed")
		}
	}

	elapsed := time.Since(start)
	fmt.Printf("%d transactions, %d rows each, %d failed, %s elapsed\n",
		transactions, rowsPerTxn, failures, elapsed)
	return nil
}

func benchWorker(db *DB, tableID uint64, worker, rows int) error {
	ctxGo, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx := db.Begin(ctxGo)
	inserted := make([]*tuple.Tuple, 0, rows)

	for i := 0; i < rows; i++ {
		row := newBenchRow(worker, i)
		if err := tx.InsertTuple(tableID, row); err != nil {
			_ = tx.Abort()
			return err
		}
		inserted = append(inserted, row)
	}

	for _, row := range inserted {
		if rand.Intn(2) == 0 {
			if err := tx.DeleteTuple(tableID, row); err != nil {
				_ = tx.Abort()
				return err
			}
		}
	}

	return tx.Commit()
}

func newBenchRow(worker, i int) *tuple.Tuple {
	desc := benchSchema()
	t := tuple.New(desc)
	_ = t.SetField(0, tuple.IntField{Value: int32(worker*1_000_000 + i)})
	_ = t.SetField(1, tuple.StringField{Value: fmt.Sprintf("worker-%d-row-%d", worker, i), MaxLen: 32})
	return t
}
