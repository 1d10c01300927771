package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/multicore/pkg/heap"
	"github.com/ajitpratap0/multicore/pkg/observability"
	"github.com/ajitpratap0/multicore/pkg/psort"
	"github.com/ajitpratap0/multicore/pkg/threadpool"
)

type sortResult struct {
	Items    int              `json:"items"`
	Seed     int64            `json:"seed"`
	Elapsed  time.Duration    `json:"elapsed_ns"`
	Sorted   bool             `json:"sorted"`
	Pool     threadpool.Stats `json:"pool"`
	HeapSums heap.Stats       `json:"heaps"`
}

func (a *app) sortCommand() *cobra.Command {
	var (
		n       int
		seed    int64
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "sort",
		Short: "Sort random integers with the parallel merge sort",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSort(cmd.Context(), n, seed, jsonOut)
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 1_000_000, "Number of values to sort")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Random seed")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")
	return cmd
}

func (a *app) runSort(ctx context.Context, n int, seed int64, jsonOut bool) error {
	if n < 0 {
		return fmt.Errorf("n must be non-negative")
	}
	rng := rand.New(rand.NewSource(seed))
	data := make([]int64, n)
	for i := range data {
		data[i] = rng.Int63()
	}

	pool := a.registry.Pool(threadpool.MainOwner)
	tracer := observability.NewPoolTracer(pool.Owner().String())

	start := time.Now()
	err := tracer.TraceDispatch(ctx, "sort", n, func(ctx context.Context) error {
		observability.LoggerWithSpan(ctx, a.log).Debug("sorting", zap.Int("items", n))
		return psort.Sort(pool, data)
	})
	if err != nil {
		return err
	}

	res := sortResult{
		Items:   n,
		Seed:    seed,
		Elapsed: time.Since(start),
		Sorted:  psort.IsSorted(data),
		Pool:    pool.Stats(),
	}
	res.HeapSums.Name = "total"
	for _, st := range pool.HeapStats() {
		res.HeapSums.Add(st)
	}
	if !res.Sorted {
		return fmt.Errorf("output is not sorted")
	}

	a.log.Info("sort complete", zap.Int("items", n), zap.Duration("elapsed", res.Elapsed))
	if jsonOut {
		return printJSON(res)
	}
	fmt.Printf("Sorted %d values in %v on %d threads\n", n, res.Elapsed, res.Pool.NumThreads)
	fmt.Printf("Scratch heaps: %d blocks, %d bytes reserved, %d allocs, %d live\n",
		res.HeapSums.Blocks, res.HeapSums.ReservedBytes, res.HeapSums.Allocs, res.HeapSums.LiveAllocs)
	return nil
}
