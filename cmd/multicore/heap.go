package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/multicore/pkg/heap"
	"github.com/ajitpratap0/multicore/pkg/threadpool"
)

type heapResult struct {
	Total  heap.Stats   `json:"total"`
	Heaps  []heap.Stats `json:"heaps"`
	Errors int64        `json:"errors"`
}

func (a *app) heapCommand() *cobra.Command {
	var (
		allocs   int
		maxBytes int
		rounds   int
		jsonOut  bool
	)
	cmd := &cobra.Command{
		Use:   "heap",
		Short: "Churn every worker's local heap and report allocator statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runHeap(allocs, maxBytes, rounds, jsonOut)
		},
	}
	cmd.Flags().IntVar(&allocs, "allocs", 10_000, "Allocations per thread per round")
	cmd.Flags().IntVar(&maxBytes, "max-bytes", 512, "Largest allocation size in bytes")
	cmd.Flags().IntVar(&rounds, "rounds", 4, "Rounds of allocate-then-free")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")
	return cmd
}

func (a *app) runHeap(allocs, maxBytes, rounds int, jsonOut bool) error {
	if allocs <= 0 || maxBytes <= 0 || rounds <= 0 {
		return fmt.Errorf("allocs, max-bytes and rounds must be positive")
	}
	pool := a.registry.Pool(threadpool.MainOwner)
	errs := make([]int64, pool.NumThreads()+1)

	for round := 0; round < rounds; round++ {
		pool.Run(func(s threadpool.Shard) {
			h := s.Heap()
			rng := rand.New(rand.NewSource(int64(round*1000 + s.ThreadNum)))
			live := make([][]byte, 0, allocs)
			for i := 0; i < allocs; i++ {
				b, err := h.Alloc(1 + rng.Intn(maxBytes))
				if err != nil {
					errs[s.ThreadNum]++
					continue
				}
				b[0] = byte(i)
				live = append(live, b)
				// Free about a third immediately so later allocations reuse runs.
				if rng.Intn(3) == 0 {
					j := rng.Intn(len(live))
					if h.Free(live[j]) != nil {
						errs[s.ThreadNum]++
					}
					live[j] = live[len(live)-1]
					live = live[:len(live)-1]
				}
			}
			rng.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })
			for _, b := range live {
				if h.Free(b) != nil {
					errs[s.ThreadNum]++
				}
			}
		})
	}

	res := heapResult{Heaps: pool.HeapStats()}
	res.Total.Name = "total"
	for _, st := range res.Heaps {
		res.Total.Add(st)
	}
	for _, e := range errs {
		res.Errors += e
	}

	a.log.Info("heap churn complete",
		zap.Int64("allocs", res.Total.Allocs),
		zap.Int64("reused", res.Total.Reused),
		zap.Int64("errors", res.Errors))

	if jsonOut {
		return printJSON(res)
	}
	fmt.Printf("%-16s %8s %10s %10s %10s %10s\n", "heap", "blocks", "reserved", "allocs", "reused", "free_runs")
	for _, st := range append(res.Heaps, res.Total) {
		fmt.Printf("%-16s %8d %10d %10d %10d %10d\n",
			st.Name, st.Blocks, st.ReservedBytes, st.Allocs, st.Reused, st.FreeRuns)
	}
	if res.Errors > 0 {
		return fmt.Errorf("%d allocator errors", res.Errors)
	}
	return nil
}
