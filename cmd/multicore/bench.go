package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/multicore/pkg/observability"
	"github.com/ajitpratap0/multicore/pkg/performance"
	"github.com/ajitpratap0/multicore/pkg/threadpool"
)

type benchOptions struct {
	dispatches int
	maxIdx     int
	async      bool
	servo      bool
	jsonOut    bool
	cpuProfile string
}

type benchResult struct {
	*performance.ProfileResult
	Pool          threadpool.Stats `json:"pool"`
	ThreadsBefore int32            `json:"os_threads_before_shutdown"`
	ThreadsAfter  int32            `json:"os_threads_after_shutdown"`
}

func (a *app) benchCommand() *cobra.Command {
	var opts benchOptions
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure dispatch throughput of the main pool",
		Long: `Dispatch a striding loop repeatedly on the main pool and report
dispatch latency, throughput and OS thread usage. Worker threads are shut
down at the end, and the OS thread count is sampled before and after.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBench(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.dispatches, "dispatches", 1000, "Number of dispatches")
	cmd.Flags().IntVar(&opts.maxIdx, "max-idx", 4096, "Loop indices per dispatch")
	cmd.Flags().BoolVar(&opts.async, "async", false, "Dispatch without waiting, then join")
	cmd.Flags().BoolVar(&opts.servo, "servo", false, "Reserve a processor for a running servo loop")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the result as JSON")
	cmd.Flags().StringVar(&opts.cpuProfile, "cpuprofile", "", "Write a CPU profile to this file")
	return cmd
}

func (a *app) runBench(ctx context.Context, opts benchOptions) error {
	if opts.dispatches <= 0 || opts.maxIdx < 0 {
		return fmt.Errorf("dispatches must be positive and max-idx non-negative")
	}

	a.registry.Settings().SetServoRunning(opts.servo)
	pool := a.registry.Pool(threadpool.MainOwner)

	cfg := performance.DefaultProfilerConfig("bench")
	cfg.CPUProfilePath = opts.cpuProfile
	bench := performance.NewBenchmark(cfg)

	sums := make([]int64, pool.NumThreads()+1)
	var total atomic.Int64
	work := func(s threadpool.Shard, idx int) {
		sums[s.ThreadNum] += int64(idx)
	}

	tracer := observability.NewPoolTracer(pool.Owner().String())
	var result *performance.ProfileResult
	err := tracer.TraceDispatch(ctx, "bench", opts.dispatches*opts.maxIdx, func(ctx context.Context) error {
		var err error
		result, err = bench.Run(ctx, opts.dispatches, func() int {
			if opts.async {
				pool.RunLoopNoWait(opts.maxIdx, work)
				pool.Wait()
			} else {
				pool.RunLoop(opts.maxIdx, work)
			}
			total.Add(int64(opts.maxIdx))
			return opts.maxIdx
		})
		return err
	})
	if err != nil {
		return err
	}

	var checksum int64
	for _, s := range sums {
		checksum += s
	}
	want := int64(opts.dispatches) * int64(opts.maxIdx) * int64(opts.maxIdx-1) / 2
	if opts.maxIdx > 0 && checksum != want {
		return fmt.Errorf("loop checksum %d, expected %d", checksum, want)
	}

	out := benchResult{ProfileResult: result, Pool: pool.Stats()}
	monitor, err := performance.NewResourceMonitor()
	if err != nil {
		a.log.Warn("thread accounting unavailable", zap.Error(err))
	} else {
		out.ThreadsBefore, _ = monitor.ThreadCount()
		a.registry.Shutdown(threadpool.MainOwner)
		out.ThreadsAfter, _ = monitor.ThreadCount()
	}

	a.log.Info("benchmark complete",
		zap.Int64("items", total.Load()),
		zap.Int("threads", out.Pool.Threads),
		zap.Int32("os_threads_before", out.ThreadsBefore),
		zap.Int32("os_threads_after", out.ThreadsAfter))

	if opts.jsonOut {
		return printJSON(out)
	}
	fmt.Print(result.Report)
	fmt.Printf("\nPool: %d workers, %d pooled / %d inline / %d async dispatches\n",
		out.Pool.Threads, out.Pool.Pooled, out.Pool.Inline, out.Pool.Async)
	fmt.Printf("OS threads: %d before shutdown, %d after\n", out.ThreadsBefore, out.ThreadsAfter)
	return nil
}
