package performance

import (
	"context"
	"time"
)

// Benchmark runs a dispatch function repeatedly under a Profiler.
type Benchmark struct {
	name     string
	profiler *Profiler
}

// NewBenchmark creates a benchmark with the given profiler configuration.
func NewBenchmark(config *ProfilerConfig) *Benchmark {
	if config == nil {
		config = DefaultProfilerConfig("benchmark")
	}
	return &Benchmark{
		name:     config.Name,
		profiler: NewProfiler(config),
	}
}

// Profiler returns the benchmark's profiler.
func (b *Benchmark) Profiler() *Profiler { return b.profiler }

// Run calls fn iterations times, or until ctx is done, timing each call.
// fn returns the number of items the call covered.
func (b *Benchmark) Run(ctx context.Context, iterations int, fn func() int) (*ProfileResult, error) {
	if err := b.profiler.Start(); err != nil {
		return nil, err
	}

	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			b.profiler.Stop()
			return b.profiler.GenerateReport(), err
		}
		start := time.Now()
		items := fn()
		b.profiler.RecordDispatch(time.Since(start), items)
	}

	b.profiler.Stop()
	return b.profiler.GenerateReport(), nil
}
