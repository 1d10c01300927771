// Package multicore runs data-parallel work on OS-thread-locked worker pools,
// one pool per owning loop, with a slab heap per worker thread.
//
// # Architecture
//
// A caller that owns a pool (the main loop, a servo loop, or any named
// owner) hands it a callable. The pool splits the callable into one shard
// per worker thread and hands each worker its shard through a three-mutex
// relay, so a worker never spins while idle and the controller never
// allocates per dispatch.
//
//  1. Pools: workers start on the first parallel dispatch and are locked to
//     their OS threads for life. A dispatch with fewer than three threads
//     runs inline on the caller.
//
//  2. Thread-local heaps: every worker, and every controller, allocates from
//     its own LocalHeap. Allocation never takes a lock and freed runs are
//     reused first-fit from a free list ordered by size.
//
//  3. Processor budget: a main-type pool leaves one processor to a running
//     servo loop, and a process-wide core cap bounds every pool.
//
// # Quick Start
//
//	import (
//	    "github.com/ajitpratap0/multicore/pkg/psort"
//	    "github.com/ajitpratap0/multicore/pkg/threadpool"
//	)
//
//	func main() {
//	    owner := threadpool.MainOwner
//	    defer threadpool.Shutdown(owner)
//
//	    sums := make([]int, threadpool.NumThreads(owner))
//	    threadpool.RunLoop(owner, 1_000_000, func(s threadpool.Shard, i int) {
//	        sums[s.ThreadNum] += i
//	    })
//
//	    p := threadpool.Default().Pool(owner)
//	    _ = psort.Sort(p, data)
//	}
//
// # Packages
//
//	pkg/threadpool   - Pools, registry, dispatch and process-wide settings
//	pkg/heap         - Per-thread slab allocator and heap scoping
//	pkg/psort        - Parallel merge sort built on a pool
//	pkg/config       - YAML configuration with environment substitution
//	pkg/errors       - Structured error handling
//	pkg/logger       - Structured logging
//	pkg/metrics      - Prometheus dispatch and heap metrics
//	pkg/observability - OpenTelemetry tracing
//	pkg/performance  - Profiling, benchmarking and OS resource sampling
//
// # Configuration
//
//	pool:
//	  max_threads: 0          # per pool, 0 = every processor
//	  max_cores: 0            # process wide, 0 = unbounded
//	  processor_targeting: false
//	  poll_interval: 20us
//	heap:
//	  chunk_size: 16
//	  block_chunks: 4096
//	  guard_bands: false
//
// Environment variables are supported with ${VAR_NAME} syntax, and the CLI
// also reads MULTICORE_<SECTION>_<KEY> overrides.
//
// # Development
//
//	go test ./...
//	go run ./cmd/multicore bench --dispatches 10000
//	go run ./cmd/multicore sort -n 10000000
package multicore
