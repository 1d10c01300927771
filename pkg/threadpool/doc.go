// Package threadpool dispatches a function across a fixed set of pre-spawned
// worker OS threads.
//
// Each caller identity (Owner) gets its own Pool from a Registry. A Pool
// creates one worker per logical processor on its first parallel dispatch and
// parks them between dispatches, so a dispatch costs a few mutex hand-offs
// rather than thread creation.
//
// # Dispatch
//
// Run blocks until every shard is done. The calling goroutine executes shard
// 0 itself after releasing the workers for shards 1..T-1:
//
//	pool := threadpool.Default().Pool(threadpool.MainOwner)
//	pool.RunLoop(len(pixels), func(s threadpool.Shard, i int) {
//		pixels[i] = filter(pixels[i])
//	})
//
// RunNoWait releases all T shards to workers and returns; Wait joins them.
// Fewer than MinParallelThreads threads, or the SingleThreaded option, runs
// the whole call inline with ThreadNum 0 and NumThreads 1.
//
// # Hand-off
//
// Every worker record carries three mutexes (start, stop, run). At rest the
// controller holds start and stop and the worker holds run. Unlocking start
// releases the worker; the worker and controller then trade the three locks
// so that a new generation cannot begin on a record until the controller has
// seen the previous one reach StepDone. Go mutexes are not tied to the
// goroutine that locked them, which lets a pool be driven from any goroutine
// as long as only one drives it at a time. A second concurrent controller is
// detected and treated as fatal.
//
// # Thread count
//
// NumThreads is the logical processor count, minus one for a ThreadTypeMain
// pool while the servo loop runs, clamped to the pool's MaxThreads and the
// process-wide MaxCores. It is computed once per dispatch and that snapshot
// is what Wait joins.
//
// # Heaps
//
// Each worker owns a heap.Stack. Shard.Heap returns the executing thread's
// current heap and Shard.UseHeap borrows another for a scope.
package threadpool
