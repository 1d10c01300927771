package threadpool

import (
	"github.com/ajitpratap0/multicore/pkg/heap"
)

// Shard tells a callable which slice of the work it owns.
type Shard struct {
	// ThreadNum is the executing thread's slot, in [0, NumThreads)
	ThreadNum int
	// NumThreads is the number of threads taking part in this dispatch
	NumThreads int

	heaps *heap.Stack
}

// Heap returns the executing thread's current heap.
func (s Shard) Heap() *heap.LocalHeap {
	return s.heaps.Current()
}

// UseHeap makes h the executing thread's current heap until restore runs.
func (s Shard) UseHeap(h *heap.LocalHeap) (restore func()) {
	return s.heaps.Push(h)
}

// Range returns the contiguous block [lo, hi) of n items owned by this shard.
// Blocks differ in size by at most one and cover [0, n) exactly.
func (s Shard) Range(n int) (lo, hi int) {
	t := s.NumThreads
	if t <= 0 {
		t = 1
	}
	return n * s.ThreadNum / t, n * (s.ThreadNum + 1) / t
}

// Func is a callable that does its own striding from its Shard.
type Func func(Shard)

// LoopFunc is called once per index; the pool strides the indices.
type LoopFunc func(s Shard, idx int)

// Runner is the method form of Func.
type Runner interface {
	RunShard(s Shard)
}

// LoopRunner is the method form of LoopFunc.
type LoopRunner interface {
	RunIndex(s Shard, idx int)
}

// task is the work descriptor of one dispatch. Workers only read it.
type task struct {
	fn         Func
	loop       LoopFunc
	maxIdx     int
	numThreads int
}

func (t *task) run(s Shard) {
	if t.loop == nil {
		t.fn(s)
		return
	}
	for i := s.ThreadNum; i < t.maxIdx; i += s.NumThreads {
		t.loop(s, i)
	}
}

// RunOption adjusts a single dispatch.
type RunOption func(*runOptions)

type runOptions struct {
	multiThread bool
}

// SingleThreaded runs the dispatch inline on the calling goroutine.
func SingleThreaded() RunOption {
	return MultiThread(false)
}

// MultiThread enables or disables pooled execution for the dispatch.
func MultiThread(enabled bool) RunOption {
	return func(o *runOptions) {
		o.multiThread = enabled
	}
}

func applyOptions(opts []RunOption) runOptions {
	o := runOptions{multiThread: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
