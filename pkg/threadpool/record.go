package threadpool

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/multicore/internal/affinity"
	"github.com/ajitpratap0/multicore/pkg/errors"
	"github.com/ajitpratap0/multicore/pkg/heap"
)

// record is one worker OS thread and its three relay mutexes.
type record struct {
	threadNum int
	step      atomic.Int32

	// Written by the controller before it unlocks startMu.
	generation uint64
	task       *task

	// Worker-local.
	seen      uint64
	runCount  uint64
	pinned    bool
	pinWarned bool

	// failure is written before step becomes StepDone.
	failure *ShardPanic
	// completed is the last generation this worker finished.
	completed atomic.Uint64

	startMu sync.Mutex
	stopMu  sync.Mutex
	runMu   sync.Mutex

	ready  chan struct{}
	exited chan struct{}

	heaps *heap.Stack
	base  atomic.Pointer[heap.LocalHeap]
}

func newRecord(threadNum int, name string, newHeap heapFactory) *record {
	r := &record{
		threadNum: threadNum,
		ready:     make(chan struct{}),
		exited:    make(chan struct{}),
	}
	r.heaps = heap.NewStack(func() *heap.LocalHeap {
		h := newHeap(name)
		r.base.Store(h)
		return h
	})
	return r
}

type heapFactory func(name string) *heap.LocalHeap

func (r *record) loadStep() Step { return Step(r.step.Load()) }

// work is the worker goroutine. It stays locked to its OS thread and never
// unlocks, so the thread ends with the goroutine.
func (p *Pool) work(r *record) {
	runtime.LockOSThread()
	defer close(r.exited)

	r.runMu.Lock()
	close(r.ready)

	for {
		r.startMu.Lock()
		exiting := p.accept(r)
		r.completed.Store(r.seen)
		r.step.Store(int32(StepDone))
		r.runMu.Unlock()
		r.stopMu.Lock()
		r.startMu.Unlock()
		if exiting {
			r.stopMu.Unlock()
			return
		}
		r.runMu.Lock()
		r.stopMu.Unlock()
	}
}

// accept checks a wake-up against the generation the worker last served and
// carries out the published step. It reports whether the worker must exit.
func (p *Pool) accept(r *record) (exiting bool) {
	r.runCount++
	if r.generation <= r.seen {
		errors.Fatal(p.logger, ErrStaleGeneration.
			WithDetail("thread", r.threadNum).
			WithDetail("generation", r.generation).
			WithDetail("seen", r.seen))
	}
	r.seen = r.generation

	switch step := r.loadStep(); step {
	case StepStart:
		r.step.Store(int32(StepRun))
		p.target(r)
		r.failure = execute(r.task, r.threadNum, r.heaps)
		return false
	case StepExit:
		return true
	default:
		errors.Fatal(p.logger, ErrImpossibleStep.
			WithDetail("thread", r.threadNum).
			WithDetail("step", step.String()))
		return false
	}
}

// execute runs one shard and converts a panic into a ShardPanic.
func execute(t *task, threadNum int, heaps *heap.Stack) (failure *ShardPanic) {
	defer func() {
		if v := recover(); v != nil {
			failure = newShardPanic(threadNum, v)
		}
	}()
	t.run(Shard{ThreadNum: threadNum, NumThreads: t.numThreads, heaps: heaps})
	return nil
}

// target applies a change of the processor targeting flag to the calling
// worker thread. Failures are logged once and not retried until the flag
// flips again.
func (p *Pool) target(r *record) {
	want := p.settings.ProcessorTargetingEnabled()
	if want == r.pinned {
		return
	}
	r.pinned = want

	var err error
	if want {
		err = affinity.PinIndex(r.threadNum)
	} else {
		err = affinity.Unpin()
	}
	if err != nil && !r.pinWarned {
		r.pinWarned = true
		p.logger.Debug("processor targeting unavailable",
			zap.Int("thread", r.threadNum),
			zap.Error(err))
	}
}
