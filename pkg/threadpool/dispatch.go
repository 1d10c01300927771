package threadpool

import (
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/multicore/pkg/errors"
	"github.com/ajitpratap0/multicore/pkg/metrics"
)

// pending is an async dispatch that has not been joined yet.
// An inline dispatch has numThreads zero and is only pending when its shard
// panicked, so the panic surfaces from Wait like a pooled one would.
type pending struct {
	numThreads int
	start      time.Time
	failure    *ShardPanic
}

// Run calls fn once per thread and blocks until all calls return.
func (p *Pool) Run(fn Func, opts ...RunOption) {
	p.checkCallable(fn == nil)
	p.dispatch(&task{fn: fn}, true, opts)
}

// RunLoop calls fn for every index in [0, maxIdx), strided across threads,
// and blocks until all calls return.
func (p *Pool) RunLoop(maxIdx int, fn LoopFunc, opts ...RunOption) {
	p.checkCallable(fn == nil)
	p.dispatch(&task{loop: fn, maxIdx: maxIdx}, true, opts)
}

// RunMethod is Run for a Runner.
func (p *Pool) RunMethod(r Runner, opts ...RunOption) {
	p.checkCallable(r == nil)
	p.dispatch(&task{fn: r.RunShard}, true, opts)
}

// RunMethodLoop is RunLoop for a LoopRunner.
func (p *Pool) RunMethodLoop(maxIdx int, r LoopRunner, opts ...RunOption) {
	p.checkCallable(r == nil)
	p.dispatch(&task{loop: r.RunIndex, maxIdx: maxIdx}, true, opts)
}

// RunNoWait releases fn to the workers and returns. Wait joins it. A
// dispatch too small to pool has already completed when RunNoWait returns,
// but a panic in it is still raised by Wait. Any dispatch started while this one is pending joins it first.
func (p *Pool) RunNoWait(fn Func, opts ...RunOption) {
	p.checkCallable(fn == nil)
	p.dispatch(&task{fn: fn}, false, opts)
}

// RunLoopNoWait is the asynchronous form of RunLoop.
func (p *Pool) RunLoopNoWait(maxIdx int, fn LoopFunc, opts ...RunOption) {
	p.checkCallable(fn == nil)
	p.dispatch(&task{loop: fn, maxIdx: maxIdx}, false, opts)
}

// RunMethodNoWait is the asynchronous form of RunMethod.
func (p *Pool) RunMethodNoWait(r Runner, opts ...RunOption) {
	p.checkCallable(r == nil)
	p.dispatch(&task{fn: r.RunShard}, false, opts)
}

// RunMethodLoopNoWait is the asynchronous form of RunMethodLoop.
func (p *Pool) RunMethodLoopNoWait(maxIdx int, r LoopRunner, opts ...RunOption) {
	p.checkCallable(r == nil)
	p.dispatch(&task{loop: r.RunIndex, maxIdx: maxIdx}, false, opts)
}

// Wait blocks until the pending async dispatch is done on every thread it
// was given. It returns immediately when nothing is pending. A panic in any
// shard is re-raised here as a *ShardPanic.
func (p *Pool) Wait() {
	p.acquire()
	defer p.release()
	if p.pending == nil {
		return
	}
	p.raise(p.finish())
}

func (p *Pool) checkCallable(isNil bool) {
	if isNil {
		errors.Fatal(p.logger, ErrNilCallable.WithDetail("owner", p.name))
	}
}

func (p *Pool) dispatch(t *task, wait bool, opts []RunOption) {
	p.acquire()
	defer p.release()
	if p.closed.Load() {
		errors.Fatal(p.logger, ErrPoolClosed.WithDetail("owner", p.name))
	}
	if p.pending != nil {
		p.raise(p.finish())
	}

	o := applyOptions(opts)
	n := 1
	if o.multiThread {
		n = p.calcNumThreads(false)
	}

	start := time.Now()
	if n < MinParallelThreads {
		t.numThreads = 1
		failure := execute(t, 0, p.heaps)
		p.inline.Add(1)
		p.metrics.Dispatch(metrics.ModeInline, time.Since(start))
		if failure == nil {
			return
		}
		p.metrics.Panic()
		if !wait {
			p.pending = &pending{start: start, failure: failure}
			return
		}
		p.raise(failure)
		return
	}

	p.createThreads()
	t.numThreads = n
	p.task = t

	if !wait {
		p.startThreads(StepStart, 0, n)
		p.pending = &pending{numThreads: n, start: start}
		return
	}

	p.startThreads(StepStart, 1, n)
	local := execute(t, 0, p.heaps)
	p.waitTillAllDone(1, n)
	p.task = nil
	if local != nil {
		p.metrics.Panic()
	}

	p.pooled.Add(1)
	p.metrics.Dispatch(metrics.ModePooled, time.Since(start))
	p.raise(firstFailure(local, p.collectFailures(1, n)))
}

// startThreads publishes step to records [first, n) under a new generation
// and releases them.
func (p *Pool) startThreads(step Step, first, n int) {
	p.generation++
	p.gens.Add(1)
	for i := first; i < n; i++ {
		r := p.records[i]
		r.task = p.task
		r.generation = p.generation
		r.step.Store(int32(step))
		r.startMu.Unlock()
	}
}

// waitTillAllDone waits for records [first, n) to reach StepDone and hands
// each back to its parked state.
func (p *Pool) waitTillAllDone(first, n int) {
	for i := first; i < n; i++ {
		r := p.records[i]
		p.awaitDone(r)
		p.rearm(r)
	}
}

// stopThreads joins an async dispatch over records [0, n) and checks that
// every one of them is parked.
func (p *Pool) stopThreads(n int) {
	p.waitTillAllDone(0, n)
	for i := 0; i < n; i++ {
		r := p.records[i]
		if step := r.loadStep(); step != StepDone {
			errors.Fatal(p.logger, ErrNotDone.
				WithDetail("thread", r.threadNum).
				WithDetail("step", step.String()))
		}
	}
}

// awaitDone polls the record's step, yielding for the first SpinPolls polls
// and sleeping PollInterval after that.
func (p *Pool) awaitDone(r *record) {
	for polls := 0; r.loadStep() != StepDone; polls++ {
		if polls < p.poolCfg.SpinPolls || p.poolCfg.PollInterval <= 0 {
			runtime.Gosched()
			continue
		}
		time.Sleep(p.poolCfg.PollInterval)
	}
}

// rearm completes the relay for a record that reached StepDone, leaving the
// controller holding start and stop and the worker holding run.
func (p *Pool) rearm(r *record) {
	r.runMu.Lock()
	r.stopMu.Unlock()
	r.startMu.Lock()
	r.runMu.Unlock()
	r.stopMu.Lock()
}

// finish joins the pending async dispatch.
func (p *Pool) finish() *ShardPanic {
	pd := p.pending
	if pd.numThreads == 0 {
		p.pending = nil
		return pd.failure
	}
	p.stopThreads(pd.numThreads)
	p.pending = nil
	p.task = nil

	p.async.Add(1)
	p.metrics.Dispatch(metrics.ModeAsync, time.Since(pd.start))
	return p.collectFailures(0, pd.numThreads)
}

// collectFailures clears the shard panics of records [first, n) and
// returns the first one.
func (p *Pool) collectFailures(first, n int) *ShardPanic {
	var out *ShardPanic
	for i := first; i < n; i++ {
		r := p.records[i]
		if r.failure == nil {
			continue
		}
		p.metrics.Panic()
		if out == nil {
			out = r.failure
		}
		r.failure = nil
	}
	return out
}

func firstFailure(failures ...*ShardPanic) *ShardPanic {
	for _, f := range failures {
		if f != nil {
			return f
		}
	}
	return nil
}

// raise re-panics a shard failure on the controller.
func (p *Pool) raise(failure *ShardPanic) {
	if failure == nil {
		return
	}
	p.logger.Error("shard panicked",
		zap.Int("thread", failure.ThreadNum),
		zap.Any("panic", failure.Value))
	panic(failure)
}
