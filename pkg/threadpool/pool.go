package threadpool

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/multicore/pkg/config"
	"github.com/ajitpratap0/multicore/pkg/errors"
	"github.com/ajitpratap0/multicore/pkg/heap"
	"github.com/ajitpratap0/multicore/pkg/logger"
	"github.com/ajitpratap0/multicore/pkg/metrics"
)

// Pool is the thread control record of one Owner: its worker records, the
// generation counter and the work descriptor of the current dispatch.
//
// Dispatch methods, Wait, Shutdown, Heap and UseHeap form the control path and
// must not be called from two goroutines at once. Running, Stats, NumThreads
// and the setters are safe from anywhere.
type Pool struct {
	owner    Owner
	name     string
	poolCfg  config.PoolConfig
	heapCfg  config.HeapConfig
	settings *Settings
	logger   *zap.Logger
	metrics  *metrics.PoolMetrics

	threadType atomic.Int32
	maxThreads atomic.Int64
	closed     atomic.Bool

	controlling atomic.Bool

	// Control path state.
	generation uint64
	task       *task
	pending    *pending
	heaps      *heap.Stack
	detach     func()
	unexport   func()

	controllerHeap atomic.Pointer[heap.LocalHeap]

	mu      sync.Mutex
	records []*record

	pooled atomic.Uint64
	inline atomic.Uint64
	async  atomic.Uint64
	gens   atomic.Uint64
}

// Stats is a snapshot of a pool.
type Stats struct {
	Owner       string `json:"owner"`
	ThreadType  string `json:"thread_type"`
	Threads     int    `json:"threads"`
	NumThreads  int    `json:"num_threads"`
	Generations uint64 `json:"generations"`
	Pooled      uint64 `json:"pooled_dispatches"`
	Inline      uint64 `json:"inline_dispatches"`
	Async       uint64 `json:"async_dispatches"`
	Running     bool   `json:"running"`
	Closed      bool   `json:"closed"`
}

// New creates a pool for owner. Worker threads are not started until the
// first parallel dispatch. Nil arguments take the package defaults.
func New(owner Owner, cfg *config.Config, settings *Settings, log *zap.Logger) *Pool {
	if cfg == nil {
		cfg = config.Default()
	}
	if settings == nil {
		settings = DefaultSettings()
	}
	if log == nil {
		log = logger.Get()
	}

	name := owner.String()
	p := &Pool{
		owner:    owner,
		name:     name,
		poolCfg:  cfg.Pool,
		heapCfg:  cfg.Heap,
		settings: settings,
		logger:   log.With(zap.String("owner", name)),
		metrics:  metrics.ForPool(name),
	}
	p.threadType.Store(int32(owner.ThreadType()))
	p.maxThreads.Store(int64(cfg.Pool.MaxThreads))
	p.heaps = heap.NewStack(func() *heap.LocalHeap {
		h := p.newHeap(name + "/controller")
		p.controllerHeap.Store(h)
		return h
	})
	p.unexport = metrics.Heaps.Register(name, p)
	return p
}

func (p *Pool) newHeap(name string) *heap.LocalHeap {
	return heap.New(name, p.heapCfg)
}

// Owner returns the identity the pool belongs to.
func (p *Pool) Owner() Owner { return p.owner }

// SetThreadType changes whether the pool yields a core to the servo loop.
func (p *Pool) SetThreadType(t ThreadType) { p.threadType.Store(int32(t)) }

// ThreadType returns the pool's thread type.
func (p *Pool) ThreadType() ThreadType { return ThreadType(p.threadType.Load()) }

// SetMaxThreads caps this pool's thread count. Zero or less removes the cap.
func (p *Pool) SetMaxThreads(n int) {
	if n < 0 {
		n = 0
	}
	p.maxThreads.Store(int64(n))
}

// MaxThreads returns the pool's cap, 0 when unbounded.
func (p *Pool) MaxThreads() int { return int(p.maxThreads.Load()) }

// NumThreads returns the thread count a dispatch started now would use.
func (p *Pool) NumThreads() int { return p.calcNumThreads(false) }

func (p *Pool) calcNumThreads(exiting bool) int {
	n := p.processors()
	if !exiting && p.ThreadType() == ThreadTypeMain && p.settings.ServoRunning() {
		n--
	}
	if m := p.MaxThreads(); m > 0 && n > m {
		n = m
	}
	if m := p.settings.MaxCores(); m > 0 && n > m {
		n = m
	}
	if n < 1 {
		n = 1
	}
	if c := p.threadCount(); c > 0 && n > c {
		n = c
	}
	return n
}

func (p *Pool) processors() int {
	if p.poolCfg.Processors > 0 {
		return p.poolCfg.Processors
	}
	return p.settings.LogicalProcessors()
}

func (p *Pool) threadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// Running reports whether any worker is executing a shard.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.records {
		if r.loadStep() == StepRun {
			return true
		}
	}
	return false
}

// Closed reports whether Shutdown has completed.
func (p *Pool) Closed() bool { return p.closed.Load() }

// Heap returns the controller's current heap. Control path only.
func (p *Pool) Heap() *heap.LocalHeap { return p.heaps.Current() }

// UseHeap makes h the controller's current heap until restore runs.
// Control path only.
func (p *Pool) UseHeap(h *heap.LocalHeap) (restore func()) { return p.heaps.Push(h) }

// HeapStats returns the counters of the controller heap and every worker base
// heap created so far.
func (p *Pool) HeapStats() []heap.Stats {
	var out []heap.Stats
	if h := p.controllerHeap.Load(); h != nil {
		out = append(out, h.Stats())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.records {
		if h := r.base.Load(); h != nil {
			out = append(out, h.Stats())
		}
	}
	return out
}

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() Stats {
	return Stats{
		Owner:       p.name,
		ThreadType:  p.ThreadType().String(),
		Threads:     p.threadCount(),
		NumThreads:  p.NumThreads(),
		Generations: p.gens.Load(),
		Pooled:      p.pooled.Load(),
		Inline:      p.inline.Load(),
		Async:       p.async.Load(),
		Running:     p.Running(),
		Closed:      p.Closed(),
	}
}

// createThreads starts one worker per processor on first use. Each worker
// comes up holding its run mutex while the controller holds start and stop.
func (p *Pool) createThreads() {
	if p.threadCount() > 0 {
		return
	}

	n := p.processors()
	recs := make([]*record, n)
	for i := range recs {
		r := newRecord(i, fmt.Sprintf("%s/worker-%d", p.name, i), p.newHeap)
		r.startMu.Lock()
		r.stopMu.Lock()
		go p.work(r)
		<-r.ready
		recs[i] = r
	}

	p.mu.Lock()
	p.records = recs
	p.mu.Unlock()

	p.metrics.Threads(n)
	p.logger.Info("worker threads created", zap.Int("threads", n))
}

// acquire marks the control path as taken by the calling goroutine.
func (p *Pool) acquire() {
	if !p.controlling.CompareAndSwap(false, true) {
		errors.Fatal(p.logger, ErrConcurrentControl.WithDetail("owner", p.name))
	}
}

func (p *Pool) release() {
	p.controlling.Store(false)
}

// Shutdown joins a pending dispatch, tells every worker to exit and waits
// for their threads to end. The pool is removed from its registry. Calling
// Shutdown again is a no-op.
func (p *Pool) Shutdown() {
	p.acquire()
	defer p.release()
	if p.closed.Load() {
		return
	}

	if p.pending != nil {
		if failure := p.finish(); failure != nil {
			p.logger.Error("async dispatch panicked before shutdown",
				zap.Int("thread", failure.ThreadNum),
				zap.Any("panic", failure.Value))
		}
	}

	p.mu.Lock()
	recs := p.records
	p.mu.Unlock()

	if len(recs) > 0 {
		p.task = nil
		p.startThreads(StepExit, 0, len(recs))
		for _, r := range recs {
			p.awaitDone(r)
			r.stopMu.Unlock()
		}
		for _, r := range recs {
			<-r.exited
		}
	}

	p.closed.Store(true)
	p.unexport()
	p.metrics.Release()
	if p.detach != nil {
		p.detach()
	}
	p.logger.Info("thread pool shut down",
		zap.Int("threads", len(recs)),
		zap.Int("num_threads", p.calcNumThreads(true)),
		zap.Uint64("generations", p.generation))
}
