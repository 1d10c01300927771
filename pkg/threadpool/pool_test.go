package threadpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/multicore/pkg/config"
	"github.com/ajitpratap0/multicore/pkg/errors"
	"github.com/ajitpratap0/multicore/pkg/heap"
)

func newTestPool(t *testing.T, processors int, kind ThreadType) (*Pool, *Settings) {
	t.Helper()
	cfg := config.Default()
	cfg.Pool.Processors = processors
	cfg.Pool.PollInterval = 10 * time.Microsecond
	settings := NewSettings()
	p := New(NewOwner(t.Name(), kind), cfg, settings, zaptest.NewLogger(t))
	t.Cleanup(p.Shutdown)
	return p, settings
}

func recoverShardPanic(t *testing.T, fn func()) (sp *ShardPanic) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		var ok bool
		sp, ok = r.(*ShardPanic)
		require.True(t, ok, "expected *ShardPanic, got %T", r)
	}()
	fn()
	return nil
}

func TestPool_RunLoopStridesIndices(t *testing.T) {
	p, _ := newTestPool(t, 4, ThreadTypeOther)
	require.Equal(t, 4, p.NumThreads())

	visited := make([][]int, 4)
	p.RunLoop(10, func(s Shard, i int) {
		assert.Equal(t, 4, s.NumThreads)
		visited[s.ThreadNum] = append(visited[s.ThreadNum], i)
	})

	assert.Equal(t, [][]int{{0, 4, 8}, {1, 5, 9}, {2, 6}, {3, 7}}, visited)
}

func TestPool_WorkCoverage(t *testing.T) {
	for _, threads := range []int{3, 4, 7} {
		p, _ := newTestPool(t, threads, ThreadTypeOther)
		for _, maxIdx := range []int{0, 1, 2, threads, 10, 97} {
			hits := make([]atomic.Int32, maxIdx)
			p.RunLoop(maxIdx, func(s Shard, i int) {
				assert.Equal(t, s.ThreadNum, i%s.NumThreads)
				hits[i].Add(1)
			})
			for i := range hits {
				assert.Equal(t, int32(1), hits[i].Load(), "threads=%d maxIdx=%d idx=%d", threads, maxIdx, i)
			}
		}
	}
}

func TestPool_RunGivesEveryThreadOneShard(t *testing.T) {
	p, _ := newTestPool(t, 5, ThreadTypeOther)

	var seen [5]atomic.Int32
	p.Run(func(s Shard) {
		assert.Equal(t, 5, s.NumThreads)
		seen[s.ThreadNum].Add(1)
	})
	for i := range seen {
		assert.Equal(t, int32(1), seen[i].Load(), "thread %d", i)
	}
	assert.Equal(t, uint64(1), p.Stats().Pooled)
}

func TestPool_EmptyDomain(t *testing.T) {
	p, _ := newTestPool(t, 4, ThreadTypeOther)

	calls := atomic.Int32{}
	p.RunLoop(0, func(Shard, int) { calls.Add(1) })
	p.RunLoop(-3, func(Shard, int) { calls.Add(1) })
	p.RunLoopNoWait(0, func(Shard, int) { calls.Add(1) })
	p.Wait()

	assert.Zero(t, calls.Load())
	assert.Equal(t, uint64(3), p.Stats().Generations)
	assert.False(t, p.Running())
}

func TestPool_SingleThreadedMatchesSequential(t *testing.T) {
	p, _ := newTestPool(t, 4, ThreadTypeOther)

	const n = 50
	want := make([]int, 0, n)
	for i := 0; i < n; i++ {
		want = append(want, i*i)
	}

	got := make([]int, 0, n)
	p.RunLoop(n, func(s Shard, i int) {
		assert.Equal(t, 0, s.ThreadNum)
		assert.Equal(t, 1, s.NumThreads)
		got = append(got, i*i)
	}, SingleThreaded())
	assert.Equal(t, want, got)

	got = got[:0]
	p.RunLoop(n, func(s Shard, i int) { got = append(got, i*i) }, MultiThread(false))
	assert.Equal(t, want, got)

	stats := p.Stats()
	assert.Equal(t, uint64(2), stats.Inline)
	assert.Zero(t, stats.Threads, "inline dispatches never start workers")
}

func TestPool_BelowThresholdRunsInline(t *testing.T) {
	for _, processors := range []int{1, 2} {
		p, _ := newTestPool(t, processors, ThreadTypeOther)

		var shards []Shard
		p.Run(func(s Shard) { shards = append(shards, s) })
		p.RunNoWait(func(s Shard) { shards = append(shards, s) })
		p.Wait()

		require.Len(t, shards, 2)
		for _, s := range shards {
			assert.Equal(t, 0, s.ThreadNum)
			assert.Equal(t, 1, s.NumThreads)
		}
		assert.Zero(t, p.Stats().Threads)
	}
}

func TestPool_CompletionAdvancesGeneration(t *testing.T) {
	p, _ := newTestPool(t, 4, ThreadTypeOther)

	p.Run(func(Shard) {})
	require.Len(t, p.records, 4)
	assert.Equal(t, uint64(1), p.generation)
	assert.Equal(t, uint64(0), p.records[0].completed.Load(), "shard 0 ran on the caller")
	for _, r := range p.records[1:] {
		assert.Equal(t, StepDone, r.loadStep())
		assert.Equal(t, uint64(1), r.completed.Load())
	}

	before := make([]uint64, 4)
	for i, r := range p.records {
		before[i] = r.completed.Load()
	}
	p.RunNoWait(func(Shard) {})
	p.Wait()

	assert.Equal(t, uint64(2), p.generation)
	for i, r := range p.records {
		assert.Equal(t, StepDone, r.loadStep())
		assert.Equal(t, uint64(2), r.completed.Load())
		assert.Greater(t, r.completed.Load(), before[i])
	}
	assert.Nil(t, p.task, "no work descriptor at rest")
}

func TestPool_DispatchesNeverOverlap(t *testing.T) {
	p, _ := newTestPool(t, 4, ThreadTypeOther)

	var active, peak atomic.Int32
	body := func(Shard, int) {
		n := active.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(50 * time.Microsecond)
		active.Add(-1)
	}

	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			p.RunLoop(16, body)
		} else {
			p.RunLoopNoWait(16, body)
			p.Wait()
		}
		require.Zero(t, active.Load(), "dispatch %d left shards running", i)
	}
	assert.LessOrEqual(t, peak.Load(), int32(4))
	assert.False(t, p.Running())
}

func TestPool_RunNoWait(t *testing.T) {
	p, _ := newTestPool(t, 4, ThreadTypeOther)

	release := make(chan struct{})
	var done atomic.Int32
	p.RunNoWait(func(s Shard) {
		<-release
		done.Add(1)
	})

	assert.Eventually(t, p.Running, time.Second, time.Millisecond)
	close(release)
	p.Wait()
	p.Wait()

	assert.Equal(t, int32(4), done.Load(), "all four shards run on workers")
	assert.False(t, p.Running())
	assert.Equal(t, uint64(1), p.Stats().Async)
}

func TestPool_DispatchJoinsPendingFirst(t *testing.T) {
	p, _ := newTestPool(t, 4, ThreadTypeOther)

	var first, second atomic.Int32
	p.RunLoopNoWait(8, func(Shard, int) {
		time.Sleep(100 * time.Microsecond)
		first.Add(1)
	})
	p.RunLoop(8, func(Shard, int) {
		assert.Equal(t, int32(8), first.Load())
		second.Add(1)
	})

	assert.Equal(t, int32(8), second.Load())
	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Async)
	assert.Equal(t, uint64(1), stats.Pooled)
}

type squarer struct {
	out []int
}

func (s *squarer) RunIndex(_ Shard, i int) { s.out[i] = i * i }

type counter struct {
	calls atomic.Int32
}

func (c *counter) RunShard(Shard) { c.calls.Add(1) }

func TestPool_MethodVariants(t *testing.T) {
	p, _ := newTestPool(t, 3, ThreadTypeOther)

	sq := &squarer{out: make([]int, 20)}
	p.RunMethodLoop(len(sq.out), sq)
	for i, v := range sq.out {
		assert.Equal(t, i*i, v)
	}

	c := &counter{}
	p.RunMethod(c)
	assert.Equal(t, int32(3), c.calls.Load())

	p.RunMethodNoWait(c)
	p.Wait()
	assert.Equal(t, int32(6), c.calls.Load())

	sq.out = make([]int, 7)
	p.RunMethodLoopNoWait(len(sq.out), sq)
	p.Wait()
	assert.Equal(t, []int{0, 1, 4, 9, 16, 25, 36}, sq.out)
}

func TestPool_ShardPanicPropagates(t *testing.T) {
	p, _ := newTestPool(t, 4, ThreadTypeOther)

	var finished atomic.Int32
	sp := recoverShardPanic(t, func() {
		p.Run(func(s Shard) {
			if s.ThreadNum == 2 {
				panic("boom")
			}
			finished.Add(1)
		})
	})
	assert.Equal(t, 2, sp.ThreadNum)
	assert.Equal(t, "boom", sp.Value)
	assert.NotEmpty(t, sp.Stack)
	assert.Equal(t, int32(3), finished.Load(), "other shards still complete")

	sp = recoverShardPanic(t, func() {
		p.Run(func(s Shard) {
			if s.ThreadNum == 0 {
				panic(errors.New(errors.ErrorTypeInternal, "inline failure"))
			}
		})
	})
	assert.Equal(t, 0, sp.ThreadNum)
	assert.True(t, errors.IsType(sp, errors.ErrorTypeInternal))

	p.RunNoWait(func(s Shard) {
		if s.ThreadNum == 3 {
			panic("async")
		}
	})
	sp = recoverShardPanic(t, p.Wait)
	assert.Equal(t, 3, sp.ThreadNum)

	// pool remains usable
	var calls atomic.Int32
	p.Run(func(Shard) { calls.Add(1) })
	assert.Equal(t, int32(4), calls.Load())
}

func TestPool_InlineShardPanicPropagates(t *testing.T) {
	cases := map[string]struct {
		processors int
		opts       []RunOption
	}{
		"below parallel threshold": {processors: 2},
		"single threaded":          {processors: 4, opts: []RunOption{SingleThreaded()}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p, _ := newTestPool(t, tc.processors, ThreadTypeOther)

			sp := recoverShardPanic(t, func() {
				p.Run(func(Shard) { panic("boom") }, tc.opts...)
			})
			assert.Equal(t, 0, sp.ThreadNum)
			assert.Equal(t, "boom", sp.Value)
			assert.NotEmpty(t, sp.Stack)

			sp = recoverShardPanic(t, func() {
				p.RunLoop(8, func(_ Shard, idx int) {
					if idx == 5 {
						panic(idx)
					}
				}, tc.opts...)
			})
			assert.Equal(t, 5, sp.Value)

			require.NotPanics(t, func() {
				p.RunNoWait(func(Shard) { panic("async") }, tc.opts...)
			})
			sp = recoverShardPanic(t, p.Wait)
			assert.Equal(t, "async", sp.Value)
			assert.NotPanics(t, p.Wait, "failure is raised once")

			p.RunNoWait(func(Shard) { panic("joined") }, tc.opts...)
			sp = recoverShardPanic(t, func() { p.Run(func(Shard) {}, tc.opts...) })
			assert.Equal(t, "joined", sp.Value)

			assert.Zero(t, p.Stats().Threads, "inline dispatch starts no workers")
			assert.Equal(t, uint64(4), p.Stats().Inline, "the joining Run re-raises before dispatching")
		})
	}
}

func TestPool_ReentrantDispatchIsFatal(t *testing.T) {
	p, _ := newTestPool(t, 4, ThreadTypeOther)

	sp := recoverShardPanic(t, func() {
		p.Run(func(s Shard) {
			if s.ThreadNum == 0 {
				p.Run(func(Shard) {})
			}
		})
	})
	assert.ErrorIs(t, sp, ErrConcurrentControl)
	assert.True(t, errors.IsType(sp, errors.ErrorTypeProtocol))
}

func TestPool_NilCallable(t *testing.T) {
	p, _ := newTestPool(t, 4, ThreadTypeOther)

	for name, call := range map[string]func(){
		"Run":           func() { p.Run(nil) },
		"RunLoop":       func() { p.RunLoop(4, nil) },
		"RunMethod":     func() { p.RunMethod(nil) },
		"RunLoopNoWait": func() { p.RunLoopNoWait(4, nil) },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				err, ok := recover().(*errors.Error)
				require.True(t, ok)
				assert.ErrorIs(t, err, ErrNilCallable)
			}()
			call()
		})
	}
}

func TestPool_Shutdown(t *testing.T) {
	p, _ := newTestPool(t, 4, ThreadTypeOther)

	p.RunLoop(8, func(Shard, int) {})
	recs := p.records
	p.Shutdown()

	for _, r := range recs {
		select {
		case <-r.exited:
		default:
			t.Fatalf("worker %d still running", r.threadNum)
		}
		assert.Equal(t, StepDone, r.loadStep())
	}
	assert.True(t, p.Closed())

	p.Shutdown()

	defer func() {
		r := recover()
		err, ok := r.(*errors.Error)
		require.True(t, ok)
		assert.ErrorIs(t, err, ErrPoolClosed)
	}()
	p.Run(func(Shard) {})
}

func TestPool_ShutdownJoinsPending(t *testing.T) {
	p, _ := newTestPool(t, 4, ThreadTypeOther)

	var done atomic.Int32
	p.RunLoopNoWait(12, func(Shard, int) {
		time.Sleep(100 * time.Microsecond)
		done.Add(1)
	})
	p.Shutdown()
	assert.Equal(t, int32(12), done.Load())
}

func TestPool_ShutdownWithoutWorkers(t *testing.T) {
	p, _ := newTestPool(t, 4, ThreadTypeOther)
	p.Shutdown()
	assert.True(t, p.Closed())
	assert.Zero(t, p.Stats().Threads)
}

func TestPool_NumThreads(t *testing.T) {
	p, settings := newTestPool(t, 8, ThreadTypeMain)

	assert.Equal(t, 8, p.NumThreads())

	settings.SetServoRunning(true)
	assert.Equal(t, 7, p.NumThreads(), "main pool yields the servo core")
	assert.Equal(t, 8, p.calcNumThreads(true), "no reservation while exiting")

	p.SetThreadType(ThreadTypeOther)
	assert.Equal(t, 8, p.NumThreads())
	p.SetThreadType(ThreadTypeMain)

	p.SetMaxThreads(5)
	assert.Equal(t, 5, p.NumThreads())
	p.SetMaxThreads(0)

	settings.SetMaxCores(2)
	assert.Equal(t, 2, p.NumThreads())
	settings.SetMaxCores(0)

	p.Run(func(Shard) {})
	require.Len(t, p.records, 8)
	settings.SetServoRunning(false)
	p.SetMaxThreads(100)
	assert.Equal(t, 8, p.NumThreads(), "never more than the records created")
}

func TestPool_ServoReservedCoreInDispatch(t *testing.T) {
	p, settings := newTestPool(t, 4, ThreadTypeMain)
	settings.SetServoRunning(true)

	var numThreads atomic.Int32
	p.Run(func(s Shard) { numThreads.Store(int32(s.NumThreads)) })
	assert.Equal(t, int32(3), numThreads.Load())

	settings.SetMaxCores(2)
	p.Run(func(s Shard) { numThreads.Store(int32(s.NumThreads)) })
	assert.Equal(t, int32(1), numThreads.Load(), "two threads fall back to inline")
}

func TestPool_NumThreadsSnapshotForWait(t *testing.T) {
	p, settings := newTestPool(t, 5, ThreadTypeMain)

	var calls atomic.Int32
	p.RunNoWait(func(s Shard) {
		assert.Equal(t, 5, s.NumThreads)
		calls.Add(1)
	})
	settings.SetServoRunning(true)
	p.Wait()
	assert.Equal(t, int32(5), calls.Load())
}

func TestPool_ShardHeaps(t *testing.T) {
	p, _ := newTestPool(t, 4, ThreadTypeOther)

	heaps := make([]*heap.LocalHeap, 4)
	p.Run(func(s Shard) {
		h := s.Heap()
		heaps[s.ThreadNum] = h
		buf, err := heap.Alloc[float64](h, 64)
		if assert.NoError(t, err) {
			buf[0] = float64(s.ThreadNum)
		}
	})

	for i := range heaps {
		require.NotNil(t, heaps[i])
		for j := i + 1; j < len(heaps); j++ {
			assert.NotSame(t, heaps[i], heaps[j])
		}
	}
	assert.Same(t, p.Heap(), heaps[0], "shard 0 runs on the controller heap")

	stats := p.HeapStats()
	require.Len(t, stats, 4)
	for _, s := range stats {
		assert.Equal(t, int64(1), s.LiveAllocs, s.Name)
	}

	shared := heap.New("shared", config.Default().Heap)
	var mu sync.Mutex
	p.Run(func(s Shard) {
		mu.Lock()
		defer mu.Unlock()
		restore := s.UseHeap(shared)
		defer restore()
		_, err := heap.Alloc[int32](s.Heap(), 4)
		assert.NoError(t, err)
	})
	assert.Equal(t, int64(4), shared.Stats().LiveAllocs)
}

func TestPool_StatsJSONShape(t *testing.T) {
	p, _ := newTestPool(t, 4, ThreadTypeMain)
	p.Run(func(Shard) {})

	s := p.Stats()
	assert.Equal(t, p.Owner().String(), s.Owner)
	assert.Equal(t, "main", s.ThreadType)
	assert.Equal(t, 4, s.Threads)
	assert.Equal(t, uint64(1), s.Generations)
	assert.False(t, s.Closed)
}
