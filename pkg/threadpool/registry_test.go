package threadpool

import (
	"sync"
	"sync/atomic"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/multicore/pkg/config"
	"github.com/ajitpratap0/multicore/pkg/errors"
	"github.com/ajitpratap0/multicore/pkg/metrics"
)

func newTestRegistry(t *testing.T, processors int) *Registry {
	t.Helper()
	cfg := config.Default()
	cfg.Pool.Processors = processors
	r := NewRegistry(cfg, NewSettings(), zaptest.NewLogger(t))
	t.Cleanup(r.ShutdownAll)
	return r
}

func TestRegistry_OnePoolPerOwner(t *testing.T) {
	r := newTestRegistry(t, 4)

	mainPool := r.Pool(MainOwner)
	assert.Same(t, mainPool, r.Pool(MainOwner))
	assert.Equal(t, ThreadTypeMain, mainPool.ThreadType())

	servo := r.Pool(ServoOwner)
	assert.NotSame(t, mainPool, servo)
	assert.Equal(t, ThreadTypeOther, servo.ThreadType())

	a := NewOwner("worker", ThreadTypeOther)
	b := NewOwner("worker", ThreadTypeOther)
	assert.NotEqual(t, a, b)
	assert.NotSame(t, r.Pool(a), r.Pool(b))

	assert.Equal(t, 4, r.Len())
	assert.Equal(t, []Owner{MainOwner, ServoOwner, a, b}, r.Owners())
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	r := newTestRegistry(t, 4)
	owner := NewOwner("shared", ThreadTypeOther)

	var wg sync.WaitGroup
	pools := make([]*Pool, 16)
	for i := range pools {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pools[i] = r.Pool(owner)
		}(i)
	}
	wg.Wait()

	for _, p := range pools {
		assert.Same(t, pools[0], p)
	}
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_IndependentControllers(t *testing.T) {
	r := newTestRegistry(t, 4)

	var wg sync.WaitGroup
	var total atomic.Int64
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			owner := NewOwner("loop", ThreadTypeOther)
			p := r.Pool(owner)
			for i := 0; i < 25; i++ {
				p.RunLoop(40, func(Shard, int) { total.Add(1) })
			}
			r.Shutdown(owner)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(4*25*40), total.Load())
	assert.Zero(t, r.Len())
}

func TestRegistry_ShutdownRemovesPool(t *testing.T) {
	r := newTestRegistry(t, 4)
	owner := NewOwner("temp", ThreadTypeOther)

	p := r.Pool(owner)
	p.RunLoop(10, func(Shard, int) {})
	r.Shutdown(owner)

	_, ok := r.Lookup(owner)
	assert.False(t, ok)
	assert.True(t, p.Closed())

	fresh := r.Pool(owner)
	assert.NotSame(t, p, fresh)
	fresh.Shutdown()
	assert.Zero(t, r.Len(), "direct Shutdown also detaches the pool")

	r.Shutdown(NewOwner("unknown", ThreadTypeOther))
}

func TestRegistry_AppliesProcessWideConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Pool.MaxCores = 3
	cfg.Pool.ProcessorTargeting = true
	settings := NewSettings()

	r := NewRegistry(cfg, settings, zaptest.NewLogger(t))
	assert.Same(t, settings, r.Settings())
	assert.Equal(t, 3, settings.MaxCores())
	assert.True(t, settings.ProcessorTargetingEnabled())
}

func TestRegistry_ZeroOwner(t *testing.T) {
	r := newTestRegistry(t, 4)

	defer func() {
		err, ok := recover().(*errors.Error)
		require.True(t, ok)
		assert.ErrorIs(t, err, ErrZeroOwner)
	}()
	r.Pool(Owner{})
}

func TestPackageFunctions(t *testing.T) {
	owner := NewOwner("package", ThreadTypeOther)
	defer Shutdown(owner)

	n := NumThreads(owner)
	require.GreaterOrEqual(t, n, 1)

	hits := make([]atomic.Int32, 30)
	RunLoop(owner, len(hits), func(_ Shard, i int) { hits[i].Add(1) })
	RunLoopNoWait(owner, len(hits), func(_ Shard, i int) { hits[i].Add(1) })
	Wait(owner)
	for i := range hits {
		assert.Equal(t, int32(2), hits[i].Load())
	}

	var calls atomic.Int32
	Run(owner, func(Shard) { calls.Add(1) })
	RunNoWait(owner, func(Shard) { calls.Add(1) })
	Wait(owner)
	assert.Equal(t, int32(2*shardsFor(n)), calls.Load())
	assert.False(t, Running(owner))

	SetThreadType(owner, ThreadTypeMain)
	p, ok := Default().Lookup(owner)
	require.True(t, ok)
	assert.Equal(t, ThreadTypeMain, p.ThreadType())

	Shutdown(owner)
	assert.False(t, Running(owner))
	Wait(owner)
}

func shardsFor(n int) int {
	if n < MinParallelThreads {
		return 1
	}
	return n
}

func TestRegistry_SameOwnerInTwoRegistriesKeepsSeries(t *testing.T) {
	first := newTestRegistry(t, 4)
	second := newTestRegistry(t, 4)
	survivor := second.Pool(MainOwner)
	first.Pool(MainOwner).Run(func(Shard) {})
	survivor.Run(func(Shard) {})

	pooled := func() float64 {
		return promtest.ToFloat64(metrics.DispatchesTotal.WithLabelValues(MainOwner.String(), string(metrics.ModePooled)))
	}
	before := pooled()
	first.Shutdown(MainOwner)

	survivor.Run(func(Shard) {})
	assert.Equal(t, before+1, pooled(), "series of the live pool were not deleted")
}

