// Package metrics exposes Prometheus metrics for the multicore runtime.
//
// Pool dispatch counters, latency histograms and worker thread gauges are
// package-level vectors registered through promauto. Heaps are exported by a
// pull collector that reads heap.Stats at scrape time, so the allocator hot
// path never touches Prometheus.
//
// # Basic Usage
//
//	pm := metrics.ForPool("main")
//	start := time.Now()
//	pool.RunLoop(n, body)
//	pm.Dispatch(metrics.ModePooled, time.Since(start))
//
//	unregister := metrics.Heaps.Register("main", pool)
//	defer unregister()
//
// Serve them with promhttp.Handler() on the configured listen address.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "multicore"

// Mode labels how a dispatch was executed.
type Mode string

const (
	// ModePooled is a blocking dispatch across worker threads
	ModePooled Mode = "pooled"
	// ModeInline is a dispatch that ran on the calling thread only
	ModeInline Mode = "inline"
	// ModeAsync is a RunNoWait dispatch, observed when it is waited on
	ModeAsync Mode = "async"
)

var (
	// DispatchesTotal counts dispatches per pool and mode.
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "dispatches_total",
			Help:      "Total number of dispatches",
		},
		[]string{"pool", "mode"},
	)

	// DispatchLatency tracks the wall time of a dispatch in seconds, from the
	// release of the first worker to the last worker reaching DONE.
	DispatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "dispatch_latency_seconds",
			Help:      "Dispatch latency in seconds",
			Buckets: []float64{
				1e-6, // 1μs - inline dispatch
				5e-6,
				1e-5, // 10μs - target hand-off cost
				3e-5,
				1e-4, // 100μs
				1e-3, // 1ms - thread creation cost
				1e-2,
				1e-1,
				1,
			},
		},
		[]string{"pool", "mode"},
	)

	// WorkerThreads is the number of worker OS threads owned by a pool.
	WorkerThreads = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "worker_threads",
			Help:      "Worker OS threads owned by the pool",
		},
		[]string{"pool"},
	)

	// ShardPanics counts panics recovered from user shards.
	ShardPanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "shard_panics_total",
			Help:      "Panics recovered from shards",
		},
		[]string{"pool"},
	)

	// ActivePools is the number of live pools in all registries.
	ActivePools = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "active",
			Help:      "Number of live thread pools",
		},
	)
)

// PoolMetrics holds the children of the pool vectors for one pool so the
// dispatch path does not pay for label lookups.
type PoolMetrics struct {
	name       string
	released   sync.Once
	dispatches map[Mode]prometheus.Counter
	latency    map[Mode]prometheus.Observer
	threads    prometheus.Gauge
	panics     prometheus.Counter
}

var (
	refsMu   sync.Mutex
	poolRefs = make(map[string]int)
)

// ForPool resolves the metric children for the pool called name. Pools
// sharing a name share series; the series are deleted when the last of them
// is released.
func ForPool(name string) *PoolMetrics {
	refsMu.Lock()
	poolRefs[name]++
	refsMu.Unlock()

	pm := &PoolMetrics{
		name:       name,
		dispatches: make(map[Mode]prometheus.Counter, 3),
		latency:    make(map[Mode]prometheus.Observer, 3),
		threads:    WorkerThreads.WithLabelValues(name),
		panics:     ShardPanics.WithLabelValues(name),
	}
	for _, m := range []Mode{ModePooled, ModeInline, ModeAsync} {
		pm.dispatches[m] = DispatchesTotal.WithLabelValues(name, string(m))
		pm.latency[m] = DispatchLatency.WithLabelValues(name, string(m))
	}
	return pm
}

// Name returns the pool label.
func (pm *PoolMetrics) Name() string { return pm.name }

// Dispatch records one completed dispatch.
func (pm *PoolMetrics) Dispatch(mode Mode, d time.Duration) {
	pm.dispatches[mode].Inc()
	pm.latency[mode].Observe(d.Seconds())
}

// Threads sets the worker thread gauge.
func (pm *PoolMetrics) Threads(n int) {
	pm.threads.Set(float64(n))
}

// Panic counts a recovered shard panic.
func (pm *PoolMetrics) Panic() {
	pm.panics.Inc()
}

// Release drops this pool's reference to its series, deleting them when no
// other live pool uses the name. Calls after the first are no-ops.
func (pm *PoolMetrics) Release() {
	pm.released.Do(pm.release)
}

func (pm *PoolMetrics) release() {
	refsMu.Lock()
	defer refsMu.Unlock()
	poolRefs[pm.name]--
	if poolRefs[pm.name] > 0 {
		return
	}
	delete(poolRefs, pm.name)
	WorkerThreads.DeleteLabelValues(pm.name)
	ShardPanics.DeleteLabelValues(pm.name)
	for _, m := range []Mode{ModePooled, ModeInline, ModeAsync} {
		DispatchesTotal.DeleteLabelValues(pm.name, string(m))
		DispatchLatency.DeleteLabelValues(pm.name, string(m))
	}
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer name.
func (t *Timer) Name() string { return t.name }

// Stop returns the elapsed duration since creation. It may be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
