package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ajitpratap0/multicore/pkg/heap"
)

// HeapSource reports the heaps owned by one component.
type HeapSource interface {
	HeapStats() []heap.Stats
}

// HeapCollector is a prometheus.Collector reading heap counters at scrape
// time.
// Sources registered under the same pool name are summed per heap name, so
// pools of one owner in different registries share series.
type HeapCollector struct {
	mu      sync.RWMutex
	nextID  uint64
	sources map[uint64]heapSource

	reserved   *prometheus.Desc
	blocks     *prometheus.Desc
	liveAllocs *prometheus.Desc
	liveBytes  *prometheus.Desc
	freeChunks *prometheus.Desc
	allocs     *prometheus.Desc
	frees      *prometheus.Desc
}

type heapSource struct {
	pool string
	src  HeapSource
}

// Heaps is the collector registered with the default Prometheus registry.
var Heaps = NewHeapCollector()

func init() {
	prometheus.MustRegister(Heaps)
}

// NewHeapCollector returns an empty, unregistered collector.
func NewHeapCollector() *HeapCollector {
	labels := []string{"pool", "heap"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "heap", name), help, labels, nil)
	}
	return &HeapCollector{
		sources:    make(map[uint64]heapSource),
		reserved:   desc("reserved_bytes", "Bytes reserved in blocks"),
		blocks:     desc("blocks", "Blocks allocated"),
		liveAllocs: desc("live_allocations", "Allocations not yet freed"),
		liveBytes:  desc("live_bytes", "Bytes requested by live allocations"),
		freeChunks: desc("free_chunks", "Chunks on the free list"),
		allocs:     desc("allocations_total", "Total allocations"),
		frees:      desc("frees_total", "Total frees"),
	}
}

// Register adds src under pool. The returned function removes exactly this
// registration and is safe to call more than once.
func (c *HeapCollector) Register(pool string, src HeapSource) (unregister func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.sources[id] = heapSource{pool: pool, src: src}
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.sources, id)
	}
}

// Describe implements prometheus.Collector.
func (c *HeapCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.reserved
	ch <- c.blocks
	ch <- c.liveAllocs
	ch <- c.liveBytes
	ch <- c.freeChunks
	ch <- c.allocs
	ch <- c.frees
}

// Collect implements prometheus.Collector.
func (c *HeapCollector) Collect(ch chan<- prometheus.Metric) {
	type key struct{ pool, heap string }

	c.mu.RLock()
	var order []key
	totals := make(map[key]heap.Stats)
	for _, hs := range c.sources {
		for _, s := range hs.src.HeapStats() {
			k := key{hs.pool, s.Name}
			t, seen := totals[k]
			if !seen {
				order = append(order, k)
				t.Name = s.Name
			}
			t.Add(s)
			totals[k] = t
		}
	}
	c.mu.RUnlock()

	for _, k := range order {
		s := totals[k]
		gauge := func(d *prometheus.Desc, v int64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), k.pool, k.heap)
		}
		counter := func(d *prometheus.Desc, v int64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), k.pool, k.heap)
		}
		gauge(c.reserved, s.ReservedBytes)
		gauge(c.blocks, s.Blocks)
		gauge(c.liveAllocs, s.LiveAllocs)
		gauge(c.liveBytes, s.LiveBytes)
		gauge(c.freeChunks, s.FreeChunks)
		counter(c.allocs, s.Allocs)
		counter(c.frees, s.Frees)
	}
}
