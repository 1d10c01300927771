// Package performance measures dispatch throughput and process resources
// for the benchmark commands.
package performance

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/ajitpratap0/multicore/pkg/errors"
	"github.com/ajitpratap0/multicore/pkg/metrics"
)

// Profiler records per-dispatch latencies and samples process resources
// while a benchmark runs.
type Profiler struct {
	name       string
	config     *ProfilerConfig
	startTime  time.Time
	memStats   runtime.MemStats
	cpuFile    *os.File
	latency    *metrics.LatencyTracker
	dispatches atomic.Int64
	items      atomic.Int64

	sampling     bool
	samplingStop chan struct{}
	samplingDone chan struct{}
	monitor      *ResourceMonitor

	mu         sync.RWMutex
	cpuPercent float64
	peakThread int32
}

// Metrics is the result of a profiling run.
type Metrics struct {
	Elapsed             time.Duration          `json:"elapsed_ns"`
	Dispatches          int64                  `json:"dispatches"`
	Items               int64                  `json:"items"`
	DispatchesPerSecond float64                `json:"dispatches_per_second"`
	ItemsPerSecond      float64                `json:"items_per_second"`
	Latency             metrics.LatencySummary `json:"latency"`

	CPUUsagePercent float64 `json:"cpu_usage_percent"`
	HeapAllocMB     uint64  `json:"heap_alloc_mb"`
	GoroutineCount  int     `json:"goroutines"`
	PeakThreadCount int32   `json:"peak_os_threads"`
	GCCount         uint32  `json:"gc_count"`
	GCPauseTotal    uint64  `json:"gc_pause_total_ns"`
}

// ProfilerConfig configures the profiler
type ProfilerConfig struct {
	Name             string
	CPUProfilePath   string
	SamplingInterval time.Duration
	ResourceMonitor  bool
	LatencyWindow    int
}

// DefaultProfilerConfig returns default configuration
func DefaultProfilerConfig(name string) *ProfilerConfig {
	return &ProfilerConfig{
		Name:             name,
		SamplingInterval: 100 * time.Millisecond,
		ResourceMonitor:  true,
		LatencyWindow:    10000,
	}
}

// NewProfiler creates a new profiler
func NewProfiler(config *ProfilerConfig) *Profiler {
	if config == nil {
		config = DefaultProfilerConfig("default")
	}
	p := &Profiler{
		name:    config.Name,
		config:  config,
		latency: metrics.NewLatencyTracker(config.LatencyWindow),
	}
	if config.ResourceMonitor {
		if rm, err := NewResourceMonitor(); err == nil {
			p.monitor = rm
		}
	}
	return p
}

// Start begins profiling. It writes a CPU profile when CPUProfilePath is set.
func (p *Profiler) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	runtime.ReadMemStats(&p.memStats)

	if path := p.config.CPUProfilePath; path != "" {
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeResource, "create cpu profile")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return errors.Wrap(err, errors.ErrorTypeResource, "start cpu profile")
		}
		p.cpuFile = f
	}

	if p.monitor != nil && p.config.SamplingInterval > 0 {
		p.monitor.Reset()
		p.startSampling(p.config.SamplingInterval)
	}
	return nil
}

// Stop ends profiling and returns the collected metrics.
func (p *Profiler) Stop() *Metrics {
	p.mu.Lock()
	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		p.cpuFile.Close()
		p.cpuFile = nil
	}
	sampling := p.sampling
	p.sampling = false
	p.mu.Unlock()

	if sampling {
		close(p.samplingStop)
		<-p.samplingDone
	}
	p.sampleResources()
	return p.GetMetrics()
}

// RecordDispatch records one dispatch and the number of items it covered.
func (p *Profiler) RecordDispatch(d time.Duration, items int) {
	p.latency.Record(d)
	p.dispatches.Add(1)
	p.items.Add(int64(items))
}

// GetMetrics returns the metrics collected so far.
func (p *Profiler) GetMetrics() *Metrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	elapsed := time.Since(p.startTime)
	m := &Metrics{
		Elapsed:         elapsed,
		Dispatches:      p.dispatches.Load(),
		Items:           p.items.Load(),
		Latency:         p.latency.Summary(),
		CPUUsagePercent: p.cpuPercent,
		GoroutineCount:  runtime.NumGoroutine(),
		PeakThreadCount: p.peakThread,
	}
	if s := elapsed.Seconds(); s > 0 {
		m.DispatchesPerSecond = float64(m.Dispatches) / s
		m.ItemsPerSecond = float64(m.Items) / s
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	m.HeapAllocMB = memStats.HeapAlloc / 1024 / 1024
	m.GCCount = memStats.NumGC - p.memStats.NumGC
	m.GCPauseTotal = memStats.PauseTotalNs - p.memStats.PauseTotalNs
	return m
}

func (p *Profiler) startSampling(interval time.Duration) {
	p.samplingStop = make(chan struct{})
	p.samplingDone = make(chan struct{})
	p.sampling = true

	go func() {
		defer close(p.samplingDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.sampleResources()
			case <-p.samplingStop:
				return
			}
		}
	}()
}

func (p *Profiler) sampleResources() {
	cpuPercent, _ := cpu.Percent(0, false)

	var threads int32
	if p.monitor != nil {
		threads, _ = p.monitor.ThreadCount()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(cpuPercent) > 0 {
		p.cpuPercent = cpuPercent[0]
	}
	if threads > p.peakThread {
		p.peakThread = threads
	}
}

// ProfileResult contains profiling results
type ProfileResult struct {
	Name      string         `json:"name"`
	Metrics   *Metrics       `json:"metrics"`
	Resources *ResourceUsage `json:"resources,omitempty"`
	Report    string         `json:"-"`
}

// GenerateReport renders the current metrics as text.
func (p *Profiler) GenerateReport() *ProfileResult {
	m := p.GetMetrics()
	var resources *ResourceUsage
	if p.monitor != nil {
		resources, _ = p.monitor.Usage()
	}

	report := fmt.Sprintf(`
Performance Profile: %s
========================
Duration: %v

Throughput:
- Dispatches: %d (%.0f/sec)
- Items: %d (%.0f/sec)

Dispatch latency (last %d):
- Min: %v
- P50: %v
- P90: %v
- P99: %v
- Max: %v

Resources:
- CPU: %.2f%%
- Heap: %d MB
- Goroutines: %d
- Peak OS threads: %d
- GC Count: %d
- GC Pause: %v
`,
		p.name,
		m.Elapsed,
		m.Dispatches, m.DispatchesPerSecond,
		m.Items, m.ItemsPerSecond,
		m.Latency.Count,
		m.Latency.Min, m.Latency.P50, m.Latency.P90, m.Latency.P99, m.Latency.Max,
		m.CPUUsagePercent,
		m.HeapAllocMB,
		m.GoroutineCount,
		m.PeakThreadCount,
		m.GCCount,
		time.Duration(m.GCPauseTotal),
	)

	return &ProfileResult{
		Name:      p.name,
		Metrics:   m,
		Resources: resources,
		Report:    report,
	}
}
