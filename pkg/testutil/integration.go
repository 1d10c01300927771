package testutil

import (
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/multicore/pkg/performance"
	"github.com/ajitpratap0/multicore/pkg/threadpool"
)

// PoolSuite provides a fresh registry per test and checks that the OS
// threads its pools started are gone once the pools are shut down.
type PoolSuite struct {
	suite.Suite
	Processors int
	Registry   *threadpool.Registry

	monitor   *performance.ResourceMonitor
	startTime time.Time
}

// SetupSuite runs before all tests in the suite
func (s *PoolSuite) SetupSuite() {
	if s.Processors == 0 {
		s.Processors = 4
	}
	monitor, err := performance.NewResourceMonitor()
	require.NoError(s.T(), err)
	s.monitor = monitor
	s.startTime = time.Now()
}

// TearDownSuite runs after all tests in the suite
func (s *PoolSuite) TearDownSuite() {
	s.T().Logf("pool suite completed in %v", time.Since(s.startTime))
}

// SetupTest creates the registry.
func (s *PoolSuite) SetupTest() {
	settings := threadpool.NewSettings()
	settings.SetLogicalProcessors(s.Processors)
	s.Registry = threadpool.NewRegistry(TestConfig(), settings, TestLogger(s.T()))
}

// TearDownTest shuts the registry down. Worker goroutines stay locked to
// their threads, so the runtime terminates those threads on exit and the
// process thread count must drop.
func (s *PoolSuite) TearDownTest() {
	workers := 0
	for _, owner := range s.Registry.Owners() {
		if p, ok := s.Registry.Lookup(owner); ok {
			workers += p.Stats().Threads
		}
	}
	before := s.ThreadCount()
	s.Registry.ShutdownAll()
	if workers == 0 {
		return
	}
	s.Eventually(func() bool {
		n, err := s.monitor.ThreadCount()
		return err == nil && n < before
	}, 5*time.Second, 10*time.Millisecond, "worker threads outlived shutdown")
}

// ThreadCount returns the OS threads of the test process.
func (s *PoolSuite) ThreadCount() int32 {
	n, err := s.monitor.ThreadCount()
	require.NoError(s.T(), err)
	return n
}

// IntegrationTest marks a test as an integration test
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// PerformanceTest checks the throughput and memory of a workload against
// optional targets.
type PerformanceTest struct {
	t         *testing.T
	name      string
	threshold struct {
		minThroughput float64 // items/sec
		maxMemory     int64   // bytes
	}
}

// NewPerformanceTest creates a new performance test
func NewPerformanceTest(t *testing.T, name string) *PerformanceTest {
	return &PerformanceTest{
		t:    t,
		name: name,
	}
}

// WithThroughputTarget sets minimum throughput requirement
func (p *PerformanceTest) WithThroughputTarget(itemsPerSec float64) *PerformanceTest {
	p.threshold.minThroughput = itemsPerSec
	return p
}

// WithMemoryTarget sets the maximum growth of the Go heap.
func (p *PerformanceTest) WithMemoryTarget(maxBytes int64) *PerformanceTest {
	p.threshold.maxMemory = maxBytes
	return p
}

// Run executes fn and reports the items it processed per second.
func (p *PerformanceTest) Run(fn func() (items int64)) {
	p.t.Helper()

	initial := CaptureMemoryProfile()
	start := time.Now()
	items := fn()
	duration := time.Since(start)
	final := CaptureMemoryProfile()

	throughput := float64(items) / duration.Seconds()
	memoryUsed := int64(final.HeapAlloc) - int64(initial.HeapAlloc)

	p.t.Logf("Performance Test: %s", p.name)
	p.t.Logf("  Items: %d", items)
	p.t.Logf("  Duration: %v", duration)
	p.t.Logf("  Throughput: %.0f items/sec", throughput)
	p.t.Logf("  Heap Growth: %s", formatBytes(memoryUsed))

	if p.threshold.minThroughput > 0 && throughput < p.threshold.minThroughput {
		p.t.Errorf("Throughput %.0f items/sec below target %.0f items/sec",
			throughput, p.threshold.minThroughput)
	}

	if p.threshold.maxMemory > 0 && memoryUsed > p.threshold.maxMemory {
		p.t.Errorf("Heap growth %s exceeds target %s",
			formatBytes(memoryUsed), formatBytes(p.threshold.maxMemory))
	}
}

// MemoryProfile captures memory statistics
type MemoryProfile struct {
	HeapAlloc  uint64
	TotalAlloc uint64
	Mallocs    uint64
	Frees      uint64
	NumGC      uint32
}

// CaptureMemoryProfile captures current memory profile
func CaptureMemoryProfile() *MemoryProfile {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return &MemoryProfile{
		HeapAlloc:  m.HeapAlloc,
		TotalAlloc: m.TotalAlloc,
		Mallocs:    m.Mallocs,
		Frees:      m.Frees,
		NumGC:      m.NumGC,
	}
}

// formatBytes formats bytes into human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	sign := ""
	if bytes < 0 {
		sign, bytes = "-", -bytes
	}
	if bytes < unit {
		return fmt.Sprintf("%s%d B", sign, bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%s%.1f %cB", sign, float64(bytes)/float64(div), "KMGTPE"[exp])
}
