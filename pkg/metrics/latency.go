package metrics

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/eapache/queue"
)

// LatencyTracker keeps a sliding window of the most recent latencies and
// answers percentile queries over it. Safe for concurrent use.
type LatencyTracker struct {
	mu      sync.Mutex
	window  *queue.Queue
	maxSize int
	total   int64
}

// NewLatencyTracker creates a tracker holding at most maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &LatencyTracker{
		window:  queue.New(),
		maxSize: maxSize,
	}
}

// Record adds a sample, evicting the oldest when the window is full.
func (l *LatencyTracker) Record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.window.Length() >= l.maxSize {
		l.window.Remove()
	}
	l.window.Add(d)
	l.total++
}

// Len returns the number of samples in the window.
func (l *LatencyTracker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.window.Length()
}

// Total returns the number of samples ever recorded.
func (l *LatencyTracker) Total() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// GetPercentile returns the p-th percentile (0-100) of the window using the
// nearest-rank method.
func (l *LatencyTracker) GetPercentile(p float64) time.Duration {
	sorted := l.snapshot()
	if len(sorted) == 0 {
		return 0
	}
	return percentile(sorted, p)
}

// Summary returns min, p50, p90, p99 and max over the window.
func (l *LatencyTracker) Summary() LatencySummary {
	sorted := l.snapshot()
	if len(sorted) == 0 {
		return LatencySummary{}
	}
	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	return LatencySummary{
		Count: len(sorted),
		Min:   sorted[0],
		Mean:  sum / time.Duration(len(sorted)),
		P50:   percentile(sorted, 50),
		P90:   percentile(sorted, 90),
		P99:   percentile(sorted, 99),
		Max:   sorted[len(sorted)-1],
	}
}

// LatencySummary is a percentile digest of a LatencyTracker window.
type LatencySummary struct {
	Count int           `json:"count"`
	Min   time.Duration `json:"min_ns"`
	Mean  time.Duration `json:"mean_ns"`
	P50   time.Duration `json:"p50_ns"`
	P90   time.Duration `json:"p90_ns"`
	P99   time.Duration `json:"p99_ns"`
	Max   time.Duration `json:"max_ns"`
}

func (l *LatencyTracker) snapshot() []time.Duration {
	l.mu.Lock()
	out := make([]time.Duration, l.window.Length())
	for i := range out {
		out[i] = l.window.Get(i).(time.Duration)
	}
	l.mu.Unlock()

	slices.Sort(out)
	return out
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if p <= 0 {
		return sorted[0]
	}
	rank := int(math.Ceil(float64(len(sorted))*p/100)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
