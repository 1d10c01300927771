package heap

import "sync/atomic"

// counters are atomics so Stats may be read by a metrics scrape while the
// owning thread allocates.
type counters struct {
	blocks        atomic.Int64
	reservedBytes atomic.Int64
	liveAllocs    atomic.Int64
	liveChunks    atomic.Int64
	liveBytes     atomic.Int64
	freeRuns      atomic.Int64
	freeChunks    atomic.Int64
	allocs        atomic.Int64
	frees         atomic.Int64
	reused        atomic.Int64
}

// Stats is a point-in-time view of a heap.
type Stats struct {
	Name          string `json:"name"`
	Blocks        int64  `json:"blocks"`
	ReservedBytes int64  `json:"reserved_bytes"`
	LiveAllocs    int64  `json:"live_allocs"`
	LiveChunks    int64  `json:"live_chunks"`
	LiveBytes     int64  `json:"live_bytes"`
	FreeRuns      int64  `json:"free_runs"`
	FreeChunks    int64  `json:"free_chunks"`
	Allocs        int64  `json:"allocs"`
	Frees         int64  `json:"frees"`
	Reused        int64  `json:"reused"`
}

// Stats returns the heap counters. Safe to call from any goroutine.
func (h *LocalHeap) Stats() Stats {
	return Stats{
		Name:          h.name,
		Blocks:        h.stats.blocks.Load(),
		ReservedBytes: h.stats.reservedBytes.Load(),
		LiveAllocs:    h.stats.liveAllocs.Load(),
		LiveChunks:    h.stats.liveChunks.Load(),
		LiveBytes:     h.stats.liveBytes.Load(),
		FreeRuns:      h.stats.freeRuns.Load(),
		FreeChunks:    h.stats.freeChunks.Load(),
		Allocs:        h.stats.allocs.Load(),
		Frees:         h.stats.frees.Load(),
		Reused:        h.stats.reused.Load(),
	}
}

// Add accumulates o into s. Name is kept.
func (s *Stats) Add(o Stats) {
	s.Blocks += o.Blocks
	s.ReservedBytes += o.ReservedBytes
	s.LiveAllocs += o.LiveAllocs
	s.LiveChunks += o.LiveChunks
	s.LiveBytes += o.LiveBytes
	s.FreeRuns += o.FreeRuns
	s.FreeChunks += o.FreeChunks
	s.Allocs += o.Allocs
	s.Frees += o.Frees
	s.Reused += o.Reused
}
