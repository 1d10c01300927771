// Package heap implements a single-owner slab allocator used by the worker
// threads of the thread pool.
//
// A LocalHeap carves coarse blocks into fixed-size chunks. Each allocation is
// a contiguous run of chunks. Freed runs go onto a free list kept in
// ascending order of run length, so the next request takes the smallest run
// that fits (first fit on a sorted list is best fit). A run larger than the
// request is split and the remainder goes back on the list. When no run fits,
// memory is bumped from the top of the newest block; a block that cannot hold
// the request has its unused tail moved to the free list before a new block
// is created. Blocks are never returned to the Go heap while the LocalHeap
// lives.
//
// Run headers are kept in a side table per block rather than in front of
// the user bytes, so a 16 byte object with 16 byte chunks takes one chunk.
//
// A LocalHeap is not safe for concurrent use. Concurrency comes from giving
// every thread its own heap; Stack tracks which heap is current for a thread
// and lets a region of code borrow another one:
//
//	restore := stack.Push(ownerHeap)
//	defer restore()
//	buf, _ := heap.Alloc[float32](stack.Current(), 1024)
//
// Memory handed out by a LocalHeap is invisible to the garbage collector's
// pointer scan, so typed allocations are limited to pointer-free element types.
package heap
