package heap

import (
	"encoding/binary"
	"math"
	"math/bits"
	"unsafe"

	"github.com/ajitpratap0/multicore/pkg/config"
	"github.com/ajitpratap0/multicore/pkg/errors"
)

const (
	guardSize    = 8
	guardPattern = uint64(0xfeedfacedeadbeef)

	// blockAlign is the alignment of every block's first byte.
	blockAlign = 16

	// maxAllocSize is the largest size a blockHeader can record.
	maxAllocSize = math.MaxUint32
)

var (
	// ErrInvalidSize is returned for negative allocation sizes and sizes
	// above 4 GiB.
	ErrInvalidSize = errors.New(errors.ErrorTypeValidation, "allocation size out of range")
	// ErrInvalidPointer is returned when freeing memory this heap does not
	// consider live: foreign slices, interior pointers and double frees.
	ErrInvalidPointer = errors.New(errors.ErrorTypeResource, "pointer is not a live allocation of this heap")
	// ErrGuardCorrupted is returned by Free when the bytes written after an
	// allocation have been overwritten. The run is not recycled.
	ErrGuardCorrupted = errors.New(errors.ErrorTypeResource, "guard band overwritten")
)

// blockHeader describes the run starting at one chunk. numChunks is zero for
// chunks that do not start a live allocation.
type blockHeader struct {
	numChunks uint32
	size      uint32
}

type block struct {
	data    []byte
	base    uintptr
	headers []blockHeader
	live    int
}

// LocalHeap is a slab allocator owned by a single thread.
type LocalHeap struct {
	name        string
	chunkSize   int
	chunkShift  uint
	blockChunks int
	guard       bool

	blocks   []*block
	topBlock int
	topChunk int

	free  *availRun
	spare *availRun

	stats counters
}

// New creates a heap. cfg must pass HeapConfig.Validate; an invalid
// configuration falls back to the defaults.
func New(name string, cfg config.HeapConfig) *LocalHeap {
	if cfg.Validate() != nil {
		cfg = config.Default().Heap
	}
	return &LocalHeap{
		name:        name,
		chunkSize:   cfg.ChunkSize,
		chunkShift:  uint(bits.TrailingZeros(uint(cfg.ChunkSize))),
		blockChunks: cfg.BlockChunks,
		guard:       cfg.GuardBands,
		topBlock:    -1,
	}
}

// Name returns the name the heap was created with.
func (h *LocalHeap) Name() string { return h.name }

// ChunkSize returns the allocation granularity in bytes.
func (h *LocalHeap) ChunkSize() int { return h.chunkSize }

// Alloc returns numBytes of zeroed memory. The slice has len and cap equal
// to numBytes. Alloc(0) returns nil.
func (h *LocalHeap) Alloc(numBytes int) ([]byte, error) {
	if numBytes < 0 || uint64(numBytes) > maxAllocSize {
		return nil, ErrInvalidSize.WithDetail("size", numBytes)
	}
	if numBytes == 0 {
		return nil, nil
	}
	return h.alloc(numBytes), nil
}

// Free returns b to the heap. b must be a slice returned by Alloc, or a
// reslice of one that starts at the same byte. Freeing nil is a no-op.
func (h *LocalHeap) Free(b []byte) error {
	if cap(b) == 0 {
		return nil
	}
	return h.freeAt(uintptr(unsafe.Pointer(unsafe.SliceData(b))))
}

// Owns reports whether b points into one of this heap's blocks.
func (h *LocalHeap) Owns(b []byte) bool {
	if cap(b) == 0 {
		return false
	}
	_, _, ok := h.locate(uintptr(unsafe.Pointer(unsafe.SliceData(b))))
	return ok
}

func (h *LocalHeap) chunksFor(numBytes int) int {
	total := numBytes
	if h.guard {
		total += guardSize
	}
	n := (total + h.chunkSize - 1) >> h.chunkShift
	if n == 0 {
		n = 1
	}
	return n
}

func (h *LocalHeap) alloc(numBytes int) []byte {
	need := h.chunksFor(numBytes)

	blockIdx, chunkIdx, ok := h.takeFree(need)
	if ok {
		h.stats.reused.Add(1)
	} else {
		blockIdx, chunkIdx = h.bump(need)
	}

	blk := h.blocks[blockIdx]
	blk.headers[chunkIdx] = blockHeader{numChunks: uint32(need), size: uint32(numBytes)}
	blk.live++

	off := chunkIdx << h.chunkShift
	b := blk.data[off : off+numBytes : off+numBytes]
	clear(b)
	if h.guard {
		binary.LittleEndian.PutUint64(blk.data[off+numBytes:], guardPattern)
	}

	h.stats.allocs.Add(1)
	h.stats.liveAllocs.Add(1)
	h.stats.liveChunks.Add(int64(need))
	h.stats.liveBytes.Add(int64(numBytes))
	return b
}

// bump carves need chunks from the top of the newest block, opening a new
// block when the current one is too small.
func (h *LocalHeap) bump(need int) (blockIdx, chunkIdx int) {
	if h.topBlock >= 0 {
		blk := h.blocks[h.topBlock]
		if h.topChunk+need <= len(blk.headers) {
			chunkIdx = h.topChunk
			h.topChunk += need
			return h.topBlock, chunkIdx
		}
		if tail := len(blk.headers) - h.topChunk; tail > 0 {
			h.insertFree(h.topBlock, h.topChunk, tail)
			h.topChunk = len(blk.headers)
		}
	}

	chunks := h.blockChunks
	if need > chunks {
		chunks = need
	}
	h.newBlock(chunks)
	h.topChunk = need
	return h.topBlock, 0
}

func (h *LocalHeap) newBlock(chunks int) {
	size := chunks << h.chunkShift
	raw := make([]byte, size+blockAlign)
	base := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	shift := int((blockAlign - base%blockAlign) % blockAlign)

	blk := &block{
		data:    raw[shift : shift+size : shift+size],
		base:    base + uintptr(shift),
		headers: make([]blockHeader, chunks),
	}
	h.blocks = append(h.blocks, blk)
	h.topBlock = len(h.blocks) - 1
	h.topChunk = 0

	h.stats.blocks.Add(1)
	h.stats.reservedBytes.Add(int64(size))
}

// locate maps an address to the block and chunk it falls in. Newer blocks
// are searched first.
func (h *LocalHeap) locate(p uintptr) (blockIdx, chunkIdx int, ok bool) {
	for i := len(h.blocks) - 1; i >= 0; i-- {
		blk := h.blocks[i]
		if p < blk.base || p >= blk.base+uintptr(len(blk.data)) {
			continue
		}
		off := p - blk.base
		if off&uintptr(h.chunkSize-1) != 0 {
			return i, -1, true
		}
		return i, int(off >> h.chunkShift), true
	}
	return -1, -1, false
}

func (h *LocalHeap) freeAt(p uintptr) error {
	blockIdx, chunkIdx, ok := h.locate(p)
	if !ok {
		return ErrInvalidPointer.WithDetail("heap", h.name)
	}
	if chunkIdx < 0 {
		return ErrInvalidPointer.WithDetail("heap", h.name).WithDetail("block", blockIdx).WithDetail("reason", "unaligned")
	}

	blk := h.blocks[blockIdx]
	hdr := blk.headers[chunkIdx]
	if hdr.numChunks == 0 || chunkIdx+int(hdr.numChunks) > len(blk.headers) {
		return ErrInvalidPointer.WithDetail("heap", h.name).WithDetail("block", blockIdx).WithDetail("chunk", chunkIdx)
	}

	if h.guard {
		off := chunkIdx<<h.chunkShift + int(hdr.size)
		if binary.LittleEndian.Uint64(blk.data[off:]) != guardPattern {
			return ErrGuardCorrupted.WithDetail("heap", h.name).WithDetail("block", blockIdx).WithDetail("chunk", chunkIdx)
		}
	}

	blk.headers[chunkIdx] = blockHeader{}
	blk.live--
	h.insertFree(blockIdx, chunkIdx, int(hdr.numChunks))

	h.stats.frees.Add(1)
	h.stats.liveAllocs.Add(-1)
	h.stats.liveChunks.Add(-int64(hdr.numChunks))
	h.stats.liveBytes.Add(-int64(hdr.size))
	return nil
}
