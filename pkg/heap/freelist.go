package heap

// availRun is a free run of chunks. The list is singly linked and sorted by
// numChunks ascending; equal lengths keep insertion order.
type availRun struct {
	numChunks int
	blockIdx  int
	chunkIdx  int
	next      *availRun
}

// takeFree removes the first run holding at least need chunks. A longer run
// is split: the head is returned and the remainder is reinserted.
func (h *LocalHeap) takeFree(need int) (blockIdx, chunkIdx int, ok bool) {
	var prev *availRun
	for r := h.free; r != nil; prev, r = r, r.next {
		if r.numChunks < need {
			continue
		}
		if prev == nil {
			h.free = r.next
		} else {
			prev.next = r.next
		}
		h.stats.freeRuns.Add(-1)
		h.stats.freeChunks.Add(-int64(r.numChunks))

		blockIdx, chunkIdx = r.blockIdx, r.chunkIdx
		if rest := r.numChunks - need; rest > 0 {
			h.insertNode(r, blockIdx, chunkIdx+need, rest)
		} else {
			h.recycle(r)
		}
		return blockIdx, chunkIdx, true
	}
	return -1, -1, false
}

func (h *LocalHeap) insertFree(blockIdx, chunkIdx, numChunks int) {
	h.insertNode(h.node(), blockIdx, chunkIdx, numChunks)
}

func (h *LocalHeap) insertNode(n *availRun, blockIdx, chunkIdx, numChunks int) {
	n.blockIdx, n.chunkIdx, n.numChunks = blockIdx, chunkIdx, numChunks

	link := &h.free
	for *link != nil && (*link).numChunks <= numChunks {
		link = &(*link).next
	}
	n.next = *link
	*link = n

	h.stats.freeRuns.Add(1)
	h.stats.freeChunks.Add(int64(numChunks))
}

func (h *LocalHeap) node() *availRun {
	if n := h.spare; n != nil {
		h.spare = n.next
		n.next = nil
		return n
	}
	return &availRun{}
}

func (h *LocalHeap) recycle(n *availRun) {
	*n = availRun{next: h.spare}
	h.spare = n
}

// FreeRuns returns the lengths of the free runs in list order.
func (h *LocalHeap) FreeRuns() []int {
	var out []int
	for r := h.free; r != nil; r = r.next {
		out = append(out, r.numChunks)
	}
	return out
}
