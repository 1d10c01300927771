// Package psort sorts numeric slices in parallel on a thread pool.
//
// Sort splits the slice into one contiguous segment per thread. Each thread
// merge-sorts its segment using scratch memory from its own heap, then
// neighbouring segments are merged pairwise, one pooled dispatch per round,
// until one segment remains.
package psort

import (
	"sync"

	"github.com/ajitpratap0/multicore/pkg/heap"
	"github.com/ajitpratap0/multicore/pkg/threadpool"
)

// Number is the set of element types Sort accepts. They are pointer-free,
// so scratch space can come from a LocalHeap.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64
}

// insertionRun is the length of the runs insertion-sorted before merging.
const insertionRun = 16

// Sort sorts data in ascending order using p. It must be called from the
// goroutine driving p. The order of NaNs is unspecified.
func Sort[T Number](p *threadpool.Pool, data []T) (err error) {
	n := len(data)
	if n < 2 {
		return nil
	}

	var (
		mu       sync.Mutex
		firstErr error
		threads  int
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	p.Run(func(s threadpool.Shard) {
		if s.ThreadNum == 0 {
			threads = s.NumThreads
		}
		lo, hi := s.Range(n)
		if hi-lo < 2 {
			return
		}
		buf, err := heap.Alloc[T](s.Heap(), hi-lo)
		if err != nil {
			fail(err)
			return
		}
		mergeSort(data[lo:hi], buf)
		if err := heap.Free(s.Heap(), &buf); err != nil {
			fail(err)
		}
	})
	if firstErr != nil || threads < 2 {
		return firstErr
	}

	bounds := make([]int, threads+1)
	for i := range bounds {
		bounds[i] = n * i / threads
	}

	h := p.Heap()
	scratch, err := heap.Alloc[T](h, n)
	if err != nil {
		return err
	}
	defer func() {
		if ferr := heap.Free(h, &scratch); err == nil {
			err = ferr
		}
	}()

	src, dst := data, scratch
	for len(bounds) > 2 {
		segments := len(bounds) - 1
		p.RunLoop((segments+1)/2, func(_ threadpool.Shard, k int) {
			lo := bounds[2*k]
			if 2*k+2 > segments {
				copy(dst[lo:], src[lo:bounds[2*k+1]])
				return
			}
			mid, hi := bounds[2*k+1], bounds[2*k+2]
			merge(src[lo:mid], src[mid:hi], dst[lo:hi])
		})

		next := make([]int, 0, len(bounds)/2+2)
		for i := 0; i < len(bounds); i += 2 {
			next = append(next, bounds[i])
		}
		if next[len(next)-1] != n {
			next = append(next, n)
		}
		bounds = next
		src, dst = dst, src
	}

	if &src[0] != &data[0] {
		copy(data, src)
	}
	return nil
}

// IsSorted reports whether data is in ascending order.
func IsSorted[T Number](data []T) bool {
	for i := 1; i < len(data); i++ {
		if data[i] < data[i-1] {
			return false
		}
	}
	return true
}

// mergeSort sorts a bottom-up using buf, which must be at least len(a).
func mergeSort[T Number](a, buf []T) {
	n := len(a)
	for lo := 0; lo < n; lo += insertionRun {
		insertionSort(a[lo:min(lo+insertionRun, n)])
	}

	src, dst := a, buf[:n]
	for width := insertionRun; width < n; width *= 2 {
		for lo := 0; lo < n; lo += 2 * width {
			mid := min(lo+width, n)
			hi := min(lo+2*width, n)
			merge(src[lo:mid], src[mid:hi], dst[lo:hi])
		}
		src, dst = dst, src
	}
	if &src[0] != &a[0] {
		copy(a, src)
	}
}

func insertionSort[T Number](a []T) {
	for i := 1; i < len(a); i++ {
		v := a[i]
		j := i
		for ; j > 0 && v < a[j-1]; j-- {
			a[j] = a[j-1]
		}
		a[j] = v
	}
}

// merge writes the stable merge of a and b into out, len(out) == len(a)+len(b).
func merge[T Number](a, b, out []T) {
	i, j, k := 0, 0, 0
	for i < len(a) && j < len(b) {
		if b[j] < a[i] {
			out[k] = b[j]
			j++
		} else {
			out[k] = a[i]
			i++
		}
		k++
	}
	k += copy(out[k:], a[i:])
	copy(out[k:], b[j:])
}
