package heap

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vec3 struct {
	X, Y, Z float32
}

type withPointer struct {
	N    int
	Next *withPointer
}

func TestAlloc_Typed(t *testing.T) {
	h := testHeap(t, 16, 64, false)

	vs, err := Alloc[vec3](h, 10)
	require.NoError(t, err)
	require.Len(t, vs, 10)
	for i := range vs {
		assert.Equal(t, vec3{}, vs[i])
		vs[i] = vec3{X: float32(i)}
	}
	assert.Equal(t, int64(10*unsafe.Sizeof(vec3{})), h.Stats().LiveBytes)

	require.NoError(t, Free(h, &vs))
	assert.Nil(t, vs)
	assert.Equal(t, int64(0), h.Stats().LiveAllocs)
}

func TestAlloc_RejectsPointerTypes(t *testing.T) {
	h := testHeap(t, 16, 64, false)

	_, err := Alloc[withPointer](h, 1)
	assert.ErrorIs(t, err, ErrPointerType)
	_, err = Alloc[string](h, 1)
	assert.ErrorIs(t, err, ErrPointerType)
	_, err = Alloc[[]int](h, 1)
	assert.ErrorIs(t, err, ErrPointerType)

	_, err = Alloc[[4]uint16](h, 1)
	assert.NoError(t, err)
}

func TestAlloc_Alignment(t *testing.T) {
	h := testHeap(t, 8, 64, false)

	for i := 0; i < 5; i++ {
		bs, err := Alloc[byte](h, 3)
		require.NoError(t, err)
		require.Len(t, bs, 3)

		cs, err := Alloc[complex128](h, 1)
		require.NoError(t, err)
		assert.Zero(t, uintptr(unsafe.Pointer(&cs[0]))%unsafe.Alignof(cs[0]))
	}
}

func TestAlloc_EdgeCounts(t *testing.T) {
	h := testHeap(t, 16, 64, false)

	_, err := Alloc[int32](h, -1)
	assert.ErrorIs(t, err, ErrInvalidSize)

	none, err := Alloc[int32](h, 0)
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.NoError(t, Free(h, &none))
	assert.NoError(t, Free[int32](h, nil))

	empty, err := Alloc[struct{}](h, 5)
	require.NoError(t, err)
	assert.Len(t, empty, 5)
	assert.NoError(t, Free(h, &empty))
	assert.Equal(t, int64(0), h.Stats().Allocs)
}

func TestAlloc_CountOverflow(t *testing.T) {
	h := testHeap(t, 16, 64, false)

	first, err := Alloc[uint64](h, 2)
	require.NoError(t, err)
	topChunk, live := h.topChunk, h.Stats().LiveAllocs

	for _, n := range []int{math.MaxInt / 4, math.MaxInt/8 + 1, math.MaxUint32/8 + 1} {
		var got []uint64
		require.NotPanics(t, func() { got, err = Alloc[uint64](h, n) })
		assert.ErrorIs(t, err, ErrInvalidSize, n)
		assert.Nil(t, got)
	}
	assert.Equal(t, topChunk, h.topChunk)
	assert.Equal(t, live, h.Stats().LiveAllocs)

	assert.NoError(t, Free(h, &first))
}
