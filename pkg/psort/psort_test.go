package psort

import (
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/multicore/pkg/config"
	"github.com/ajitpratap0/multicore/pkg/threadpool"
)

func newPool(t *testing.T, processors int) *threadpool.Pool {
	t.Helper()
	cfg := config.Default()
	cfg.Pool.Processors = processors
	cfg.Pool.PollInterval = 10 * time.Microsecond
	p := threadpool.New(threadpool.NewOwner(t.Name(), threadpool.ThreadTypeOther), cfg, threadpool.NewSettings(), zaptest.NewLogger(t))
	t.Cleanup(p.Shutdown)
	return p
}

func TestSort_MatchesSlicesSort(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, processors := range []int{1, 3, 4, 5, 8} {
		p := newPool(t, processors)
		for _, n := range []int{0, 1, 2, 3, 7, 16, 17, 100, 1000, 4099} {
			data := make([]int32, n)
			for i := range data {
				data[i] = rng.Int31n(1000) - 500
			}
			want := slices.Clone(data)
			slices.Sort(want)

			require.NoError(t, Sort(p, data))
			assert.Equal(t, want, data, "processors=%d n=%d", processors, n)
		}
	}
}

func TestSort_Floats(t *testing.T) {
	p := newPool(t, 4)
	rng := rand.New(rand.NewSource(7))

	data := make([]float64, 10000)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	want := slices.Clone(data)
	slices.Sort(want)

	require.NoError(t, Sort(p, data))
	assert.True(t, IsSorted(data))
	assert.Equal(t, want, data)
}

func TestSort_AlreadyOrdered(t *testing.T) {
	p := newPool(t, 4)

	asc := make([]uint16, 300)
	desc := make([]uint16, 300)
	for i := range asc {
		asc[i] = uint16(i)
		desc[i] = uint16(len(desc) - i)
	}

	require.NoError(t, Sort(p, asc))
	require.NoError(t, Sort(p, desc))
	assert.True(t, IsSorted(asc))
	assert.True(t, IsSorted(desc))
	assert.Equal(t, uint16(1), desc[0])
}

type celsius float32

func TestSort_NamedType(t *testing.T) {
	p := newPool(t, 3)

	data := []celsius{21.5, -4, 37, 0, 12.25, -4}
	require.NoError(t, Sort(p, data))
	assert.Equal(t, []celsius{-4, -4, 0, 12.25, 21.5, 37}, data)
}

func TestSort_ReleasesScratch(t *testing.T) {
	p := newPool(t, 4)

	data := make([]int64, 5000)
	for i := range data {
		data[i] = int64(len(data) - i)
	}
	require.NoError(t, Sort(p, data))

	for _, s := range p.HeapStats() {
		assert.Zero(t, s.LiveAllocs, s.Name)
	}
}

func TestIsSorted(t *testing.T) {
	assert.True(t, IsSorted([]int{}))
	assert.True(t, IsSorted([]int{1, 1, 2}))
	assert.False(t, IsSorted([]int{2, 1}))
}

func TestMerge(t *testing.T) {
	out := make([]int, 7)
	merge([]int{1, 4, 9}, []int{2, 3, 10, 11}, out)
	assert.Equal(t, []int{1, 2, 3, 4, 9, 10, 11}, out)
}
