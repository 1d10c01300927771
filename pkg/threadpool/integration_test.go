package threadpool_test

import (
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/multicore/pkg/heap"
	"github.com/ajitpratap0/multicore/pkg/psort"
	"github.com/ajitpratap0/multicore/pkg/testutil"
	"github.com/ajitpratap0/multicore/pkg/threadpool"
)

type integrationSuite struct {
	testutil.PoolSuite
}

func TestIntegrationSuite(t *testing.T) {
	testutil.IntegrationTest(t)
	suite.Run(t, new(integrationSuite))
}

func (s *integrationSuite) TestWorkersStartOnFirstDispatch() {
	p := s.Registry.Pool(threadpool.MainOwner)
	s.Zero(p.Stats().Threads)

	var hits atomic.Int64
	p.RunLoop(1000, func(_ threadpool.Shard, _ int) { hits.Add(1) })
	s.Equal(int64(1000), hits.Load())
	s.Equal(s.Processors, p.Stats().Threads)
}

func (s *integrationSuite) TestOwnersDispatchConcurrently() {
	owners := []threadpool.Owner{
		threadpool.MainOwner,
		threadpool.NewOwner("loader", threadpool.ThreadTypeOther),
		threadpool.NewOwner("indexer", threadpool.ThreadTypeOther),
	}

	done := make(chan int64, len(owners))
	for _, owner := range owners {
		p := s.Registry.Pool(owner)
		go func() {
			var sum atomic.Int64
			for round := 0; round < 20; round++ {
				p.RunLoop(100, func(_ threadpool.Shard, idx int) { sum.Add(int64(idx)) })
			}
			done <- sum.Load()
		}()
	}
	for range owners {
		s.Equal(int64(20*4950), <-done)
	}
	s.Equal(len(owners), s.Registry.Len())
}

func (s *integrationSuite) TestSortAndShardHeaps() {
	p := s.Registry.Pool(threadpool.MainOwner)

	rng := rand.New(rand.NewSource(7))
	data := make([]int64, 50_000)
	for i := range data {
		data[i] = rng.Int63()
	}

	testutil.NewPerformanceTest(s.T(), "psort").Run(func() int64 {
		s.Require().NoError(psort.Sort(p, data))
		return int64(len(data))
	})
	s.True(psort.IsSorted(data))

	var failures atomic.Int64
	p.Run(func(sh threadpool.Shard) {
		buf, err := heap.Alloc[uint64](sh.Heap(), 128)
		if err != nil {
			failures.Add(1)
			return
		}
		buf[0] = uint64(sh.ThreadNum)
		if heap.Free(sh.Heap(), &buf) != nil {
			failures.Add(1)
		}
	})
	s.Zero(failures.Load())

	for _, st := range p.HeapStats() {
		s.Zero(st.LiveAllocs, st.Name)
	}
}
