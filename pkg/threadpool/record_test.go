package threadpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/multicore/pkg/errors"
)

func recoverFatal(t *testing.T, fn func()) (err *errors.Error) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a fatal panic")
		var ok bool
		err, ok = r.(*errors.Error)
		require.True(t, ok, "expected *errors.Error, got %T", r)
	}()
	fn()
	return nil
}

func TestRecord_AcceptRunsPublishedStep(t *testing.T) {
	p, _ := newTestPool(t, 4, ThreadTypeOther)
	r := newRecord(1, "accept", p.newHeap)

	var got Shard
	r.task = &task{fn: func(s Shard) { got = s }, numThreads: 4}
	r.generation = 1
	r.step.Store(int32(StepStart))

	assert.False(t, p.accept(r))
	assert.Equal(t, 1, got.ThreadNum)
	assert.Equal(t, 4, got.NumThreads)
	assert.Equal(t, StepRun, r.loadStep())
	assert.Equal(t, uint64(1), r.seen)

	r.generation = 2
	r.step.Store(int32(StepExit))
	assert.True(t, p.accept(r))
}

func TestRecord_AcceptImpossibleStepIsFatal(t *testing.T) {
	p, _ := newTestPool(t, 4, ThreadTypeOther)

	for _, step := range []Step{StepNull, StepRun, StepDone} {
		t.Run(step.String(), func(t *testing.T) {
			r := newRecord(2, "impossible", p.newHeap)
			r.generation = 1
			r.step.Store(int32(step))

			err := recoverFatal(t, func() { p.accept(r) })
			assert.ErrorIs(t, err, ErrImpossibleStep)
			assert.True(t, errors.IsType(err, errors.ErrorTypeProtocol))
			assert.Equal(t, step.String(), err.Details["step"])
		})
	}
}

func TestRecord_AcceptStaleGenerationIsFatal(t *testing.T) {
	p, _ := newTestPool(t, 4, ThreadTypeOther)
	r := newRecord(3, "stale", p.newHeap)
	r.task = &task{fn: func(Shard) {}, numThreads: 4}

	r.generation = 1
	r.step.Store(int32(StepStart))
	require.False(t, p.accept(r))

	// Woken again without a new generation being published.
	r.step.Store(int32(StepStart))
	err := recoverFatal(t, func() { p.accept(r) })
	assert.ErrorIs(t, err, ErrStaleGeneration)
	assert.Equal(t, uint64(1), err.Details["generation"])
	assert.Equal(t, uint64(1), err.Details["seen"])
}
