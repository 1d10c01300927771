package threadpool

import (
	"fmt"
	"runtime/debug"

	"github.com/ajitpratap0/multicore/pkg/errors"
)

var (
	// ErrPoolClosed is raised by a dispatch on a pool after Shutdown.
	ErrPoolClosed = errors.New(errors.ErrorTypeProtocol, "dispatch on a pool that has been shut down")
	// ErrConcurrentControl is raised when two goroutines drive one pool at once.
	ErrConcurrentControl = errors.New(errors.ErrorTypeProtocol, "pool driven by two goroutines at once")
	// ErrImpossibleStep is raised by a worker woken in a step other than start or exit.
	ErrImpossibleStep = errors.New(errors.ErrorTypeProtocol, "worker woke in an impossible step")
	// ErrStaleGeneration is raised by a worker woken without a new generation.
	ErrStaleGeneration = errors.New(errors.ErrorTypeProtocol, "worker woke with a stale generation")
	// ErrNotDone is raised when a joined worker is not parked in StepDone.
	ErrNotDone = errors.New(errors.ErrorTypeProtocol, "worker not done after join")
	// ErrNilCallable is raised when a dispatch is given no function.
	ErrNilCallable = errors.New(errors.ErrorTypeValidation, "nil callable")
	// ErrZeroOwner is raised when the registry is asked for the zero Owner.
	ErrZeroOwner = errors.New(errors.ErrorTypeValidation, "zero owner")
)

// ShardPanic carries a panic raised inside a shard back to the goroutine that
// joined the dispatch. The dispatch itself still completes on every thread.
type ShardPanic struct {
	ThreadNum int
	Value     any
	Stack     []byte
}

func newShardPanic(threadNum int, v any) *ShardPanic {
	return &ShardPanic{ThreadNum: threadNum, Value: v, Stack: debug.Stack()}
}

func (e *ShardPanic) Error() string {
	return fmt.Sprintf("panic in shard %d: %v", e.ThreadNum, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *ShardPanic) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
