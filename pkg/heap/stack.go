package heap

import (
	"github.com/ajitpratap0/multicore/pkg/errors"
)

// ErrScopeOrder is raised when heap scopes are restored out of LIFO order.
var ErrScopeOrder = errors.New(errors.ErrorTypeProtocol, "heap scope restored out of order")

// Factory builds the base heap of a Stack on first use.
type Factory func() *LocalHeap

// Stack tracks the current heap of one thread. The base heap is created
// lazily; Push temporarily replaces it. Like LocalHeap, a Stack belongs to a
// single thread.
type Stack struct {
	factory Factory
	base    *LocalHeap
	frames  []*LocalHeap
}

// NewStack returns a Stack whose base heap comes from factory.
func NewStack(factory Factory) *Stack {
	return &Stack{factory: factory}
}

// Current returns the innermost pushed heap, or the base heap.
func (s *Stack) Current() *LocalHeap {
	if n := len(s.frames); n > 0 {
		return s.frames[n-1]
	}
	return s.Base()
}

// Base returns the base heap, creating it if needed.
func (s *Stack) Base() *LocalHeap {
	if s.base == nil {
		s.base = s.factory()
	}
	return s.base
}

// Initialized reports whether the base heap exists yet.
func (s *Stack) Initialized() bool { return s.base != nil }

// Depth returns the number of active scopes.
func (s *Stack) Depth() int { return len(s.frames) }

// Push makes h current until the returned restore func runs. Scopes must be
// restored innermost first; restore is idempotent.
func (s *Stack) Push(h *LocalHeap) (restore func()) {
	if h == nil {
		errors.Fatal(nil, ErrScopeOrder.WithDetail("reason", "nil heap"))
	}
	depth := len(s.frames)
	s.frames = append(s.frames, h)

	done := false
	return func() {
		if done {
			return
		}
		if len(s.frames) != depth+1 || s.frames[depth] != h {
			errors.Fatal(nil, ErrScopeOrder.WithDetail("depth", depth).WithDetail("active", len(s.frames)))
		}
		s.frames[depth] = nil
		s.frames = s.frames[:depth]
		done = true
	}
}

// Heaps returns the base heap (if created) followed by any pushed heaps.
func (s *Stack) Heaps() []*LocalHeap {
	out := make([]*LocalHeap, 0, len(s.frames)+1)
	if s.base != nil {
		out = append(out, s.base)
	}
	return append(out, s.frames...)
}
