package threadpool

import (
	"fmt"
	"sync/atomic"
)

// MinParallelThreads is the smallest thread count worth a pooled dispatch.
// Below it the call runs inline.
const MinParallelThreads = 3

// ThreadType selects whether a pool yields a core to the servo loop.
type ThreadType int

const (
	// ThreadTypeOther pools use every processor
	ThreadTypeOther ThreadType = iota
	// ThreadTypeMain pools leave one processor free while the servo loop runs
	ThreadTypeMain
)

func (t ThreadType) String() string {
	switch t {
	case ThreadTypeMain:
		return "main"
	case ThreadTypeOther:
		return "other"
	default:
		return fmt.Sprintf("ThreadType(%d)", int(t))
	}
}

// Step is the lifecycle state of a worker record.
type Step int32

const (
	// StepNull is a record that has never been assigned work
	StepNull Step = iota
	// StepStart is work published by the controller, not yet picked up
	StepStart
	// StepRun is a worker executing its shard
	StepRun
	// StepDone is a worker parked after finishing a generation
	StepDone
	// StepExit tells the worker to return
	StepExit
)

func (s Step) String() string {
	switch s {
	case StepNull:
		return "null"
	case StepStart:
		return "start"
	case StepRun:
		return "run"
	case StepDone:
		return "done"
	case StepExit:
		return "exit"
	default:
		return fmt.Sprintf("Step(%d)", int32(s))
	}
}

// Owner identifies the caller a pool belongs to. Owners are comparable and
// serve as registry keys.
type Owner struct {
	id   uint64
	name string
	kind ThreadType
}

var ownerSeq atomic.Uint64

func init() {
	ownerSeq.Store(2)
}

var (
	// MainOwner is the conventional main loop caller.
	MainOwner = Owner{id: 1, name: "main", kind: ThreadTypeMain}
	// ServoOwner is the conventional servo loop caller.
	ServoOwner = Owner{id: 2, name: "servo", kind: ThreadTypeOther}
)

// NewOwner returns a fresh identity. Two calls never return equal owners,
// even with the same name.
func NewOwner(name string, kind ThreadType) Owner {
	return Owner{id: ownerSeq.Add(1), name: name, kind: kind}
}

// Name returns the owner's name.
func (o Owner) Name() string { return o.name }

// ThreadType returns the thread type new pools for this owner start with.
func (o Owner) ThreadType() ThreadType { return o.kind }

// IsZero reports whether o is the zero Owner.
func (o Owner) IsZero() bool { return o.id == 0 }

// String returns name#id, or just the name for the predefined owners.
func (o Owner) String() string {
	if o.id <= 2 {
		return o.name
	}
	return fmt.Sprintf("%s#%d", o.name, o.id)
}
