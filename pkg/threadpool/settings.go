package threadpool

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/cpu"
)

// Settings is process-wide state shared by every pool of a registry. All
// methods are safe for concurrent use. Values may change between dispatches;
// each dispatch reads them once.
type Settings struct {
	servoRunning atomic.Bool
	targeting    atomic.Bool
	maxCores     atomic.Int64
	override     atomic.Int64

	detectOnce sync.Once
	detected   int
}

var defaultSettings = NewSettings()

// NewSettings returns settings with the servo stopped, no core cap and
// processor targeting off.
func NewSettings() *Settings {
	return &Settings{}
}

// DefaultSettings returns the settings used by the default registry.
func DefaultSettings() *Settings {
	return defaultSettings
}

// SetServoRunning records whether the servo loop is running.
func (s *Settings) SetServoRunning(running bool) { s.servoRunning.Store(running) }

// ServoRunning reports whether the servo loop is running.
func (s *Settings) ServoRunning() bool { return s.servoRunning.Load() }

// SetMaxCores caps the threads any pool may use. Zero or less removes the cap.
func (s *Settings) SetMaxCores(n int) {
	if n < 0 {
		n = 0
	}
	s.maxCores.Store(int64(n))
}

// MaxCores returns the process-wide thread cap, 0 when unbounded.
func (s *Settings) MaxCores() int { return int(s.maxCores.Load()) }

// SetProcessorTargetingEnabled turns worker pinning on or off. Workers pick
// the change up on their next wake.
func (s *Settings) SetProcessorTargetingEnabled(enabled bool) { s.targeting.Store(enabled) }

// ProcessorTargetingEnabled reports whether workers pin themselves.
func (s *Settings) ProcessorTargetingEnabled() bool { return s.targeting.Load() }

// SetLogicalProcessors overrides the detected processor count. Zero clears
// the override. Pools that already created their workers keep their size.
func (s *Settings) SetLogicalProcessors(n int) {
	if n < 0 {
		n = 0
	}
	s.override.Store(int64(n))
}

// LogicalProcessors returns the override if set, otherwise the logical
// processor count reported by the host, detected once.
func (s *Settings) LogicalProcessors() int {
	if n := s.override.Load(); n > 0 {
		return int(n)
	}
	s.detectOnce.Do(func() {
		s.detected = detectProcessors()
	})
	return s.detected
}

func detectProcessors() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}
