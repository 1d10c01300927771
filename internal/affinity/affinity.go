// Package affinity pins the calling OS thread to a logical processor.
//
// Callers must hold runtime.LockOSThread for the pin to stay attached to the
// goroutine that asked for it.
package affinity

import (
	"github.com/ajitpratap0/multicore/pkg/errors"
)

// ErrUnsupported is returned on platforms without thread affinity control.
var ErrUnsupported = errors.New(errors.ErrorTypeCapability, "thread affinity is not supported on this platform")

// Pin restricts the calling thread to processor cpu.
func Pin(cpu int) error {
	if cpu < 0 {
		return errors.Newf(errors.ErrorTypeValidation, "invalid processor %d", cpu)
	}
	return pin(cpu)
}

// PinIndex pins the calling thread to the i-th processor the process was
// allowed to run on at startup, wrapping around when i exceeds that count.
func PinIndex(i int) error {
	if i < 0 {
		return errors.Newf(errors.ErrorTypeValidation, "invalid processor index %d", i)
	}
	cpus := Allowed()
	if len(cpus) == 0 {
		return ErrUnsupported
	}
	return pin(cpus[i%len(cpus)])
}

// Unpin restores the processor set the process started with.
func Unpin() error {
	return unpin()
}

// Allowed returns the processors the process was allowed to run on at
// startup, in ascending order. It is empty when affinity is unsupported.
func Allowed() []int {
	return append([]int(nil), initial...)
}

// Supported reports whether Pin can succeed on this platform.
func Supported() bool { return len(initial) > 0 }
