//go:build linux

package affinity

import (
	"golang.org/x/sys/unix"

	"github.com/ajitpratap0/multicore/pkg/errors"
)

const maxCPUs = len(unix.CPUSet{}) * 64

var (
	initialSet unix.CPUSet
	initial    []int
)

func init() {
	if err := unix.SchedGetaffinity(0, &initialSet); err != nil {
		return
	}
	for cpu := 0; cpu < maxCPUs; cpu++ {
		if initialSet.IsSet(cpu) {
			initial = append(initial, cpu)
		}
	}
}

func pin(cpu int) error {
	var set unix.CPUSet
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return errors.Wrap(err, errors.ErrorTypeResource, "sched_setaffinity").WithDetail("cpu", cpu)
	}
	return nil
}

func unpin() error {
	if len(initial) == 0 {
		return ErrUnsupported
	}
	set := initialSet
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return errors.Wrap(err, errors.ErrorTypeResource, "sched_setaffinity")
	}
	return nil
}
