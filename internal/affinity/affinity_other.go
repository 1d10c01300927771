//go:build !linux

package affinity

var initial []int

func pin(int) error { return ErrUnsupported }

func unpin() error { return ErrUnsupported }
