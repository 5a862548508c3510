//go:build !windows && !linux

package procmem

import "fmt"

type unsupportedSystem struct{}

func newSystem() system {
	return unsupportedSystem{}
}

func (unsupportedSystem) findProcess(name string) (uint32, error) {
	return 0, fmt.Errorf("%w: %s (platform unsupported)", ErrProcessNotFound, name)
}

func (unsupportedSystem) open(pid uint32) (osProcess, error) {
	return nil, fmt.Errorf("%w: pid %d (platform unsupported)", ErrAccessDenied, pid)
}
