// Package procmem attaches to a running process by executable name and reads
// raw bytes out of its address space.
package procmem

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrProcessNotFound means no running process matched the executable name.
	ErrProcessNotFound = errors.New("process not found")
	// ErrAccessDenied means the process exists but could not be opened for reading.
	ErrAccessDenied = errors.New("access denied")
	// ErrModuleNotFound means the process has no loaded module with the requested name.
	ErrModuleNotFound = errors.New("module not found")
	// ErrReadFailed means a memory read did not return the full requested size.
	ErrReadFailed = errors.New("read failed")
)

// Memory is the read surface of an attached process.
type Memory interface {
	Attach(name string) error
	Detach()
	IsAttached() bool
	IsAlive() bool
	ModuleBase() uintptr
	ReadInto(addr uintptr, buf []byte) bool
}

// system enumerates and opens processes for one platform.
type system interface {
	// findProcess returns the pid of the first process whose executable name
	// equals name exactly.
	findProcess(name string) (uint32, error)
	open(pid uint32) (osProcess, error)
}

// osProcess is an open, platform-specific process handle.
type osProcess interface {
	moduleBase(name string) (uintptr, error)
	read(addr uintptr, buf []byte) (int, error)
	alive() bool
	close() error
}

// Handle owns at most one open process handle plus the load base of the
// process's primary module. It is not safe for concurrent use; every polling
// context owns its own Handle.
type Handle struct {
	sys  system
	proc osProcess
	pid  uint32
	base uintptr
}

// New returns a detached handle for the current platform.
func New() *Handle {
	return &Handle{sys: newSystem()}
}

// Attach finds the process named name, opens it read-only and resolves the
// base of the module with the same name. Any previously open handle is closed
// first. On failure the handle is left detached with a zero base.
func (h *Handle) Attach(name string) error {
	h.Detach()

	pid, err := h.sys.findProcess(name)
	if err != nil {
		return err
	}
	proc, err := h.sys.open(pid)
	if err != nil {
		return err
	}
	base, err := proc.moduleBase(name)
	if err != nil {
		_ = proc.close()
		return err
	}
	if base == 0 {
		_ = proc.close()
		return fmt.Errorf("%w: %s has zero base", ErrModuleNotFound, name)
	}

	h.proc = proc
	h.pid = pid
	h.base = base
	return nil
}

// Detach closes the process handle, if any, and clears the module base.
func (h *Handle) Detach() {
	if h.proc != nil {
		_ = h.proc.close()
	}
	h.proc = nil
	h.pid = 0
	h.base = 0
}

// IsAttached reports whether a handle is open. It says nothing about whether
// the process is still running.
func (h *Handle) IsAttached() bool {
	return h.proc != nil
}

// IsAlive reports whether the attached process has not exited.
func (h *Handle) IsAlive() bool {
	if h.proc == nil {
		return false
	}
	return h.proc.alive()
}

// PID returns the attached process id, or zero.
func (h *Handle) PID() uint32 {
	return h.pid
}

// ModuleBase returns the load address of the primary module, or zero.
func (h *Handle) ModuleBase() uintptr {
	return h.base
}

// ReadInto fills buf from addr. It returns false unless every byte was read.
func (h *Handle) ReadInto(addr uintptr, buf []byte) bool {
	if h.proc == nil || len(buf) == 0 {
		return false
	}
	n, err := h.proc.read(addr, buf)
	return err == nil && n == len(buf)
}

// Value is the set of fixed-layout scalars that can be read from a process.
type Value interface {
	~uint8 | ~int8 | ~uint16 | ~int16 | ~uint32 | ~int32 | ~uint64 | ~int64
}

// Read reads one little-endian value of type T at addr.
func Read[T Value](m Memory, addr uintptr) (T, bool) {
	var v T
	buf := make([]byte, binary.Size(v))
	if !m.ReadInto(addr, buf) {
		return v, false
	}
	if _, err := binary.Decode(buf, binary.LittleEndian, &v); err != nil {
		return v, false
	}
	return v, true
}
