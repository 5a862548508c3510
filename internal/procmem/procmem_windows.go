//go:build windows

package procmem

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const stillActive = 259

type windowsSystem struct{}

func newSystem() system {
	return windowsSystem{}
}

func (windowsSystem) findProcess(name string) (uint32, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: process snapshot: %v", ErrProcessNotFound, err)
	}
	defer func() {
		_ = windows.CloseHandle(snapshot)
	}()

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	for err = windows.Process32First(snapshot, &entry); err == nil; err = windows.Process32Next(snapshot, &entry) {
		if windows.UTF16ToString(entry.ExeFile[:]) == name {
			return entry.ProcessID, nil
		}
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return 0, fmt.Errorf("%w: walk processes: %v", ErrProcessNotFound, err)
	}
	return 0, ErrProcessNotFound
}

func (windowsSystem) open(pid uint32) (osProcess, error) {
	h, err := windows.OpenProcess(windows.PROCESS_VM_READ|windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return nil, fmt.Errorf("%w: open pid %d: %v", ErrAccessDenied, pid, err)
	}
	return &windowsProcess{handle: h, pid: pid}, nil
}

type windowsProcess struct {
	handle windows.Handle
	pid    uint32
}

func (p *windowsProcess) moduleBase(name string) (uintptr, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, p.pid)
	if err != nil {
		return 0, fmt.Errorf("%w: module snapshot: %v", ErrModuleNotFound, err)
	}
	defer func() {
		_ = windows.CloseHandle(snapshot)
	}()

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	for err = windows.Module32First(snapshot, &entry); err == nil; err = windows.Module32Next(snapshot, &entry) {
		if windows.UTF16ToString(entry.Module[:]) == name {
			return entry.ModBaseAddr, nil
		}
	}
	return 0, ErrModuleNotFound
}

func (p *windowsProcess) read(addr uintptr, buf []byte) (int, error) {
	var n uintptr
	if err := windows.ReadProcessMemory(p.handle, addr, &buf[0], uintptr(len(buf)), &n); err != nil {
		return int(n), fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return int(n), nil
}

func (p *windowsProcess) alive() bool {
	var code uint32
	if err := windows.GetExitCodeProcess(p.handle, &code); err != nil {
		return false
	}
	return code == stillActive
}

func (p *windowsProcess) close() error {
	return windows.CloseHandle(p.handle)
}
