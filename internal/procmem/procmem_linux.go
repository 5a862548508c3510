//go:build linux

package procmem

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// linuxSystem reads processes through procfs; this covers the game running
// under Wine or Proton.
type linuxSystem struct {
	procRoot string
}

func newSystem() system {
	return linuxSystem{procRoot: "/proc"}
}

func (s linuxSystem) findProcess(name string) (uint32, error) {
	entries, err := os.ReadDir(s.procRoot)
	if err != nil {
		return 0, fmt.Errorf("%w: read %s: %v", ErrProcessNotFound, s.procRoot, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.ParseUint(entry.Name(), 10, 32)
		if err != nil {
			continue
		}
		if s.exeName(pid) == name {
			return uint32(pid), nil
		}
	}
	return 0, ErrProcessNotFound
}

func (s linuxSystem) exeName(pid uint64) string {
	cmdline, err := os.ReadFile(filepath.Join(s.procRoot, strconv.FormatUint(pid, 10), "cmdline"))
	if err != nil || len(cmdline) == 0 {
		return ""
	}
	argv0, _, _ := bytes.Cut(cmdline, []byte{0})
	return baseName(string(argv0))
}

func (s linuxSystem) open(pid uint32) (osProcess, error) {
	mapsPath := filepath.Join(s.procRoot, strconv.FormatUint(uint64(pid), 10), "maps")
	f, err := os.Open(mapsPath)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: open pid %d: %v", ErrAccessDenied, pid, err)
		}
		return nil, fmt.Errorf("%w: open pid %d: %v", ErrProcessNotFound, pid, err)
	}
	_ = f.Close()
	return &linuxProcess{
		pid:      int(pid),
		mapsPath: mapsPath,
		statPath: filepath.Join(s.procRoot, strconv.FormatUint(uint64(pid), 10), "stat"),
	}, nil
}

type linuxProcess struct {
	pid      int
	mapsPath string
	statPath string
}

func (p *linuxProcess) moduleBase(name string) (uintptr, error) {
	f, err := os.Open(p.mapsPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrModuleNotFound, err)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 6 {
			continue
		}
		path := strings.Join(fields[5:], " ")
		if baseName(path) != name {
			continue
		}
		start, _, ok := strings.Cut(fields[0], "-")
		if !ok {
			continue
		}
		base, err := strconv.ParseUint(start, 16, 64)
		if err != nil {
			continue
		}
		return uintptr(base), nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrModuleNotFound, err)
	}
	return 0, ErrModuleNotFound
}

func (p *linuxProcess) read(addr uintptr, buf []byte) (int, error) {
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []unix.RemoteIovec{{Base: addr, Len: len(buf)}}
	n, err := unix.ProcessVMReadv(p.pid, local, remote, 0)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return n, nil
}

func (p *linuxProcess) alive() bool {
	// A zombie still accepts signal 0 until its parent reaps it.
	if state, ok := processState(p.statPath); ok && (state == 'Z' || state == 'X') {
		return false
	}
	err := unix.Kill(p.pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// processState returns the state letter from a /proc/<pid>/stat file. The
// command name may itself contain parentheses, so the state is read after
// the last one.
func processState(path string) (byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	i := bytes.LastIndexByte(data, ')')
	if i < 0 {
		return 0, false
	}
	rest := bytes.TrimLeft(data[i+1:], " ")
	if len(rest) == 0 {
		return 0, false
	}
	return rest[0], true
}

func (p *linuxProcess) close() error {
	return nil
}

// baseName strips both Unix and Windows directory prefixes.
func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
