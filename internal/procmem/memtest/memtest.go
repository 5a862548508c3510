// Package memtest provides an in-memory process image for tests.
package memtest

import (
	"encoding/binary"
	"sync"
	"unicode/utf16"
)

// Image is a sparse little-endian address space implementing procmem.Memory.
type Image struct {
	mu sync.Mutex

	base      uintptr
	bytes     map[uintptr]byte
	attached  bool
	exited    bool
	attachErr error

	attaches int
}

// New returns an image whose primary module loads at base.
func New(base uintptr) *Image {
	return &Image{base: base, bytes: map[uintptr]byte{}}
}

// FailAttach makes subsequent Attach calls return err. A nil err restores success.
func (m *Image) FailAttach(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachErr = err
}

// Exit marks the process as exited.
func (m *Image) Exit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exited = true
}

// Restart marks the process as running again.
func (m *Image) Restart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exited = false
}

// Attaches returns how many times Attach was called.
func (m *Image) Attaches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attaches
}

// PutBytes stores raw bytes at addr.
func (m *Image) PutBytes(addr uintptr, b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, v := range b {
		m.bytes[addr+uintptr(i)] = v
	}
}

// Erase unmaps n bytes at addr.
func (m *Image) Erase(addr uintptr, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		delete(m.bytes, addr+uintptr(i))
	}
}

// PutU8 stores a byte.
func (m *Image) PutU8(addr uintptr, v uint8) {
	m.PutBytes(addr, []byte{v})
}

// PutU32 stores a 32-bit value.
func (m *Image) PutU32(addr uintptr, v uint32) {
	m.PutBytes(addr, binary.LittleEndian.AppendUint32(nil, v))
}

// PutI32 stores a signed 32-bit value.
func (m *Image) PutI32(addr uintptr, v int32) {
	m.PutU32(addr, uint32(v))
}

// PutPtr stores a 64-bit pointer.
func (m *Image) PutPtr(addr, v uintptr) {
	m.PutBytes(addr, binary.LittleEndian.AppendUint64(nil, uint64(v)))
}

// PutUTF16 stores s as UTF-16LE in a buffer of units code units, zero
// padded. Units past the buffer are dropped.
func (m *Image) PutUTF16(addr uintptr, s string, units int) {
	encoded := utf16.Encode([]rune(s))
	b := make([]byte, units*2)
	for i := 0; i < units && i < len(encoded); i++ {
		binary.LittleEndian.PutUint16(b[i*2:], encoded[i])
	}
	m.PutBytes(addr, b)
}

// Attach implements procmem.Memory.
func (m *Image) Attach(string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attaches++
	m.attached = false
	if m.attachErr != nil {
		return m.attachErr
	}
	m.attached = true
	return nil
}

// Detach implements procmem.Memory.
func (m *Image) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached = false
}

// IsAttached implements procmem.Memory.
func (m *Image) IsAttached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attached
}

// IsAlive implements procmem.Memory.
func (m *Image) IsAlive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attached && !m.exited
}

// ModuleBase implements procmem.Memory.
func (m *Image) ModuleBase() uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.attached {
		return 0
	}
	return m.base
}

// ReadInto implements procmem.Memory.
func (m *Image) ReadInto(addr uintptr, buf []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.attached || len(buf) == 0 {
		return false
	}
	for i := range buf {
		v, ok := m.bytes[addr+uintptr(i)]
		if !ok {
			return false
		}
		buf[i] = v
	}
	return true
}
