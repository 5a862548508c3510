// Package gamedata resolves semantic game fields through fixed pointer chains
// in the game's memory.
package gamedata

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/verte-zerg/ember/internal/model"
	"github.com/verte-zerg/ember/internal/procmem"
)

// Reader reads one field per call. Nothing is cached: every accessor walks its
// chain again and either returns a complete value or procmem.ErrReadFailed.
// A Reader is owned by a single goroutine.
type Reader struct {
	mem    procmem.Memory
	layout Layout
}

// New returns a Reader for the current platform using the DS3 layout.
func New() *Reader {
	return NewReader(procmem.New(), DS3)
}

// NewReader returns a Reader over mem using layout.
func NewReader(mem procmem.Memory, layout Layout) *Reader {
	return &Reader{mem: mem, layout: layout}
}

// Layout returns the offset table in use.
func (r *Reader) Layout() Layout {
	return r.layout
}

// Attach attaches to the layout's process.
func (r *Reader) Attach() error {
	return r.mem.Attach(r.layout.Process)
}

// IsAttached reports whether a process handle is open.
func (r *Reader) IsAttached() bool {
	return r.mem.IsAttached()
}

// IsAlive reports whether the attached process is still running.
func (r *Reader) IsAlive() bool {
	return r.mem.IsAlive()
}

// Reset drops the process handle so the next poll attaches again.
func (r *Reader) Reset() {
	r.mem.Detach()
}

// DeathCount returns the save file's lifetime death counter.
func (r *Reader) DeathCount() (uint32, error) {
	return readField[uint32](r, r.layout.DeathCount)
}

// PlayTime returns the save file's play time in milliseconds.
func (r *Reader) PlayTime() (uint32, error) {
	return readField[uint32](r, r.layout.PlayTime)
}

// InBossFight reports whether a boss encounter is in progress.
func (r *Reader) InBossFight() (bool, error) {
	v, err := readField[uint32](r, r.layout.InBossFight)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// CurrentZone returns the map id the player stands in.
func (r *Reader) CurrentZone() (uint32, error) {
	return readField[uint32](r, r.layout.CurrentZone)
}

// PlayRegion returns the play region id, the finer-grained location used for
// zone names.
func (r *Reader) PlayRegion() (uint32, error) {
	return readField[uint32](r, r.layout.PlayRegion)
}

// PlayerHP returns the player's current hit points.
func (r *Reader) PlayerHP() (int32, error) {
	return readField[int32](r, r.layout.PlayerHP)
}

// CharacterName returns the character name from the fixed-width buffer.
func (r *Reader) CharacterName() (string, error) {
	addr, err := r.resolve(r.layout.CharacterName)
	if err != nil {
		return "", err
	}
	buf := make([]byte, r.layout.NameRunes*2)
	if !r.mem.ReadInto(addr, buf) {
		return "", fmt.Errorf("%w: character name", procmem.ErrReadFailed)
	}
	return decodeUTF16(buf), nil
}

// CharacterClass returns the starting class id.
func (r *Reader) CharacterClass() (uint8, error) {
	return readField[uint8](r, r.layout.CharacterClass)
}

// Level returns the character's soul level.
func (r *Reader) Level() (uint32, error) {
	return readField[uint32](r, r.layout.Level)
}

// Attributes returns the nine build stats, read as a single block.
func (r *Reader) Attributes() (model.Attributes, error) {
	addr, err := r.resolve(r.layout.Attributes)
	if err != nil {
		return model.Attributes{}, err
	}
	buf := make([]byte, attrBlockSize)
	if !r.mem.ReadInto(addr, buf) {
		return model.Attributes{}, fmt.Errorf("%w: attribute block", procmem.ErrReadFailed)
	}
	stat := func(off int) int {
		return int(binary.LittleEndian.Uint32(buf[off:]))
	}
	return model.Attributes{
		Vigor:        stat(attrVigor),
		Attunement:   stat(attrAttunement),
		Endurance:    stat(attrEndurance),
		Vitality:     stat(attrVitality),
		Strength:     stat(attrStrength),
		Dexterity:    stat(attrDexterity),
		Intelligence: stat(attrIntelligence),
		Faith:        stat(attrFaith),
		Luck:         stat(attrLuck),
	}, nil
}

// CharacterStats combines Level and Attributes; both must succeed.
func (r *Reader) CharacterStats() (model.CharacterStats, error) {
	level, err := r.Level()
	if err != nil {
		return model.CharacterStats{}, err
	}
	attrs, err := r.Attributes()
	if err != nil {
		return model.CharacterStats{}, err
	}
	return model.CharacterStats{Level: int(level), Attributes: attrs}, nil
}

// resolve walks c and returns the address of the field it names.
func (r *Reader) resolve(c Chain) (uintptr, error) {
	base := r.mem.ModuleBase()
	if base == 0 {
		return 0, fmt.Errorf("%w: not attached", procmem.ErrReadFailed)
	}
	addr := base + c.Static
	for i, off := range c.Offsets {
		ptr, ok := procmem.Read[uint64](r.mem, addr)
		if !ok {
			return 0, fmt.Errorf("%w: hop %d at %#x", procmem.ErrReadFailed, i, addr)
		}
		if ptr == 0 {
			return 0, fmt.Errorf("%w: null pointer at hop %d", procmem.ErrReadFailed, i)
		}
		addr = uintptr(ptr) + off
	}
	return addr, nil
}

func readField[T procmem.Value](r *Reader, c Chain) (T, error) {
	var zero T
	addr, err := r.resolve(c)
	if err != nil {
		return zero, err
	}
	v, ok := procmem.Read[T](r.mem, addr)
	if !ok {
		return zero, fmt.Errorf("%w: field at %#x", procmem.ErrReadFailed, addr)
	}
	return v, nil
}

func decodeUTF16(buf []byte) string {
	units := make([]uint16, 0, len(buf)/2)
	for i := 0; i+1 < len(buf); i += 2 {
		u := binary.LittleEndian.Uint16(buf[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}
