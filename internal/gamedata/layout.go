package gamedata

// Chain describes a pointer chain. The first pointer is read at
// ModuleBase+Static; every offset but the last is added to the current
// pointer and dereferenced again; the last offset is added to give the field
// address. Each dereferenced pointer must be non-null.
type Chain struct {
	Static  uintptr
	Offsets []uintptr
}

// Layout is the offset table for one executable build. Offsets are only valid
// for that build; a mismatched build makes every read fail rather than error
// at attach time, since the executable carries no readable version marker.
type Layout struct {
	Version string
	Process string

	DeathCount  Chain
	PlayTime    Chain
	InBossFight Chain

	CurrentZone Chain
	PlayRegion  Chain
	PlayerHP    Chain

	CharacterName Chain
	// NameRunes is the fixed width of the name buffer in UTF-16 code units.
	NameRunes      int
	CharacterClass Chain
	Level          Chain
	// Attributes points at the first stat of a contiguous block of 32-bit
	// values.
	Attributes Chain
}

const (
	ds3GameDataMan = 0x047572B8
	ds3WorldChrMan = 0x0477FDB8

	ds3PlayerGameData = 0x10
	ds3PlayerIns      = 0x80
	ds3PlayerCtrl     = 0x1F90
	ds3ChrDataModule  = 0x18
)

// DS3 is the layout for DarkSoulsIII.exe 1.15 (regulation 1.35).
var DS3 = Layout{
	Version: "1.15",
	Process: "DarkSoulsIII.exe",

	DeathCount:  Chain{Static: ds3GameDataMan, Offsets: []uintptr{0x98}},
	PlayTime:    Chain{Static: ds3GameDataMan, Offsets: []uintptr{0xA4}},
	InBossFight: Chain{Static: ds3GameDataMan, Offsets: []uintptr{0xC0}},

	CurrentZone: Chain{Static: ds3WorldChrMan, Offsets: []uintptr{ds3PlayerIns, 0x1FE0}},
	PlayRegion:  Chain{Static: ds3WorldChrMan, Offsets: []uintptr{ds3PlayerIns, 0x1ABC}},
	PlayerHP:    Chain{Static: ds3WorldChrMan, Offsets: []uintptr{ds3PlayerIns, ds3PlayerCtrl, ds3ChrDataModule, 0xD8}},

	CharacterName:  Chain{Static: ds3GameDataMan, Offsets: []uintptr{ds3PlayerGameData, 0x88}},
	NameRunes:      16,
	CharacterClass: Chain{Static: ds3GameDataMan, Offsets: []uintptr{ds3PlayerGameData, 0xAE}},
	Level:          Chain{Static: ds3GameDataMan, Offsets: []uintptr{ds3PlayerGameData, 0x70}},
	Attributes:     Chain{Static: ds3GameDataMan, Offsets: []uintptr{ds3PlayerGameData, 0x44}},
}

// Byte offsets of each stat from Layout.Attributes. The two words at 0x20
// and 0x24 are not build stats.
const (
	attrVigor        = 0x00
	attrAttunement   = 0x04
	attrEndurance    = 0x08
	attrStrength     = 0x0C
	attrDexterity    = 0x10
	attrIntelligence = 0x14
	attrFaith        = 0x18
	attrLuck         = 0x1C
	attrVitality     = 0x28

	attrBlockSize = 0x2C
)

var classNames = []string{
	"Knight",
	"Mercenary",
	"Warrior",
	"Herald",
	"Thief",
	"Assassin",
	"Sorcerer",
	"Pyromancer",
	"Cleric",
	"Deprived",
}

// ClassName returns the starting class name for a class id.
func ClassName(id int) string {
	if id < 0 || id >= len(classNames) {
		return "Unknown"
	}
	return classNames[id]
}
