// Package zones maps play region ids to display names.
package zones

// Unknown is the display name for ids missing from the table.
const Unknown = "Unknown Area"

type zone struct {
	name string
	boss bool
}

var table = map[uint32]zone{
	400000: {name: "Firelink Shrine"},
	400001: {name: "Firelink Shrine Bell Tower"},
	400100: {name: "Untended Graves"},
	400101: {name: "Champion Gundyr", boss: true},
	400110: {name: "Cemetery of Ash"},
	400111: {name: "Iudex Gundyr", boss: true},

	300000: {name: "High Wall of Lothric"},
	300001: {name: "Vordt of the Boreal Valley", boss: true},
	300002: {name: "Dancer of the Boreal Valley", boss: true},
	300100: {name: "Lothric Castle"},
	300101: {name: "Dragonslayer Armour", boss: true},
	300200: {name: "Consumed King's Garden"},
	300201: {name: "Oceiros, the Consumed King", boss: true},
	300300: {name: "Grand Archives"},
	300301: {name: "Lothric, Younger Prince", boss: true},

	310000: {name: "Undead Settlement"},
	310001: {name: "Curse-rotted Greatwood", boss: true},
	310100: {name: "Road of Sacrifices"},
	310101: {name: "Crystal Sage", boss: true},
	310200: {name: "Farron Keep"},
	310201: {name: "Abyss Watchers", boss: true},

	320000: {name: "Cathedral of the Deep"},
	320001: {name: "Deacons of the Deep", boss: true},
	320100: {name: "Catacombs of Carthus"},
	320101: {name: "High Lord Wolnir", boss: true},
	320200: {name: "Smouldering Lake"},
	320201: {name: "Old Demon King", boss: true},
	320300: {name: "Irithyll of the Boreal Valley"},
	320301: {name: "Pontiff Sulyvahn", boss: true},
	320400: {name: "Irithyll Dungeon"},
	320500: {name: "Profaned Capital"},
	320501: {name: "Yhorm the Giant", boss: true},
	320600: {name: "Anor Londo"},
	320601: {name: "Aldrich, Devourer of Gods", boss: true},

	330000: {name: "Archdragon Peak"},
	330001: {name: "Nameless King", boss: true},
	340000: {name: "Kiln of the First Flame"},
	340001: {name: "Soul of Cinder", boss: true},
}

// Name returns the display name of a play region, or Unknown.
func Name(id uint32) string {
	if z, ok := table[id]; ok {
		return z.name
	}
	return Unknown
}

// IsBossArena reports whether id is a boss arena.
func IsBossArena(id uint32) bool {
	return table[id].boss
}
