package presence

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/verte-zerg/ember/internal/zones"
)

var printer = message.NewPrinter(language.English)

// FormatDeaths renders the details line, e.g. "Died 1,234 times".
func FormatDeaths(deaths uint32) string {
	switch deaths {
	case 0:
		return "No deaths yet"
	case 1:
		return "Died 1 time"
	default:
		return printer.Sprintf("Died %d times", deaths)
	}
}

// FormatPlaytime renders the state line, e.g. "Current run: 1d 2h 3m".
// Days are shown only when nonzero, hours when days or hours are nonzero.
func FormatPlaytime(ms uint32) string {
	totalMinutes := ms / 1000 / 60
	days := totalMinutes / 1440
	hours := (totalMinutes % 1440) / 60
	minutes := totalMinutes % 60

	var b strings.Builder
	b.WriteString("Current run: ")
	if days > 0 {
		fmt.Fprintf(&b, "%dd ", days)
	}
	if hours > 0 || days > 0 {
		fmt.Fprintf(&b, "%dh ", hours)
	}
	fmt.Fprintf(&b, "%dm", minutes)
	return b.String()
}

// FormatStatus describes where the player is. Region 0 means the title
// screen or a loading screen.
func FormatStatus(region uint32, inBossFight bool, hp int32, hpKnown bool) string {
	if region == 0 {
		return "In main menu"
	}
	name := zones.Name(region)
	switch {
	case hpKnown && hp <= 0:
		return "Died in " + name
	case inBossFight:
		return "Fighting a boss in " + name
	default:
		return "Exploring " + name
	}
}
