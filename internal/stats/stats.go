// Package stats contains statistics calculations and reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/verte-zerg/ember/internal/gamedata"
	"github.com/verte-zerg/ember/internal/model"
	"github.com/verte-zerg/ember/internal/zones"
)

const (
	sparkChars          = " .:-=+*#%@"
	terminalWidthBackup = 80
	trendLabel          = "Deaths/h "
)

var headingStyle = lipgloss.NewStyle().Bold(true)

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal := values[0]
	maxVal := values[0]
	for _, v := range values[1:] {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// FormatDuration renders milliseconds as "3h 07m", or "12m" under an hour.
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	d := time.Duration(ms) * time.Millisecond
	hours := int64(d / time.Hour)
	minutes := int64((d % time.Hour) / time.Minute)
	if hours == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %02dm", hours, minutes)
}

// TerminalWidth returns the stdout width, or 80 when it is not a terminal.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func heading(w io.Writer, title string) error {
	_, err := fmt.Fprintln(w, headingStyle.Render(title))
	return err
}

// RenderSummary prints totals for the report.
func RenderSummary(w io.Writer, r Report, now time.Time) error {
	if err := heading(w, "Summary"); err != nil {
		return err
	}
	if r.Character != nil {
		if _, err := fmt.Fprintf(w, "Character: %s (%s)\n", r.Character.Name, gamedata.ClassName(r.Character.ClassID)); err != nil {
			return err
		}
	}
	var playedMs int64
	var sessionDeaths int
	for _, s := range r.Sessions {
		playedMs += s.DurationMs
		sessionDeaths += s.SessionDeaths
	}
	if _, err := fmt.Fprintf(w, "Sessions: %d (%s played)\n", len(r.Sessions), FormatDuration(playedMs)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Recorded deaths: %s\n", humanize.Comma(int64(r.TotalDeaths))); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Deaths/hour: %.2f\n", model.DeathsPerHour(sessionDeaths, playedMs)); err != nil {
		return err
	}
	if n := len(r.WindowSessions); n > 0 && n < len(r.Sessions) {
		var recentMs int64
		var recentDeaths int
		for _, s := range r.WindowSessions {
			recentMs += s.DurationMs
			recentDeaths += s.SessionDeaths
		}
		if _, err := fmt.Fprintf(w, "Recent deaths/hour (last %d): %.2f\n", n, model.DeathsPerHour(recentDeaths, recentMs)); err != nil {
			return err
		}
	}
	if r.Player != nil {
		if _, err := fmt.Fprintf(w, "In-game deaths: %s, playtime %s (updated %s)\n",
			humanize.Comma(int64(r.Player.TotalDeaths)),
			FormatDuration(r.Player.TotalPlaytimeMs),
			humanize.RelTime(r.Player.LastUpdated, now, "ago", "from now"),
		); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderTrend prints a deaths-per-hour sparkline sized to the total width.
func RenderTrend(w io.Writer, sessions []model.Session, window, totalWidth int) error {
	if len(sessions) == 0 {
		return nil
	}
	values := make([]float64, len(sessions))
	for i, s := range sessions {
		values[i] = s.DeathsPerHour
	}
	values = MovingAverage(values, window)
	if maxPoints := totalWidth - len(trendLabel); maxPoints > 0 && len(values) > maxPoints {
		values = values[len(values)-maxPoints:]
	}
	if err := heading(w, "Trend"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s%s\n\n", trendLabel, Sparkline(values)); err != nil {
		return err
	}
	return nil
}

// RenderSessionTable prints sessions newest first.
func RenderSessionTable(w io.Writer, sessions []model.Session) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions found.")
		return err
	}
	if err := heading(w, "Sessions"); err != nil {
		return err
	}
	headers := []string{"Started", "Length", "Deaths", "Deaths/h"}
	rows := make([][]string, 0, len(sessions))
	for i := len(sessions) - 1; i >= 0; i-- {
		s := sessions[i]
		rows = append(rows, []string{
			s.StartedAt.Local().Format("2006-01-02 15:04"),
			FormatDuration(s.DurationMs),
			fmt.Sprintf("%d", s.SessionDeaths),
			fmt.Sprintf("%.2f", s.DeathsPerHour),
		})
	}
	return writeTable(w, headers, rows, map[int]bool{1: true, 2: true, 3: true})
}

// RenderZoneTable prints per-zone death counts.
// Boss arenas are marked in their own column.
func RenderZoneTable(w io.Writer, counts []model.ZoneDeaths) error {
	if len(counts) == 0 {
		_, err := fmt.Fprintln(w, "No deaths recorded.")
		return err
	}
	if err := heading(w, "Deadliest Zones"); err != nil {
		return err
	}
	headers := []string{"Zone", "Boss", "Deaths"}
	rows := make([][]string, 0, len(counts))
	for _, z := range counts {
		boss := ""
		if zones.IsBossArena(z.ZoneID) {
			boss = "yes"
		}
		rows = append(rows, []string{z.ZoneName, boss, humanize.Comma(int64(z.Count))})
	}
	return writeTable(w, headers, rows, map[int]bool{2: true})
}

// RenderCharacterStats prints the level and attribute snapshot.
func RenderCharacterStats(w io.Writer, cs model.CharacterStats) error {
	if err := heading(w, fmt.Sprintf("Level %d", cs.Level)); err != nil {
		return err
	}
	headers := []string{"VIG", "ATT", "END", "VIT", "STR", "DEX", "INT", "FTH", "LCK"}
	a := cs.Attributes
	row := []string{}
	for _, v := range []int{a.Vigor, a.Attunement, a.Endurance, a.Vitality, a.Strength, a.Dexterity, a.Intelligence, a.Faith, a.Luck} {
		row = append(row, fmt.Sprintf("%d", v))
	}
	right := map[int]bool{}
	for i := range headers {
		right[i] = true
	}
	return writeTable(w, headers, [][]string{row}, right)
}

func writeTable(w io.Writer, headers []string, rows [][]string, rightAlign map[int]bool) error {
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}
