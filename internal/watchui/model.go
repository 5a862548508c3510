// Package watchui provides the Bubble Tea live presence view.
package watchui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/verte-zerg/ember/internal/presence"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#C89A3A")).
			Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	bossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")).Bold(true)
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	spinnerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
)

type activityMsg struct {
	activity presence.Activity
	at       time.Time
}

type clearMsg struct{}

// Model implements the Bubble Tea watch view.
type Model struct {
	gameTitle string
	now       func() time.Time

	spinner   spinner.Model
	activity  presence.Activity
	shown     bool
	updatedAt time.Time

	width  int
	height int
}

// NewModel constructs a watch model. gameTitle names the process being
// waited for.
func NewModel(gameTitle string) *Model {
	return &Model{
		gameTitle: gameTitle,
		now:       time.Now,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(spinnerStyle),
		),
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil
	case activityMsg:
		m.activity = msg.activity
		m.updatedAt = msg.at
		m.shown = true
		return m, nil
	case clearMsg:
		m.activity = presence.Activity{}
		m.shown = false
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	header := titleStyle.Render("ember")
	footer := headerStyle.Render("Quit: q")
	bodyHeight := m.height - 2
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	return strings.Join([]string{padLine(header, m.width), body, padLine(footer, m.width)}, "\n")
}

func (m *Model) renderBody() string {
	if !m.shown {
		return fmt.Sprintf("%s Waiting for %s...", m.spinner.View(), m.gameTitle)
	}
	a := m.activity
	status := a.Status
	if a.InBossFight {
		status = bossStyle.Render(status)
	}
	cards := []string{
		metricCard("Deaths", a.Details),
		metricCard("Playtime", a.State),
	}
	var row string
	if m.width < 60 {
		row = strings.Join(cards, "\n")
	} else {
		row = lipgloss.JoinHorizontal(lipgloss.Top, cards...)
	}
	lines := []string{row, "", status}
	if !m.updatedAt.IsZero() {
		lines = append(lines, headerStyle.Render("Updated "+humanize.RelTime(m.updatedAt, m.now(), "ago", "from now")))
	}
	return strings.Join(lines, "\n")
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}
