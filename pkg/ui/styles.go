package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/deckhand/pkg/events"
	"github.com/go-go-golems/deckhand/pkg/theme"
)

const (
	historyWidth = 30
	minBodyWidth = 20
)

type styles struct {
	header        lipgloss.Style
	title         lipgloss.Style
	userLabel     lipgloss.Style
	userBubble    lipgloss.Style
	aiLabel       lipgloss.Style
	aiBubble      lipgloss.Style
	empty         lipgloss.Style
	historyPane   lipgloss.Style
	historyItem   lipgloss.Style
	historyActive lipgloss.Style
	historyCursor lipgloss.Style
	transcript    lipgloss.Style
	input         lipgloss.Style
	help          lipgloss.Style
	notice        map[events.Level]lipgloss.Style
}

func newStyles(p theme.Palette) styles {
	muted := lipgloss.NewStyle().Foreground(p.Muted)
	return styles{
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(p.Header).
			Padding(0, 1),
		title:      lipgloss.NewStyle().Bold(true).Foreground(p.Header),
		userLabel:  lipgloss.NewStyle().Bold(true).Foreground(p.UserBubble),
		userBubble: lipgloss.NewStyle().Foreground(p.UserText).Background(p.UserBubble).Padding(0, 1),
		aiLabel:    muted.Bold(true),
		aiBubble:   lipgloss.NewStyle().Foreground(p.AIText),
		empty:      muted.Italic(true).PaddingTop(1).PaddingLeft(2),
		historyPane: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(p.Border).
			Padding(0, 1),
		historyItem:   lipgloss.NewStyle().Foreground(p.AIText),
		historyActive: lipgloss.NewStyle().Foreground(p.AIText).Background(p.HistoryActive).Bold(true),
		historyCursor: lipgloss.NewStyle().Foreground(p.Header).Bold(true),
		transcript: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(p.Border),
		input: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(p.Border).
			Foreground(p.InputText),
		help: muted,
		notice: map[events.Level]lipgloss.Style{
			events.LevelInfo:    muted,
			events.LevelSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a")),
			events.LevelError:   lipgloss.NewStyle().Foreground(p.Danger).Bold(true),
		},
	}
}
