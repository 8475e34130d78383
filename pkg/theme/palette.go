package theme

import "github.com/charmbracelet/lipgloss"

// Palette is the set of colours the chat widget draws with.
type Palette struct {
	Header        lipgloss.Color
	UserBubble    lipgloss.Color
	UserText      lipgloss.Color
	AIBubble      lipgloss.Color
	AIText        lipgloss.Color
	Border        lipgloss.Color
	InputText     lipgloss.Color
	HistoryActive lipgloss.Color
	Muted         lipgloss.Color
	Danger        lipgloss.Color
	// GlamourStyle names the glamour stylesheet for markdown replies.
	GlamourStyle string
}

var (
	lightPalette = Palette{
		Header:        lipgloss.Color("#2563eb"),
		UserBubble:    lipgloss.Color("#2563eb"),
		UserText:      lipgloss.Color("#ffffff"),
		AIBubble:      lipgloss.Color("#e5e7eb"),
		AIText:        lipgloss.Color("#222222"),
		Border:        lipgloss.Color("#e5e7eb"),
		InputText:     lipgloss.Color("#222222"),
		HistoryActive: lipgloss.Color("#bae6fd"),
		Muted:         lipgloss.Color("#6b7280"),
		Danger:        lipgloss.Color("#e11d48"),
		GlamourStyle:  "light",
	}
	darkPalette = Palette{
		Header:        lipgloss.Color("#6366f1"),
		UserBubble:    lipgloss.Color("#2563eb"),
		UserText:      lipgloss.Color("#ffffff"),
		AIBubble:      lipgloss.Color("#27272a"),
		AIText:        lipgloss.Color("#f1f5f9"),
		Border:        lipgloss.Color("#27272a"),
		InputText:     lipgloss.Color("#f1f5f9"),
		HistoryActive: lipgloss.Color("#6366f1"),
		Muted:         lipgloss.Color("#9ca3af"),
		Danger:        lipgloss.Color("#e11d48"),
		GlamourStyle:  "dark",
	}
)

func (t Theme) Palette() Palette {
	if t == Dark {
		return darkPalette
	}
	return lightPalette
}
