package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/deckhand/pkg/chat"
)

// historyModel is the session list shown beside the transcript.
type historyModel struct {
	width     int
	height    int
	cursor    int
	sessions  []chat.Session
	currentID string
}

func newHistoryModel() historyModel {
	return historyModel{width: historyWidth}
}

// sync replaces the listed sessions and keeps the cursor in range.
func (h historyModel) sync(sessions []chat.Session, currentID string) historyModel {
	h.sessions = sessions
	h.currentID = currentID
	if h.cursor >= len(sessions) {
		h.cursor = len(sessions) - 1
	}
	if h.cursor < 0 {
		h.cursor = 0
	}
	return h
}

// focusCurrent moves the cursor onto the current session.
func (h historyModel) focusCurrent() historyModel {
	for i, s := range h.sessions {
		if s.ID == h.currentID {
			h.cursor = i
			break
		}
	}
	return h
}

func (h historyModel) up() historyModel {
	if h.cursor > 0 {
		h.cursor--
	}
	return h
}

func (h historyModel) down() historyModel {
	if h.cursor < len(h.sessions)-1 {
		h.cursor++
	}
	return h
}

// selected is the id under the cursor, or "" when the list is empty.
func (h historyModel) selected() string {
	if h.cursor < 0 || h.cursor >= len(h.sessions) {
		return ""
	}
	return h.sessions[h.cursor].ID
}

func (h historyModel) View(st styles, focused bool) string {
	inner := h.width - st.historyPane.GetHorizontalFrameSize()
	var b strings.Builder
	b.WriteString(st.title.Render("History (ctrl+o)"))
	b.WriteString("\n")
	if len(h.sessions) == 0 {
		b.WriteString(st.help.Render("No chats yet"))
	}
	for i, s := range h.sessions {
		prefix := "  "
		if focused && i == h.cursor {
			prefix = st.historyCursor.Render("> ")
		}
		name := truncate(s.DisplayName(), inner-2)
		style := st.historyItem
		if s.ID == h.currentID {
			style = st.historyActive
		}
		b.WriteString(prefix + style.Render(name) + "\n")
	}
	pane := st.historyPane.Width(inner)
	if h.height > 0 {
		pane = pane.Height(h.height - st.historyPane.GetVerticalFrameSize())
	}
	return pane.Render(strings.TrimRight(b.String(), "\n"))
}

func truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+1 > width {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}
