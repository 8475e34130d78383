// Package ui is the terminal chat widget: a session history panel, the
// transcript, an input line and the login form.
package ui

import (
	"context"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/deckhand/pkg/api"
	"github.com/go-go-golems/deckhand/pkg/auth"
	"github.com/go-go-golems/deckhand/pkg/chat"
	"github.com/go-go-golems/deckhand/pkg/events"
	"github.com/go-go-golems/deckhand/pkg/theme"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	greeting       = "Hi! How can I help you today?"
	helpLine       = "enter send • ctrl+n new • ctrl+o history • ctrl+e rename • ctrl+x delete • ctrl+t theme • ctrl+y copy • esc quit"
	replyFailedMsg = "The assistant is unavailable right now."
	maxFormWidth   = 60
)

// Authenticator signs the user in from the login form.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*api.User, error)
	Signup(ctx context.Context, username, email, password string) (*api.User, error)
}

type Option func(*ChatModel)

// WithEvents feeds bus events (notices, theme and session changes) into
// the widget.
func WithEvents(ch <-chan events.Event) Option {
	return func(m *ChatModel) { m.events = ch }
}

func WithClipboard(write func(string) error) Option {
	return func(m *ChatModel) { m.writeClipboard = write }
}

type authResultMsg struct {
	err error
}

type focusArea int

const (
	focusInput focusArea = iota
	focusHistory
)

type ChatModel struct {
	ctx            context.Context
	store          *chat.Store
	bot            *chat.Chatbot
	backend        *ChatBackend
	theme          *theme.Preference
	authn          Authenticator
	events         <-chan events.Event
	writeClipboard func(string) error

	palette  theme.Palette
	styles   styles
	renderer *glamour.TermRenderer

	spinner     spinner.Model
	viewport    viewport.Model
	input       textinput.Model
	history     historyModel
	showHistory bool
	focus       focusArea

	loading bool
	status  events.Notice

	activeForm *huh.Form
	formKind   formKind
	authVals   *authValues
	renameVals *renameValues

	width  int
	height int
	ready  bool
}

func NewChatModel(ctx context.Context, bot *chat.Chatbot, pref *theme.Preference, authn Authenticator, opts ...Option) ChatModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	ti := textinput.New()
	ti.Placeholder = "Type your message..."
	ti.CharLimit = 2000
	ti.Focus()

	m := ChatModel{
		ctx:            ctx,
		store:          bot.Store(),
		bot:            bot,
		backend:        NewChatBackend(bot),
		theme:          pref,
		authn:          authn,
		writeClipboard: clipboard.WriteAll,
		spinner:        sp,
		viewport:       viewport.New(80, 20),
		input:          ti,
		history:        newHistoryModel(),
		authVals:       &authValues{},
	}
	for _, o := range opts {
		o(&m)
	}

	t := theme.Default
	if pref != nil {
		t = pref.Get(ctx)
	}
	m.applyTheme(t)
	if m.store.Identity() == "" {
		m.openAuthForm()
	}
	m.refresh()
	return m
}

func waitForUIEvent(ch <-chan events.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return e
	}
}

func (m ChatModel) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, waitForUIEvent(m.events)}
	if m.activeForm != nil {
		cmds = append(cmds, m.activeForm.Init())
	}
	return tea.Batch(cmds...)
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch ev := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = ev.Width, ev.Height
		m.ready = true
		m.layout()
		if m.activeForm != nil {
			m.activeForm = m.activeForm.WithWidth(min(ev.Width-4, maxFormWidth))
		}
		return m, nil
	case events.Event:
		cmd := m.handleEvent(ev)
		return m, tea.Batch(cmd, waitForUIEvent(m.events))
	case ReplyMsg:
		return m, m.handleReply(ev)
	case authResultMsg:
		return m, m.handleAuthResult(ev)
	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(ev)
		return m, cmd
	}

	if m.activeForm != nil {
		return m.updateForm(msg)
	}
	if key, ok := msg.(tea.KeyMsg); ok {
		return m.handleKey(key)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m ChatModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		m.abortForm()
		return m, nil
	}

	fm, cmd := m.activeForm.Update(msg)
	if f, ok := fm.(*huh.Form); ok {
		m.activeForm = f
	}
	switch m.activeForm.State {
	case huh.StateCompleted:
		return m, tea.Batch(cmd, m.completeForm())
	case huh.StateAborted:
		m.abortForm()
		return m, nil
	}
	return m, cmd
}

func (m *ChatModel) completeForm() tea.Cmd {
	kind := m.formKind
	m.closeForm()
	switch kind {
	case formRename:
		v := *m.renameVals
		m.store.RenameSession(m.ctx, v.SessionID, strings.TrimSpace(v.Name))
		m.refresh()
	case formAuth:
		m.loading = true
		m.status = events.Notice{Level: events.LevelInfo, Text: "Signing in..."}
		return tea.Batch(m.authenticate(*m.authVals), m.spinner.Tick)
	}
	return nil
}

func (m *ChatModel) abortForm() {
	kind := m.formKind
	m.closeForm()
	if kind == formAuth && m.store.Identity() == "" {
		m.status = events.Notice{Level: events.LevelInfo, Text: "Please login to use AI chat (ctrl+l)"}
	}
}

func (m *ChatModel) closeForm() {
	m.activeForm = nil
	m.formKind = formNone
}

func (m *ChatModel) openAuthForm() tea.Cmd {
	m.authVals.Password = ""
	m.activeForm = newAuthForm(m.authVals)
	m.formKind = formAuth
	if m.width > 0 {
		m.activeForm = m.activeForm.WithWidth(min(m.width-4, maxFormWidth))
	}
	return m.activeForm.Init()
}

func (m *ChatModel) openRenameForm() tea.Cmd {
	current := m.store.Current()
	m.renameVals = &renameValues{SessionID: current.ID, Name: current.Name}
	m.activeForm = newRenameForm(m.renameVals)
	m.formKind = formRename
	if m.width > 0 {
		m.activeForm = m.activeForm.WithWidth(min(m.width-4, maxFormWidth))
	}
	return m.activeForm.Init()
}

func (m ChatModel) authenticate(v authValues) tea.Cmd {
	ctx, authn := m.ctx, m.authn
	return func() tea.Msg {
		var err error
		email := strings.TrimSpace(v.Email)
		if v.signup() {
			_, err = authn.Signup(ctx, strings.TrimSpace(v.Username), email, v.Password)
		} else {
			_, err = authn.Login(ctx, email, v.Password)
		}
		return authResultMsg{err: err}
	}
}

func (m *ChatModel) handleAuthResult(r authResultMsg) tea.Cmd {
	m.loading = false
	if r.err != nil {
		m.status = events.Notice{Level: events.LevelError, Text: api.UserMessage(r.err, authFailedMsg)}
		return m.openAuthForm()
	}
	m.authVals.Password = ""
	m.status = events.Notice{}
	m.refresh()
	return nil
}

func (m *ChatModel) handleReply(r ReplyMsg) tea.Cmd {
	m.loading = false
	defer m.refresh()
	switch {
	case errors.Is(r.Err, chat.ErrNotAuthenticated):
		m.status = events.Notice{Level: events.LevelInfo, Text: r.Err.Error()}
		return m.openAuthForm()
	case r.Err != nil:
		m.status = events.Notice{Level: events.LevelError, Text: api.UserMessage(r.Err, replyFailedMsg)}
	}
	return nil
}

func (m *ChatModel) handleEvent(e events.Event) tea.Cmd {
	switch e.Type {
	case events.TypeNotice:
		if e.Notice != nil {
			m.status = *e.Notice
		}
	case events.TypeSessionExpired:
		m.refresh()
		if m.activeForm == nil {
			return m.openAuthForm()
		}
	case events.TypeAuthChanged:
		m.refresh()
		if e.Auth != nil && e.Auth.State == auth.StateUnauthenticated.String() && m.activeForm == nil {
			return m.openAuthForm()
		}
	case events.TypeThemeChanged:
		if t, err := theme.Parse(e.Theme); err == nil {
			m.applyTheme(t)
			m.refresh()
		}
	case events.TypeChatSessionsChanged:
		m.refresh()
	case events.TypeChatOpen:
		if m.focus == focusInput {
			return m.input.Focus()
		}
	}
	return nil
}

func (m ChatModel) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c":
		m.backend.Interrupt()
		return m, tea.Quit
	case "esc":
		if m.focus == focusHistory {
			m.showHistory = false
			m.layout()
			return m, m.focusOn(focusInput)
		}
		m.backend.Interrupt()
		return m, tea.Quit
	case "ctrl+n":
		m.store.CreateSession(m.ctx)
		m.refresh()
		return m, m.focusOn(focusInput)
	case "ctrl+o":
		m.showHistory = !m.showHistory
		m.layout()
		if m.showHistory {
			m.history = m.history.focusCurrent()
			return m, m.focusOn(focusHistory)
		}
		return m, m.focusOn(focusInput)
	case "tab":
		if m.showHistory {
			if m.focus == focusHistory {
				return m, m.focusOn(focusInput)
			}
			m.history = m.history.focusCurrent()
			return m, m.focusOn(focusHistory)
		}
	case "ctrl+e":
		return m, m.openRenameForm()
	case "ctrl+x":
		m.bot.Delete(m.ctx, m.store.CurrentID())
		m.refresh()
		return m, nil
	case "ctrl+t":
		if m.theme == nil {
			return m, nil
		}
		t, err := m.theme.Toggle(m.ctx)
		if err != nil {
			m.status = events.Notice{Level: events.LevelError, Text: "Could not save theme"}
			log.Warn().Str("component", "ui").Err(err).Msg("toggle theme failed")
			return m, nil
		}
		m.applyTheme(t)
		m.refresh()
		return m, nil
	case "ctrl+y":
		m.copyLastReply()
		return m, nil
	case "ctrl+l":
		return m, m.openAuthForm()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(key)
		return m, cmd
	}

	if m.focus == focusHistory {
		switch key.String() {
		case "up", "k":
			m.history = m.history.up()
		case "down", "j":
			m.history = m.history.down()
		case "enter":
			if id := m.history.selected(); id != "" {
				m.store.SelectSession(m.ctx, id)
				m.refresh()
			}
		}
		return m, nil
	}

	if key.String() == "enter" {
		return m.send()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

func (m ChatModel) send() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.loading {
		return m, nil
	}
	if m.store.Identity() == "" {
		m.status = events.Notice{Level: events.LevelInfo, Text: chat.ErrNotAuthenticated.Error()}
		return m, m.openAuthForm()
	}
	cmd, err := m.backend.Start(m.ctx, text)
	if err != nil {
		m.status = events.Notice{Level: events.LevelError, Text: err.Error()}
		return m, nil
	}
	m.input.Reset()
	m.loading = true
	m.status = events.Notice{}
	return m, tea.Batch(cmd, m.spinner.Tick)
}

func (m *ChatModel) focusOn(f focusArea) tea.Cmd {
	m.focus = f
	if f == focusHistory {
		m.input.Blur()
		return nil
	}
	return m.input.Focus()
}

func (m *ChatModel) copyLastReply() {
	msgs := m.store.Current().Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender != chat.SenderAI {
			continue
		}
		if err := m.writeClipboard(msgs[i].Text); err != nil {
			m.status = events.Notice{Level: events.LevelError, Text: "Could not copy to clipboard"}
			log.Debug().Str("component", "ui").Err(err).Msg("clipboard write failed")
			return
		}
		m.status = events.Notice{Level: events.LevelSuccess, Text: "Copied reply to clipboard"}
		return
	}
	m.status = events.Notice{Level: events.LevelInfo, Text: "Nothing to copy yet"}
}

func (m *ChatModel) applyTheme(t theme.Theme) {
	m.palette = t.Palette()
	m.styles = newStyles(m.palette)
	m.spinner.Style = lipgloss.NewStyle().Foreground(m.palette.Header)
	m.renderer = newRenderer(m.palette.GlamourStyle, m.viewport.Width)
}

func (m *ChatModel) layout() {
	if m.width == 0 {
		return
	}
	bodyWidth := m.width
	if m.showHistory {
		bodyWidth -= historyWidth
	}
	bodyWidth = max(bodyWidth, minBodyWidth)
	// header, input (with its top border) and status line
	bodyHeight := max(m.height-4, 3)

	m.viewport.Width = bodyWidth - m.styles.transcript.GetHorizontalFrameSize()
	m.viewport.Height = bodyHeight - m.styles.transcript.GetVerticalFrameSize()
	m.history.height = bodyHeight
	m.input.Width = m.width - 4
	m.renderer = newRenderer(m.palette.GlamourStyle, m.viewport.Width)
	m.refresh()
}

func (m *ChatModel) refresh() {
	m.history = m.history.sync(m.store.Sessions(), m.store.CurrentID())
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m *ChatModel) transcript() string {
	msgs := m.store.Current().Messages
	if len(msgs) == 0 {
		return m.styles.empty.Render(greeting)
	}
	width := max(m.viewport.Width-2, minBodyWidth)
	var b strings.Builder
	for _, msg := range msgs {
		if msg.Sender == chat.SenderUser {
			bubble := m.styles.userBubble
			if lipgloss.Width(msg.Text) > width-bubble.GetHorizontalFrameSize() {
				bubble = bubble.Width(width)
			}
			b.WriteString(m.styles.userLabel.Render("You") + "\n")
			b.WriteString(bubble.Render(msg.Text) + "\n\n")
			continue
		}
		b.WriteString(m.styles.aiLabel.Render("Assistant") + "\n")
		b.WriteString(m.renderMarkdown(msg.Text) + "\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *ChatModel) renderMarkdown(text string) string {
	if m.renderer == nil {
		return m.styles.aiBubble.Render(text)
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return m.styles.aiBubble.Render(text)
	}
	return strings.Trim(out, "\n")
}

func newRenderer(style string, width int) *glamour.TermRenderer {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		log.Debug().Str("component", "ui").Err(err).Msg("markdown renderer unavailable")
		return nil
	}
	return r
}

func (m ChatModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := m.headerView()
	if m.activeForm != nil {
		form := lipgloss.NewStyle().Padding(1, 2).Render(m.activeForm.View())
		return lipgloss.JoinVertical(lipgloss.Left, header, form, m.statusView())
	}

	body := m.styles.transcript.Render(m.viewport.View())
	if m.showHistory {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.history.View(m.styles, m.focus == focusHistory), body)
	}
	input := m.styles.input.Width(m.width).Render(m.input.View())
	return lipgloss.JoinVertical(lipgloss.Left, header, body, input, m.statusView())
}

func (m ChatModel) headerView() string {
	title := "Deckhand AI"
	if m.activeForm == nil {
		title += " · " + m.store.Current().DisplayName()
	}
	if m.loading {
		title += " " + m.spinner.View()
	}
	return m.styles.header.Width(m.width).Render(truncate(title, m.width-2))
}

func (m ChatModel) statusView() string {
	if m.status.Text == "" {
		return m.styles.help.Render(truncate(helpLine, m.width))
	}
	style, ok := m.styles.notice[m.status.Level]
	if !ok {
		style = m.styles.help
	}
	return style.Render(truncate(m.status.Text, m.width))
}

// Run shows the widget full-screen until the user quits.
func Run(ctx context.Context, m ChatModel) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "run chat ui")
	}
	return nil
}
