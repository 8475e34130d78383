package ui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/deckhand/pkg/api"
	"github.com/go-go-golems/deckhand/pkg/auth"
	"github.com/go-go-golems/deckhand/pkg/chat"
	"github.com/go-go-golems/deckhand/pkg/events"
	"github.com/go-go-golems/deckhand/pkg/persistence/clientstore"
	"github.com/go-go-golems/deckhand/pkg/theme"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeChat struct {
	reply func(string) (string, error)
}

func (f *fakeChat) Chat(_ context.Context, message string) (string, error) {
	if f.reply == nil {
		return "echo: " + message, nil
	}
	return f.reply(message)
}

func (f *fakeChat) LogActivity(context.Context, api.Activity) error { return nil }

func (f *fakeChat) ChatHistory(context.Context) ([]api.ChatHistorySession, error) {
	return nil, nil
}

func (f *fakeChat) SaveChatHistory(context.Context, api.ChatHistorySession) error { return nil }

func (f *fakeChat) DeleteChatHistory(context.Context, string) error { return nil }

// fakeAuth binds the chat store on success the way the app does.
type fakeAuth struct {
	store *chat.Store
	err   error
	email string
}

func (f *fakeAuth) Login(ctx context.Context, email, _ string) (*api.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.email = email
	if err := f.store.Load(ctx, email); err != nil {
		return nil, err
	}
	return &api.User{Email: email}, nil
}

func (f *fakeAuth) Signup(ctx context.Context, _ string, email, password string) (*api.User, error) {
	return f.Login(ctx, email, password)
}

type fixture struct {
	store *chat.Store
	bot   *chat.Chatbot
	pref  *theme.Preference
	auth  *fakeAuth
}

func newFixture(t *testing.T, identity string) *fixture {
	t.Helper()
	kv := clientstore.NewInMemoryStore()
	store := chat.NewStore(kv, nil)
	if identity != "" {
		require.NoError(t, store.Load(context.Background(), identity))
	}
	return &fixture{
		store: store,
		bot:   chat.NewChatbot(store, &fakeChat{}),
		pref:  theme.NewPreference(kv, nil),
		auth:  &fakeAuth{store: store},
	}
}

func (f *fixture) model(t *testing.T, opts ...Option) ChatModel {
	t.Helper()
	m := NewChatModel(context.Background(), f.bot, f.pref, f.auth, opts...)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

func update(t *testing.T, m ChatModel, msg tea.Msg) (ChatModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	cm, ok := next.(ChatModel)
	require.True(t, ok)
	return cm, cmd
}

func key(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

// collect runs cmd, expanding batches, and returns the messages produced
// within a short deadline. Commands that block on input are skipped.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	select {
	case msg := <-done:
		if batch, ok := msg.(tea.BatchMsg); ok {
			var out []tea.Msg
			for _, c := range batch {
				out = append(out, collect(c)...)
			}
			return out
		}
		return []tea.Msg{msg}
	case <-time.After(2 * time.Second):
		return nil
	}
}

func find[T any](t *testing.T, msgs []tea.Msg) T {
	t.Helper()
	for _, msg := range msgs {
		if v, ok := msg.(T); ok {
			return v
		}
	}
	var zero T
	require.Failf(t, "message not produced", "%T", zero)
	return zero
}

func TestUnauthenticatedWidgetAsksForLogin(t *testing.T) {
	f := newFixture(t, "")
	m := f.model(t)

	require.NotNil(t, m.activeForm)
	require.Equal(t, formAuth, m.formKind)
	require.Contains(t, m.View(), "Deckhand AI")

	m, _ = update(t, m, key(tea.KeyEsc))
	require.Nil(t, m.activeForm)
	require.Contains(t, m.status.Text, "Please login")

	m.input.SetValue("hello")
	m, _ = update(t, m, key(tea.KeyEnter))
	require.NotNil(t, m.activeForm, "sending while signed out reopens the login form")
	require.Equal(t, chat.ErrNotAuthenticated.Error(), m.status.Text)
}

func TestLoginFailureKeepsFormOpenWithServerMessage(t *testing.T) {
	f := newFixture(t, "")
	f.auth.err = &api.Error{Kind: api.KindAuthRejected, Status: 401, Message: "Invalid credentials"}
	m := f.model(t)

	m.authVals.Email = "a@example.com"
	m.authVals.Password = "wrong"
	cmd := m.completeForm()
	require.True(t, m.loading)

	res := find[authResultMsg](t, collect(cmd))
	m, _ = update(t, m, res)
	require.False(t, m.loading)
	require.Equal(t, "Invalid credentials", m.status.Text)
	require.Equal(t, events.LevelError, m.status.Level)
	require.NotNil(t, m.activeForm)
	require.Equal(t, "a@example.com", m.authVals.Email)
	require.Empty(t, m.authVals.Password)
}

func TestLoginFailureWithoutServerMessageUsesFallback(t *testing.T) {
	f := newFixture(t, "")
	f.auth.err = errors.New("dial tcp: connection refused")
	m := f.model(t)

	m.authVals.Email = "a@example.com"
	m.authVals.Password = "pw"
	res := find[authResultMsg](t, collect(m.completeForm()))
	m, _ = update(t, m, res)
	require.Equal(t, authFailedMsg, m.status.Text)
}

func TestLoginSuccessClosesForm(t *testing.T) {
	f := newFixture(t, "")
	m := f.model(t)

	m.authVals.Email = " a@example.com "
	m.authVals.Password = "pw"
	res := find[authResultMsg](t, collect(m.completeForm()))
	m, _ = update(t, m, res)

	require.Nil(t, m.activeForm)
	require.Equal(t, "a@example.com", f.auth.email)
	require.Equal(t, "a@example.com", f.store.Identity())
	require.Empty(t, m.authVals.Password)
}

func TestSendAppendsExchange(t *testing.T) {
	f := newFixture(t, "a@example.com")
	m := f.model(t)
	require.Nil(t, m.activeForm)

	m.input.SetValue("  hello  ")
	m, cmd := update(t, m, key(tea.KeyEnter))
	require.True(t, m.loading)
	require.Empty(t, m.input.Value())

	reply := find[ReplyMsg](t, collect(cmd))
	require.NoError(t, reply.Err)
	require.Equal(t, "echo: hello", reply.Reply)

	m, _ = update(t, m, reply)
	require.False(t, m.loading)
	msgs := f.store.Current().Messages
	require.Len(t, msgs, 2)
	require.Equal(t, chat.SenderUser, msgs[0].Sender)
	require.Equal(t, chat.SenderAI, msgs[1].Sender)
	require.True(t, m.backend.IsFinished())
}

func TestBlankInputIsIgnored(t *testing.T) {
	f := newFixture(t, "a@example.com")
	m := f.model(t)

	m.input.SetValue("   ")
	m, cmd := update(t, m, key(tea.KeyEnter))
	require.Nil(t, cmd)
	require.False(t, m.loading)
	require.Empty(t, f.store.Current().Messages)
}

func TestFailedReplyShowsError(t *testing.T) {
	f := newFixture(t, "a@example.com")
	f.bot = chat.NewChatbot(f.store, &fakeChat{reply: func(string) (string, error) {
		return "", &api.Error{Kind: api.KindTransient, Status: 502}
	}})
	m := f.model(t)

	m.input.SetValue("hello")
	m, cmd := update(t, m, key(tea.KeyEnter))
	m, _ = update(t, m, find[ReplyMsg](t, collect(cmd)))

	require.Equal(t, replyFailedMsg, m.status.Text)
	msgs := f.store.Current().Messages
	require.Len(t, msgs, 2)
	require.Equal(t, "Error: Could not get AI response.", msgs[1].Text)
}

func TestBackendRunsOneExchangeAtATime(t *testing.T) {
	f := newFixture(t, "a@example.com")
	release := make(chan struct{})
	f.bot = chat.NewChatbot(f.store, &fakeChat{reply: func(string) (string, error) {
		<-release
		return "ok", nil
	}})
	b := NewChatBackend(f.bot)

	cmd, err := b.Start(context.Background(), "one")
	require.NoError(t, err)
	require.False(t, b.IsFinished())

	_, err = b.Start(context.Background(), "two")
	require.Error(t, err)

	close(release)
	require.Equal(t, ReplyMsg{Reply: "ok"}, cmd())
	require.True(t, b.IsFinished())
}

func TestNewChatAndHistoryNavigation(t *testing.T) {
	f := newFixture(t, "a@example.com")
	m := f.model(t)
	first := f.store.CurrentID()

	m, _ = update(t, m, key(tea.KeyCtrlN))
	require.Len(t, f.store.Sessions(), 2)
	second := f.store.CurrentID()
	require.NotEqual(t, first, second)

	m, _ = update(t, m, key(tea.KeyCtrlO))
	require.True(t, m.showHistory)
	require.Equal(t, focusHistory, m.focus)
	require.Equal(t, second, m.history.selected())

	m, _ = update(t, m, key(tea.KeyUp))
	require.Equal(t, first, m.history.selected())
	m, _ = update(t, m, key(tea.KeyEnter))
	require.Equal(t, first, f.store.CurrentID())

	view := m.View()
	require.Contains(t, view, "History")

	m, _ = update(t, m, key(tea.KeyEsc))
	require.False(t, m.showHistory)
	require.Equal(t, focusInput, m.focus)
}

func TestRenameCurrentSession(t *testing.T) {
	f := newFixture(t, "a@example.com")
	m := f.model(t)

	m, _ = update(t, m, key(tea.KeyCtrlE))
	require.Equal(t, formRename, m.formKind)

	m.renameVals.Name = "  Quarterly deck "
	m.completeForm()
	require.Nil(t, m.activeForm)
	require.Equal(t, "Quarterly deck", f.store.Current().DisplayName())
}

func TestDeleteCurrentSession(t *testing.T) {
	f := newFixture(t, "a@example.com")
	m := f.model(t)
	first := f.store.CurrentID()
	m, _ = update(t, m, key(tea.KeyCtrlN))

	m, _ = update(t, m, key(tea.KeyCtrlX))
	f.bot.Wait()
	sessions := f.store.Sessions()
	require.Len(t, sessions, 1)
	require.Equal(t, first, f.store.CurrentID())
	require.Equal(t, first, m.history.currentID)
}

func TestCopyLastReply(t *testing.T) {
	f := newFixture(t, "a@example.com")
	var copied string
	m := f.model(t, WithClipboard(func(s string) error {
		copied = s
		return nil
	}))

	m, _ = update(t, m, key(tea.KeyCtrlY))
	require.Empty(t, copied)
	require.Equal(t, "Nothing to copy yet", m.status.Text)

	_, err := f.bot.Send(context.Background(), "hi")
	require.NoError(t, err)
	m, _ = update(t, m, key(tea.KeyCtrlY))
	require.Equal(t, "echo: hi", copied)
	require.Equal(t, events.LevelSuccess, m.status.Level)
}

func TestThemeToggleIsPersisted(t *testing.T) {
	f := newFixture(t, "a@example.com")
	m := f.model(t)
	require.Equal(t, theme.Light.Palette(), m.palette)

	m, _ = update(t, m, key(tea.KeyCtrlT))
	require.Equal(t, theme.Dark.Palette(), m.palette)
	require.Equal(t, theme.Dark, f.pref.Get(context.Background()))
}

func TestBusEventsDriveTheWidget(t *testing.T) {
	f := newFixture(t, "a@example.com")
	ch := make(chan events.Event, 4)
	m := f.model(t, WithEvents(ch))

	m, cmd := update(t, m, events.NewNotice(events.LevelSuccess, "Welcome back!"))
	require.Equal(t, "Welcome back!", m.status.Text)
	require.NotNil(t, cmd, "the event listener is re-armed")

	m, _ = update(t, m, events.NewThemeChanged(string(theme.Dark)))
	require.Equal(t, theme.Dark.Palette(), m.palette)

	m, _ = update(t, m, events.NewThemeChanged("sepia"))
	require.Equal(t, theme.Dark.Palette(), m.palette)

	m, _ = update(t, m, events.NewSessionExpired())
	require.Equal(t, formAuth, m.formKind)

	ch <- events.NewNotice(events.LevelInfo, "queued")
	msg := waitForUIEvent(ch)()
	e, ok := msg.(events.Event)
	require.True(t, ok)
	require.Equal(t, "queued", e.Notice.Text)
}

func TestBootstrapExpiryQueuedBeforeStartIsShown(t *testing.T) {
	f := newFixture(t, "")
	ch := make(chan events.Event, 4)
	ch <- events.NewNotice(events.LevelError, "Session expired. Please login again.")
	ch <- events.NewSessionExpired()
	ch <- events.NewAuthChanged(auth.StateUnauthenticated.String(), nil)
	m := f.model(t, WithEvents(ch))

	for i := 0; i < 3; i++ {
		msg := waitForUIEvent(ch)()
		m, _ = update(t, m, msg)
	}
	require.Equal(t, formAuth, m.formKind)
	require.Equal(t, "Session expired. Please login again.", m.status.Text)
	require.Contains(t, m.View(), "Session expired. Please login again.")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	out := truncate("a rather long session name", 10)
	require.LessOrEqual(t, len([]rune(out)), 10)
	require.True(t, strings.HasSuffix(out, "…"))
}
