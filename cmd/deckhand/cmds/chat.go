package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/deckhand/pkg/app"
	"github.com/go-go-golems/deckhand/pkg/chat"
	"github.com/go-go-golems/deckhand/pkg/events"
	"github.com/go-go-golems/deckhand/pkg/ui"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
)

func NewChatCommand() (*BareCommand, error) {
	return newBareCommand("chat",
		func(ctx context.Context, a *app.App, _ *values.Values, ch <-chan events.Event) error {
			a.OpenChat(ctx)
			m := ui.NewChatModel(ctx, a.Chatbot, a.Theme, a, ui.WithEvents(ch))
			return ui.Run(ctx, m)
		},
		cmds.WithShort("Open the chat widget"),
	)
}

type ChatSendSettings struct {
	Message []string `glazed:"message"`
	Session string   `glazed:"session"`
	New     bool     `glazed:"new"`
	Raw     bool     `glazed:"raw"`
}

func NewChatSendCommand() (*WriterCommand, error) {
	return newWriterCommand("send",
		func(ctx context.Context, a *app.App, parsed *values.Values, w io.Writer) error {
			s, err := decode[ChatSendSettings](parsed)
			if err != nil {
				return err
			}
			if err := requireSignedIn(a); err != nil {
				return err
			}
			switch {
			case s.New:
				a.Chat.CreateSession(ctx)
			case s.Session != "":
				if !a.Chat.SelectSession(ctx, s.Session) {
					return errors.Errorf("no chat session %q", s.Session)
				}
			}
			text := strings.Join(s.Message, " ")
			if strings.TrimSpace(text) == "" {
				return errors.New("message is empty")
			}
			reply, err := a.Chatbot.Send(ctx, text)
			if err != nil {
				return err
			}
			// plain output when piped or NO_COLOR is set
			if !s.Raw && termenv.NewOutput(os.Stdout).Profile != termenv.Ascii {
				style := a.Theme.Get(ctx).Palette().GlamourStyle
				if styled, err := glamour.Render(reply, style); err == nil {
					reply = styled
				}
			}
			_, err = fmt.Fprintln(w, strings.TrimRight(reply, "\n"))
			return err
		},
		cmds.WithShort("Send one message and print the reply"),
		cmds.WithFlags(
			fields.New("session", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Session id to continue (default: current)")),
			fields.New("new", fields.TypeBool, fields.WithDefault(false), fields.WithHelp("Start a new session first")),
			fields.New("raw", fields.TypeBool, fields.WithDefault(false), fields.WithHelp("Print the reply without markdown rendering")),
		),
		cmds.WithArguments(
			fields.New("message", fields.TypeStringList, fields.WithHelp("Message text")),
		),
	)
}

func NewSessionsListCommand() (*GlazeCommand, error) {
	return newGlazeCommand("list",
		func(ctx context.Context, a *app.App, _ *values.Values, gp middlewares.Processor) error {
			if err := requireSignedIn(a); err != nil {
				return err
			}
			current := a.Chat.CurrentID()
			for _, s := range a.Chat.Sessions() {
				if err := gp.AddRow(ctx, sessionRow(s, current)); err != nil {
					return err
				}
			}
			return nil
		},
		cmds.WithShort("List chat sessions"),
	)
}

type SessionIDSettings struct {
	ID string `glazed:"id"`
}

func sessionIDArgument() cmds.CommandDescriptionOption {
	return cmds.WithArguments(
		fields.New("id", fields.TypeString, fields.WithHelp("Session id")),
	)
}

func NewSessionsShowCommand() (*GlazeCommand, error) {
	return newGlazeCommand("show",
		func(ctx context.Context, a *app.App, parsed *values.Values, gp middlewares.Processor) error {
			s, err := decode[SessionIDSettings](parsed)
			if err != nil {
				return err
			}
			if err := requireSignedIn(a); err != nil {
				return err
			}
			id := s.ID
			if id == "" {
				id = a.Chat.CurrentID()
			}
			session, ok := a.Chat.Session(id)
			if !ok {
				return errors.Errorf("no chat session %q", id)
			}
			for i, m := range session.Messages {
				row := types.NewRow(
					types.MRP("index", i),
					types.MRP("sender", string(m.Sender)),
					types.MRP("text", m.Text),
				)
				if err := gp.AddRow(ctx, row); err != nil {
					return err
				}
			}
			return nil
		},
		cmds.WithShort("Print the messages of a session (default: current)"),
		sessionIDArgument(),
	)
}

func NewSessionsNewCommand() (*GlazeCommand, error) {
	return newGlazeCommand("new",
		func(ctx context.Context, a *app.App, _ *values.Values, gp middlewares.Processor) error {
			if err := requireSignedIn(a); err != nil {
				return err
			}
			s := a.Chat.CreateSession(ctx)
			return gp.AddRow(ctx, sessionRow(s, s.ID))
		},
		cmds.WithShort("Start a new chat session"),
	)
}

func NewSessionsSelectCommand() (*GlazeCommand, error) {
	return newGlazeCommand("select",
		func(ctx context.Context, a *app.App, parsed *values.Values, gp middlewares.Processor) error {
			s, err := decode[SessionIDSettings](parsed)
			if err != nil {
				return err
			}
			if err := requireSignedIn(a); err != nil {
				return err
			}
			if !a.Chat.SelectSession(ctx, s.ID) {
				return errors.Errorf("no chat session %q", s.ID)
			}
			return gp.AddRow(ctx, sessionRow(a.Chat.Current(), s.ID))
		},
		cmds.WithShort("Make a session current"),
		sessionIDArgument(),
	)
}

type SessionRenameSettings struct {
	ID   string   `glazed:"id"`
	Name []string `glazed:"name"`
}

func NewSessionsRenameCommand() (*GlazeCommand, error) {
	return newGlazeCommand("rename",
		func(ctx context.Context, a *app.App, parsed *values.Values, gp middlewares.Processor) error {
			s, err := decode[SessionRenameSettings](parsed)
			if err != nil {
				return err
			}
			if err := requireSignedIn(a); err != nil {
				return err
			}
			if !a.Chat.RenameSession(ctx, s.ID, strings.Join(s.Name, " ")) {
				return errors.Errorf("no chat session %q", s.ID)
			}
			session, _ := a.Chat.Session(s.ID)
			return gp.AddRow(ctx, sessionRow(session, a.Chat.CurrentID()))
		},
		cmds.WithShort("Rename a session; an empty name restores the automatic one"),
		cmds.WithArguments(
			fields.New("id", fields.TypeString, fields.WithHelp("Session id")),
			fields.New("name", fields.TypeStringList, fields.WithHelp("New name")),
		),
	)
}

func NewSessionsDeleteCommand() (*GlazeCommand, error) {
	return newGlazeCommand("delete",
		func(ctx context.Context, a *app.App, parsed *values.Values, gp middlewares.Processor) error {
			s, err := decode[SessionIDSettings](parsed)
			if err != nil {
				return err
			}
			if err := requireSignedIn(a); err != nil {
				return err
			}
			if !a.Chatbot.Delete(ctx, s.ID) {
				return errors.Errorf("no chat session %q", s.ID)
			}
			return gp.AddRow(ctx, types.NewRow(
				types.MRP("deleted", s.ID),
				types.MRP("current", a.Chat.CurrentID()),
			))
		},
		cmds.WithShort("Delete a session"),
		sessionIDArgument(),
	)
}

func NewSessionsImportCommand() (*GlazeCommand, error) {
	return newGlazeCommand("import",
		func(ctx context.Context, a *app.App, _ *values.Values, gp middlewares.Processor) error {
			n, err := a.Chatbot.Import(ctx)
			if err != nil {
				if errors.Is(err, chat.ErrIdentityChanged) {
					return errors.New("signed-in user changed during import, try again")
				}
				return err
			}
			return gp.AddRow(ctx, types.NewRow(
				types.MRP("imported", n),
				types.MRP("sessions", len(a.Chat.Sessions())),
			))
		},
		cmds.WithShort("Import chat history stored on the backend"),
	)
}
