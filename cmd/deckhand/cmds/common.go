package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/deckhand/pkg/api"
	"github.com/go-go-golems/deckhand/pkg/app"
	"github.com/go-go-golems/deckhand/pkg/auth"
	"github.com/go-go-golems/deckhand/pkg/chat"
	"github.com/go-go-golems/deckhand/pkg/config"
	"github.com/go-go-golems/deckhand/pkg/events"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	input "github.com/tcnksm/go-input"
	"golang.org/x/term"
)

type glazeRunFunc func(ctx context.Context, a *app.App, parsed *values.Values, gp middlewares.Processor) error

type writerRunFunc func(ctx context.Context, a *app.App, parsed *values.Values, w io.Writer) error

// GlazeCommand opens the application for the duration of one run and
// streams rows into the glazed processor.
type GlazeCommand struct {
	*cmds.CommandDescription
	run glazeRunFunc
}

var _ cmds.GlazeCommand = &GlazeCommand{}

func (c *GlazeCommand) RunIntoGlazeProcessor(ctx context.Context, parsed *values.Values, gp middlewares.Processor) error {
	a, err := openApp(ctx, parsed)
	if err != nil {
		return err
	}
	defer closeApp(a)
	return c.run(ctx, a, parsed, gp)
}

// WriterCommand is the plain-text counterpart of GlazeCommand.
type WriterCommand struct {
	*cmds.CommandDescription
	run writerRunFunc
}

var _ cmds.WriterCommand = &WriterCommand{}

func (c *WriterCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	a, err := openApp(ctx, parsed)
	if err != nil {
		return err
	}
	defer closeApp(a)
	return c.run(ctx, a, parsed, w)
}

type bareRunFunc func(ctx context.Context, a *app.App, parsed *values.Values, ch <-chan events.Event) error

// BareCommand drives the terminal itself, like the chat widget. It follows
// the event bus from before the session bootstrap, so startup notices such as
// an expired session reach the front-end.
type BareCommand struct {
	*cmds.CommandDescription
	run bareRunFunc
}

var _ cmds.BareCommand = &BareCommand{}

func (c *BareCommand) Run(ctx context.Context, parsed *values.Values) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ch <-chan events.Event
	a, err := openApp(ctx, parsed, func(a *app.App) error {
		var err error
		ch, err = a.Bus.Subscribe(ctx)
		return err
	})
	if err != nil {
		return err
	}
	defer closeApp(a)
	return c.run(ctx, a, parsed, ch)
}

func newGlazeCommand(name string, run glazeRunFunc, opts ...cmds.CommandDescriptionOption) (*GlazeCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsSection, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}
	sections, err := config.Sections()
	if err != nil {
		return nil, err
	}
	sections = append(sections, glazedSection, commandSettingsSection)
	opts = append(opts, cmds.WithSections(sections...))
	return &GlazeCommand{CommandDescription: cmds.NewCommandDescription(name, opts...), run: run}, nil
}

func newWriterCommand(name string, run writerRunFunc, opts ...cmds.CommandDescriptionOption) (*WriterCommand, error) {
	sections, err := config.Sections()
	if err != nil {
		return nil, err
	}
	opts = append(opts, cmds.WithSections(sections...))
	return &WriterCommand{CommandDescription: cmds.NewCommandDescription(name, opts...), run: run}, nil
}

func newBareCommand(name string, run bareRunFunc, opts ...cmds.CommandDescriptionOption) (*BareCommand, error) {
	sections, err := config.Sections()
	if err != nil {
		return nil, err
	}
	opts = append(opts, cmds.WithSections(sections...))
	return &BareCommand{CommandDescription: cmds.NewCommandDescription(name, opts...), run: run}, nil
}

// openApp builds and initialises the application. beforeInit hooks run once
// the components exist but before the session is bootstrapped.
func openApp(ctx context.Context, parsed *values.Values, beforeInit ...func(*app.App) error) (*app.App, error) {
	s, err := config.FromValues(parsed, viper.GetViper())
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, s)
	if err != nil {
		return nil, err
	}
	for _, hook := range beforeInit {
		if err := hook(a); err != nil {
			closeApp(a)
			return nil, err
		}
	}
	if err := a.Init(ctx); err != nil {
		closeApp(a)
		return nil, err
	}
	return a, nil
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		log.Warn().Err(err).Msg("close deckhand")
	}
}

func decode[T any](parsed *values.Values) (*T, error) {
	s := new(T)
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return nil, errors.Wrap(err, "decode settings")
	}
	return s, nil
}

// requireSignedIn fails fast for commands that act on the signed-in
// identity.
func requireSignedIn(a *app.App) error {
	if a.Auth.State() != auth.StateAuthenticated {
		return chat.ErrNotAuthenticated
	}
	return nil
}

func isInteractive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

// prompt asks for a missing value on the terminal. Non-interactive runs get
// an error naming the flag instead.
func prompt(query, flag string, secret bool) (string, error) {
	if !isInteractive() {
		return "", errors.Errorf("--%s is required", flag)
	}
	if secret {
		_, _ = fmt.Fprintf(os.Stderr, "%s: ", query)
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		_, _ = fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", errors.Wrapf(err, "read %s", flag)
		}
		if len(b) == 0 {
			return "", errors.Errorf("%s cannot be empty", flag)
		}
		return string(b), nil
	}
	ui := &input.UI{Writer: os.Stderr, Reader: os.Stdin}
	answer, err := ui.Ask(query, &input.Options{
		Required:  true,
		Loop:      true,
		HideOrder: true,
	})
	if err != nil {
		return "", errors.Wrapf(err, "read %s", flag)
	}
	return strings.TrimSpace(answer), nil
}

func valueOrPrompt(v, query, flag string, secret bool) (string, error) {
	if strings.TrimSpace(v) != "" {
		return v, nil
	}
	return prompt(query, flag, secret)
}

func userRow(state auth.State, u *api.User) types.Row {
	row := types.NewRow(types.MRP("state", state.String()))
	if u == nil {
		return row
	}
	row.Set("id", u.ID)
	row.Set("username", u.Username)
	row.Set("email", u.Email)
	row.Set("avatar", u.Avatar)
	row.Set("created_at", u.CreatedAt)
	return row
}

func sessionRow(s chat.Session, currentID string) types.Row {
	return types.NewRow(
		types.MRP("id", s.ID),
		types.MRP("name", s.DisplayName()),
		types.MRP("messages", len(s.Messages)),
		types.MRP("created_at", s.CreatedAt),
		types.MRP("current", s.ID == currentID),
	)
}
