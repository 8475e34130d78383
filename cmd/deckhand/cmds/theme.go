package cmds

import (
	"context"

	"github.com/go-go-golems/deckhand/pkg/app"
	"github.com/go-go-golems/deckhand/pkg/theme"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/types"
)

func themeRow(t theme.Theme) types.Row {
	return types.NewRow(types.MRP("theme", string(t)))
}

func NewThemeGetCommand() (*GlazeCommand, error) {
	return newGlazeCommand("get",
		func(ctx context.Context, a *app.App, _ *values.Values, gp middlewares.Processor) error {
			return gp.AddRow(ctx, themeRow(a.Theme.Get(ctx)))
		},
		cmds.WithShort("Show the UI theme"),
	)
}

type ThemeSetSettings struct {
	Theme string `glazed:"theme"`
}

func NewThemeSetCommand() (*GlazeCommand, error) {
	return newGlazeCommand("set",
		func(ctx context.Context, a *app.App, parsed *values.Values, gp middlewares.Processor) error {
			s, err := decode[ThemeSetSettings](parsed)
			if err != nil {
				return err
			}
			t, err := theme.Parse(s.Theme)
			if err != nil {
				return err
			}
			if err := a.Theme.Set(ctx, t); err != nil {
				return err
			}
			return gp.AddRow(ctx, themeRow(t))
		},
		cmds.WithShort("Set the UI theme"),
		cmds.WithArguments(
			fields.New("theme", fields.TypeChoice,
				fields.WithChoices(string(theme.Light), string(theme.Dark)),
				fields.WithHelp("light or dark")),
		),
	)
}

func NewThemeToggleCommand() (*GlazeCommand, error) {
	return newGlazeCommand("toggle",
		func(ctx context.Context, a *app.App, _ *values.Values, gp middlewares.Processor) error {
			t, err := a.Theme.Toggle(ctx)
			if err != nil {
				return err
			}
			return gp.AddRow(ctx, themeRow(t))
		},
		cmds.WithShort("Switch between light and dark"),
	)
}
