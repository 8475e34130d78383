package cmds

import (
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type commandFactory func() (cmds.Command, error)

func glaze(f func() (*GlazeCommand, error)) commandFactory {
	return func() (cmds.Command, error) { return f() }
}

func writer(f func() (*WriterCommand, error)) commandFactory {
	return func() (cmds.Command, error) { return f() }
}

func bare(f func() (*BareCommand, error)) commandFactory {
	return func() (cmds.Command, error) { return f() }
}

// commandGroup is a plain cobra parent holding glazed subcommands. An empty
// use means the root command itself; a non-nil parent is a glazed command
// that also acts as the group.
type commandGroup struct {
	use      string
	short    string
	parent   commandFactory
	commands []commandFactory
}

func commandGroups() []commandGroup {
	return []commandGroup{
		{commands: []commandFactory{
			glaze(NewLoginCommand),
			glaze(NewSignupCommand),
			glaze(NewLogoutCommand),
			glaze(NewWhoamiCommand),
			glaze(NewAnalyticsCommand),
			glaze(NewFeedbackCommand),
			glaze(NewContactCommand),
			glaze(NewHealthCommand),
		}},
		{use: "profile", short: "Manage the account profile", commands: []commandFactory{
			glaze(NewProfileSetCommand),
		}},
		{use: "avatar", short: "Manage the profile picture", commands: []commandFactory{
			glaze(NewAvatarSetCommand),
		}},
		{use: "preferences", short: "Read and write account preferences", commands: []commandFactory{
			glaze(NewPreferencesGetCommand),
			glaze(NewPreferencesSetCommand),
		}},
		{parent: bare(NewChatCommand), commands: []commandFactory{
			writer(NewChatSendCommand),
		}},
		{use: "sessions", short: "Manage chat sessions", commands: []commandFactory{
			glaze(NewSessionsListCommand),
			glaze(NewSessionsShowCommand),
			glaze(NewSessionsNewCommand),
			glaze(NewSessionsSelectCommand),
			glaze(NewSessionsRenameCommand),
			glaze(NewSessionsDeleteCommand),
			glaze(NewSessionsImportCommand),
		}},
		{use: "theme", short: "Light or dark UI theme", commands: []commandFactory{
			glaze(NewThemeGetCommand),
			glaze(NewThemeSetCommand),
			glaze(NewThemeToggleCommand),
		}},
		{use: "templates", short: "Browse presentation templates", commands: []commandFactory{
			glaze(NewTemplatesListCommand),
			glaze(NewTemplatesPopularCommand),
			glaze(NewTemplatesDownloadCommand),
		}},
		{use: "dashboard", short: "Account dashboard", commands: []commandFactory{
			glaze(NewDashboardStatsCommand),
		}},
	}
}

func buildCommand(f commandFactory) (*cobra.Command, error) {
	c, err := f()
	if err != nil {
		return nil, err
	}
	cobraCmd, err := cli.BuildCobraCommand(c)
	if err != nil {
		return nil, errors.Wrapf(err, "build command %s", c.Description().Name)
	}
	return cobraCmd, nil
}

// AddToRootCommand registers every deckhand command under root.
func AddToRootCommand(root *cobra.Command) error {
	for _, g := range commandGroups() {
		parent := root
		switch {
		case g.parent != nil:
			p, err := buildCommand(g.parent)
			if err != nil {
				return err
			}
			parent = p
		case g.use != "":
			parent = &cobra.Command{Use: g.use, Short: g.short}
		}
		for _, f := range g.commands {
			c, err := buildCommand(f)
			if err != nil {
				return err
			}
			parent.AddCommand(c)
		}
		if parent != root {
			root.AddCommand(parent)
		}
	}
	return nil
}
