package cmds

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-go-golems/deckhand/pkg/api"
	"github.com/go-go-golems/deckhand/pkg/app"
	"github.com/go-go-golems/deckhand/pkg/auth"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type LoginSettings struct {
	Email    string `glazed:"email"`
	Password string `glazed:"password"`
}

func NewLoginCommand() (*GlazeCommand, error) {
	return newGlazeCommand("login",
		func(ctx context.Context, a *app.App, parsed *values.Values, gp middlewares.Processor) error {
			s, err := decode[LoginSettings](parsed)
			if err != nil {
				return err
			}
			email, err := valueOrPrompt(s.Email, "Email", "email", false)
			if err != nil {
				return err
			}
			password, err := valueOrPrompt(s.Password, "Password", "password", true)
			if err != nil {
				return err
			}
			u, err := a.Login(ctx, strings.TrimSpace(email), password)
			if err != nil {
				return err
			}
			return gp.AddRow(ctx, userRow(auth.StateAuthenticated, u))
		},
		cmds.WithShort("Sign in and remember the session"),
		cmds.WithFlags(
			fields.New("email", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Account email (prompted when missing)")),
			fields.New("password", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Account password (prompted when missing)")),
		),
	)
}

type SignupSettings struct {
	Username string `glazed:"username"`
	Email    string `glazed:"email"`
	Password string `glazed:"password"`
}

func NewSignupCommand() (*GlazeCommand, error) {
	return newGlazeCommand("signup",
		func(ctx context.Context, a *app.App, parsed *values.Values, gp middlewares.Processor) error {
			s, err := decode[SignupSettings](parsed)
			if err != nil {
				return err
			}
			username, err := valueOrPrompt(s.Username, "Username", "username", false)
			if err != nil {
				return err
			}
			email, err := valueOrPrompt(s.Email, "Email", "email", false)
			if err != nil {
				return err
			}
			password, err := valueOrPrompt(s.Password, "Password", "password", true)
			if err != nil {
				return err
			}
			u, err := a.Signup(ctx, strings.TrimSpace(username), strings.TrimSpace(email), password)
			if err != nil {
				return err
			}
			return gp.AddRow(ctx, userRow(auth.StateAuthenticated, u))
		},
		cmds.WithShort("Create an account and sign in"),
		cmds.WithFlags(
			fields.New("username", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Display name (prompted when missing)")),
			fields.New("email", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Account email (prompted when missing)")),
			fields.New("password", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Account password (prompted when missing)")),
		),
	)
}

func NewLogoutCommand() (*GlazeCommand, error) {
	return newGlazeCommand("logout",
		func(ctx context.Context, a *app.App, _ *values.Values, gp middlewares.Processor) error {
			a.Logout(ctx)
			return gp.AddRow(ctx, userRow(a.Auth.State(), nil))
		},
		cmds.WithShort("Forget the stored session"),
	)
}

func NewWhoamiCommand() (*GlazeCommand, error) {
	return newGlazeCommand("whoami",
		func(ctx context.Context, a *app.App, _ *values.Values, gp middlewares.Processor) error {
			snap := a.Auth.Snapshot()
			return gp.AddRow(ctx, userRow(snap.State, snap.User))
		},
		cmds.WithShort("Show the signed-in user"),
	)
}

type ProfileSettings struct {
	Username string `glazed:"username"`
	Email    string `glazed:"email"`
}

func NewProfileSetCommand() (*GlazeCommand, error) {
	return newGlazeCommand("set",
		func(ctx context.Context, a *app.App, parsed *values.Values, gp middlewares.Processor) error {
			s, err := decode[ProfileSettings](parsed)
			if err != nil {
				return err
			}
			var update api.ProfileUpdate
			if v := strings.TrimSpace(s.Username); v != "" {
				update.Username = &v
			}
			if v := strings.TrimSpace(s.Email); v != "" {
				update.Email = &v
			}
			if update.Username == nil && update.Email == nil {
				return errors.New("nothing to update: pass --username or --email")
			}
			u, err := a.Auth.UpdateProfile(ctx, update)
			if err != nil {
				return err
			}
			return gp.AddRow(ctx, userRow(auth.StateAuthenticated, u))
		},
		cmds.WithShort("Update username or email"),
		cmds.WithFlags(
			fields.New("username", fields.TypeString, fields.WithDefault(""), fields.WithHelp("New username")),
			fields.New("email", fields.TypeString, fields.WithDefault(""), fields.WithHelp("New email")),
		),
	)
}

type AvatarSettings struct {
	URL  string `glazed:"url"`
	File string `glazed:"file"`
}

func NewAvatarSetCommand() (*GlazeCommand, error) {
	return newGlazeCommand("set",
		func(ctx context.Context, a *app.App, parsed *values.Values, gp middlewares.Processor) error {
			s, err := decode[AvatarSettings](parsed)
			if err != nil {
				return err
			}
			var src auth.AvatarSource
			switch {
			case s.URL != "" && s.File != "":
				return errors.New("pass either --url or --file")
			case s.URL != "":
				src.URL = s.URL
			case s.File != "":
				f, err := os.Open(s.File)
				if err != nil {
					return errors.Wrap(err, "open avatar")
				}
				defer func() { _ = f.Close() }()
				src.Filename = filepath.Base(s.File)
				src.Content = f
			default:
				return errors.New("pass --url or --file")
			}
			u, err := a.Auth.UpdateAvatar(ctx, src)
			if err != nil {
				return err
			}
			return gp.AddRow(ctx, userRow(auth.StateAuthenticated, u))
		},
		cmds.WithShort("Change the profile picture"),
		cmds.WithFlags(
			fields.New("url", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Image URL the backend should use")),
			fields.New("file", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Local image to upload")),
		),
	)
}

func NewPreferencesGetCommand() (*GlazeCommand, error) {
	return newGlazeCommand("get",
		func(ctx context.Context, a *app.App, _ *values.Values, gp middlewares.Processor) error {
			if err := requireSignedIn(a); err != nil {
				return err
			}
			prefs, err := a.API.Preferences(ctx)
			if err != nil {
				return err
			}
			for _, k := range sortedKeys(prefs) {
				if err := gp.AddRow(ctx, types.NewRow(types.MRP("key", k), types.MRP("value", prefs[k]))); err != nil {
					return err
				}
			}
			return nil
		},
		cmds.WithShort("List stored preferences"),
	)
}

type PreferencesSetSettings struct {
	Pairs []string `glazed:"pairs"`
}

func NewPreferencesSetCommand() (*GlazeCommand, error) {
	return newGlazeCommand("set",
		func(ctx context.Context, a *app.App, parsed *values.Values, gp middlewares.Processor) error {
			s, err := decode[PreferencesSetSettings](parsed)
			if err != nil {
				return err
			}
			if err := requireSignedIn(a); err != nil {
				return err
			}
			prefs, err := a.API.Preferences(ctx)
			if err != nil {
				return err
			}
			if prefs == nil {
				prefs = api.Preferences{}
			}
			for _, p := range s.Pairs {
				k, v, err := parsePreference(p)
				if err != nil {
					return err
				}
				prefs[k] = v
			}
			u, err := a.Auth.UpdatePreferences(ctx, prefs)
			if err != nil {
				return err
			}
			for _, k := range sortedKeys(u.Preferences) {
				if err := gp.AddRow(ctx, types.NewRow(types.MRP("key", k), types.MRP("value", u.Preferences[k]))); err != nil {
					return err
				}
			}
			return nil
		},
		cmds.WithShort("Set preferences from key=value pairs"),
		cmds.WithLong("Values are parsed as YAML scalars, so true, 3 and \"3\" keep their types."),
		cmds.WithArguments(
			fields.New("pairs", fields.TypeStringList, fields.WithHelp("key=value pairs")),
		),
	)
}

// parsePreference splits key=value and decodes the value as YAML.
func parsePreference(pair string) (string, any, error) {
	k, raw, ok := strings.Cut(pair, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return "", nil, errors.Errorf("expected key=value, got %q", pair)
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return "", nil, errors.Wrapf(err, "parse value of %s", k)
	}
	return k, v, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
