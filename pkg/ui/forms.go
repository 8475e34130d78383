package ui

import (
	"net/mail"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/pkg/errors"
)

type formKind int

const (
	formNone formKind = iota
	formAuth
	formRename
)

const (
	authLogin  = "login"
	authSignup = "signup"
)

const authFailedMsg = "Authentication failed. Please try again."

// authValues backs the login/signup form. It lives behind a pointer so the
// form keeps writing into it while the model is copied around.
type authValues struct {
	Mode     string
	Username string
	Email    string
	Password string
}

func (v *authValues) signup() bool { return v.Mode == authSignup }

func newAuthForm(v *authValues) *huh.Form {
	if v.Mode == "" {
		v.Mode = authLogin
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Welcome to Deckhand").
				Description("Please login to use AI chat").
				Options(
					huh.NewOption("Sign in", authLogin),
					huh.NewOption("Create an account", authSignup),
				).
				Value(&v.Mode),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Placeholder("Enter your username").
				Value(&v.Username).
				Validate(required("username")),
		).WithHideFunc(func() bool { return !v.signup() }),
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Placeholder("Enter your email").
				Value(&v.Email).
				Validate(validateEmail),
			huh.NewInput().
				Title("Password").
				Placeholder("Enter your password").
				EchoMode(huh.EchoModePassword).
				Value(&v.Password).
				Validate(required("password")),
		),
	).WithShowHelp(true)
}

type renameValues struct {
	SessionID string
	Name      string
}

func newRenameForm(v *renameValues) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Rename chat").
				Description("Leave empty to name it after the first message").
				CharLimit(80).
				Value(&v.Name),
		),
	)
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return errors.New("enter a valid email address")
	}
	return nil
}
