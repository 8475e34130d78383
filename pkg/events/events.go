// Package events is the typed pub/sub channel between the deckhand
// components and whatever front-end is attached to them.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-go-golems/deckhand/pkg/api"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Type string

const (
	TypeNotice              Type = "notice"
	TypeAuthChanged         Type = "auth.changed"
	TypeSessionExpired      Type = "session.expired"
	TypeChatOpen            Type = "chat.open"
	TypeChatSessionsChanged Type = "chat.sessions.changed"
	TypeThemeChanged        Type = "theme.changed"
)

func (t Type) Known() bool {
	switch t {
	case TypeNotice, TypeAuthChanged, TypeSessionExpired, TypeChatOpen, TypeChatSessionsChanged, TypeThemeChanged:
		return true
	}
	return false
}

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Notice struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

type AuthChange struct {
	State string    `json:"state"`
	User  *api.User `json:"user,omitempty"`
}

type SessionsChange struct {
	Identity  string `json:"identity"`
	CurrentID string `json:"current_id"`
	Count     int    `json:"count"`
}

// Event is the wire envelope; exactly one payload field is set, matching Type.
type Event struct {
	ID       string          `json:"id"`
	Type     Type            `json:"type"`
	At       time.Time       `json:"at"`
	Notice   *Notice         `json:"notice,omitempty"`
	Auth     *AuthChange     `json:"auth,omitempty"`
	Sessions *SessionsChange `json:"sessions,omitempty"`
	Theme    string          `json:"theme,omitempty"`
}

func newEvent(t Type) Event {
	return Event{ID: uuid.NewString(), Type: t, At: time.Now().UTC()}
}

func NewNotice(level Level, text string) Event {
	e := newEvent(TypeNotice)
	e.Notice = &Notice{Level: level, Text: text}
	return e
}

func NewAuthChanged(state string, user *api.User) Event {
	e := newEvent(TypeAuthChanged)
	e.Auth = &AuthChange{State: state, User: user.Clone()}
	return e
}

func NewSessionExpired() Event { return newEvent(TypeSessionExpired) }

func NewChatOpen() Event { return newEvent(TypeChatOpen) }

func NewSessionsChanged(identity, currentID string, count int) Event {
	e := newEvent(TypeChatSessionsChanged)
	e.Sessions = &SessionsChange{Identity: identity, CurrentID: currentID, Count: count}
	return e
}

func NewThemeChanged(theme string) Event {
	e := newEvent(TypeThemeChanged)
	e.Theme = theme
	return e
}

func Encode(e Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "encode event")
	}
	return b, nil
}

// ErrUnknownType is returned by Decode for well-formed events of a type this
// build does not know.
var ErrUnknownType = errors.New("unknown event type")

func Decode(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, errors.Wrap(err, "decode event")
	}
	if !e.Type.Known() {
		return e, errors.Wrapf(ErrUnknownType, "%q", e.Type)
	}
	return e, nil
}

// Publisher is what components need to emit events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }

// Discard drops every event.
var Discard Publisher = discard{}

// PublishOrLog publishes e and logs instead of failing; UI signals never
// block the operation that caused them.
func PublishOrLog(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		logPublishFailure(e, err)
	}
}
