package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/deckhand/pkg/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotAuthenticated = errors.New("please login to use AI chat")
	ErrIdentityChanged  = errors.New("chat store is bound to another identity")
)

const (
	replyFallback = "Sorry, AI could not reply."
	replyError    = "Error: Could not get AI response."

	activitySessionDeleted = "chat_session_deleted"

	backgroundTimeout = 10 * time.Second
)

// Backend is the slice of the API client the chatbot uses.
type Backend interface {
	Chat(ctx context.Context, message string) (string, error)
	LogActivity(ctx context.Context, activity api.Activity) error
	ChatHistory(ctx context.Context) ([]api.ChatHistorySession, error)
	SaveChatHistory(ctx context.Context, session api.ChatHistorySession) error
	DeleteChatHistory(ctx context.Context, sessionID string) error
}

var _ Backend = (*api.Client)(nil)

type ChatbotOption func(*Chatbot)

// WithHistorySync mirrors sessions to the backend chat history.
func WithHistorySync(enabled bool) ChatbotOption {
	return func(c *Chatbot) { c.historySync = enabled }
}

// Chatbot is the send/delete path of the chat widget on top of a Store.
type Chatbot struct {
	store       *Store
	backend     Backend
	historySync bool

	bg sync.WaitGroup
}

func NewChatbot(store *Store, backend Backend, opts ...ChatbotOption) *Chatbot {
	c := &Chatbot{store: store, backend: backend}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chatbot) Store() *Store { return c.store }

// Send posts text from the current session and appends the reply to that
// same session. Blank text is ignored. On failure an error bubble is
// appended and the error returned.
func (c *Chatbot) Send(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if c.store.Identity() == "" {
		return "", ErrNotAuthenticated
	}
	sessionID := c.store.CurrentID()
	c.store.AppendMessage(ctx, sessionID, Message{Sender: SenderUser, Text: text})

	reply, err := c.backend.Chat(ctx, text)
	switch {
	case err != nil:
		log.Warn().Str("component", "chat").Str("session_id", sessionID).Err(err).Msg("chatbot request failed")
		reply = replyError
	case reply == "":
		reply = replyFallback
	}
	if !c.store.AppendMessage(ctx, sessionID, Message{Sender: SenderAI, Text: reply}) {
		log.Debug().Str("component", "chat").Str("session_id", sessionID).Msg("session gone, dropping reply")
	} else {
		c.syncSession(ctx, sessionID)
	}
	return reply, err
}

// Delete removes a session. Sessions that had messages are reported to the
// dashboard activity log in the background.
func (c *Chatbot) Delete(ctx context.Context, id string) bool {
	removed, ok := c.store.DeleteSession(ctx, id)
	if !ok {
		return false
	}
	if n := len(removed.Messages); n > 0 {
		activity := api.Activity{
			Type:        activitySessionDeleted,
			Title:       "Deleted chat session",
			Description: fmt.Sprintf("Deleted chat session with %d messages", n),
			Metadata: map[string]any{
				"session_id":    id,
				"message_count": n,
			},
		}
		c.background(ctx, "log activity", func(ctx context.Context) error {
			return c.backend.LogActivity(ctx, activity)
		})
	}
	if c.historySync {
		c.background(ctx, "delete chat history", func(ctx context.Context) error {
			return c.backend.DeleteChatHistory(ctx, id)
		})
	}
	return true
}

// Import pulls the server-side chat history and adds sessions not present
// locally.
func (c *Chatbot) Import(ctx context.Context) (int, error) {
	identity := c.store.Identity()
	if identity == "" {
		return 0, ErrNotAuthenticated
	}
	remote, err := c.backend.ChatHistory(ctx)
	if err != nil {
		return 0, err
	}
	sessions := make([]Session, 0, len(remote))
	for _, r := range remote {
		sessions = append(sessions, fromHistory(r))
	}
	return c.store.Import(ctx, identity, sessions)
}

// Wait blocks until background requests have finished.
func (c *Chatbot) Wait() {
	c.bg.Wait()
}

func (c *Chatbot) syncSession(ctx context.Context, id string) {
	if !c.historySync {
		return
	}
	sess, ok := c.store.Session(id)
	if !ok {
		return
	}
	payload := toHistory(sess)
	c.background(ctx, "save chat history", func(ctx context.Context) error {
		return c.backend.SaveChatHistory(ctx, payload)
	})
}

func (c *Chatbot) background(ctx context.Context, op string, fn func(context.Context) error) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Debug().Str("component", "chat").Str("op", op).Err(err).Msg("background request failed")
		}
	}()
}

func toHistory(s Session) api.ChatHistorySession {
	msgs := make([]api.ChatMessage, 0, len(s.Messages))
	for _, m := range s.Messages {
		msgs = append(msgs, api.ChatMessage{Sender: string(m.Sender), Text: m.Text})
	}
	return api.ChatHistorySession{
		SessionID:   s.ID,
		SessionName: s.DisplayName(),
		Messages:    msgs,
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
	}
}

func fromHistory(h api.ChatHistorySession) Session {
	var created time.Time
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, h.CreatedAt); err == nil {
			created = t.UTC()
			break
		}
	}
	msgs := make([]Message, 0, len(h.Messages))
	for _, m := range h.Messages {
		sender := SenderAI
		if m.Sender == string(SenderUser) {
			sender = SenderUser
		}
		msgs = append(msgs, Message{Sender: sender, Text: m.Text})
	}
	s := Session{ID: h.SessionID, CreatedAt: created, Messages: msgs}
	if h.SessionName != s.DisplayName() {
		s.Name = h.SessionName
	}
	return s
}
