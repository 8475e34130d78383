package ui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/deckhand/pkg/chat"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ReplyMsg carries the outcome of one chatbot exchange back to the model.
type ReplyMsg struct {
	Reply string
	Err   error
}

// ChatBackend runs chatbot exchanges off the UI goroutine, one at a time.
type ChatBackend struct {
	bot *chat.Chatbot

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
}

func NewChatBackend(bot *chat.Chatbot) *ChatBackend {
	return &ChatBackend{bot: bot}
}

// Start returns a command that sends text and reports a ReplyMsg.
func (b *ChatBackend) Start(ctx context.Context, text string) (tea.Cmd, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isRunning {
		return nil, errors.New("a reply is already pending")
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.isRunning = true

	return func() tea.Msg {
		defer b.finish()
		reply, err := b.bot.Send(ctx, text)
		if err != nil {
			log.Debug().Str("component", "ui").Err(err).Msg("chat exchange failed")
		}
		return ReplyMsg{Reply: reply, Err: err}
	}, nil
}

// Interrupt cancels the pending exchange, if any.
func (b *ChatBackend) Interrupt() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
}

func (b *ChatBackend) IsFinished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.isRunning
}

func (b *ChatBackend) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.isRunning = false
}
