package chat

import (
	"strings"
	"time"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

type Message struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

// Session is one conversation thread.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Name      string    `json:"name,omitempty"`
	Messages  []Message `json:"messages"`
}

const (
	defaultSessionName = "New Chat"
	nameWords          = 7
)

// DisplayName is the explicit name when set, otherwise the first words of
// the first user message, otherwise "New Chat".
func (s Session) DisplayName() string {
	if strings.TrimSpace(s.Name) != "" {
		return s.Name
	}
	for _, m := range s.Messages {
		if m.Sender != SenderUser || m.Text == "" {
			continue
		}
		words := strings.Fields(m.Text)
		if len(words) == 0 {
			continue
		}
		if len(words) > nameWords {
			return strings.Join(words[:nameWords], " ") + "..."
		}
		return strings.Join(words, " ")
	}
	return defaultSessionName
}

func (s Session) clone() Session {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	return out
}

func cloneSessions(in []Session) []Session {
	out := make([]Session, len(in))
	for i, s := range in {
		out[i] = s.clone()
	}
	return out
}
