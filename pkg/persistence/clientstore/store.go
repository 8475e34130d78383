package clientstore

import "context"

// Store is the durable client-side key/value store. It plays the role browser
// localStorage/sessionStorage played for the web front-end: string keys, string
// values, no structure beyond what callers encode into the value.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	// Delete removes all given keys in one atomic step.
	Delete(ctx context.Context, keys ...string) error
	// Keys lists stored keys starting with prefix, sorted ascending.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Well-known keys.
const (
	KeyCredential       = "auth.credential"
	KeyTheme            = "ui.theme"
	KeyChatSessionsBase = "chat.sessions"
)

// ChatSessionsKey returns the key holding the chat session collection for the
// given identity. The empty identity maps to the shared default key.
func ChatSessionsKey(identity string) string {
	if identity == "" {
		return KeyChatSessionsBase
	}
	return KeyChatSessionsBase + "." + identity
}
