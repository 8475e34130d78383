package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/deckhand/pkg/events"
	"github.com/go-go-golems/deckhand/pkg/persistence/clientstore"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// v1 stored the bare session list; v2 also records the current session.
const (
	sessionsVersionV1 = 1
	sessionsVersion   = 2
)

type storedSessions struct {
	Sessions  []Session `json:"sessions"`
	CurrentID string    `json:"current_id,omitempty"`
}

type StoreOption func(*Store)

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(gen func() string) StoreOption {
	return func(s *Store) { s.newID = gen }
}

// Store holds the conversation threads of one identity. Whenever an identity
// is bound every change is written through to the client store; the empty
// identity is kept in memory only.
//
// Invariant: at least one session exists and exactly one of them is current.
type Store struct {
	kv    clientstore.Store
	pub   events.Publisher
	now   func() time.Time
	newID func() string

	mu        sync.Mutex
	identity  string
	sessions  []Session
	currentID string

	persistMu sync.Mutex
}

func NewStore(kv clientstore.Store, pub events.Publisher, opts ...StoreOption) *Store {
	if pub == nil {
		pub = events.Discard
	}
	s := &Store{
		kv:    kv,
		pub:   pub,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resetLocked()
	return s
}

func (s *Store) newSessionLocked() Session {
	sess := Session{ID: s.newID(), CreatedAt: s.now().UTC(), Messages: []Message{}}
	s.sessions = append(s.sessions, sess)
	s.currentID = sess.ID
	return sess
}

func (s *Store) resetLocked() {
	s.sessions = nil
	s.newSessionLocked()
}

func (s *Store) indexLocked(id string) int {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Store) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSessions(s.sessions)
}

func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

func (s *Store) Current() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[s.indexLocked(s.currentID)].clone()
}

func (s *Store) Session(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return Session{}, false
	}
	return s.sessions[i].clone(), true
}

// CreateSession appends a new empty session and makes it current.
func (s *Store) CreateSession(ctx context.Context) Session {
	s.mu.Lock()
	sess := s.newSessionLocked()
	s.mu.Unlock()
	s.changed(ctx)
	return sess.clone()
}

// SelectSession makes id current. Unknown ids leave the store unchanged and
// report false.
func (s *Store) SelectSession(ctx context.Context, id string) bool {
	s.mu.Lock()
	if s.indexLocked(id) < 0 {
		s.mu.Unlock()
		return false
	}
	s.currentID = id
	s.mu.Unlock()
	s.changed(ctx)
	return true
}

// RenameSession sets the display name; a blank name clears it.
func (s *Store) RenameSession(ctx context.Context, id, name string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	if strings.TrimSpace(name) == "" {
		name = ""
	}
	s.sessions[i].Name = name
	s.mu.Unlock()
	s.changed(ctx)
	return true
}

// DeleteSession removes id and returns the removed session. When the current
// session goes, the oldest remaining one takes over; when none remain, a new
// empty session is created.
func (s *Store) DeleteSession(ctx context.Context, id string) (Session, bool) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return Session{}, false
	}
	removed := s.sessions[i]
	s.sessions = append(s.sessions[:i:i], s.sessions[i+1:]...)
	switch {
	case len(s.sessions) == 0:
		s.newSessionLocked()
	case s.currentID == id:
		oldest := 0
		for j := 1; j < len(s.sessions); j++ {
			if s.sessions[j].CreatedAt.Before(s.sessions[oldest].CreatedAt) {
				oldest = j
			}
		}
		s.currentID = s.sessions[oldest].ID
	}
	s.mu.Unlock()
	s.changed(ctx)
	return removed, true
}

// AppendMessage adds msg to session id. It reports false when the session no
// longer exists.
func (s *Store) AppendMessage(ctx context.Context, id string, msg Message) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.sessions[i].Messages = append(s.sessions[i].Messages, msg)
	s.mu.Unlock()
	s.changed(ctx)
	return true
}

// Import adds sessions whose ids are not present yet, provided the store is
// still bound to identity. It returns how many were added.
func (s *Store) Import(ctx context.Context, identity string, sessions []Session) (int, error) {
	s.mu.Lock()
	if s.identity != identity {
		s.mu.Unlock()
		return 0, ErrIdentityChanged
	}
	added := 0
	for _, sess := range sessions {
		if sess.ID == "" || s.indexLocked(sess.ID) >= 0 {
			continue
		}
		if sess.Messages == nil {
			sess.Messages = []Message{}
		}
		s.sessions = append(s.sessions, sess.clone())
		added++
	}
	s.mu.Unlock()
	if added > 0 {
		s.changed(ctx)
	}
	return added, nil
}

// Load swaps the working set for the one stored under identity. Unreadable
// data is treated as no history. The stored current session is restored, or
// the last stored session when none was recorded.
func (s *Store) Load(ctx context.Context, identity string) error {
	var loaded storedSessions
	if identity != "" {
		loaded = s.read(ctx, identity)
	}

	s.mu.Lock()
	s.identity = identity
	s.sessions = nil
	for _, sess := range loaded.Sessions {
		if sess.ID == "" || s.indexLocked(sess.ID) >= 0 {
			continue
		}
		if sess.Messages == nil {
			sess.Messages = []Message{}
		}
		s.sessions = append(s.sessions, sess)
	}
	fresh := len(s.sessions) == 0
	switch {
	case fresh:
		s.newSessionLocked()
	case loaded.CurrentID != "" && s.indexLocked(loaded.CurrentID) >= 0:
		s.currentID = loaded.CurrentID
	default:
		s.currentID = s.sessions[len(s.sessions)-1].ID
	}
	s.mu.Unlock()

	if fresh {
		s.changed(ctx)
	} else {
		s.publish(ctx)
	}
	return nil
}

func (s *Store) read(ctx context.Context, identity string) storedSessions {
	raw, ok, err := s.kv.Get(ctx, clientstore.ChatSessionsKey(identity))
	if err != nil {
		log.Warn().Str("component", "chat").Str("identity", identity).Err(err).Msg("read chat sessions failed")
		return storedSessions{}
	}
	if !ok {
		return storedSessions{}
	}
	var stored storedSessions
	if clientstore.VersionOf(raw) == sessionsVersionV1 {
		stored.Sessions, err = clientstore.DecodeVersioned[[]Session](raw, sessionsVersionV1, nil)
	} else {
		stored, err = clientstore.DecodeVersioned(raw, sessionsVersion, storedSessions{})
	}
	if err != nil {
		log.Warn().Str("component", "chat").Str("identity", identity).Err(err).Msg("stored chat sessions unreadable, starting empty")
		return storedSessions{}
	}
	return stored
}

// Persist writes the working set under the bound identity. Without an
// identity it does nothing.
func (s *Store) Persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	identity := s.identity
	stored := storedSessions{Sessions: cloneSessions(s.sessions), CurrentID: s.currentID}
	s.mu.Unlock()

	if identity == "" {
		return nil
	}
	raw, err := clientstore.EncodeVersioned(sessionsVersion, stored)
	if err != nil {
		return err
	}
	if err := s.kv.Set(context.WithoutCancel(ctx), clientstore.ChatSessionsKey(identity), raw); err != nil {
		return errors.Wrap(err, "persist chat sessions")
	}
	return nil
}

func (s *Store) changed(ctx context.Context) {
	if err := s.Persist(ctx); err != nil {
		log.Warn().Str("component", "chat").Err(err).Msg("persist chat sessions failed")
	}
	s.publish(ctx)
}

func (s *Store) publish(ctx context.Context) {
	s.mu.Lock()
	e := events.NewSessionsChanged(s.identity, s.currentID, len(s.sessions))
	s.mu.Unlock()
	events.PublishOrLog(ctx, s.pub, e)
}
