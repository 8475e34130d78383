package chat

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-go-golems/deckhand/pkg/persistence/clientstore"
	"github.com/stretchr/testify/require"
)

// tickingClock returns strictly increasing times so createdAt ordering is
// deterministic.
func tickingClock() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("s%d", n)
	}
}

func newTestStore(kv clientstore.Store) *Store {
	return NewStore(kv, nil, WithClock(tickingClock()), WithIDGenerator(sequentialIDs()))
}

func requireOneCurrent(t *testing.T, s *Store) {
	t.Helper()
	sessions := s.Sessions()
	require.NotEmpty(t, sessions)
	found := 0
	for _, sess := range sessions {
		if sess.ID == s.CurrentID() {
			found++
		}
	}
	require.Equal(t, 1, found)
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		name    string
		session Session
		want    string
	}{
		{"empty", Session{}, "New Chat"},
		{"explicit", Session{Name: "Pitch deck"}, "Pitch deck"},
		{"blank explicit", Session{Name: "   ", Messages: []Message{{SenderUser, "hello there"}}}, "hello there"},
		{"ai only", Session{Messages: []Message{{SenderAI, "hi, how can I help"}}}, "New Chat"},
		{"seven words", Session{Messages: []Message{{SenderUser, "one two three four five six seven"}}}, "one two three four five six seven"},
		{"eight words", Session{Messages: []Message{{SenderUser, "one two three four five six seven eight"}}}, "one two three four five six seven..."},
		{"first user message wins", Session{Messages: []Message{{SenderAI, "x"}, {SenderUser, "first"}, {SenderUser, "second"}}}, "first"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.session.DisplayName())
		})
	}
}

func TestNewStoreHasOneCurrentSession(t *testing.T) {
	s := newTestStore(clientstore.NewInMemoryStore())
	requireOneCurrent(t, s)
	require.Equal(t, "s1", s.CurrentID())
}

func TestRandomCreateDeleteKeepsOneCurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(clientstore.NewInMemoryStore())
	require.NoError(t, s.Load(ctx, "alice@example.com"))
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		sessions := s.Sessions()
		switch rng.Intn(3) {
		case 0:
			s.CreateSession(ctx)
		case 1:
			_, ok := s.DeleteSession(ctx, sessions[rng.Intn(len(sessions))].ID)
			require.True(t, ok)
		case 2:
			_, ok := s.DeleteSession(ctx, s.CurrentID())
			require.True(t, ok)
		}
		requireOneCurrent(t, s)
	}
}

func TestDeleteCurrentPicksOldestRemaining(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(clientstore.NewInMemoryStore())
	s.CreateSession(ctx) // s2
	s.CreateSession(ctx) // s3
	require.True(t, s.SelectSession(ctx, "s2"))

	_, ok := s.DeleteSession(ctx, "s2")
	require.True(t, ok)
	require.Equal(t, "s1", s.CurrentID())

	// deleting a non-current session leaves current alone
	_, ok = s.DeleteSession(ctx, "s3")
	require.True(t, ok)
	require.Equal(t, "s1", s.CurrentID())
}

func TestDeleteLastSessionCreatesFreshOne(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(clientstore.NewInMemoryStore())
	removed, ok := s.DeleteSession(ctx, "s1")
	require.True(t, ok)
	require.Equal(t, "s1", removed.ID)

	sessions := s.Sessions()
	require.Len(t, sessions, 1)
	require.Equal(t, "s2", sessions[0].ID)
	require.Equal(t, "s2", s.CurrentID())
	require.Empty(t, sessions[0].Messages)
}

func TestSelectUnknownSessionIsNoop(t *testing.T) {
	s := newTestStore(clientstore.NewInMemoryStore())
	require.False(t, s.SelectSession(context.Background(), "nope"))
	require.Equal(t, "s1", s.CurrentID())
}

func TestRenameBlankRestoresDerivedName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(clientstore.NewInMemoryStore())
	id := s.CurrentID()
	require.True(t, s.AppendMessage(ctx, id, Message{SenderUser, "how do I structure a quarterly business review deck"}))

	require.True(t, s.RenameSession(ctx, id, "QBR"))
	sess, _ := s.Session(id)
	require.Equal(t, "QBR", sess.DisplayName())

	require.True(t, s.RenameSession(ctx, id, ""))
	sess, _ = s.Session(id)
	require.Equal(t, "how do I structure a quarterly business...", sess.DisplayName())
}

func TestIdentitiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	kv := clientstore.NewInMemoryStore()
	s := newTestStore(kv)

	require.NoError(t, s.Load(ctx, "a@example.com"))
	require.True(t, s.AppendMessage(ctx, s.CurrentID(), Message{SenderUser, "from A"}))
	aID := s.CurrentID()

	require.NoError(t, s.Load(ctx, "b@example.com"))
	require.True(t, s.AppendMessage(ctx, s.CurrentID(), Message{SenderUser, "from B"}))
	for _, sess := range s.Sessions() {
		require.NotEqual(t, aID, sess.ID)
		for _, m := range sess.Messages {
			require.NotEqual(t, "from A", m.Text)
		}
	}

	require.NoError(t, s.Load(ctx, "a@example.com"))
	sessions := s.Sessions()
	require.Len(t, sessions, 1)
	require.Equal(t, aID, sessions[0].ID)
	require.Equal(t, "from A", sessions[0].Messages[0].Text)
}

func TestSelectionSurvivesReload(t *testing.T) {
	ctx := context.Background()
	kv := clientstore.NewInMemoryStore()
	s := newTestStore(kv)
	require.NoError(t, s.Load(ctx, "a@example.com"))
	first := s.CurrentID()
	s.CreateSession(ctx)
	s.CreateSession(ctx)
	require.True(t, s.SelectSession(ctx, first))

	reloaded := newTestStore(kv)
	require.NoError(t, reloaded.Load(ctx, "a@example.com"))
	require.Len(t, reloaded.Sessions(), 3)
	require.Equal(t, first, reloaded.CurrentID())
}

func TestLoadV1HistoryPicksLastSession(t *testing.T) {
	ctx := context.Background()
	kv := clientstore.NewInMemoryStore()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	raw, err := clientstore.EncodeVersioned(sessionsVersionV1, []Session{
		{ID: "old-1", CreatedAt: created, Messages: []Message{{SenderUser, "first"}}},
		{ID: "old-2", CreatedAt: created.Add(time.Minute), Messages: []Message{}},
	})
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, clientstore.ChatSessionsKey("a@example.com"), raw))

	s := newTestStore(kv)
	require.NoError(t, s.Load(ctx, "a@example.com"))
	require.Len(t, s.Sessions(), 2)
	require.Equal(t, "old-2", s.CurrentID())
	require.Equal(t, "first", s.Sessions()[0].Messages[0].Text)
}

func TestLoadIgnoresUnknownStoredCurrent(t *testing.T) {
	ctx := context.Background()
	kv := clientstore.NewInMemoryStore()
	raw, err := clientstore.EncodeVersioned(sessionsVersion, storedSessions{
		Sessions:  []Session{{ID: "a"}, {ID: "b"}},
		CurrentID: "gone",
	})
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, clientstore.ChatSessionsKey("a@example.com"), raw))

	s := newTestStore(kv)
	require.NoError(t, s.Load(ctx, "a@example.com"))
	require.Equal(t, "b", s.CurrentID())
	requireOneCurrent(t, s)
}

func TestEmptyIdentityIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	kv := clientstore.NewInMemoryStore()
	s := newTestStore(kv)
	require.True(t, s.AppendMessage(ctx, s.CurrentID(), Message{SenderUser, "anon"}))
	require.NoError(t, s.Persist(ctx))

	keys, err := kv.Keys(ctx, clientstore.KeyChatSessionsBase)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestCorruptHistoryStartsFresh(t *testing.T) {
	ctx := context.Background()
	kv := clientstore.NewInMemoryStore()
	require.NoError(t, kv.Set(ctx, clientstore.ChatSessionsKey("a@example.com"), `[{"id":`))

	s := newTestStore(kv)
	require.NoError(t, s.Load(ctx, "a@example.com"))
	requireOneCurrent(t, s)
	require.Len(t, s.Sessions(), 1)
	require.Empty(t, s.Current().Messages)
}

func TestPersistsToSQLite(t *testing.T) {
	ctx := context.Background()
	dsn, err := clientstore.SQLiteDSNForFile(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	kv, err := clientstore.NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	s := newTestStore(kv)
	require.NoError(t, s.Load(ctx, "a@example.com"))
	id := s.CurrentID()
	require.True(t, s.AppendMessage(ctx, id, Message{SenderUser, "persist me"}))
	require.True(t, s.RenameSession(ctx, id, "Kept"))

	reloaded := newTestStore(kv)
	require.NoError(t, reloaded.Load(ctx, "a@example.com"))
	cur := reloaded.Current()
	require.Equal(t, id, cur.ID)
	require.Equal(t, "Kept", cur.Name)
	require.Equal(t, "persist me", cur.Messages[0].Text)
}

func TestImportSkipsKnownIDsAndOtherIdentities(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(clientstore.NewInMemoryStore())
	require.NoError(t, s.Load(ctx, "a@example.com"))
	existing := s.CurrentID()

	n, err := s.Import(ctx, "a@example.com", []Session{{ID: existing}, {ID: "remote-1"}, {ID: ""}})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, s.Sessions(), 2)
	require.Equal(t, existing, s.CurrentID())

	_, err = s.Import(ctx, "b@example.com", []Session{{ID: "remote-2"}})
	require.ErrorIs(t, err, ErrIdentityChanged)
}
