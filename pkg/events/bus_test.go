package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-go-golems/deckhand/pkg/api"
	"github.com/go-go-golems/deckhand/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed")
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestInMemoryBusDeliversTypedEvents(t *testing.T) {
	bus := NewInMemoryBus()
	t.Cleanup(func() { _ = bus.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	user := &api.User{ID: "1", Email: "a@example.com", Preferences: api.Preferences{"k": "v"}}
	require.NoError(t, bus.Publish(ctx, NewNotice(LevelSuccess, "Welcome back!")))
	require.NoError(t, bus.Publish(ctx, NewAuthChanged("authenticated", user)))
	require.NoError(t, bus.Publish(ctx, NewThemeChanged("dark")))

	e := receive(t, ch)
	require.Equal(t, TypeNotice, e.Type)
	require.Equal(t, "Welcome back!", e.Notice.Text)
	require.Equal(t, LevelSuccess, e.Notice.Level)

	e = receive(t, ch)
	require.Equal(t, TypeAuthChanged, e.Type)
	require.Equal(t, "a@example.com", e.Auth.User.Email)

	e = receive(t, ch)
	require.Equal(t, "dark", e.Theme)
}

func TestInMemoryBusKeepsPublishOrder(t *testing.T) {
	bus := NewInMemoryBus()
	t.Cleanup(func() { _ = bus.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	const n = 200
	go func() {
		for i := 0; i < n; i++ {
			_ = bus.Publish(ctx, NewSessionsChanged("a@example.com", "s", i))
		}
	}()
	for i := 0; i < n; i++ {
		e := receive(t, ch)
		require.Equal(t, i, e.Sessions.Count)
	}
}

func TestAuthChangedCopiesUser(t *testing.T) {
	user := &api.User{Email: "a@example.com", Preferences: api.Preferences{"k": "v"}}
	e := NewAuthChanged("authenticated", user)
	user.Preferences["k"] = "changed"
	require.Equal(t, "v", e.Auth.User.Preferences["k"])
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"id":"x","type":"mystery"}`))
	require.ErrorIs(t, err, ErrUnknownType)

	_, err = Decode([]byte(`not json`))
	require.Error(t, err)

	e, err := Decode([]byte(`{"id":"x","type":"chat.open"}`))
	require.NoError(t, err)
	require.Equal(t, TypeChatOpen, e.Type)
}

func TestSubscriberDropsUnknownEvents(t *testing.T) {
	bus := NewInMemoryBus()
	t.Cleanup(func() { _ = bus.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{ID: "1", Type: "mystery"}))
	require.NoError(t, bus.Publish(ctx, NewChatOpen()))

	e := receive(t, ch)
	require.Equal(t, TypeChatOpen, e.Type)
}

func TestRedisBusFanOut(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := NewRedisBus(ctx, client, redisstream.Settings{Stream: "test.events"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	// fan-out subscribers start reading at the tail; give the reader a moment
	require.Eventually(t, func() bool {
		_ = bus.Publish(ctx, NewSessionsChanged("a@example.com", "s1", 2))
		select {
		case e := <-ch:
			return e.Type == TypeChatSessionsChanged && e.Sessions != nil && e.Sessions.Count == 2
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 10*time.Millisecond)
}

func TestPublishOrLogToleratesNil(t *testing.T) {
	PublishOrLog(context.Background(), nil, NewChatOpen())
	PublishOrLog(context.Background(), Discard, NewChatOpen())
}
