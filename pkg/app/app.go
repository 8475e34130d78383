// Package app wires the deckhand components into one context object that
// front-ends construct once at start.
package app

import (
	"context"
	"sync"

	"github.com/go-go-golems/deckhand/pkg/api"
	"github.com/go-go-golems/deckhand/pkg/auth"
	"github.com/go-go-golems/deckhand/pkg/chat"
	"github.com/go-go-golems/deckhand/pkg/config"
	"github.com/go-go-golems/deckhand/pkg/events"
	"github.com/go-go-golems/deckhand/pkg/persistence/clientstore"
	"github.com/go-go-golems/deckhand/pkg/theme"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type App struct {
	Settings *config.Settings
	Store    clientstore.Store
	Bus      *events.Bus
	API      *api.Client
	Theme    *theme.Preference
	Auth     *auth.Manager
	Chat     *chat.Store
	Chatbot  *chat.Chatbot

	redis *redis.Client

	bindMu sync.Mutex

	cancel context.CancelFunc
	eg     *errgroup.Group
}

// New builds every component from s. Nothing talks to the backend until Init.
func New(ctx context.Context, s *config.Settings) (*App, error) {
	if s == nil {
		return nil, errors.New("app: settings are nil")
	}
	timeout, err := s.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	a := &App{Settings: s}

	a.Store, err = clientstore.Open(s.StoreSettings())
	if err != nil {
		return nil, errors.Wrap(err, "app: open client store")
	}

	if s.Events == config.EventsRedis {
		a.redis = redis.NewClient(&redis.Options{Addr: s.Redis.Addr})
		a.Bus, err = events.NewRedisBus(ctx, a.redis, s.Redis)
		if err != nil {
			_ = a.Close()
			return nil, errors.Wrap(err, "app: redis event bus")
		}
	} else {
		a.Bus = events.NewInMemoryBus()
	}

	a.API, err = api.NewClient(s.BaseURL, api.WithTimeout(timeout))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Theme = theme.NewPreference(a.Store, a.Bus)
	a.Auth = auth.NewManager(a.API, a.Store, a.Bus)
	a.API.SetTokenSource(a.Auth.Token)
	a.API.SetAuthRejectedHandler(a.Auth.HandleAuthRejected)

	a.Chat = chat.NewStore(a.Store, a.Bus)
	a.Chatbot = chat.NewChatbot(a.Chat, a.API, chat.WithHistorySync(s.HistorySync))
	return a, nil
}

// Init bootstraps the session and binds the chat store to the resulting
// identity. Afterwards every auth change rebinds the chat store.
func (a *App) Init(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.eg, runCtx = errgroup.WithContext(runCtx)

	ch, err := a.Bus.Subscribe(runCtx)
	if err != nil {
		return err
	}
	a.eg.Go(func() error {
		for e := range ch {
			if e.Type == events.TypeAuthChanged {
				a.SyncIdentity(runCtx)
			}
		}
		return nil
	})

	if err := a.Auth.Bootstrap(ctx); err != nil {
		return err
	}
	a.SyncIdentity(ctx)
	return nil
}

// SyncIdentity loads the chat sessions of the signed-in identity when it
// differs from the one the chat store is bound to.
func (a *App) SyncIdentity(ctx context.Context) {
	a.bindMu.Lock()
	defer a.bindMu.Unlock()

	identity := a.Auth.Identity()
	if a.Auth.State() == auth.StateLoading || identity == a.Chat.Identity() {
		return
	}
	log.Debug().Str("component", "app").Str("identity", identity).Msg("binding chat sessions")
	if err := a.Chat.Load(ctx, identity); err != nil {
		log.Warn().Str("component", "app").Err(err).Msg("load chat sessions failed")
	}
}

func (a *App) Login(ctx context.Context, email, password string) (*api.User, error) {
	u, err := a.Auth.Login(ctx, email, password)
	if err == nil {
		a.SyncIdentity(ctx)
	}
	return u, err
}

func (a *App) Signup(ctx context.Context, username, email, password string) (*api.User, error) {
	u, err := a.Auth.Signup(ctx, username, email, password)
	if err == nil {
		a.SyncIdentity(ctx)
	}
	return u, err
}

func (a *App) Logout(ctx context.Context) {
	a.Auth.Logout(ctx)
	a.SyncIdentity(ctx)
}

// OpenChat raises the chat widget in any attached front-end.
func (a *App) OpenChat(ctx context.Context) {
	events.PublishOrLog(ctx, a.Bus, events.NewChatOpen())
}

// Analytics fetches all analytics sections concurrently.
func (a *App) Analytics(ctx context.Context) (map[api.AnalyticsSection]map[string]any, error) {
	sections := []api.AnalyticsSection{api.AnalyticsOverview, api.AnalyticsPerformance, api.AnalyticsUsage}
	results := make([]map[string]any, len(sections))
	eg, ctx := errgroup.WithContext(ctx)
	for i, section := range sections {
		eg.Go(func() error {
			doc, err := a.API.Analytics(ctx, section)
			if err != nil {
				return err
			}
			results[i] = doc
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	out := make(map[api.AnalyticsSection]map[string]any, len(sections))
	for i, section := range sections {
		out[section] = results[i]
	}
	return out, nil
}

// Close waits for background work and releases the bus and the store.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.Chatbot != nil {
		a.Chatbot.Wait()
	}
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.Bus != nil {
		keep(a.Bus.Close())
	}
	if a.eg != nil {
		keep(a.eg.Wait())
	}
	if a.redis != nil {
		keep(a.redis.Close())
	}
	if a.Store != nil {
		keep(a.Store.Close())
	}
	return firstErr
}
