package theme

import (
	"context"
	"sync"

	"github.com/go-go-golems/deckhand/pkg/events"
	"github.com/go-go-golems/deckhand/pkg/persistence/clientstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"

	Default = Light

	storeVersion = 1
)

func Parse(s string) (Theme, error) {
	switch Theme(s) {
	case Light, Dark:
		return Theme(s), nil
	}
	return "", errors.Errorf("unknown theme %q (want light or dark)", s)
}

func (t Theme) Toggled() Theme {
	if t == Dark {
		return Light
	}
	return Dark
}

// Preference is the persisted UI theme. It is independent of the signed-in
// identity.
type Preference struct {
	store clientstore.Store
	pub   events.Publisher

	mu     sync.Mutex
	loaded bool
	theme  Theme
}

func NewPreference(store clientstore.Store, pub events.Publisher) *Preference {
	if pub == nil {
		pub = events.Discard
	}
	return &Preference{store: store, pub: pub, theme: Default}
}

// Get returns the stored theme, falling back to light on missing or corrupt data.
func (p *Preference) Get(ctx context.Context) Theme {
	p.mu.Lock()
	if p.loaded {
		t := p.theme
		p.mu.Unlock()
		return t
	}
	p.mu.Unlock()

	t := p.read(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		p.theme = t
		p.loaded = true
	}
	return p.theme
}

func (p *Preference) read(ctx context.Context) Theme {
	raw, ok, err := p.store.Get(ctx, clientstore.KeyTheme)
	if err != nil {
		log.Warn().Str("component", "theme").Err(err).Msg("read theme failed, using default")
		return Default
	}
	if !ok {
		return Default
	}
	name, err := clientstore.DecodeVersioned(raw, storeVersion, string(Default))
	if err != nil {
		log.Warn().Str("component", "theme").Err(err).Msg("stored theme unreadable, using default")
		return Default
	}
	t, err := Parse(name)
	if err != nil {
		log.Warn().Str("component", "theme").Err(err).Msg("stored theme unknown, using default")
		return Default
	}
	return t
}

// Set stores t. The in-memory value changes even if persisting fails; the
// write error is returned for the caller to report.
func (p *Preference) Set(ctx context.Context, t Theme) error {
	if _, err := Parse(string(t)); err != nil {
		return err
	}
	p.mu.Lock()
	p.theme = t
	p.loaded = true
	p.mu.Unlock()

	events.PublishOrLog(ctx, p.pub, events.NewThemeChanged(string(t)))

	raw, err := clientstore.EncodeVersioned(storeVersion, string(t))
	if err != nil {
		return err
	}
	if err := p.store.Set(ctx, clientstore.KeyTheme, raw); err != nil {
		log.Warn().Str("component", "theme").Err(err).Msg("persist theme failed")
		return errors.Wrap(err, "persist theme")
	}
	return nil
}

func (p *Preference) Toggle(ctx context.Context) (Theme, error) {
	next := p.Get(ctx).Toggled()
	return next, p.Set(ctx, next)
}
