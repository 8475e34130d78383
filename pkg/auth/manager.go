package auth

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/go-go-golems/deckhand/pkg/api"
	"github.com/go-go-golems/deckhand/pkg/events"
	"github.com/go-go-golems/deckhand/pkg/persistence/clientstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type State int

const (
	StateLoading State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "loading"
	}
}

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSuperseded is returned when the backend accepted a call but its
	// result was discarded because a logout or a new login got there first.
	ErrSuperseded = errors.New("result superseded by a newer session state")
)

const (
	msgSessionExpired = "Session expired. Please login again."
	msgWelcomeBack    = "Welcome back!"
	msgAccountCreated = "Account created successfully!"
	msgLoggedOut      = "Logged out successfully"
	msgLoginFailed    = "Login failed. Please try again."
	msgSignupFailed   = "Signup failed. Please try again."
	msgProfileUpdated = "Profile updated!"
	msgProfileFailed  = "Profile update failed."
	msgAvatarUpdated  = "Avatar updated!"
	msgAvatarFailed   = "Avatar update failed."
	msgPrefsUpdated   = "Preferences updated!"
	msgPrefsFailed    = "Preferences update failed."
)

// Backend is the slice of the API client the manager drives.
type Backend interface {
	Login(ctx context.Context, email, password string) (*api.AuthResponse, error)
	Signup(ctx context.Context, username, email, password string) (*api.AuthResponse, error)
	Me(ctx context.Context) (*api.User, error)
	UpdateProfile(ctx context.Context, update api.ProfileUpdate) (*api.User, error)
	UpdateAvatarURL(ctx context.Context, avatarURL string) (*api.User, error)
	UploadAvatar(ctx context.Context, filename string, content io.Reader) (*api.User, error)
	UpdatePreferences(ctx context.Context, prefs api.Preferences) (*api.User, error)
}

var _ Backend = (*api.Client)(nil)

// AvatarSource is either a URL the backend fetches or a local file upload.
type AvatarSource struct {
	URL      string
	Filename string
	Content  io.Reader
}

// Snapshot is a consistent copy of the manager state.
type Snapshot struct {
	State State
	User  *api.User
	Token string
}

func (s Snapshot) Identity() string {
	if s.State != StateAuthenticated || s.User == nil {
		return ""
	}
	return s.User.Email
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the signed-in identity.
//
// Every user-affecting request takes a ticket (epoch, seq). Its result
// commits only if the epoch is unchanged (no login/logout/expiry since it
// started) and no later-started request already committed.
type Manager struct {
	backend Backend
	store   clientstore.Store
	pub     events.Publisher
	now     func() time.Time

	mu           sync.Mutex
	state        State
	token        string
	user         *api.User
	epoch        uint64
	seq          uint64
	committedSeq uint64

	// persistMu serialises store writes; each write stores the state current
	// at the time it runs, so the last write always matches memory.
	persistMu sync.Mutex
}

func NewManager(backend Backend, store clientstore.Store, pub events.Publisher, opts ...Option) *Manager {
	if pub == nil {
		pub = events.Discard
	}
	m := &Manager{
		backend: backend,
		store:   store,
		pub:     pub,
		now:     time.Now,
		state:   StateLoading,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type ticket struct {
	epoch uint64
	seq   uint64
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, User: m.user.Clone(), Token: m.token}
}

func (m *Manager) State() State { return m.Snapshot().State }

func (m *Manager) User() *api.User { return m.Snapshot().User }

// Token is the bearer token for outgoing requests; wire it as the API
// client's token source.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *Manager) Identity() string { return m.Snapshot().Identity() }

func (m *Manager) takeTicketLocked() ticket {
	m.seq++
	return ticket{epoch: m.epoch, seq: m.seq}
}

func (m *Manager) Bootstrap(ctx context.Context) error {
	cred, err := loadCredential(ctx, m.store)
	if err != nil {
		log.Warn().Str("component", "auth").Err(err).Msg("stored credential unusable, starting signed out")
	}
	if cred == nil {
		m.mu.Lock()
		m.epoch++
		m.state = StateUnauthenticated
		m.token = ""
		m.user = nil
		m.mu.Unlock()
		if err != nil {
			m.persist(ctx)
		}
		m.publishAuthChanged(ctx)
		return nil
	}

	if tokenExpired(cred.Token, m.now()) {
		log.Info().Str("component", "auth").Msg("stored token expired")
		m.mu.Lock()
		m.epoch++
		m.state = StateUnauthenticated
		m.token = ""
		m.user = nil
		m.mu.Unlock()
		m.persist(ctx)
		events.PublishOrLog(ctx, m.pub, events.NewNotice(events.LevelError, msgSessionExpired))
		events.PublishOrLog(ctx, m.pub, events.NewSessionExpired())
		m.publishAuthChanged(ctx)
		return nil
	}

	m.mu.Lock()
	m.epoch++
	m.state = StateAuthenticated
	m.token = cred.Token
	m.user = cred.User.Clone()
	t := m.takeTicketLocked()
	m.mu.Unlock()
	m.publishAuthChanged(ctx)

	user, err := m.backend.Me(ctx)
	if err != nil {
		if api.IsAuthRejected(err) {
			m.expire(ctx, t.epoch)
			return nil
		}
		log.Warn().Str("component", "auth").Err(err).Msg("could not verify session, keeping cached user")
		return nil
	}
	if err := m.commitUser(ctx, t, user); err != nil && !errors.Is(err, ErrSuperseded) {
		return err
	}
	return nil
}

func (m *Manager) Login(ctx context.Context, email, password string) (*api.User, error) {
	m.mu.Lock()
	t := m.takeTicketLocked()
	m.mu.Unlock()

	resp, err := m.backend.Login(ctx, email, password)
	if err != nil {
		events.PublishOrLog(ctx, m.pub, events.NewNotice(events.LevelError, api.UserMessage(err, msgLoginFailed)))
		return nil, err
	}
	if err := m.commitLogin(ctx, t, resp); err != nil {
		return nil, err
	}
	events.PublishOrLog(ctx, m.pub, events.NewNotice(events.LevelSuccess, msgWelcomeBack))
	return resp.User.Clone(), nil
}

func (m *Manager) Signup(ctx context.Context, username, email, password string) (*api.User, error) {
	m.mu.Lock()
	t := m.takeTicketLocked()
	m.mu.Unlock()

	resp, err := m.backend.Signup(ctx, username, email, password)
	if err != nil {
		events.PublishOrLog(ctx, m.pub, events.NewNotice(events.LevelError, api.UserMessage(err, msgSignupFailed)))
		return nil, err
	}
	if err := m.commitLogin(ctx, t, resp); err != nil {
		return nil, err
	}
	events.PublishOrLog(ctx, m.pub, events.NewNotice(events.LevelSuccess, msgAccountCreated))
	return resp.User.Clone(), nil
}

func (m *Manager) commitLogin(ctx context.Context, t ticket, resp *api.AuthResponse) error {
	m.mu.Lock()
	if t.epoch != m.epoch {
		m.mu.Unlock()
		return ErrSuperseded
	}
	m.epoch++
	m.state = StateAuthenticated
	m.token = resp.Token
	m.user = resp.User.Clone()
	m.committedSeq = t.seq
	m.mu.Unlock()

	m.persist(ctx)
	m.publishAuthChanged(ctx)
	return nil
}

// Logout clears the session locally. It never fails; requests still in
// flight are discarded when they return.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.epoch++
	m.state = StateUnauthenticated
	m.token = ""
	m.user = nil
	m.mu.Unlock()

	m.persist(ctx)
	events.PublishOrLog(ctx, m.pub, events.NewNotice(events.LevelSuccess, msgLoggedOut))
	m.publishAuthChanged(ctx)
}

// HandleAuthRejected ends the session whose token the backend refused.
// Rejections of tokens that are no longer current are ignored.
func (m *Manager) HandleAuthRejected(token string) {
	m.mu.Lock()
	if m.state != StateAuthenticated || token == "" || token != m.token {
		m.mu.Unlock()
		return
	}
	epoch := m.epoch
	m.mu.Unlock()
	m.expire(context.Background(), epoch)
}

func (m *Manager) expire(ctx context.Context, epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch || m.state != StateAuthenticated {
		m.mu.Unlock()
		return
	}
	m.epoch++
	m.state = StateUnauthenticated
	m.token = ""
	m.user = nil
	m.mu.Unlock()

	m.persist(ctx)
	events.PublishOrLog(ctx, m.pub, events.NewNotice(events.LevelError, msgSessionExpired))
	events.PublishOrLog(ctx, m.pub, events.NewSessionExpired())
	m.publishAuthChanged(ctx)
}

func (m *Manager) UpdateProfile(ctx context.Context, update api.ProfileUpdate) (*api.User, error) {
	return m.updateUser(ctx, msgProfileUpdated, msgProfileFailed, func(ctx context.Context) (*api.User, error) {
		return m.backend.UpdateProfile(ctx, update)
	})
}

func (m *Manager) UpdateAvatar(ctx context.Context, src AvatarSource) (*api.User, error) {
	switch {
	case src.URL != "" && src.Content != nil:
		return nil, errors.New("avatar source: give either a URL or a file, not both")
	case src.URL == "" && src.Content == nil:
		return nil, errors.New("avatar source: a URL or a file is required")
	}
	return m.updateUser(ctx, msgAvatarUpdated, msgAvatarFailed, func(ctx context.Context) (*api.User, error) {
		if src.URL != "" {
			return m.backend.UpdateAvatarURL(ctx, src.URL)
		}
		return m.backend.UploadAvatar(ctx, src.Filename, src.Content)
	})
}

func (m *Manager) UpdatePreferences(ctx context.Context, prefs api.Preferences) (*api.User, error) {
	return m.updateUser(ctx, msgPrefsUpdated, msgPrefsFailed, func(ctx context.Context) (*api.User, error) {
		return m.backend.UpdatePreferences(ctx, prefs)
	})
}

func (m *Manager) updateUser(ctx context.Context, okMsg, failMsg string, call func(context.Context) (*api.User, error)) (*api.User, error) {
	m.mu.Lock()
	if m.state != StateAuthenticated {
		m.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	t := m.takeTicketLocked()
	m.mu.Unlock()

	user, err := call(ctx)
	if err != nil {
		events.PublishOrLog(ctx, m.pub, events.NewNotice(events.LevelError, api.UserMessage(err, failMsg)))
		return nil, err
	}
	if err := m.commitUser(ctx, t, user); err != nil {
		if !errors.Is(err, ErrSuperseded) {
			return nil, err
		}
		// the server applied the change but a later-started update already
		// committed; reload instead of applying this response
		fresh, rerr := m.reload(ctx, t.epoch)
		switch {
		case rerr == nil:
			user = fresh
		case errors.Is(rerr, ErrSuperseded), api.IsAuthRejected(rerr):
			return nil, rerr
		default:
			log.Warn().Str("component", "auth").Err(rerr).Msg("reload after overtaken update failed, keeping newer user")
		}
	}
	events.PublishOrLog(ctx, m.pub, events.NewNotice(events.LevelSuccess, okMsg))
	return user.Clone(), nil
}

// reload fetches the authoritative user and commits it, provided the session
// started at epoch is still the current one.
func (m *Manager) reload(ctx context.Context, epoch uint64) (*api.User, error) {
	m.mu.Lock()
	if m.epoch != epoch || m.state != StateAuthenticated {
		m.mu.Unlock()
		return nil, ErrSuperseded
	}
	t := m.takeTicketLocked()
	m.mu.Unlock()

	user, err := m.backend.Me(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.commitUser(ctx, t, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (m *Manager) commitUser(ctx context.Context, t ticket, user *api.User) error {
	m.mu.Lock()
	if t.epoch != m.epoch || t.seq <= m.committedSeq || m.state != StateAuthenticated {
		m.mu.Unlock()
		log.Debug().Str("component", "auth").Uint64("seq", t.seq).Msg("discarding stale user response")
		return ErrSuperseded
	}
	m.user = user.Clone()
	m.committedSeq = t.seq
	m.mu.Unlock()

	m.persist(ctx)
	m.publishAuthChanged(ctx)
	return nil
}

// persist writes the current state to the store. The state lock is not held
// during the write.
func (m *Manager) persist(ctx context.Context) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	authenticated := m.state == StateAuthenticated
	cred := credential{Token: m.token, User: m.user.Clone()}
	m.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	var err error
	if authenticated {
		err = saveCredential(ctx, m.store, cred)
	} else {
		err = clearCredential(ctx, m.store)
	}
	if err != nil {
		log.Warn().Str("component", "auth").Err(err).Msg("persist credential failed")
	}
}

func (m *Manager) publishAuthChanged(ctx context.Context) {
	s := m.Snapshot()
	events.PublishOrLog(ctx, m.pub, events.NewAuthChanged(s.State.String(), s.User))
}
