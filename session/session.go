// Package session owns the identity of one client session: restoring it from
// stored credentials, signing in and out, and reacting to forced logouts from
// the API client.
package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/betul-abla-portal/apiclient"
	"github.com/jrsteele09/betul-abla-portal/credstore"
	"github.com/jrsteele09/betul-abla-portal/identity"
	"github.com/jrsteele09/betul-abla-portal/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State is the lifecycle state of a session.
type State int

const (
	StateUnknown State = iota
	StateRestoring
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateRestoring:
		return "restoring"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

const (
	defaultProfileEndpoint  = "/auth/profile/"
	defaultPasswordEndpoint = "/auth/change-password/"
	defaultProfileTimeout   = 10 * time.Second
)

// Manager is the identity/session manager of one client session.
type Manager struct {
	client *apiclient.Client
	store  credstore.Store
	logger zerolog.Logger

	profileEndpoint  string
	passwordEndpoint string
	profileTimeout   time.Duration
	clientOpts       []apiclient.Option

	// lifecycle serialises Init, SignIn and SignOut
	lifecycle sync.Mutex

	mu       sync.RWMutex
	state    State
	identity *identity.Identity
}

type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithHTTPClient sets the transport used for every remote call.
func WithHTTPClient(hc *http.Client) Option {
	return func(m *Manager) { m.clientOpts = append(m.clientOpts, apiclient.WithHTTPClient(hc)) }
}

// WithClock replaces time.Now for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.clientOpts = append(m.clientOpts, apiclient.WithClock(now)) }
}

func WithProfileEndpoint(endpoint string) Option {
	return func(m *Manager) { m.profileEndpoint = endpoint }
}

func WithPasswordEndpoint(endpoint string) Option {
	return func(m *Manager) { m.passwordEndpoint = endpoint }
}

// WithProfileTimeout bounds the profile call made by Init and SignIn.
func WithProfileTimeout(d time.Duration) Option {
	return func(m *Manager) { m.profileTimeout = d }
}

// OptionsFrom reads the profile settings from the portal config.
func OptionsFrom(c config.APIConfig) []Option {
	return []Option{
		WithProfileEndpoint(c.GetProfileEndpoint()),
		WithPasswordEndpoint(c.GetPasswordEndpoint()),
		WithProfileTimeout(c.GetProfileTimeout()),
	}
}

// New creates a manager in StateUnknown together with its API client. The
// client reports forced logouts back to the manager.
func New(store credstore.Store, cfg apiclient.Config, opts ...Option) *Manager {
	m := &Manager{
		store:            store,
		logger:           log.Logger,
		profileEndpoint:  defaultProfileEndpoint,
		passwordEndpoint: defaultPasswordEndpoint,
		profileTimeout:   defaultProfileTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}

	clientOpts := append([]apiclient.Option{
		apiclient.WithLogger(m.logger),
		apiclient.WithLogoutHook(m.handleForcedLogout),
	}, m.clientOpts...)
	m.client = apiclient.New(cfg, store, clientOpts...)
	return m
}

// Client is the API client bound to this session's credentials.
func (m *Manager) Client() *apiclient.Client {
	return m.client
}

// Snapshot returns the state and a copy of the identity, read together.
func (m *Manager) Snapshot() (State, *identity.Identity) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.identity == nil {
		return m.state, nil
	}
	id := *m.identity
	return m.state, &id
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Init restores the session from the credential store.
//
// Without a stored pair the session becomes anonymous with no network call.
// With one, the identity is re-validated against the profile endpoint; any
// failure clears the credentials and leaves the session anonymous.
func (m *Manager) Init(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.setState(StateRestoring, nil)

	access, err := m.store.AccessToken(ctx)
	if err != nil {
		return m.abandon(ctx, fmt.Errorf("[session Init] read access token: %w", err))
	}
	refresh, err := m.store.RefreshToken(ctx)
	if err != nil {
		return m.abandon(ctx, fmt.Errorf("[session Init] read refresh token: %w", err))
	}

	switch {
	case access == "" && refresh == "":
		m.logger.Debug().Msg("no stored credentials, session is anonymous")
		m.setState(StateAnonymous, nil)
		return nil
	case access == "" || refresh == "":
		m.logger.Warn().Msg("stored credential pair is incomplete, clearing")
		return m.abandon(ctx, nil)
	}

	id, err := m.fetchProfile(ctx)
	if err != nil {
		return m.abandon(ctx, fmt.Errorf("[session Init] %w", err))
	}
	if err := m.store.SetIdentity(ctx, *id); err != nil {
		m.logger.Warn().Err(err).Msg("failed to cache identity")
	}

	m.setState(StateAuthenticated, id)
	m.logger.Info().Str("user", id.Username).Str("role", id.Role.String()).Msg("session restored")
	return nil
}

// Dispose drops the in-memory identity without touching stored credentials.
func (m *Manager) Dispose() {
	m.setState(StateUnknown, nil)
}

// abandon clears the credentials and leaves the session anonymous.
func (m *Manager) abandon(ctx context.Context, cause error) error {
	if cause != nil {
		m.logger.Warn().Err(cause).Msg("session restore failed, clearing credentials")
	}
	m.clearStore(ctx)
	m.setState(StateAnonymous, nil)
	return cause
}

func (m *Manager) fetchProfile(ctx context.Context) (*identity.Identity, error) {
	pctx, cancel := context.WithTimeout(ctx, m.profileTimeout)
	defer cancel()

	var id identity.Identity
	if err := m.client.DoJSON(pctx, http.MethodGet, m.profileEndpoint, nil, nil, &id); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	return &id, nil
}

func (m *Manager) setState(s State, id *identity.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.identity = id
}

func (m *Manager) clearStore(ctx context.Context) {
	if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
		m.logger.Error().Err(err).Msg("failed to clear credentials")
	}
}
