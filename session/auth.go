package session

import (
	"context"
	"fmt"

	"github.com/jrsteele09/betul-abla-portal/apiclient"
	"github.com/jrsteele09/betul-abla-portal/internal/errors"
)

// SignIn exchanges the credentials for a token pair, persists it and loads the
// profile. If the profile cannot be loaded the pair is rolled back and the
// session is left anonymous. A rejected identifier or secret is reported as
// errors.ErrInvalidCredentials.
func (m *Manager) SignIn(ctx context.Context, identifier, secret string) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if identifier == "" || secret == "" {
		return fmt.Errorf("[session SignIn] %w: identifier and secret are required", errors.ErrInvalidCredentials)
	}

	pair, err := m.client.Login(ctx, identifier, secret)
	if err != nil {
		m.logger.Warn().Err(err).Str("user", identifier).Msg("sign in rejected")
		return fmt.Errorf("[session SignIn] %w", err)
	}

	if err := m.store.SetTokens(ctx, pair.Access, pair.Refresh); err != nil {
		m.logger.Error().Err(err).Msg("failed to persist credentials")
		return fmt.Errorf("[session SignIn] persist credentials: %w", err)
	}

	id, err := m.fetchProfile(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Str("user", identifier).Msg("profile unavailable after sign in, rolling back")
		m.clearStore(ctx)
		m.setState(StateAnonymous, nil)
		return fmt.Errorf("[session SignIn] %w: %w", errors.ErrProfileRejected, err)
	}
	if err := m.store.SetIdentity(ctx, *id); err != nil {
		m.logger.Warn().Err(err).Msg("failed to cache identity")
	}

	m.setState(StateAuthenticated, id)
	m.logger.Info().Str("user", id.Username).Str("role", id.Role.String()).Msg("signed in")
	return nil
}

// SignOut forgets the identity and clears every stored slot. It makes no
// remote call.
func (m *Manager) SignOut(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.setState(StateAnonymous, nil)
	if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("[session SignOut] %w", err)
	}
	m.logger.Info().Msg("signed out")
	return nil
}

// handleForcedLogout runs when the API client has cleared the credentials.
// It must not take the lifecycle lock: it can fire inside Init or SignIn.
func (m *Manager) handleForcedLogout(_ context.Context, reason apiclient.LogoutReason) {
	m.logger.Info().Str("reason", string(reason)).Msg("session ended by api client")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateUnknown {
		return
	}
	m.state = StateAnonymous
	m.identity = nil
}
