package apiclient

import (
	"context"
	"fmt"

	"github.com/jrsteele09/betul-abla-portal/internal/errors"
	"github.com/jrsteele09/betul-abla-portal/internal/metrics"
)

type refreshOutcome struct {
	token string
	err   error
}

// freshToken obtains an access token newer than sent.
//
// If a refresh is in flight the caller is queued until it settles. If the
// stored token already differs from sent, a refresh has landed since the call
// was issued and the stored token is returned. Otherwise the caller becomes
// the refresher; refresher is true only in that case.
func (c *Client) freshToken(ctx context.Context, sent string) (token string, refresher bool, err error) {
	c.mu.Lock()
	if c.refreshing {
		ch := make(chan refreshOutcome, 1)
		c.waiters = append(c.waiters, ch)
		c.stats.QueuedRequests++
		c.mu.Unlock()

		select {
		case out := <-ch:
			return out.token, false, out.err
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}

	creds, err := c.store.Credentials(ctx)
	if err != nil {
		c.mu.Unlock()
		return "", false, fmt.Errorf("[apiclient freshToken] read credentials: %w", err)
	}
	if creds != nil && creds.AccessToken != "" && creds.AccessToken != sent {
		c.mu.Unlock()
		return creds.AccessToken, false, nil
	}
	if creds == nil {
		// Cleared since sent was read: whoever cleared it ended the session.
		c.mu.Unlock()
		return "", false, errors.ErrNoRefreshToken
	}
	if creds.RefreshToken == "" {
		c.mu.Unlock()
		c.logger.Info().Msg("unauthorized with no refresh token, logging out")
		c.forceLogout(ctx, LogoutNoRefreshToken)
		return "", false, errors.ErrNoRefreshToken
	}

	c.refreshing = true
	c.stats.RefreshAttempts++
	c.mu.Unlock()

	token, err = c.runRefresh(ctx, creds.RefreshToken)
	return token, true, err
}

// runRefresh performs the refresh call and settles the queue on every path.
func (c *Client) runRefresh(ctx context.Context, refreshToken string) (token string, err error) {
	settled := false
	defer func() {
		if !settled {
			c.settle("", errors.ErrRefreshFailed)
		}
	}()

	// The refresh outlives a caller that gives up: queued calls depend on it.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RefreshTimeout)
	defer cancel()

	token, err = c.Refresh(rctx, refreshToken)
	if err == nil {
		var stored bool
		stored, err = c.store.SwapAccessToken(rctx, token, refreshToken)
		switch {
		case err != nil:
			err = fmt.Errorf("%w: persist access token: %w", errors.ErrRefreshFailed, err)
		case !stored:
			// Signed out or replaced while the call was in flight. The store
			// belongs to whoever changed it, so it is neither written nor cleared.
			c.logger.Info().Msg("credentials changed during refresh, discarding token")
			c.mu.Lock()
			c.stats.RefreshFailures++
			c.mu.Unlock()
			metrics.RecordRefresh(false)
			settled = true
			err = fmt.Errorf("%w: credentials changed during refresh", errors.ErrRefreshFailed)
			c.settle("", err)
			return "", err
		}
	}

	if err != nil {
		c.logger.Warn().Err(err).Msg("token refresh failed, logging out")
		c.mu.Lock()
		c.stats.RefreshFailures++
		c.mu.Unlock()
		metrics.RecordRefresh(false)

		// Credentials go before the queue is released so no caller can start a
		// second refresh with the dead refresh token.
		c.clearCredentials(rctx)
		settled = true
		c.settle("", err)
		c.notifyLogout(rctx, LogoutRefreshFailed)
		return "", err
	}

	c.logger.Debug().Msg("access token refreshed")
	c.mu.Lock()
	c.stats.RefreshSuccesses++
	c.mu.Unlock()
	metrics.RecordRefresh(true)

	settled = true
	c.settle(token, nil)
	return token, nil
}

// settle clears the in-flight flag and drains the queue in one step.
func (c *Client) settle(token string, err error) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.mu.Unlock()

	for _, ch := range waiters {
		ch <- refreshOutcome{token: token, err: err}
	}
}

func (c *Client) forceLogout(ctx context.Context, reason LogoutReason) {
	c.clearCredentials(ctx)
	c.notifyLogout(ctx, reason)
}

func (c *Client) clearCredentials(ctx context.Context) {
	if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil {
		c.logger.Error().Err(err).Msg("failed to clear credentials")
	}
}

func (c *Client) notifyLogout(ctx context.Context, reason LogoutReason) {
	c.mu.Lock()
	c.stats.ForcedLogouts++
	c.mu.Unlock()
	metrics.RecordForcedLogout(string(reason))
	c.onLogout(context.WithoutCancel(ctx), reason)
}
