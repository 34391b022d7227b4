// Package portalsession keeps one session manager per browser session id.
package portalsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/betul-abla-portal/apiclient"
	"github.com/jrsteele09/betul-abla-portal/credstore"
	"github.com/jrsteele09/betul-abla-portal/internal/metrics"
	"github.com/jrsteele09/betul-abla-portal/session"
	"github.com/rs/zerolog/log"
)

const (
	defaultIdleTimeout    = 30 * time.Minute
	defaultRestoreTimeout = 15 * time.Second
)

type entry struct {
	manager  *session.Manager
	lastSeen time.Time
}

// Registry maps browser session ids to session managers. A manager created for
// an id whose credentials survived a restart restores itself in the background.
type Registry struct {
	open       credstore.Opener
	api        apiclient.Config
	sessionOps []session.Option

	idle           time.Duration
	restoreTimeout time.Duration
	now            func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	restores sync.WaitGroup
}

type Option func(*Registry)

// WithIdleTimeout sets how long an unused manager stays in memory.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) { r.idle = d }
}

func WithRestoreTimeout(d time.Duration) Option {
	return func(r *Registry) { r.restoreTimeout = d }
}

// WithSessionOptions is passed to every session.New call.
func WithSessionOptions(opts ...session.Option) Option {
	return func(r *Registry) { r.sessionOps = append(r.sessionOps, opts...) }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func New(open credstore.Opener, api apiclient.Config, opts ...Option) *Registry {
	r := &Registry{
		open:           open,
		api:            api,
		idle:           defaultIdleTimeout,
		restoreTimeout: defaultRestoreTimeout,
		now:            time.Now,
		sessions:       make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the manager for id if it is in memory.
func (r *Registry) Get(id string) (*session.Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.manager, true
}

// Open returns the manager for id, creating it when needed. Ids that are not
// issued by the registry are replaced with a fresh one. The returned id is the
// one the browser should carry from now on.
func (r *Registry) Open(id string) (*session.Manager, string, error) {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[id]; ok {
		e.lastSeen = r.now()
		return e.manager, id, nil
	}

	store, err := r.open.Open(id)
	if err != nil {
		return nil, "", fmt.Errorf("[portalsession Open] credential store: %w", err)
	}
	m := session.New(store, r.api, r.sessionOps...)
	r.sessions[id] = &entry{manager: m, lastSeen: r.now()}
	metrics.SetBrowserSessions(len(r.sessions))

	r.restores.Add(1)
	go r.restore(m)
	return m, id, nil
}

func (r *Registry) restore(m *session.Manager) {
	defer r.restores.Done()
	ctx, cancel := context.WithTimeout(context.Background(), r.restoreTimeout)
	defer cancel()
	if err := m.Init(ctx); err != nil {
		log.Debug().Err(err).Msg("browser session not restored")
	}
}

// Forget drops id from memory without touching its credentials.
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		r.open.Release(id)
	}
	metrics.SetBrowserSessions(len(r.sessions))
	r.mu.Unlock()

	if ok {
		e.manager.Dispose()
	}
}

// SignOut ends the session behind id. A manager that is no longer in memory
// still has its stored credentials cleared, so the id cannot be restored.
func (r *Registry) SignOut(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}

	r.mu.Lock()
	if e, ok := r.sessions[id]; ok {
		e.lastSeen = r.now()
		r.mu.Unlock()
		return e.manager.SignOut(ctx)
	}
	defer r.mu.Unlock()

	store, err := r.open.Open(id)
	if err != nil {
		return fmt.Errorf("[portalsession SignOut] credential store: %w", err)
	}
	defer r.open.Release(id)
	if err := store.Clear(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("[portalsession SignOut] %w", err)
	}
	return nil
}

// Sweep disposes managers idle for longer than the idle timeout and returns
// how many were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var stale []*session.Manager
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, e.manager)
			delete(r.sessions, id)
			r.open.Release(id)
		}
	}
	metrics.SetBrowserSessions(len(r.sessions))
	r.mu.Unlock()

	for _, m := range stale {
		m.Dispose()
	}
	if len(stale) > 0 {
		log.Debug().Int("count", len(stale)).Msg("disposed idle browser sessions")
	}
	return len(stale)
}

// Run sweeps at interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Wait blocks until background restores have finished.
func (r *Registry) Wait() {
	r.restores.Wait()
}
