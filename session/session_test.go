package session_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/betul-abla-portal/apiclient"
	"github.com/jrsteele09/betul-abla-portal/credstore"
	"github.com/jrsteele09/betul-abla-portal/identity"
	"github.com/jrsteele09/betul-abla-portal/internal/errors"
	"github.com/jrsteele09/betul-abla-portal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	srv   *httptest.Server
	calls atomic.Int32

	mu            sync.Mutex
	validAccess   string
	profileStatus int
	refreshStatus int
	refreshGate   chan struct{}
	profile       map[string]any
	lastPassword  map[string]string
}

func newFakeRemote(t *testing.T) *fakeRemote {
	t.Helper()
	f := &fakeRemote{
		validAccess:   "access-1",
		profileStatus: http.StatusOK,
		refreshStatus: http.StatusOK,
		profile: map[string]any{
			"id": 7, "username": "amina", "full_name": "Amina Yusuf",
			"role": "coordinator", "email": "amina@example.org", "is_active": true,
		},
	}

	authorized := func(r *http.Request) bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return r.Header.Get("Authorization") == "Bearer "+f.validAccess
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "amina" || body["password"] != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access": "access-1", "refresh": "refresh-1"})
	})
	mux.HandleFunc("POST /api/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		f.mu.Lock()
		gate := f.refreshGate
		f.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}

		f.mu.Lock()
		status := f.refreshStatus
		f.validAccess = "access-2"
		f.mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access": "access-2"})
	})
	mux.HandleFunc("/api/auth/profile/", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.profileStatus != http.StatusOK {
			w.WriteHeader(f.profileStatus)
			return
		}
		if r.Method == http.MethodPut {
			var update map[string]string
			_ = json.NewDecoder(r.Body).Decode(&update)
			for k, v := range update {
				f.profile[k] = v
			}
		}
		_ = json.NewEncoder(w).Encode(f.profile)
	})
	mux.HandleFunc("POST /api/auth/change-password/", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["old_password"] != "s3cret" {
			http.Error(w, `{"old_password":["Wrong password."]}`, http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.lastPassword = body
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Password changed successfully"})
	})
	mux.HandleFunc("/api/orphans/", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRemote) set(fn func(f *fakeRemote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func newManager(f *fakeRemote, store credstore.Store) *session.Manager {
	cfg := apiclient.Config{
		BaseURL:         f.srv.URL + "/api",
		LoginEndpoint:   "/token/",
		RefreshEndpoint: "/token/refresh/",
		RequestTimeout:  5 * time.Second,
		RefreshTimeout:  time.Second,
	}
	return session.New(store, cfg, session.WithLogger(zerolog.Nop()), session.WithProfileTimeout(time.Second))
}

func requireEmptyStore(t *testing.T, store credstore.Store) {
	t.Helper()
	ctx := context.Background()
	access, err := store.AccessToken(ctx)
	require.NoError(t, err)
	require.Empty(t, access)
	refresh, err := store.RefreshToken(ctx)
	require.NoError(t, err)
	require.Empty(t, refresh)
	id, err := store.CachedIdentity(ctx)
	require.NoError(t, err)
	require.Nil(t, id)
}

func TestInit_WithoutCredentialsIsAnonymousWithoutNetwork(t *testing.T) {
	f := newFakeRemote(t)
	m := newManager(f, credstore.NewMemoryStore())

	state, _ := m.Snapshot()
	require.Equal(t, session.StateUnknown, state)

	require.NoError(t, m.Init(context.Background()))
	state, id := m.Snapshot()
	require.Equal(t, session.StateAnonymous, state)
	require.Nil(t, id)
	require.EqualValues(t, 0, f.calls.Load())
}

func TestInit_RestoresIdentityFromProfile(t *testing.T) {
	f := newFakeRemote(t)
	store := credstore.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SetTokens(ctx, "access-1", "refresh-1"))
	// A stale cached identity is only a hint.
	require.NoError(t, store.SetIdentity(ctx, identity.Identity{ID: "7", Role: identity.RoleAdmin, IsActive: true}))

	m := newManager(f, store)
	require.NoError(t, m.Init(ctx))

	state, id := m.Snapshot()
	require.Equal(t, session.StateAuthenticated, state)
	require.Equal(t, "7", id.ID)
	require.Equal(t, identity.RoleCoordinator, id.Role)
	require.Equal(t, "Amina Yusuf", id.Name())

	cached, err := store.CachedIdentity(ctx)
	require.NoError(t, err)
	require.Equal(t, identity.RoleCoordinator, cached.Role)
}

func TestInit_FailingProfileLeavesAnonymousAndClearsStorage(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fakeRemote)
	}{
		{"server error", func(f *fakeRemote) { f.profileStatus = http.StatusInternalServerError }},
		{"forbidden", func(f *fakeRemote) { f.profileStatus = http.StatusForbidden }},
		{"expired token and failed refresh", func(f *fakeRemote) {
			f.validAccess = "someone-else"
			f.refreshStatus = http.StatusUnauthorized
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeRemote(t)
			f.set(tt.setup)
			store := credstore.NewMemoryStore()
			ctx := context.Background()
			require.NoError(t, store.SetTokens(ctx, "access-1", "refresh-1"))
			require.NoError(t, store.SetIdentity(ctx, identity.Identity{ID: "7", Role: identity.RoleAdmin}))

			m := newManager(f, store)
			require.Error(t, m.Init(ctx))

			state, id := m.Snapshot()
			require.Equal(t, session.StateAnonymous, state)
			require.Nil(t, id)
			requireEmptyStore(t, store)
		})
	}
}

// halfPairStore reports an access token with no refresh token.
type halfPairStore struct {
	credstore.Store
	cleared bool
}

func (s *halfPairStore) AccessToken(context.Context) (string, error) {
	if s.cleared {
		return "", nil
	}
	return "access-1", nil
}

func (s *halfPairStore) RefreshToken(context.Context) (string, error) { return "", nil }

func (s *halfPairStore) Clear(context.Context) error {
	s.cleared = true
	return nil
}

func TestInit_IncompletePairIsCleared(t *testing.T) {
	f := newFakeRemote(t)
	store := &halfPairStore{Store: credstore.NewMemoryStore()}
	m := newManager(f, store)

	require.NoError(t, m.Init(context.Background()))
	require.Equal(t, session.StateAnonymous, m.State())
	require.True(t, store.cleared)
	require.EqualValues(t, 0, f.calls.Load())
}

func TestInit_RefreshesExpiredTokenDuringRestore(t *testing.T) {
	f := newFakeRemote(t)
	f.set(func(f *fakeRemote) { f.validAccess = "access-2" })
	store := credstore.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SetTokens(ctx, "access-1", "refresh-1"))

	m := newManager(f, store)
	require.NoError(t, m.Init(ctx))
	require.Equal(t, session.StateAuthenticated, m.State())

	access, err := store.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "access-2", access)
}

func TestSignIn_ThenSignOutLeavesStoreEmpty(t *testing.T) {
	f := newFakeRemote(t)
	store := credstore.NewMemoryStore()
	m := newManager(f, store)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))

	require.NoError(t, m.SignIn(ctx, "amina", "s3cret"))
	state, id := m.Snapshot()
	require.Equal(t, session.StateAuthenticated, state)
	require.Equal(t, "amina", id.Username)

	access, _ := store.AccessToken(ctx)
	refresh, _ := store.RefreshToken(ctx)
	require.Equal(t, "access-1", access)
	require.Equal(t, "refresh-1", refresh)

	require.NoError(t, m.SignOut(ctx))
	state, id = m.Snapshot()
	require.Equal(t, session.StateAnonymous, state)
	require.Nil(t, id)
	requireEmptyStore(t, store)
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	f := newFakeRemote(t)
	store := credstore.NewMemoryStore()
	m := newManager(f, store)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))

	err := m.SignIn(ctx, "amina", "wrong")
	require.ErrorIs(t, err, errors.ErrInvalidCredentials)
	require.Equal(t, session.StateAnonymous, m.State())
	requireEmptyStore(t, store)

	err = m.SignIn(ctx, "", "")
	require.ErrorIs(t, err, errors.ErrInvalidCredentials)
}

func TestSignIn_ProfileFailureRollsBackTokens(t *testing.T) {
	f := newFakeRemote(t)
	f.set(func(f *fakeRemote) { f.profileStatus = http.StatusInternalServerError })
	store := credstore.NewMemoryStore()
	m := newManager(f, store)
	ctx := context.Background()

	err := m.SignIn(ctx, "amina", "s3cret")
	require.ErrorIs(t, err, errors.ErrProfileRejected)
	require.NotErrorIs(t, err, errors.ErrInvalidCredentials)
	require.Equal(t, session.StateAnonymous, m.State())
	requireEmptyStore(t, store)
}

func TestForcedLogoutEndsSession(t *testing.T) {
	f := newFakeRemote(t)
	store := credstore.NewMemoryStore()
	m := newManager(f, store)
	ctx := context.Background()
	require.NoError(t, m.SignIn(ctx, "amina", "s3cret"))

	f.set(func(f *fakeRemote) {
		f.validAccess = "rotated-elsewhere"
		f.refreshStatus = http.StatusUnauthorized
	})

	resp, err := m.Client().Request(ctx, "/orphans/", apiclient.RequestOptions{})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	state, id := m.Snapshot()
	require.Equal(t, session.StateAnonymous, state)
	require.Nil(t, id)
	requireEmptyStore(t, store)
}

func TestDisposeKeepsStoredCredentials(t *testing.T) {
	f := newFakeRemote(t)
	store := credstore.NewMemoryStore()
	m := newManager(f, store)
	ctx := context.Background()
	require.NoError(t, m.SignIn(ctx, "amina", "s3cret"))

	m.Dispose()
	require.Equal(t, session.StateUnknown, m.State())

	access, _ := store.AccessToken(ctx)
	require.Equal(t, "access-1", access)

	// A fresh manager over the same store restores the session.
	restored := newManager(f, store)
	require.NoError(t, restored.Init(ctx))
	require.Equal(t, session.StateAuthenticated, restored.State())
}

func TestSignOutDuringRefreshStaysSignedOut(t *testing.T) {
	f := newFakeRemote(t)
	store := credstore.NewMemoryStore()
	m := newManager(f, store)
	ctx := context.Background()
	require.NoError(t, m.SignIn(ctx, "amina", "s3cret"))

	gate := make(chan struct{})
	f.set(func(f *fakeRemote) {
		f.validAccess = "rotated"
		f.refreshGate = gate
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if resp, err := m.Client().Request(ctx, "/orphans/", apiclient.RequestOptions{}); err == nil {
			resp.Body.Close()
		}
	}()

	require.Eventually(t, m.Client().Refreshing, time.Second, 5*time.Millisecond)
	require.NoError(t, m.SignOut(ctx))
	close(gate)
	<-done

	require.Equal(t, session.StateAnonymous, m.State())
	requireEmptyStore(t, store)

	restored := newManager(f, store)
	require.NoError(t, restored.Init(ctx))
	require.Equal(t, session.StateAnonymous, restored.State())
}

func TestChangePassword(t *testing.T) {
	f := newFakeRemote(t)
	m := newManager(f, credstore.NewMemoryStore())
	ctx := context.Background()

	err := m.ChangePassword(ctx, "s3cret", "n3w-passw0rd")
	require.ErrorIs(t, err, errors.ErrNotAuthenticated)

	require.NoError(t, m.SignIn(ctx, "amina", "s3cret"))

	require.ErrorIs(t, m.ChangePassword(ctx, "s3cret", "short"), errors.ErrValidation)
	require.ErrorContains(t, m.ChangePassword(ctx, "s3cret", "short"), "new password must be at least 8 characters")
	require.ErrorContains(t, m.ChangePassword(ctx, "", "n3w-passw0rd"), "current password is required")
	require.ErrorContains(t, m.ChangePassword(ctx, "n3w-passw0rd", "n3w-passw0rd"), "new password must differ from the current one")
	require.ErrorIs(t, m.ChangePassword(ctx, "s3cret", "s3cret"), errors.ErrValidation)
	require.ErrorIs(t, m.ChangePassword(ctx, "wrong-old", "n3w-passw0rd"), errors.ErrValidation)

	require.NoError(t, m.ChangePassword(ctx, "s3cret", "n3w-passw0rd"))
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Equal(t, "n3w-passw0rd", f.lastPassword["new_password"])
	require.Equal(t, "n3w-passw0rd", f.lastPassword["confirm_password"])
}

func TestUpdateProfile(t *testing.T) {
	f := newFakeRemote(t)
	store := credstore.NewMemoryStore()
	m := newManager(f, store)
	ctx := context.Background()
	require.NoError(t, m.SignIn(ctx, "amina", "s3cret"))

	_, err := m.UpdateProfile(ctx, session.ProfileUpdate{Email: "not-an-address"})
	require.ErrorIs(t, err, errors.ErrValidation)
	require.ErrorContains(t, err, "email address is not valid")
	_, err = m.UpdateProfile(ctx, session.ProfileUpdate{Email: "amina@@example"})
	require.ErrorIs(t, err, errors.ErrValidation)

	id, err := m.UpdateProfile(ctx, session.ProfileUpdate{FullName: " Amina Y. "})
	require.NoError(t, err)
	require.Equal(t, "Amina Y.", id.DisplayName)

	_, current := m.Snapshot()
	require.Equal(t, "Amina Y.", current.DisplayName)
	cached, err := store.CachedIdentity(ctx)
	require.NoError(t, err)
	require.Equal(t, "Amina Y.", cached.DisplayName)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "restoring", session.StateRestoring.String())
	require.Equal(t, "unknown", session.State(42).String())
}
