package apiclient_test

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

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/betul-abla-portal/apiclient"
	"github.com/jrsteele09/betul-abla-portal/credstore"
	"github.com/jrsteele09/betul-abla-portal/identity"
	"github.com/jrsteele09/betul-abla-portal/internal/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// fakeRemote stands in for the remote data service.
type fakeRemote struct {
	srv *httptest.Server

	mu            sync.Mutex
	validToken    string
	newAccess     string
	refreshStatus int
	refreshGate   chan struct{}
	seenTokens    []string

	refreshCalls atomic.Int32
}

func newFakeRemote(t *testing.T) *fakeRemote {
	t.Helper()
	f := &fakeRemote{validToken: "fresh-access", newAccess: "fresh-access", refreshStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		f.mu.Lock()
		gate, status, access := f.refreshGate, f.refreshStatus, f.newAccess
		f.mu.Unlock()

		// Reading the body first lets the server notice a client that gives up.
		raw, _ := io.ReadAll(r.Body)
		var body struct {
			Refresh string `json:"refresh"`
		}
		_ = json.Unmarshal(raw, &body)
		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		if status != http.StatusOK || body.Refresh != "refresh-r" {
			http.Error(w, `{"detail":"Token is invalid or expired"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access": access})
	})
	mux.HandleFunc("POST /api/token/", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Username != "amina" || body.Password != "s3cret" {
			http.Error(w, `{"detail":"No active account found with the given credentials"}`, http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access": "fresh-access", "refresh": "refresh-r"})
	})
	mux.HandleFunc("/api/orphans/", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		f.mu.Lock()
		f.seenTokens = append(f.seenTokens, auth)
		valid := f.validToken
		f.mu.Unlock()

		if auth != "Bearer "+valid {
			http.Error(w, `{"detail":"Given token not valid for any token type"}`, http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"method": r.Method,
			"body":   string(body),
			"query":  r.URL.RawQuery,
			"trace":  r.Header.Get("X-Trace"),
		})
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRemote) config() apiclient.Config {
	return apiclient.Config{
		BaseURL:         f.srv.URL + "/api",
		LoginEndpoint:   "/token/",
		RefreshEndpoint: "/token/refresh/",
		RequestTimeout:  5 * time.Second,
		RefreshTimeout:  2 * time.Second,
	}
}

type logoutRecorder struct {
	mu      sync.Mutex
	reasons []apiclient.LogoutReason
}

func (l *logoutRecorder) hook(_ context.Context, reason apiclient.LogoutReason) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reasons = append(l.reasons, reason)
}

func (l *logoutRecorder) calls() []apiclient.LogoutReason {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]apiclient.LogoutReason(nil), l.reasons...)
}

func newClient(t *testing.T, f *fakeRemote, store credstore.Store, opts ...apiclient.Option) (*apiclient.Client, *logoutRecorder) {
	t.Helper()
	rec := &logoutRecorder{}
	opts = append([]apiclient.Option{
		apiclient.WithLogoutHook(rec.hook),
		apiclient.WithLogger(zerolog.Nop()),
	}, opts...)
	return apiclient.New(f.config(), store, opts...), rec
}

func storeWith(t *testing.T, access, refresh string) credstore.Store {
	t.Helper()
	s := credstore.NewMemoryStore()
	require.NoError(t, s.SetTokens(context.Background(), access, refresh))
	return s
}

func TestRequest_AttachesBearerAndMergesOptions(t *testing.T) {
	f := newFakeRemote(t)
	c, _ := newClient(t, f, storeWith(t, "fresh-access", "refresh-r"))

	resp, err := c.Request(context.Background(), "/orphans/", apiclient.RequestOptions{
		Method: http.MethodPost,
		Header: http.Header{"X-Trace": []string{"abc"}},
		Query:  map[string][]string{"status": {"active"}},
		Body:   []byte(`{"full_name":"Hassan"}`),
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var echo map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&echo))
	require.Equal(t, http.MethodPost, echo["method"])
	require.Equal(t, `{"full_name":"Hassan"}`, echo["body"])
	require.Equal(t, "status=active", echo["query"])
	require.Equal(t, "abc", echo["trace"])
	require.EqualValues(t, 0, f.refreshCalls.Load())
}

func TestRequest_AnonymousUnauthorizedIsReturnedWithoutRefresh(t *testing.T) {
	f := newFakeRemote(t)
	c, rec := newClient(t, f, credstore.NewMemoryStore())

	resp, err := c.Request(context.Background(), "/orphans/", apiclient.RequestOptions{})
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.EqualValues(t, 0, f.refreshCalls.Load())
	require.Empty(t, rec.calls())
}

func TestRequest_RefreshesAndRetriesOnce(t *testing.T) {
	f := newFakeRemote(t)
	store := storeWith(t, "stale-access", "refresh-r")
	c, rec := newClient(t, f, store)

	resp, err := c.Request(context.Background(), "/orphans/", apiclient.RequestOptions{Method: http.MethodPut, Body: []byte(`{"n":1}`)})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var echo map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&echo))
	require.Equal(t, `{"n":1}`, echo["body"], "body is replayed on retry")

	access, _ := store.AccessToken(context.Background())
	refresh, _ := store.RefreshToken(context.Background())
	require.Equal(t, "fresh-access", access)
	require.Equal(t, "refresh-r", refresh, "refresh token does not rotate")
	require.EqualValues(t, 1, f.refreshCalls.Load())
	require.Empty(t, rec.calls())
	require.False(t, c.Refreshing())
}

func TestRequest_RetryThatFailsAgainIsReturned(t *testing.T) {
	f := newFakeRemote(t)
	f.newAccess = "still-not-valid"
	c, rec := newClient(t, f, storeWith(t, "stale-access", "refresh-r"))

	resp, err := c.Request(context.Background(), "/orphans/", apiclient.RequestOptions{})
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.EqualValues(t, 1, f.refreshCalls.Load())
	require.Empty(t, rec.calls())
}

func TestRequest_ConcurrentUnauthorizedCallsShareOneRefresh(t *testing.T) {
	const callers = 8

	f := newFakeRemote(t)
	f.refreshGate = make(chan struct{})
	c, rec := newClient(t, f, storeWith(t, "stale-access", "refresh-r"))

	var g errgroup.Group
	statuses := make([]int, callers)
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			resp, err := c.Request(context.Background(), "/orphans/", apiclient.RequestOptions{})
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			statuses[i] = resp.StatusCode
			return nil
		})
	}

	require.Eventually(t, func() bool {
		return c.Stats().QueuedRequests == callers-1
	}, 2*time.Second, 5*time.Millisecond)
	require.True(t, c.Refreshing())
	close(f.refreshGate)

	require.NoError(t, g.Wait())
	for _, status := range statuses {
		require.Equal(t, http.StatusOK, status)
	}
	require.EqualValues(t, 1, f.refreshCalls.Load())
	require.Equal(t, 1, c.Stats().RefreshAttempts)
	require.False(t, c.Refreshing())
	require.Empty(t, rec.calls())
}

func TestRequest_RefreshFailureFailsEveryCallerAndLogsOut(t *testing.T) {
	const callers = 5

	f := newFakeRemote(t)
	f.refreshStatus = http.StatusUnauthorized
	f.refreshGate = make(chan struct{})
	store := storeWith(t, "stale-access", "refresh-r")
	require.NoError(t, store.SetIdentity(context.Background(), identity.Identity{ID: "1", Role: identity.RoleAdmin, IsActive: true}))
	c, rec := newClient(t, f, store)

	type result struct {
		status int
		err    error
	}
	results := make([]result, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			resp, err := c.Request(context.Background(), "/orphans/", apiclient.RequestOptions{})
			if resp != nil {
				results[i].status = resp.StatusCode
				resp.Body.Close()
			}
			results[i].err = err
			return nil
		})
	}

	require.Eventually(t, func() bool {
		return c.Stats().QueuedRequests == callers-1
	}, 2*time.Second, 5*time.Millisecond)
	close(f.refreshGate)
	require.NoError(t, g.Wait())

	var originators, rejected int
	for _, r := range results {
		switch {
		case r.err == nil:
			require.Equal(t, http.StatusUnauthorized, r.status)
			originators++
		default:
			require.ErrorIs(t, r.err, errors.ErrRefreshFailed)
			rejected++
		}
	}
	require.Equal(t, 1, originators)
	require.Equal(t, callers-1, rejected)

	tok, err := store.Credentials(context.Background())
	require.NoError(t, err)
	require.Nil(t, tok)
	id, err := store.CachedIdentity(context.Background())
	require.NoError(t, err)
	require.Nil(t, id)

	require.Equal(t, []apiclient.LogoutReason{apiclient.LogoutRefreshFailed}, rec.calls())
	require.EqualValues(t, 1, f.refreshCalls.Load())
	require.False(t, c.Refreshing())
}

func TestRequest_RefreshTimeoutCountsAsFailure(t *testing.T) {
	f := newFakeRemote(t)
	f.refreshGate = make(chan struct{}) // never released
	store := storeWith(t, "stale-access", "refresh-r")

	cfg := f.config()
	cfg.RefreshTimeout = 50 * time.Millisecond
	rec := &logoutRecorder{}
	c := apiclient.New(cfg, store, apiclient.WithLogoutHook(rec.hook), apiclient.WithLogger(zerolog.Nop()))

	resp, err := c.Request(context.Background(), "/orphans/", apiclient.RequestOptions{})
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.False(t, c.Refreshing())
	require.Equal(t, []apiclient.LogoutReason{apiclient.LogoutRefreshFailed}, rec.calls())
	access, _ := store.AccessToken(context.Background())
	require.Empty(t, access)
}

func TestRequest_CallerCancellationDoesNotAbortRefresh(t *testing.T) {
	f := newFakeRemote(t)
	f.refreshGate = make(chan struct{})
	store := storeWith(t, "stale-access", "refresh-r")
	c, rec := newClient(t, f, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := c.Request(ctx, "/orphans/", apiclient.RequestOptions{})
		if err == nil {
			resp.Body.Close()
		}
	}()

	require.Eventually(t, c.Refreshing, 2*time.Second, 5*time.Millisecond)
	cancel()
	close(f.refreshGate)
	<-done

	access, _ := store.AccessToken(context.Background())
	require.Equal(t, "fresh-access", access)
	require.Empty(t, rec.calls())
}

// loneAccessStore reports an access token without a refresh token.
type loneAccessStore struct {
	credstore.Store
	cleared atomic.Bool
}

func (s *loneAccessStore) AccessToken(context.Context) (string, error) {
	if s.cleared.Load() {
		return "", nil
	}
	return "stale-access", nil
}

func (s *loneAccessStore) Credentials(context.Context) (*oauth2.Token, error) {
	if s.cleared.Load() {
		return nil, nil
	}
	return &oauth2.Token{AccessToken: "stale-access"}, nil
}

func (s *loneAccessStore) Clear(context.Context) error {
	s.cleared.Store(true)
	return nil
}

func TestRequest_UnauthorizedWithoutRefreshTokenLogsOutImmediately(t *testing.T) {
	f := newFakeRemote(t)
	store := &loneAccessStore{Store: credstore.NewMemoryStore()}
	c, rec := newClient(t, f, store)

	resp, err := c.Request(context.Background(), "/orphans/", apiclient.RequestOptions{})
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.EqualValues(t, 0, f.refreshCalls.Load())
	require.True(t, store.cleared.Load())
	require.Equal(t, []apiclient.LogoutReason{apiclient.LogoutNoRefreshToken}, rec.calls())
}

// staleReadStore hands out an old access token on the first read, as if a
// refresh landed between the call reading its token and its 401 arriving.
type staleReadStore struct {
	credstore.Store
	reads atomic.Int32
}

func (s *staleReadStore) AccessToken(ctx context.Context) (string, error) {
	if s.reads.Add(1) == 1 {
		return "stale-access", nil
	}
	return s.Store.AccessToken(ctx)
}

func TestRequest_StaleCallReusesTokenFromCompletedRefresh(t *testing.T) {
	f := newFakeRemote(t)
	store := &staleReadStore{Store: storeWith(t, "fresh-access", "refresh-r")}
	c, rec := newClient(t, f, store)

	resp, err := c.Request(context.Background(), "/orphans/", apiclient.RequestOptions{})
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 0, f.refreshCalls.Load())
	require.Zero(t, c.Stats().RefreshAttempts)
	require.Empty(t, rec.calls())
}

func TestRequest_SignOutDuringRefreshIsNotUndone(t *testing.T) {
	f := newFakeRemote(t)
	f.refreshGate = make(chan struct{})
	store := storeWith(t, "stale-access", "refresh-r")
	c, rec := newClient(t, f, store)

	done := make(chan int, 1)
	go func() {
		resp, err := c.Request(context.Background(), "/orphans/", apiclient.RequestOptions{})
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()

	require.Eventually(t, c.Refreshing, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, store.Clear(context.Background()))
	close(f.refreshGate)

	require.Equal(t, http.StatusUnauthorized, <-done)
	tok, err := store.Credentials(context.Background())
	require.NoError(t, err)
	require.Nil(t, tok)
	require.False(t, c.Refreshing())
	require.Equal(t, 1, c.Stats().RefreshFailures)
	require.Empty(t, rec.calls(), "the sign-out already ended the session")
}

func TestRequest_NewSignInDuringRefreshIsKept(t *testing.T) {
	f := newFakeRemote(t)
	f.refreshGate = make(chan struct{})
	store := storeWith(t, "stale-access", "refresh-r")
	c, rec := newClient(t, f, store)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if resp, err := c.Request(context.Background(), "/orphans/", apiclient.RequestOptions{}); err == nil {
			resp.Body.Close()
		}
	}()

	require.Eventually(t, c.Refreshing, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, store.SetTokens(context.Background(), "other-access", "other-refresh"))
	close(f.refreshGate)
	<-done

	tok, err := store.Credentials(context.Background())
	require.NoError(t, err)
	require.Equal(t, "other-access", tok.AccessToken)
	require.Equal(t, "other-refresh", tok.RefreshToken)
	require.Empty(t, rec.calls())
}

func TestRequest_StaleUnauthorizedAfterLogoutDoesNotLogOutAgain(t *testing.T) {
	f := newFakeRemote(t)
	store := &staleReadStore{Store: credstore.NewMemoryStore()}
	c, rec := newClient(t, f, store)

	resp, err := c.Request(context.Background(), "/orphans/", apiclient.RequestOptions{})
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.EqualValues(t, 0, f.refreshCalls.Load())
	require.Zero(t, c.Stats().ForcedLogouts)
	require.Empty(t, rec.calls())
}

func TestRequest_BearerOverridesCallerAuthorization(t *testing.T) {
	f := newFakeRemote(t)
	c, _ := newClient(t, f, storeWith(t, "fresh-access", "refresh-r"))

	resp, err := c.Request(context.Background(), "/orphans/", apiclient.RequestOptions{
		Header: http.Header{"Authorization": []string{"Bearer caller-supplied"}},
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Equal(t, []string{"Bearer fresh-access"}, f.seenTokens)
}

func TestRequest_ExpiredJWTRefreshesBeforeSending(t *testing.T) {
	f := newFakeRemote(t)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte("remote"))
	require.NoError(t, err)

	c, _ := newClient(t, f, storeWith(t, expired, "refresh-r"))

	resp, err := c.Request(context.Background(), "/orphans/", apiclient.RequestOptions{})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Equal(t, []string{"Bearer fresh-access"}, f.seenTokens, "the expired token never reaches the service")
}

func TestRequest_ExpiredJWTWithFailedRefreshIsSessionExpired(t *testing.T) {
	f := newFakeRemote(t)
	f.refreshStatus = http.StatusUnauthorized
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte("remote"))
	require.NoError(t, err)

	c, rec := newClient(t, f, storeWith(t, expired, "refresh-r"))

	_, err = c.Request(context.Background(), "/orphans/", apiclient.RequestOptions{})
	require.ErrorIs(t, err, errors.ErrSessionExpired)
	require.ErrorIs(t, err, errors.ErrRefreshFailed)
	require.Equal(t, []apiclient.LogoutReason{apiclient.LogoutRefreshFailed}, rec.calls())
}

func TestRequest_NetworkErrorIsPropagated(t *testing.T) {
	f := newFakeRemote(t)
	c, _ := newClient(t, f, storeWith(t, "fresh-access", "refresh-r"))
	f.srv.Close()

	_, err := c.Request(context.Background(), "/orphans/", apiclient.RequestOptions{})
	require.Error(t, err)
}

func TestLogin(t *testing.T) {
	f := newFakeRemote(t)
	c, _ := newClient(t, f, credstore.NewMemoryStore())

	t.Run("valid credentials", func(t *testing.T) {
		pair, err := c.Login(context.Background(), "amina", "s3cret")
		require.NoError(t, err)
		require.Equal(t, apiclient.TokenPair{Access: "fresh-access", Refresh: "refresh-r"}, pair)
	})

	t.Run("rejected credentials", func(t *testing.T) {
		_, err := c.Login(context.Background(), "amina", "wrong")
		require.ErrorIs(t, err, errors.ErrInvalidCredentials)

		var statusErr *apiclient.StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	})
}

func TestDoJSON(t *testing.T) {
	f := newFakeRemote(t)

	t.Run("decodes 2xx", func(t *testing.T) {
		c, _ := newClient(t, f, storeWith(t, "fresh-access", "refresh-r"))
		var out map[string]string
		err := c.DoJSON(context.Background(), http.MethodPost, "/orphans/", nil, map[string]string{"a": "b"}, &out)
		require.NoError(t, err)
		require.Equal(t, `{"a":"b"}`, out["body"])
	})

	t.Run("non-2xx becomes StatusError", func(t *testing.T) {
		c, _ := newClient(t, f, credstore.NewMemoryStore())
		err := c.DoJSON(context.Background(), http.MethodGet, "/orphans/", nil, nil, nil)
		var statusErr *apiclient.StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	})
}
