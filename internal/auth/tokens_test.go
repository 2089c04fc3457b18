package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapbooth/booth-cli/internal/output"
)

type refreshServer struct {
	*httptest.Server
	calls atomic.Int32
}

func newRefreshServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]string)) *refreshServer {
	t.Helper()
	rs := &refreshServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, RefreshPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		handler(w, body)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func newTestManager(baseURL string) (*TokenManager, *Store, *Session, *fakeNavigator) {
	store, _ := newMemoryStore()
	session := NewSession(nil)
	nav := &fakeNavigator{}
	session.SetNavigator(nav)
	return NewTokenManager(baseURL, store, session, nil), store, session, nav
}

func TestEnsureRefreshedSuccess(t *testing.T) {
	srv := newRefreshServer(t, func(w http.ResponseWriter, body map[string]string) {
		assert.Equal(t, "r1", body["refresh_token"])
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "a2", "refresh_token": "r2"})
	})
	m, store, session, _ := newTestManager(srv.URL)
	require.NoError(t, store.SaveTokens(Tokens{AccessToken: "a1", RefreshToken: "r1"}))
	session.redirecting.Store(true)

	ok := m.EnsureRefreshed(context.Background(), "a1")

	assert.True(t, ok)
	assert.Equal(t, Tokens{AccessToken: "a2", RefreshToken: "r2"}, store.Tokens())
	assert.False(t, session.Redirecting(), "successful refresh resets the guard")
	assert.Equal(t, int64(1), m.RefreshCount())
}

func TestEnsureRefreshedKeepsRefreshTokenWhenOmitted(t *testing.T) {
	srv := newRefreshServer(t, func(w http.ResponseWriter, _ map[string]string) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "a2"})
	})
	m, store, _, _ := newTestManager(srv.URL)
	require.NoError(t, store.SaveTokens(Tokens{AccessToken: "a1", RefreshToken: "r1"}))

	require.True(t, m.EnsureRefreshed(context.Background(), "a1"))
	assert.Equal(t, Tokens{AccessToken: "a2", RefreshToken: "r1"}, store.Tokens())
}

func TestEnsureRefreshedSingleFlight(t *testing.T) {
	release := make(chan struct{})
	srv := newRefreshServer(t, func(w http.ResponseWriter, _ map[string]string) {
		<-release
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "fresh", "refresh_token": "r2"})
	})
	m, store, _, _ := newTestManager(srv.URL)
	require.NoError(t, store.SaveTokens(Tokens{AccessToken: "stale", RefreshToken: "r1"}))

	const callers = 5
	results := make([]bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.EnsureRefreshed(context.Background(), "stale")
		}(i)
	}

	// Let the exchange start before releasing it.
	require.Eventually(t, func() bool { return srv.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), srv.calls.Load())
	for i, ok := range results {
		assert.True(t, ok, "caller %d", i)
	}
	assert.Equal(t, "fresh", store.Get(KeyAccessToken))
}

func TestEnsureRefreshedSkipsWhenTokenAlreadyRotated(t *testing.T) {
	srv := newRefreshServer(t, func(w http.ResponseWriter, _ map[string]string) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	m, store, _, _ := newTestManager(srv.URL)
	require.NoError(t, store.SaveTokens(Tokens{AccessToken: "newer", RefreshToken: "r1"}))

	assert.True(t, m.EnsureRefreshed(context.Background(), "older"))
	assert.Equal(t, int32(0), srv.calls.Load())
}

func TestEnsureRefreshedFailureClearsTokens(t *testing.T) {
	tests := []struct {
		name    string
		handler func(w http.ResponseWriter, body map[string]string)
	}{
		{"rejected", func(w http.ResponseWriter, _ map[string]string) {
			w.WriteHeader(http.StatusUnauthorized)
		}},
		{"malformed", func(w http.ResponseWriter, _ map[string]string) {
			_, _ = w.Write([]byte("<html>oops</html>"))
		}},
		{"missing access token", func(w http.ResponseWriter, _ map[string]string) {
			_ = json.NewEncoder(w).Encode(map[string]string{"refresh_token": "r2"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newRefreshServer(t, tt.handler)
			m, store, session, nav := newTestManager(srv.URL)
			require.NoError(t, store.SaveTokens(Tokens{AccessToken: "a1", RefreshToken: "r1"}))
			require.NoError(t, store.SaveProfile(&Profile{ID: "u1"}))

			ok := m.EnsureRefreshed(context.Background(), "a1")

			assert.False(t, ok)
			assert.Equal(t, Tokens{}, store.Tokens())
			assert.NotNil(t, store.Profile(), "profile survives a failed refresh")
			assert.True(t, session.Redirecting())
			assert.Equal(t, int32(1), nav.calls.Load())
		})
	}
}

func TestEnsureRefreshedWithoutRefreshToken(t *testing.T) {
	srv := newRefreshServer(t, func(w http.ResponseWriter, _ map[string]string) {
		t.Error("no exchange expected")
	})
	m, store, _, nav := newTestManager(srv.URL)
	require.NoError(t, store.Set(KeyAccessToken, "a1"))

	assert.False(t, m.EnsureRefreshed(context.Background(), "a1"))
	assert.Equal(t, "", store.Get(KeyAccessToken))
	assert.Equal(t, int32(1), nav.calls.Load())
	assert.Equal(t, int64(0), m.RefreshCount())
}

func TestEnsureRefreshedTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	m, store, _, _ := newTestManager(url)
	require.NoError(t, store.SaveTokens(Tokens{AccessToken: "a1", RefreshToken: "r1"}))

	assert.False(t, m.EnsureRefreshed(context.Background(), "a1"))
	assert.Equal(t, Tokens{}, store.Tokens())
}

func TestEnsureRefreshedIgnoresCallerCancellation(t *testing.T) {
	srv := newRefreshServer(t, func(w http.ResponseWriter, _ map[string]string) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "a2"})
	})
	m, store, _, _ := newTestManager(srv.URL)
	require.NoError(t, store.SaveTokens(Tokens{AccessToken: "a1", RefreshToken: "r1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.True(t, m.EnsureRefreshed(ctx, "a1"))
	assert.Equal(t, "a2", store.Get(KeyAccessToken))
}

func TestRefreshExplicit(t *testing.T) {
	srv := newRefreshServer(t, func(w http.ResponseWriter, _ map[string]string) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "a2"})
	})
	m, store, _, _ := newTestManager(srv.URL)
	require.NoError(t, store.SaveTokens(Tokens{AccessToken: "a1", RefreshToken: "r1"}))

	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, "a2", store.Get(KeyAccessToken))
}

func TestRefreshExplicitFailureIsSessionExpired(t *testing.T) {
	m, _, _, _ := newTestManager("http://127.0.0.1:1")

	err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, output.IsSessionExpired(err))
}

func TestRefreshWithoutBaseURL(t *testing.T) {
	m, _, _, _ := newTestManager("")

	err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, output.CodeConfig, output.AsError(err).Code)
}

type recordingObserver struct {
	mu      sync.Mutex
	results []bool
}

func (r *recordingObserver) OnRefresh(success bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, success)
}

func TestRefreshObserver(t *testing.T) {
	srv := newRefreshServer(t, func(w http.ResponseWriter, _ map[string]string) {
		w.WriteHeader(http.StatusBadRequest)
	})
	m, store, _, _ := newTestManager(srv.URL)
	obs := &recordingObserver{}
	m.SetObserver(obs)
	require.NoError(t, store.SaveTokens(Tokens{AccessToken: "a1", RefreshToken: "r1"}))

	m.EnsureRefreshed(context.Background(), "a1")

	assert.Equal(t, []bool{false}, obs.results)
}
