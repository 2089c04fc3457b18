package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/snapbooth/booth-cli/internal/output"
)

// RefreshPath is the token refresh endpoint.
const RefreshPath = "/api/v1/auth/refresh-token"

const refreshKey = "refresh"

// RefreshObserver is notified after each refresh exchange with the server.
type RefreshObserver interface {
	OnRefresh(success bool, duration time.Duration)
}

// TokenManager exchanges the refresh token for a new access token. At most
// one exchange is in flight; concurrent callers share its outcome.
type TokenManager struct {
	baseURL    string
	store      *Store
	session    *Session
	httpClient *http.Client
	userAgent  string
	observer   RefreshObserver
	logger     *slog.Logger

	group     singleflight.Group
	refreshes atomic.Int64
}

// NewTokenManager creates a token manager for the API at baseURL.
func NewTokenManager(baseURL string, store *Store, session *Session, httpClient *http.Client) *TokenManager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenManager{
		baseURL:    baseURL,
		store:      store,
		session:    session,
		httpClient: httpClient,
		logger:     slog.Default().With(slog.String("component", "token-manager")),
	}
}

// SetUserAgent sets the User-Agent sent with refresh requests.
func (m *TokenManager) SetUserAgent(ua string) { m.userAgent = ua }

// SetObserver registers a refresh observer.
func (m *TokenManager) SetObserver(o RefreshObserver) { m.observer = o }

// SetLogger replaces the logger.
func (m *TokenManager) SetLogger(l *slog.Logger) {
	m.logger = l.With(slog.String("component", "token-manager"))
}

// RefreshCount returns the number of refresh exchanges issued.
func (m *TokenManager) RefreshCount() int64 {
	return m.refreshes.Load()
}

// EnsureRefreshed makes sure a fresh access token is stored, given that
// staleToken was just rejected. It returns true when the caller may retry.
//
// If the stored token already differs from staleToken another caller has
// refreshed in the meantime and no exchange is made.
func (m *TokenManager) EnsureRefreshed(ctx context.Context, staleToken string) bool {
	if current := m.store.Get(KeyAccessToken); current != "" && current != staleToken {
		return true
	}
	return m.shared(ctx)
}

// Refresh forces an exchange, joining one already in flight.
func (m *TokenManager) Refresh(ctx context.Context) error {
	if m.baseURL == "" {
		return output.ErrConfig("No API URL configured", "Set BOOTH_API_URL or base_url in config")
	}
	if !m.shared(ctx) {
		return output.ErrSessionExpired("")
	}
	return nil
}

func (m *TokenManager) shared(ctx context.Context) bool {
	// The exchange outlives any single caller's cancellation.
	detached := context.WithoutCancel(ctx)
	v, _, _ := m.group.Do(refreshKey, func() (any, error) {
		return m.refresh(detached), nil
	})
	return v.(bool)
}

// refresh runs one exchange. Any failure clears the credential pair and
// expires the session.
func (m *TokenManager) refresh(ctx context.Context) bool {
	refreshToken := m.store.Get(KeyRefreshToken)
	if refreshToken == "" {
		m.logger.Debug("no refresh token stored")
		m.fail(ctx)
		return false
	}

	m.refreshes.Add(1)
	start := time.Now()
	tokens, err := m.exchange(ctx, refreshToken)
	if m.observer != nil {
		m.observer.OnRefresh(err == nil, time.Since(start))
	}
	if err != nil {
		m.logger.Warn("token refresh failed", slog.Any("error", err))
		m.fail(ctx)
		return false
	}

	if err := m.store.SaveTokens(tokens); err != nil {
		m.logger.Error("persisting refreshed tokens failed", slog.Any("error", err))
		m.fail(ctx)
		return false
	}

	m.session.Reset()
	m.logger.Debug("token refreshed")
	return true
}

func (m *TokenManager) fail(ctx context.Context) {
	m.store.ClearTokens()
	m.session.Expire(ctx)
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (m *TokenManager) exchange(ctx context.Context, refreshToken string) (Tokens, error) {
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return Tokens{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+RefreshPath, bytes.NewReader(body))
	if err != nil {
		return Tokens{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if m.userAgent != "" {
		req.Header.Set("User-Agent", m.userAgent)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Tokens{}, fmt.Errorf("reading refresh response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Tokens{}, fmt.Errorf("refresh rejected: %s", resp.Status)
	}

	var tr refreshResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return Tokens{}, fmt.Errorf("decoding refresh response: %w", err)
	}
	if tr.AccessToken == "" {
		return Tokens{}, fmt.Errorf("refresh response has no access_token")
	}
	return Tokens{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken}, nil
}
