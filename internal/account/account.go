// Package account implements the flows that create, verify and discard a
// credential pair: password sign-in, sign-up, email verification, password
// reset, OAuth login and sign-out.
package account

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/snapbooth/booth-cli/internal/api"
	"github.com/snapbooth/booth-cli/internal/auth"
	"github.com/snapbooth/booth-cli/internal/output"
)

// Endpoints.
const (
	PathSignIn         = "/api/v1/auth/sign-in"
	PathSignUp         = "/api/v1/auth/sign-up"
	PathVerifyEmail    = "/api/v1/auth/verify-email"
	PathForgotPassword = "/api/v1/auth/forgot-password"
	PathResetPassword  = "/api/v1/auth/reset-password"
	PathMe             = "/api/v1/users/me"
)

// Service runs account flows over the request layer.
type Service struct {
	client  *api.Client
	store   *auth.Store
	session *auth.Session
	logger  *slog.Logger

	// Out receives progress messages for interactive flows.
	Out io.Writer

	// Browser opens a URL. Defaults to the platform opener.
	Browser func(url string) error
}

// NewService creates an account service.
func NewService(client *api.Client, store *auth.Store, session *auth.Session) *Service {
	return &Service{
		client:  client,
		store:   store,
		session: session,
		logger:  slog.Default().With(slog.String("component", "account")),
		Out:     os.Stderr,
		Browser: openBrowser,
	}
}

// SetLogger replaces the logger.
func (s *Service) SetLogger(l *slog.Logger) {
	s.logger = l.With(slog.String("component", "account"))
}

// AuthResult is the body returned by flows that issue credentials.
type AuthResult struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	User         *auth.Profile `json:"user,omitempty"`
}

// SignIn exchanges email and password for a credential pair.
func (s *Service) SignIn(ctx context.Context, email, password string) (*auth.Profile, error) {
	resp, err := s.client.Post(ctx, PathSignIn, map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, resp)
}

// SignUpRequest registers a new account.
type SignUpRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name,omitempty"`
	BusinessName string `json:"business_name,omitempty"`
}

// SignUpResult is the server's answer to a registration.
type SignUpResult struct {
	Message string `json:"message,omitempty"`
	Email   string `json:"email,omitempty"`
}

// SignUp registers an account. The registration is kept as the pending
// secret so the verification email can be resent.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error) {
	result, err := s.postSignUp(ctx, req)
	if err != nil {
		return nil, err
	}

	secret, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := s.store.SavePendingSecret(string(secret)); err != nil {
		s.logger.Warn("could not keep pending sign-up", slog.Any("error", err))
	}
	return result, nil
}

// ResendVerification re-issues the pending sign-up so the server sends a
// new verification email.
func (s *Service) ResendVerification(ctx context.Context) (*SignUpResult, error) {
	raw := s.store.PendingSecret()
	if raw == "" {
		return nil, output.ErrUsageHint("No sign-up is awaiting verification", "Run: booth auth signup")
	}

	var req SignUpRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil || req.Email == "" {
		s.store.ClearPendingSecret()
		return nil, output.ErrUsageHint("The pending sign-up could not be read", "Run: booth auth signup")
	}
	return s.postSignUp(ctx, req)
}

// PendingEmail returns the address of the sign-up awaiting verification.
func (s *Service) PendingEmail() string {
	var req SignUpRequest
	if err := json.Unmarshal([]byte(s.store.PendingSecret()), &req); err != nil {
		return ""
	}
	return req.Email
}

func (s *Service) postSignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error) {
	resp, err := s.client.Post(ctx, PathSignUp, req)
	if err != nil {
		return nil, err
	}
	result := &SignUpResult{Email: req.Email}
	if len(resp.Data) > 0 {
		if err := resp.UnmarshalData(result); err != nil {
			return nil, output.ErrHTTP(resp.StatusCode, "Unexpected sign-up response")
		}
	}
	return result, nil
}

// VerifyEmail confirms an address. When the server signs the user in as part
// of verification the credentials are saved and the profile returned.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*auth.Profile, error) {
	resp, err := s.client.Post(ctx, PathVerifyEmail, map[string]string{"token": token})
	if err != nil {
		return nil, err
	}
	s.store.ClearPendingSecret()

	var result AuthResult
	if len(resp.Data) == 0 || resp.UnmarshalData(&result) != nil || result.AccessToken == "" {
		return nil, nil
	}
	return s.establish(ctx, resp)
}

// ForgotPassword requests a password reset email.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	_, err := s.client.Post(ctx, PathForgotPassword, map[string]string{"email": email})
	return err
}

// ResetPassword sets a new password using the token from the reset email.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	_, err := s.client.Post(ctx, PathResetPassword, map[string]string{
		"token":        token,
		"new_password": password,
	})
	return err
}

// Me fetches the signed-in user and refreshes the cached profile.
func (s *Service) Me(ctx context.Context) (*auth.Profile, error) {
	resp, err := s.client.Get(ctx, PathMe)
	if err != nil {
		return nil, err
	}
	var p auth.Profile
	if err := resp.UnmarshalData(&p); err != nil {
		return nil, output.ErrHTTP(resp.StatusCode, "Unexpected profile response")
	}
	if err := s.store.SaveProfile(&p); err != nil {
		s.logger.Warn("could not cache profile", slog.Any("error", err))
	}
	return &p, nil
}

// CachedProfile returns the profile saved at sign-in, if any.
func (s *Service) CachedProfile() *auth.Profile {
	return s.store.Profile()
}

// SignedIn reports whether an access token is stored.
func (s *Service) SignedIn() bool {
	return s.store.Get(auth.KeyAccessToken) != ""
}

// SignOut discards the credential pair and cached profile, and empties
// dependent caches.
func (s *Service) SignOut() {
	s.store.ClearTokens()
	s.store.Delete(auth.KeyUserProfile)
	s.session.ClearCaches()
}

// ClearAllData removes everything the store holds for this origin,
// including a pending sign-up.
func (s *Service) ClearAllData() {
	s.store.ClearAll()
	s.session.ClearCaches()
}

// establish saves the credentials in resp and returns the user's profile.
func (s *Service) establish(ctx context.Context, resp *api.Response) (*auth.Profile, error) {
	var result AuthResult
	if err := resp.UnmarshalData(&result); err != nil || result.AccessToken == "" {
		return nil, output.ErrHTTP(resp.StatusCode, "The server did not return credentials")
	}

	if err := s.store.SaveTokens(auth.Tokens{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}); err != nil {
		return nil, output.ErrConfig("Could not save credentials", err.Error())
	}
	s.session.Reset()

	if result.User != nil {
		if err := s.store.SaveProfile(result.User); err != nil {
			s.logger.Warn("could not cache profile", slog.Any("error", err))
		}
		return result.User, nil
	}

	p, err := s.Me(ctx)
	if err != nil {
		// Signed in even if the profile lookup failed.
		s.logger.Debug("profile lookup after sign-in failed", slog.Any("error", err))
		return &auth.Profile{}, nil
	}
	return p, nil
}
