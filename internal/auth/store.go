// Package auth owns the credential lifecycle: persisted tokens, the
// single-flight refresh protocol and session expiry.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Credential keys.
const (
	KeyAccessToken   = "access_token"
	KeyRefreshToken  = "refresh_token"
	KeyUserProfile   = "user_profile"
	KeyPendingSecret = "pending_secret"
)

var allKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUserProfile, KeyPendingSecret}

// Tokens is the credential pair issued at sign-in. Both values are opaque.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Profile is the cached identity of the signed-in user.
type Profile struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name,omitempty"`
	BusinessName string `json:"business_name,omitempty"`
	Role         string `json:"role,omitempty"`
	Verified     bool   `json:"is_verified,omitempty"`
}

// Store is the credential store for one API origin.
//
// Reads never fail: a missing or unreadable entry is the empty string.
// Deletes never fail either; backend errors are logged and swallowed.
type Store struct {
	backend Backend
	origin  string
	logger  *slog.Logger
}

// NewStore creates a store scoped to origin.
func NewStore(origin string, backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		origin:  origin,
		logger:  logger.With(slog.String("component", "credential-store")),
	}
}

// Origin returns the API origin this store is scoped to.
func (s *Store) Origin() string {
	return s.origin
}

func (s *Store) key(name string) string {
	return fmt.Sprintf("%s::%s::%s", serviceName, s.origin, name)
}

// Get returns the value for key, or "" if absent or unreadable.
func (s *Store) Get(key string) string {
	v, err := s.backend.Get(s.key(key))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("credential read failed", slog.String("key", key), slog.Any("error", err))
		}
		return ""
	}
	return v
}

// Set persists value under key.
func (s *Store) Set(key, value string) error {
	if err := s.backend.Set(s.key(key), value); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(key string) {
	if err := s.backend.Delete(s.key(key)); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Warn("credential delete failed", slog.String("key", key), slog.Any("error", err))
	}
}

// Tokens returns the stored credential pair. Fields are empty when absent.
func (s *Store) Tokens() Tokens {
	return Tokens{
		AccessToken:  s.Get(KeyAccessToken),
		RefreshToken: s.Get(KeyRefreshToken),
	}
}

// SaveTokens persists a credential pair. An empty refresh token keeps the
// existing one.
func (s *Store) SaveTokens(t Tokens) error {
	if err := s.Set(KeyAccessToken, t.AccessToken); err != nil {
		return err
	}
	if t.RefreshToken != "" {
		return s.Set(KeyRefreshToken, t.RefreshToken)
	}
	return nil
}

// ClearTokens removes both tokens.
func (s *Store) ClearTokens() {
	s.Delete(KeyAccessToken)
	s.Delete(KeyRefreshToken)
}

// ClearAll removes every key owned by the store.
func (s *Store) ClearAll() {
	for _, k := range allKeys {
		s.Delete(k)
	}
}

// Profile returns the cached profile, or nil if absent or undecodable.
func (s *Store) Profile() *Profile {
	raw := s.Get(KeyUserProfile)
	if raw == "" {
		return nil
	}
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Debug("discarding undecodable profile", slog.Any("error", err))
		return nil
	}
	return &p
}

// SaveProfile caches p.
func (s *Store) SaveProfile(p *Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.Set(KeyUserProfile, string(data))
}

// PendingSecret returns the secret held between sign-up and verification.
func (s *Store) PendingSecret() string {
	return s.Get(KeyPendingSecret)
}

// SavePendingSecret stores the secret used to resend verification.
func (s *Store) SavePendingSecret(secret string) error {
	return s.Set(KeyPendingSecret, secret)
}

// ClearPendingSecret removes the pending secret.
func (s *Store) ClearPendingSecret() {
	s.Delete(KeyPendingSecret)
}
