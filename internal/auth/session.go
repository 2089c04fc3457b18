package auth

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Navigator sends the user to sign in. The CLI prints a hint; a GUI would
// switch screens.
type Navigator interface {
	NavigateToSignIn(ctx context.Context) error
}

// CacheClearer is a cache that must be emptied when the session ends.
type CacheClearer interface {
	Clear() error
}

// Session coordinates what happens when credentials are gone.
//
// Many requests can fail at once; only the first Expire after a Reset
// navigates. The guard stays set until credentials are saved again or the
// navigation itself fails.
type Session struct {
	redirecting atomic.Bool

	mu        sync.RWMutex
	navigator Navigator
	caches    []CacheClearer

	logger *slog.Logger
}

// NewSession creates a session controller with no navigator.
func NewSession(logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{logger: logger.With(slog.String("component", "session"))}
}

// SetNavigator registers the sign-in navigator.
func (s *Session) SetNavigator(n Navigator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigator = n
}

// RegisterCache adds a cache to be cleared on expiry.
func (s *Session) RegisterCache(c CacheClearer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caches = append(s.caches, c)
}

// Expire ends the session: dependent caches are cleared and the navigator is
// invoked. Calls while a redirect is already under way are no-ops.
func (s *Session) Expire(ctx context.Context) {
	if !s.redirecting.CompareAndSwap(false, true) {
		return
	}

	s.ClearCaches()

	s.mu.RLock()
	nav := s.navigator
	s.mu.RUnlock()

	if nav == nil {
		s.logger.Debug("session expired with no navigator registered")
		return
	}
	if err := nav.NavigateToSignIn(ctx); err != nil {
		s.logger.Error("navigation to sign-in failed", slog.Any("error", err))
		s.redirecting.Store(false)
	}
}

// ClearCaches empties every registered cache. Failures are logged.
func (s *Session) ClearCaches() {
	s.mu.RLock()
	caches := append([]CacheClearer(nil), s.caches...)
	s.mu.RUnlock()

	for _, c := range caches {
		if err := c.Clear(); err != nil {
			s.logger.Warn("cache clear failed", slog.Any("error", err))
		}
	}
}

// Reset clears the redirect guard. Called after credentials are saved.
func (s *Session) Reset() {
	s.redirecting.Store(false)
}

// Redirecting reports whether an expiry redirect is in effect.
func (s *Session) Redirecting() bool {
	return s.redirecting.Load()
}
