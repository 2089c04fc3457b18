package auth

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

const serviceName = "booth"

// KeyringBackend stores secrets in the system keychain.
type KeyringBackend struct {
	service string
}

func (k *KeyringBackend) Get(key string) (string, error) {
	v, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return v, err
}

func (k *KeyringBackend) Set(key, value string) error {
	return keyring.Set(k.service, key, value)
}

func (k *KeyringBackend) Delete(key string) error {
	err := keyring.Delete(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// NewBackend picks the system keyring when it is usable, otherwise the
// plaintext file fallback under dir.
func NewBackend(dir string, noKeyring bool, logger *slog.Logger) Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if noKeyring {
		return NewFileBackend(dir)
	}

	// Probe the keyring with a throwaway entry.
	testKey := fmt.Sprintf("%s::probe", serviceName)
	if err := keyring.Set(serviceName, testKey, "probe"); err == nil {
		_ = keyring.Delete(serviceName, testKey)
		return &KeyringBackend{service: serviceName}
	}

	fb := NewFileBackend(dir)
	logger.Warn("system keyring unavailable, credentials stored in plaintext",
		slog.String("component", "auth"),
		slog.String("path", fb.Path()))
	return fb
}
