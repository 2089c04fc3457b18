package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// SettableKeys are the keys accepted by SetValue.
var SettableKeys = []string{"base_url", "cache_dir", "no_keyring", "format", "stats", "callback_port"}

// SetValue writes key=value into the config file at path, preserving the
// other keys already there.
func SetValue(path, key, value string) error {
	doc := map[string]any{}
	if data, err := os.ReadFile(path); err == nil { //nolint:gosec // G304: trusted config location
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config %s: %w", path, err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	switch key {
	case "base_url":
		doc[key] = NormalizeBaseURL(value)
	case "cache_dir", "format":
		doc[key] = value
	case "no_keyring", "stats":
		b, ok := parseEnvBool(value)
		if !ok {
			return fmt.Errorf("%s must be true or false", key)
		}
		doc[key] = b
	case "callback_port":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 || n >= 65536 {
			return fmt.Errorf("callback_port must be a port number")
		}
		doc[key] = n
	default:
		return fmt.Errorf("unknown config key %q", key)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
