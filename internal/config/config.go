// Package config provides layered configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCallbackPort is the local port that receives OAuth redirects.
const DefaultCallbackPort = 8976

// Config holds the resolved configuration.
type Config struct {
	// BaseURL is the API origin, e.g. https://api.snapbooth.io. There is no
	// default; requests fail with a config error until it is set.
	BaseURL string `yaml:"base_url,omitempty"`

	CacheDir  string `yaml:"cache_dir,omitempty"`
	ConfigDir string `yaml:"-"`

	// NoKeyring stores credentials in a plaintext file instead of the
	// system keychain.
	NoKeyring bool `yaml:"no_keyring,omitempty"`

	Format string `yaml:"format,omitempty"`
	Stats  *bool  `yaml:"stats,omitempty"`

	CallbackPort int `yaml:"callback_port,omitempty"`

	// Sources tracks where each value came from.
	Sources map[string]string `yaml:"-"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceGlobal  Source = "global"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// FlagOverrides holds command-line flag values.
type FlagOverrides struct {
	BaseURL  string
	CacheDir string
	Format   string
}

// Default returns the default configuration.
func Default() *Config {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}

	return &Config{
		CacheDir:     filepath.Join(cacheDir, "booth"),
		ConfigDir:    GlobalConfigDir(),
		Format:       "auto",
		CallbackPort: DefaultCallbackPort,
		Sources:      make(map[string]string),
	}
}

// Load resolves configuration.
// Precedence: flags > env > global file > defaults
func Load(overrides FlagOverrides) (*Config, error) {
	cfg := Default()

	if err := loadFromFile(cfg, GlobalConfigPath(), SourceGlobal); err != nil {
		return nil, err
	}
	LoadFromEnv(cfg)
	ApplyOverrides(cfg, overrides)

	cfg.BaseURL = NormalizeBaseURL(cfg.BaseURL)
	return cfg, nil
}

// fileConfig mirrors the config file. Pointers distinguish "absent" from
// zero values.
type fileConfig struct {
	BaseURL      *string `yaml:"base_url"`
	CacheDir     *string `yaml:"cache_dir"`
	NoKeyring    *bool   `yaml:"no_keyring"`
	Format       *string `yaml:"format"`
	Stats        *bool   `yaml:"stats"`
	CallbackPort *int    `yaml:"callback_port"`
}

// loadFromFile applies path on top of cfg. A missing file is not an error;
// a malformed one is. JSON is accepted since it is valid YAML.
func loadFromFile(cfg *Config, path string, source Source) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is a trusted config location
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	src := string(source)
	if fc.BaseURL != nil && *fc.BaseURL != "" {
		cfg.BaseURL = *fc.BaseURL
		cfg.Sources["base_url"] = src
	}
	if fc.CacheDir != nil && *fc.CacheDir != "" {
		cfg.CacheDir = *fc.CacheDir
		cfg.Sources["cache_dir"] = src
	}
	if fc.NoKeyring != nil {
		cfg.NoKeyring = *fc.NoKeyring
		cfg.Sources["no_keyring"] = src
	}
	if fc.Format != nil && *fc.Format != "" {
		cfg.Format = *fc.Format
		cfg.Sources["format"] = src
	}
	if fc.Stats != nil {
		v := *fc.Stats
		cfg.Stats = &v
		cfg.Sources["stats"] = src
	}
	if fc.CallbackPort != nil && *fc.CallbackPort > 0 && *fc.CallbackPort < 65536 {
		cfg.CallbackPort = *fc.CallbackPort
		cfg.Sources["callback_port"] = src
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("BOOTH_API_URL"); v != "" {
		cfg.BaseURL = v
		cfg.Sources["base_url"] = string(SourceEnv)
	}
	if v := os.Getenv("BOOTH_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
		cfg.Sources["cache_dir"] = string(SourceEnv)
	}
	if v := os.Getenv("BOOTH_NO_KEYRING"); v != "" {
		if b, ok := parseEnvBool(v); ok {
			cfg.NoKeyring = b
			cfg.Sources["no_keyring"] = string(SourceEnv)
		}
	}
	if v := os.Getenv("BOOTH_FORMAT"); v != "" {
		cfg.Format = v
		cfg.Sources["format"] = string(SourceEnv)
	}
	if v := os.Getenv("BOOTH_STATS"); v != "" {
		if b, ok := parseEnvBool(v); ok {
			cfg.Stats = &b
			cfg.Sources["stats"] = string(SourceEnv)
		}
	}
}

// parseEnvBool parses a boolean environment variable strictly.
// Unrecognized values return ok=false and are ignored.
func parseEnvBool(v string) (value, ok bool) {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	default:
		return false, false
	}
}

// ApplyOverrides applies non-empty flag overrides to cfg.
func ApplyOverrides(cfg *Config, o FlagOverrides) {
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
		cfg.Sources["base_url"] = string(SourceFlag)
	}
	if o.CacheDir != "" {
		cfg.CacheDir = o.CacheDir
		cfg.Sources["cache_dir"] = string(SourceFlag)
	}
	if o.Format != "" {
		cfg.Format = o.Format
		cfg.Sources["format"] = string(SourceFlag)
	}
}

// Source returns where key was set, or "default".
func (cfg *Config) Source(key string) string {
	if s, ok := cfg.Sources[key]; ok {
		return s
	}
	return string(SourceDefault)
}

// Entry is one resolved setting.
type Entry struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

// Entries lists every setting with its provenance, sorted by key.
func (cfg *Config) Entries() []Entry {
	stats := ""
	if cfg.Stats != nil {
		stats = strconv.FormatBool(*cfg.Stats)
	}
	values := map[string]string{
		"base_url":      cfg.BaseURL,
		"cache_dir":     cfg.CacheDir,
		"no_keyring":    strconv.FormatBool(cfg.NoKeyring),
		"format":        cfg.Format,
		"stats":         stats,
		"callback_port": strconv.Itoa(cfg.CallbackPort),
	}

	entries := make([]Entry, 0, len(values))
	for k, v := range values {
		entries = append(entries, Entry{Key: k, Value: v, Source: cfg.Source(k)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

// Path helpers

// GlobalConfigDir returns the global config directory path.
func GlobalConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "booth")
}

// GlobalConfigPath returns the global config file path.
func GlobalConfigPath() string {
	return filepath.Join(GlobalConfigDir(), "config.yaml")
}
