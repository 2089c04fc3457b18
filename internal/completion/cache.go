// Package completion provides tab completion for booth api paths. It keeps a
// small file-based history of successfully requested paths so completions
// never need a network call.
package completion

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/snapbooth/booth-cli/internal/fslock"
)

// CachedPath is one remembered API path.
type CachedPath struct {
	Path     string    `json:"path"`
	Hits     int       `json:"hits"`
	LastUsed time.Time `json:"last_used"`
}

// Cache is the on-disk document.
type Cache struct {
	Paths     []CachedPath `json:"paths,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
	Version   int          `json:"version"`
}

const (
	// CacheVersion is the current cache schema version.
	CacheVersion = 1

	// CacheFileName is the cache file name inside the cache directory.
	CacheFileName = "completion.json"

	// MaxPaths bounds the history; least recently used paths are dropped.
	MaxPaths = 200
)

// Store reads and writes the completion cache. It is registered with the
// session so the history is wiped when the user is signed out.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a store in dir, or the default cache directory when dir
// is empty.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = defaultCacheDir()
	}
	return &Store{dir: dir}
}

func defaultCacheDir() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "booth")
}

// Dir returns the cache directory path.
func (s *Store) Dir() string { return s.dir }

// Path returns the full path to the cache file.
func (s *Store) Path() string { return filepath.Join(s.dir, CacheFileName) }

func (s *Store) lockPath() string { return filepath.Join(s.dir, ".completion.lock") }

// Load reads the cache. A missing or corrupt file reads as empty.
func (s *Store) Load() *Cache {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadUnsafe()
}

func (s *Store) loadUnsafe() *Cache {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		return &Cache{Version: CacheVersion}
	}
	var c Cache
	if err := json.Unmarshal(data, &c); err != nil || c.Version != CacheVersion {
		return &Cache{Version: CacheVersion}
	}
	return &c
}

func (s *Store) saveUnsafe(c *Cache) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}
	c.Version = CacheVersion
	c.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := s.Path() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.Path())
}

// Record remembers path. Query strings are dropped.
func (s *Store) Record(path string) error {
	path = normalizePath(path)
	if path == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lock, err := fslock.Acquire(s.lockPath())
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	c := s.loadUnsafe()
	now := time.Now()
	found := false
	for i := range c.Paths {
		if c.Paths[i].Path == path {
			c.Paths[i].Hits++
			c.Paths[i].LastUsed = now
			found = true
			break
		}
	}
	if !found {
		c.Paths = append(c.Paths, CachedPath{Path: path, Hits: 1, LastUsed: now})
	}

	if len(c.Paths) > MaxPaths {
		sort.SliceStable(c.Paths, func(i, j int) bool {
			return c.Paths[i].LastUsed.After(c.Paths[j].LastUsed)
		})
		c.Paths = c.Paths[:MaxPaths]
	}
	return s.saveUnsafe(c)
}

// Paths returns remembered paths, most used first.
func (s *Store) Paths() []CachedPath {
	paths := s.Load().Paths
	sort.SliceStable(paths, func(i, j int) bool {
		if paths[i].Hits != paths[j].Hits {
			return paths[i].Hits > paths[j].Hits
		}
		return paths[i].LastUsed.After(paths[j].LastUsed)
	})
	return paths
}

// Clear deletes the cache file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func normalizePath(p string) string {
	p, _, _ = strings.Cut(strings.TrimSpace(p), "?")
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}
