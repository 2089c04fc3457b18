package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"

	"github.com/snapbooth/booth-cli/internal/fslock"
)

// FileBackend stores all secrets in a single JSON document with 0600
// permissions. Writes are atomic and serialized across processes.
type FileBackend struct {
	dir string
}

// NewFileBackend creates a file backend rooted at dir.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

// Path returns the credentials file location.
func (f *FileBackend) Path() string {
	return filepath.Join(f.dir, "credentials.json")
}

func (f *FileBackend) lockPath() string {
	return filepath.Join(f.dir, ".credentials.lock")
}

func (f *FileBackend) Get(key string) (string, error) {
	all, err := f.loadAll()
	if err != nil {
		return "", err
	}
	v, ok := all[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *FileBackend) Set(key, value string) error {
	return f.update(func(all map[string]string) { all[key] = value })
}

func (f *FileBackend) Delete(key string) error {
	return f.update(func(all map[string]string) { delete(all, key) })
}

func (f *FileBackend) update(mutate func(map[string]string)) error {
	lock, err := fslock.Acquire(f.lockPath())
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	all, err := f.loadAll()
	if err != nil {
		return err
	}
	mutate(all)
	return f.saveAll(all)
}

func (f *FileBackend) loadAll() (map[string]string, error) {
	data, err := os.ReadFile(f.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}

	all := make(map[string]string)
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	return all, nil
}

func (f *FileBackend) saveAll(all map[string]string) error {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(f.dir, "credentials-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	dest := f.Path()
	if err := os.Rename(tmpPath, dest); err != nil {
		// Windows refuses to rename over an existing file.
		if runtime.GOOS == "windows" {
			_ = os.Remove(dest)
			return os.Rename(tmpPath, dest)
		}
		os.Remove(tmpPath)
		return err
	}
	return nil
}
