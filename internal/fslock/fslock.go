// Package fslock provides a cross-process advisory lock for small state files
// shared by concurrent booth invocations.
package fslock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Timeout is how long Acquire waits before giving up on the lock.
const Timeout = 100 * time.Millisecond

// Lock is a held lock. A nil *Lock is valid and releases nothing.
type Lock struct {
	flock *flock.Flock
}

// Acquire obtains an exclusive lock on path, creating its directory if needed.
//
// Fail-open: if the lock is still held by another process after Timeout,
// Acquire returns (nil, nil) and the caller proceeds unlocked. A CLI command
// must never hang on a lock left behind by a crashed process.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	fl := flock.New(path)

	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	}
	if !locked {
		return nil, nil
	}
	return &Lock{flock: fl}, nil
}

// Release unlocks. Safe on a nil receiver.
func (l *Lock) Release() error {
	if l == nil || l.flock == nil {
		return nil
	}
	return l.flock.Unlock()
}
