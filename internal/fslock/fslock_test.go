package fslock

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.lock")

	lock, err := Acquire(path)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.FileExists(t, path)
	assert.NoError(t, lock.Release())
}

func TestAcquireFailsOpenWhenHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.lock")

	held, err := Acquire(path)
	require.NoError(t, err)
	require.NotNil(t, held)
	defer held.Release()

	start := time.Now()
	second, err := Acquire(path)
	require.NoError(t, err)
	assert.Nil(t, second, "second acquire should fail open")
	assert.GreaterOrEqual(t, time.Since(start), Timeout)
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	assert.NoError(t, l.Release())
}
