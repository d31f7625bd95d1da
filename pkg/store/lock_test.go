package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvisoryLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team.json")

	held, err := AcquireLock(path)
	require.NoError(t, err)

	// A second writer must not get the lock while it is held.
	second, err := TryAcquireLock(path)
	require.NoError(t, err)
	assert.Nil(t, second)

	require.NoError(t, held.Release())

	third, err := TryAcquireLock(path)
	require.NoError(t, err)
	require.NotNil(t, third)
	require.NoError(t, third.Release())
}

func TestReleaseNilLock(t *testing.T) {
	var l *Lock
	assert.NoError(t, l.Release())
}
