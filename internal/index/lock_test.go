package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

func TestFileLock_TryLockExcludesSecondWriter(t *testing.T) {
	// Given: one writer holding the data directory
	dir := filepath.Join(t.TempDir(), "data")
	first := NewFileLock(dir)
	require.NoError(t, first.TryLock())
	assert.True(t, first.IsLocked())
	assert.Equal(t, filepath.Join(dir, WriterLockFile), first.Path())

	// When: a second writer tries the same directory
	second := NewFileLock(dir)
	err := second.TryLock()

	// Then: it is refused with a retryable store-locked error
	require.Error(t, err)
	assert.Equal(t, kberrors.ErrCodeStoreLocked, kberrors.GetCode(err))
	assert.True(t, kberrors.IsRetryable(err))
	assert.False(t, second.IsLocked())

	require.NoError(t, first.Unlock())
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
}

func TestFileLock_UnlockIsIdempotent(t *testing.T) {
	l := NewFileLock(t.TempDir())
	assert.NoError(t, l.Unlock())
	require.NoError(t, l.Lock())
	assert.NoError(t, l.Unlock())
	assert.NoError(t, l.Unlock())
	assert.False(t, l.IsLocked())
}
