package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

// WriterLockFile is the lock file name inside the data directory.
const WriterLockFile = ".writer.lock"

// FileLock is a cross-process exclusive lock on the data directory. Only the
// process holding it may ingest or delete; readers never take it.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock returns an unlocked writer lock for dataDir.
func NewFileLock(dataDir string) *FileLock {
	p := filepath.Join(dataDir, WriterLockFile)
	return &FileLock{path: p, flock: flock.New(p)}
}

// Lock blocks until the lock is held.
func (l *FileLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock takes the lock without blocking. Another writer holding it yields
// ERR_204_STORE_LOCKED.
func (l *FileLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return kberrors.New(kberrors.ErrCodeStoreLocked, "another amankb process is writing to this data directory", nil).
			WithDetail("lock", l.path).
			WithSuggestion("Stop the other process (watch or serve) or retry when it finishes")
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Calling it on an unlocked FileLock is a no-op.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// IsLocked reports whether this process holds the lock.
func (l *FileLock) IsLocked() bool { return l.locked }
