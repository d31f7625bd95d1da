package store

import (
	"fmt"
	"os"
	"syscall"
)

// Lock is a held advisory lock on a team artifact. Writers acquire it
// before Load and release it after Save; read-only access needs no
// lock. The lock lives on a sidecar file so the artifact itself can be
// atomically renamed underneath it.
type Lock struct {
	file *os.File
}

// LockPath returns the sidecar lock file for an artifact path.
func LockPath(artifactPath string) string {
	return artifactPath + ".lock"
}

// AcquireLock blocks until it holds the exclusive advisory lock for the
// artifact at path.
func AcquireLock(path string) (*Lock, error) {
	file, err := os.OpenFile(LockPath(path), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("store: open lock file: %w", err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("store: lock artifact: %w", err)
	}
	return &Lock{file: file}, nil
}

// TryAcquireLock attempts the lock without blocking. It returns
// (nil, nil) when another writer holds it.
func TryAcquireLock(path string) (*Lock, error) {
	file, err := os.OpenFile(LockPath(path), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("store: open lock file: %w", err)
	}
	err = syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == syscall.EWOULDBLOCK {
		_ = file.Close()
		return nil, nil
	}
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("store: lock artifact: %w", err)
	}
	return &Lock{file: file}, nil
}

// Release drops the lock. Safe to call on a nil lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("store: unlock artifact: %w", err)
	}
	return l.file.Close()
}
