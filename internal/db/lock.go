package db

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// FileLock provides an exclusive advisory lock for cross-process critical
// sections such as migration apply and rollback.
type FileLock struct {
	file *os.File
}

// AcquireLock creates and locks <stateDir>/locks/<name>.lock, blocking until
// the lock is free.
func AcquireLock(stateDir, name string) (*FileLock, error) {
	file, err := openLockFile(stateDir, name)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}
	return &FileLock{file: file}, nil
}

// TryAcquireLock attempts to acquire the lock without blocking. The second
// return value reports whether the lock was obtained.
func TryAcquireLock(stateDir, name string) (*FileLock, bool, error) {
	file, err := openLockFile(stateDir, name)
	if err != nil {
		return nil, false, err
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		return nil, false, nil
	}
	return &FileLock{file: file}, true, nil
}

func openLockFile(stateDir, name string) (*os.File, error) {
	locksDir := filepath.Join(stateDir, "locks")
	if err := os.MkdirAll(locksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create locks dir: %w", err)
	}
	lockPath := filepath.Join(locksDir, name+".lock")
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return file, nil
}

// Release releases the lock.
func (l *FileLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}
