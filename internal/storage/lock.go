package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrLocked is returned by a single lock attempt when another process
// holds the lock.
var ErrLocked = errors.New("lock held by another process")

const (
	lockInitialInterval = 5 * time.Millisecond
	lockMaxInterval     = 250 * time.Millisecond
)

// FileLock provides file-based locking for concurrent access.
type FileLock struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewFileLock creates a new file lock.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Lock acquires an exclusive lock on the file, polling with exponential
// backoff until the lock is free or ctx is done.
func (l *FileLock) Lock(ctx context.Context) error {
	l.mu.Lock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = lockInitialInterval
	b.MaxInterval = lockMaxInterval
	b.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		err := l.acquire()
		if err != nil && !errors.Is(err, ErrLocked) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
	if err != nil {
		l.mu.Unlock()
		return err
	}
	return nil
}

// TryLock attempts to acquire the lock without blocking.
func (l *FileLock) TryLock() bool {
	if !l.mu.TryLock() {
		return false
	}
	if err := l.acquire(); err != nil {
		l.mu.Unlock()
		return false
	}
	return true
}

// acquire makes one non-blocking flock attempt. Caller holds l.mu.
func (l *FileLock) acquire() error {
	file, err := os.OpenFile(l.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return err
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return ErrLocked
		}
		return err
	}

	l.file = file
	return nil
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}

	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)

	l.file.Close()
	os.Remove(l.path + ".lock")

	l.file = nil
	l.mu.Unlock()

	return nil
}
