package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileLockAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	lock := newFileLock(path)
	if err := lock.Acquire(DefaultLockConfig); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	lock.Release()
	if _, err := os.Stat(lock.path); !os.IsNotExist(err) {
		t.Fatalf("expected sentinel removed, stat err = %v", err)
	}
}

func TestFileLockTimeoutUnderContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	holder := newFileLock(path)
	if err := holder.Acquire(DefaultLockConfig); err != nil {
		t.Fatalf("Acquire (holder): %v", err)
	}
	defer holder.Release()

	contender := newFileLock(path)
	err := contender.Acquire(LockConfig{WaitMS: 0, StaleMS: 1 << 30})
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("err = %v, want ErrLockTimeout", err)
	}
}

func TestFileLockReclaimsStaleSentinel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	stale := newFileLock(path)
	if err := stale.Acquire(DefaultLockConfig); err != nil {
		t.Fatalf("Acquire (stale holder): %v", err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(stale.path, past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	contender := newFileLock(path)
	if err := contender.Acquire(LockConfig{WaitMS: 1000, StaleMS: 1}); err != nil {
		t.Fatalf("expected reclaim to succeed, got %v", err)
	}
	contender.Release()
}
