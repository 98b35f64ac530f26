// Package timeutil provides wall-clock helpers and crash-safe,
// size-bounded file I/O shared by the session store, channel store, and
// transport bridge runtime.
package timeutil

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// NowUnixMS returns the current wall-clock time in Unix milliseconds.
func NowUnixMS() int64 {
	return time.Now().UnixMilli()
}

// WriteFileAtomic writes data to path by first writing to a sibling
// temp file and renaming it into place, so a crash mid-write never
// leaves a torn file at path. The temp name embeds the pid and a
// timestamp to avoid collisions between concurrent writers.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp.%d.%d", filepath.Base(path), os.Getpid(), time.Now().UnixNano()))
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// AppendLineAtomic appends a single newline-terminated line to path,
// creating the file (and its parent directory) if needed. A single
// os.File.Write of a newline-terminated line is line-atomic under
// POSIX append semantics, which is all the Channel Store and runtime
// event log require (spec §5 "Shared resources").
func AppendLineAtomic(path string, line []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if len(line) == 0 || line[len(line)-1] != '\n' {
		line = append(append([]byte{}, line...), '\n')
	}
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	return nil
}
