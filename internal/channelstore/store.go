// Package channelstore persists per-channel runtime state: inbound and
// outbound log entries, seeded prompt context, and produced artifacts,
// under <root>/<transport>/<channel-id>/ (spec §4.6).
package channelstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/haasonsaas/tau/internal/timeutil"
	"github.com/haasonsaas/tau/pkg/models"
)

const (
	logFile       = "log.jsonl"
	contextFile   = "context.jsonl"
	artifactsFile = "artifacts.jsonl"
	memoryDir     = "memory"
)

// Store is one channel's on-disk state directory.
type Store struct {
	dir string
}

// Open returns the Store for (transport, channelID) under root,
// creating the directory if it does not exist.
func Open(root, transport, channelID string) (*Store, error) {
	dir := filepath.Join(root, transport, channelID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("channelstore: open %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the channel's root directory.
func (s *Store) Dir() string { return s.dir }

// MemoryDir returns the optional memory/ subdirectory, creating it on
// first use.
func (s *Store) MemoryDir() (string, error) {
	dir := filepath.Join(s.dir, memoryDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// AppendLogEntry appends one ChannelLogEntry to log.jsonl.
func (s *Store) AppendLogEntry(entry models.ChannelLogEntry) error {
	return appendJSONLine(s.path(logFile), entry)
}

// AppendContextEntry appends one ChannelContextEntry to context.jsonl.
func (s *Store) AppendContextEntry(entry models.ChannelContextEntry) error {
	return appendJSONLine(s.path(contextFile), entry)
}

// AppendArtifactRecord appends one ChannelArtifactRecord to
// artifacts.jsonl. Later records for the same ArtifactID override
// earlier ones on Repair/Inspect (tombstone-style).
func (s *Store) AppendArtifactRecord(record models.ChannelArtifactRecord) error {
	return appendJSONLine(s.path(artifactsFile), record)
}

func appendJSONLine(path string, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return timeutil.AppendLineAtomic(path, line)
}

// ContextEntries reads every valid ChannelContextEntry from
// context.jsonl in order, skipping malformed lines.
func (s *Store) ContextEntries() ([]models.ChannelContextEntry, error) {
	var entries []models.ChannelContextEntry
	err := forEachLine(s.path(contextFile), func(line []byte) {
		var e models.ChannelContextEntry
		if json.Unmarshal(line, &e) == nil {
			entries = append(entries, e)
		}
	})
	return entries, err
}

// ActiveArtifacts returns the latest (tombstone-resolved) record per
// artifact id whose ExpiresUnixMS is nil or in the future.
func (s *Store) ActiveArtifacts(nowUnixMS int64) ([]models.ChannelArtifactRecord, error) {
	latest, err := s.latestArtifactRecords()
	if err != nil {
		return nil, err
	}
	var active []models.ChannelArtifactRecord
	for _, r := range latest {
		if r.ExpiresUnixMS == nil || *r.ExpiresUnixMS > nowUnixMS {
			active = append(active, r)
		}
	}
	return active, nil
}

func (s *Store) latestArtifactRecords() (map[string]models.ChannelArtifactRecord, error) {
	latest := make(map[string]models.ChannelArtifactRecord)
	err := forEachLine(s.path(artifactsFile), func(line []byte) {
		var r models.ChannelArtifactRecord
		if json.Unmarshal(line, &r) == nil {
			latest[r.ArtifactID] = r
		}
	})
	return latest, err
}

func forEachLine(path string, fn func(line []byte)) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := append([]byte(nil), line...)
		fn(cp)
	}
	return scanner.Err()
}

