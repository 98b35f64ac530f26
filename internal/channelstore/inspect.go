package channelstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/haasonsaas/tau/pkg/models"
)

// Inspect counts total and malformed records per file, and splits
// artifact records into active/expired using the current time (spec
// §4.6 "Inspection").
func (s *Store) Inspect() (models.ChannelInspectionReport, error) {
	var report models.ChannelInspectionReport
	now := time.Now().UnixMilli()

	logTotal, logInvalid, err := countLines(s.path(logFile), func(line []byte) bool {
		var e models.ChannelLogEntry
		return json.Unmarshal(line, &e) == nil
	})
	if err != nil {
		return report, err
	}
	ctxTotal, ctxInvalid, err := countLines(s.path(contextFile), func(line []byte) bool {
		var e models.ChannelContextEntry
		return json.Unmarshal(line, &e) == nil
	})
	if err != nil {
		return report, err
	}

	artifactTotal := 0
	artifactInvalid := 0
	latest := make(map[string]models.ChannelArtifactRecord)
	err = forEachRawLine(s.path(artifactsFile), func(line []byte) {
		artifactTotal++
		var r models.ChannelArtifactRecord
		if json.Unmarshal(line, &r) != nil {
			artifactInvalid++
			return
		}
		latest[r.ArtifactID] = r
	})
	if err != nil {
		return report, err
	}

	var active, expired int
	for _, r := range latest {
		if r.ExpiresUnixMS != nil && *r.ExpiresUnixMS <= now {
			expired++
		} else {
			active++
		}
	}

	report.LogRecords = logTotal
	report.LogInvalidLines = logInvalid
	report.ContextRecords = ctxTotal
	report.ContextInvalidLines = ctxInvalid
	report.ArtifactRecords = artifactTotal
	report.ArtifactInvalidLines = artifactInvalid
	report.ArtifactsActive = active
	report.ArtifactsExpired = expired
	return report, nil
}

// Repair drops malformed lines, expired artifacts, and artifact
// records whose backing file no longer exists. Before rewriting a
// file, it is moved to <name>.bak-<ts> and that path recorded in the
// report (spec §4.6 "Repair").
func (s *Store) Repair() (models.ChannelRepairReport, error) {
	var report models.ChannelRepairReport
	now := time.Now().UnixMilli()
	ts := now

	droppedInvalid, backup, err := repairLineFile(s.path(logFile), ts, func(line []byte) bool {
		var e models.ChannelLogEntry
		return json.Unmarshal(line, &e) == nil
	})
	if err != nil {
		return report, err
	}
	report.DroppedInvalidLines += droppedInvalid
	if backup != "" {
		report.BackupPaths = append(report.BackupPaths, backup)
	}

	droppedInvalid, backup, err = repairLineFile(s.path(contextFile), ts, func(line []byte) bool {
		var e models.ChannelContextEntry
		return json.Unmarshal(line, &e) == nil
	})
	if err != nil {
		return report, err
	}
	report.DroppedInvalidLines += droppedInvalid
	if backup != "" {
		report.BackupPaths = append(report.BackupPaths, backup)
	}

	droppedInvalidArtifacts, droppedExpired, droppedMissing, backup, err := s.repairArtifacts(now, ts)
	if err != nil {
		return report, err
	}
	report.DroppedInvalidLines += droppedInvalidArtifacts
	report.DroppedExpired = droppedExpired
	report.DroppedMissingFile = droppedMissing
	if backup != "" {
		report.BackupPaths = append(report.BackupPaths, backup)
	}

	return report, nil
}

func (s *Store) repairArtifacts(now, ts int64) (droppedInvalid, droppedExpired, droppedMissing int, backupPath string, err error) {
	path := s.path(artifactsFile)
	latest := make(map[string]models.ChannelArtifactRecord)
	order := make([]string, 0)

	err = forEachRawLine(path, func(line []byte) {
		var r models.ChannelArtifactRecord
		if json.Unmarshal(line, &r) != nil {
			droppedInvalid++
			return
		}
		if _, exists := latest[r.ArtifactID]; !exists {
			order = append(order, r.ArtifactID)
		}
		latest[r.ArtifactID] = r
	})
	if err != nil {
		return 0, 0, 0, "", err
	}
	if len(latest) == 0 && droppedInvalid == 0 {
		return 0, 0, 0, "", nil
	}

	var kept []models.ChannelArtifactRecord
	for _, id := range order {
		r := latest[id]
		if r.ExpiresUnixMS != nil && *r.ExpiresUnixMS <= now {
			droppedExpired++
			continue
		}
		if r.RelativePath != "" {
			if _, statErr := os.Stat(r.RelativePath); os.IsNotExist(statErr) {
				droppedMissing++
				continue
			}
		}
		kept = append(kept, r)
	}

	backupPath, err = backupFile(path, ts)
	if err != nil {
		return 0, 0, 0, "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, 0, 0, "", err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, r := range kept {
		line, merr := json.Marshal(r)
		if merr != nil {
			return 0, 0, 0, "", merr
		}
		if _, werr := w.Write(append(line, '\n')); werr != nil {
			return 0, 0, 0, "", werr
		}
	}
	if err := w.Flush(); err != nil {
		return 0, 0, 0, "", err
	}
	return droppedInvalid, droppedExpired, droppedMissing, backupPath, nil
}

// repairLineFile rewrites path keeping only lines that satisfy valid,
// backing up the original first. Returns (0, "", nil) if the file does
// not exist or has no invalid lines.
func repairLineFile(path string, ts int64, valid func(line []byte) bool) (dropped int, backupPath string, err error) {
	var kept [][]byte
	err = forEachRawLine(path, func(line []byte) {
		if valid(line) {
			kept = append(kept, append([]byte(nil), line...))
		} else {
			dropped++
		}
	})
	if err != nil || dropped == 0 {
		return dropped, "", err
	}

	backupPath, err = backupFile(path, ts)
	if err != nil {
		return 0, "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, line := range kept {
		if _, err := w.Write(append(line, '\n')); err != nil {
			return 0, "", err
		}
	}
	if err := w.Flush(); err != nil {
		return 0, "", err
	}
	return dropped, backupPath, nil
}

func backupFile(path string, ts int64) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil
	}
	backupPath := fmt.Sprintf("%s.bak-%d", path, ts)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", err
	}
	return backupPath, nil
}

func countLines(path string, valid func(line []byte) bool) (total, invalid int, err error) {
	err = forEachRawLine(path, func(line []byte) {
		total++
		if !valid(line) {
			invalid++
		}
	})
	return total, invalid, err
}

func forEachRawLine(path string, fn func(line []byte)) error {
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
		fn(line)
	}
	return scanner.Err()
}
