package channelstore

import (
	"encoding/json"
	"os"
)

// SweepExpiredArtifacts removes artifact records (and their backing
// files) whose ExpiresUnixMS is at or before nowUnixMS, rewriting
// artifacts.jsonl to hold only the surviving tombstone-resolved
// records. Records with a nil expiry are never swept (spec §4.5
// "Artifact retention": retention-days = 0 means forever). Returns the
// number of artifacts removed.
func (s *Store) SweepExpiredArtifacts(nowUnixMS int64) (int, error) {
	latest, err := s.latestArtifactRecords()
	if err != nil {
		return 0, err
	}

	removed := 0
	f, err := os.Create(s.path(artifactsFile))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	for _, r := range latest {
		if r.ExpiresUnixMS != nil && *r.ExpiresUnixMS <= nowUnixMS {
			removed++
			if r.RelativePath != "" {
				os.Remove(r.RelativePath)
			}
			continue
		}
		line, err := json.Marshal(r)
		if err != nil {
			return removed, err
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
