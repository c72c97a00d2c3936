package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/reveller/deuker-monitor/docket"
)

// newEntriesFile is the snapshot written when a cycle finds anything new.
// It duplicates what notifications carry, in full, for later inspection.
type newEntriesFile struct {
	Timestamp  string               `json:"timestamp"`
	NewCharges []docket.Charge      `json:"new_charges"`
	NewDockets []docket.DocketEntry `json:"new_dockets"`
}

// WriteNewEntries writes new_entries_<timestamp>.json into dir and returns
// the path. Empty slices are marshalled as [] so consumers need no nil
// handling.
func WriteNewEntries(dir string, charges []docket.Charge, dockets []docket.DocketEntry, now time.Time) (string, error) {
	if charges == nil {
		charges = []docket.Charge{}
	}
	if dockets == nil {
		dockets = []docket.DocketEntry{}
	}

	f := newEntriesFile{
		Timestamp:  now.Format("20060102_150405"),
		NewCharges: charges,
		NewDockets: dockets,
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return "", fmt.Errorf("state: marshal new entries: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("new_entries_%s.json", f.Timestamp))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("state: write %s: %w", path, err)
	}
	return path, nil
}
