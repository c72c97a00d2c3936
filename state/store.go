// Package state persists the monitor's memory between runs: the seen-sets
// that drive change detection, per-case records, and timestamped snapshots
// of what each cycle found.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/reveller/deuker-monitor/docket"
)

// State is the monitor's in-memory record of everything already reported.
// Membership in a seen-set is what makes a row "known"; rows are added the
// moment they are reported so a crash cannot replay a notification.
type State struct {
	SeenCharges   map[string]bool
	SeenDockets   map[string]bool
	SeenDocuments map[string]bool
	CaseInfo      map[string]docket.CaseInfo
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		SeenCharges:   map[string]bool{},
		SeenDockets:   map[string]bool{},
		SeenDocuments: map[string]bool{},
		CaseInfo:      map[string]docket.CaseInfo{},
	}
}

// fileSchema is the on-disk layout. Field names are frozen; state files
// written by earlier versions of the monitor must stay loadable.
type fileSchema struct {
	SeenCharges        []string                   `json:"seen_charges"`
	SeenDockets        []string                   `json:"seen_dockets"`
	SeenDocuments      []string                   `json:"seen_documents"`
	CaseInfo           map[string]docket.CaseInfo `json:"case_info"`
	LastUpdated        string                     `json:"last_updated"`
	DefendantFirstName string                     `json:"defendant_first_name"`
	DefendantLastName  string                     `json:"defendant_last_name"`
	DefendantSex       string                     `json:"defendant_sex"`
}

// Defendant identifies whose state a file belongs to.
type Defendant struct {
	FirstName string
	LastName  string
	Sex       string
}

// Store reads and writes one defendant's state file.
type Store struct {
	path string
	// skip disables both load and save; used by the everything-is-new mode
	// where history must not influence or be influenced by the run.
	skip bool
	log  *slog.Logger
	now  func() time.Time
}

// NewStore creates a store for the given path. A skipping store loads an
// empty state and saves nothing.
func NewStore(path string, skip bool, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{path: path, skip: skip, log: log, now: time.Now}
}

// AutoFilename derives the conventional state filename for a defendant:
// docket_monitor_<last>_<first>.json, lowercased, spaces as underscores.
func AutoFilename(firstName, lastName string) string {
	norm := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(s), " ", "_")
	}
	return fmt.Sprintf("docket_monitor_%s_%s.json", norm(lastName), norm(firstName))
}

// Load reads the state file. A missing file yields a fresh state; an
// unreadable one is logged and also yields a fresh state, which re-reports
// everything rather than losing track of the case.
func (st *Store) Load() *State {
	s := NewState()
	if st.skip {
		st.log.Info("state loading skipped")
		return s
	}

	data, err := os.ReadFile(st.path)
	if err != nil {
		if !os.IsNotExist(err) {
			st.log.Error("read state file", "path", st.path, "error", err)
		}
		return s
	}

	var f fileSchema
	if err := json.Unmarshal(data, &f); err != nil {
		st.log.Error("parse state file, starting fresh", "path", st.path, "error", err)
		return s
	}

	for _, k := range f.SeenCharges {
		s.SeenCharges[k] = true
	}
	for _, k := range f.SeenDockets {
		s.SeenDockets[k] = true
	}
	for _, k := range f.SeenDocuments {
		s.SeenDocuments[k] = true
	}
	if f.CaseInfo != nil {
		s.CaseInfo = f.CaseInfo
	}

	st.log.Info("loaded state",
		"charges", len(s.SeenCharges), "dockets", len(s.SeenDockets),
		"documents", len(s.SeenDocuments), "cases", len(s.CaseInfo))
	return s
}

// Save writes the state atomically: temp file in the same directory, then
// rename. A crash mid-save leaves the previous file intact.
func (st *Store) Save(s *State, d Defendant) error {
	if st.skip {
		st.log.Info("state saving skipped")
		return nil
	}

	f := fileSchema{
		SeenCharges:        sortedKeys(s.SeenCharges),
		SeenDockets:        sortedKeys(s.SeenDockets),
		SeenDocuments:      sortedKeys(s.SeenDocuments),
		CaseInfo:           s.CaseInfo,
		LastUpdated:        st.now().Format(time.RFC3339),
		DefendantFirstName: d.FirstName,
		DefendantLastName:  d.LastName,
		DefendantSex:       d.Sex,
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}

	dir := filepath.Dir(st.path)
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("state: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("state: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("state: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), st.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("state: replace %s: %w", st.path, err)
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
