package state

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reveller/deuker-monitor/docket"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// WHAT: state survives a save/load round trip with the frozen field names.
// WHY: the seen-sets are the monitor's only defense against duplicate
// notifications; losing a key on reload re-reports an old entry.
func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docket_monitor_deuker_john.json")
	st := NewStore(path, false, discard())

	s := NewState()
	s.SeenCharges["aaa"] = true
	s.SeenDockets["bbb"] = true
	s.SeenDockets["ccc"] = true
	s.SeenDocuments["F-25-001234_12_ARREST AFFIDAVIT"] = true
	s.CaseInfo["F-25-001234"] = docket.CaseInfo{
		CaseNumber:  "F-25-001234",
		FiledDate:   "01/15/2025",
		FirstCharge: "BURGLARY",
		ChargeCount: 2,
		DocketCount: 14,
		LastChecked: "2025-03-14T09:30:00Z",
	}

	d := Defendant{FirstName: "John", LastName: "Deuker", Sex: "M"}
	if err := st.Save(s, d); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := NewStore(path, false, discard()).Load()
	if len(got.SeenCharges) != 1 || !got.SeenCharges["aaa"] {
		t.Errorf("charges = %v", got.SeenCharges)
	}
	if len(got.SeenDockets) != 2 {
		t.Errorf("dockets = %v", got.SeenDockets)
	}
	if !got.SeenDocuments["F-25-001234_12_ARREST AFFIDAVIT"] {
		t.Errorf("documents = %v", got.SeenDocuments)
	}
	if got.CaseInfo["F-25-001234"].DocketCount != 14 {
		t.Errorf("case info = %+v", got.CaseInfo["F-25-001234"])
	}

	// The on-disk field names are a compatibility contract.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{
		"seen_charges", "seen_dockets", "seen_documents",
		"case_info", "last_updated",
		"defendant_first_name", "defendant_last_name", "defendant_sex",
	} {
		if _, ok := m[key]; !ok {
			t.Errorf("state file missing %q", key)
		}
	}
	if m["defendant_last_name"] != "Deuker" {
		t.Errorf("defendant_last_name = %v", m["defendant_last_name"])
	}
}

func TestStore_MissingFileIsFresh(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "absent.json"), false, discard())
	s := st.Load()
	if len(s.SeenCharges)+len(s.SeenDockets)+len(s.SeenDocuments)+len(s.CaseInfo) != 0 {
		t.Fatalf("fresh state not empty: %+v", s)
	}
}

func TestStore_CorruptFileIsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewStore(path, false, discard()).Load()
	if len(s.SeenCharges) != 0 {
		t.Fatalf("corrupt file produced state: %+v", s)
	}
}

func TestStore_SkipMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skip.json")
	st := NewStore(path, true, discard())

	s := NewState()
	s.SeenCharges["aaa"] = true
	if err := st.Save(s, Defendant{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("skip store wrote a file")
	}
}

func TestAutoFilename(t *testing.T) {
	if got := AutoFilename("John", "Deuker"); got != "docket_monitor_deuker_john.json" {
		t.Errorf("got %q", got)
	}
	if got := AutoFilename("Mary Ann", "De La Cruz"); got != "docket_monitor_de_la_cruz_mary_ann.json" {
		t.Errorf("got %q", got)
	}
}

func TestWriteNewEntries(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 3, 14, 9, 30, 5, 0, time.UTC)

	path, err := WriteNewEntries(dir,
		[]docket.Charge{{CaseNumber: "F-25-001234", ChargeDescription: "BURGLARY"}},
		nil, now)
	if err != nil {
		t.Fatalf("WriteNewEntries: %v", err)
	}
	if filepath.Base(path) != "new_entries_20250314_093005.json" {
		t.Errorf("path = %q", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"new_dockets": []`) {
		t.Errorf("nil dockets not marshalled as []: %s", raw)
	}
	var f struct {
		Timestamp  string          `json:"timestamp"`
		NewCharges []docket.Charge `json:"new_charges"`
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatal(err)
	}
	if f.Timestamp != "20250314_093005" || len(f.NewCharges) != 1 {
		t.Errorf("snapshot = %+v", f)
	}
}

func TestHistory(t *testing.T) {
	h, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	defer h.Close()

	ctx := context.Background()
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := h.Record(ctx, CycleRecord{
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			TotalCases: 2,
			NewDockets: i,
			OK:         i != 1,
		})
		if err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	recent, err := h.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d records, want 2", len(recent))
	}
	if recent[0].NewDockets != 2 || !recent[0].OK {
		t.Errorf("newest record = %+v", recent[0])
	}
	if recent[1].NewDockets != 1 || recent[1].OK {
		t.Errorf("second record = %+v", recent[1])
	}
	if !recent[0].StartedAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("started at = %v", recent[0].StartedAt)
	}
}
