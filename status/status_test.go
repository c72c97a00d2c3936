// WHAT: status tracker accumulation and HTTP endpoint behavior.
// WHY: the endpoint is the only view into a long-running monitor; its
// counters must reflect every recorded cycle.
package status

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTrackerRecord(t *testing.T) {
	tr := NewTracker("John Deuker")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tr.Record(2, 3, 1, 0, now)
	tr.Record(0, 0, 0, 2, now.Add(10*time.Minute))

	p := tr.snapshot()
	if p.Cycles != 2 {
		t.Errorf("cycles = %d, want 2", p.Cycles)
	}
	if p.NewCharges != 2 || p.NewDockets != 3 || p.Downloads != 1 {
		t.Errorf("totals = %d/%d/%d, want 2/3/1", p.NewCharges, p.NewDockets, p.Downloads)
	}
	if p.Errors != 2 {
		t.Errorf("errors = %d, want 2", p.Errors)
	}
	if p.LastCycleOK {
		t.Error("last cycle had errors, want last_cycle_ok=false")
	}
	// The second cycle found nothing new, so the marker stays on the first.
	if p.LastNewFound != now.Format(time.RFC3339) {
		t.Errorf("last_new_found_at = %q, want %q", p.LastNewFound, now.Format(time.RFC3339))
	}
	if p.LastCycleAt != now.Add(10*time.Minute).Format(time.RFC3339) {
		t.Errorf("last_cycle_at = %q", p.LastCycleAt)
	}
}

func TestStatusEndpoint(t *testing.T) {
	tr := NewTracker("John Deuker")
	tr.Record(1, 0, 0, 0, time.Now())

	srv := httptest.NewServer(Router(tr))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status code = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var p payload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Defendant != "John Deuker" {
		t.Errorf("defendant = %q", p.Defendant)
	}
	if p.Cycles != 1 || p.NewCharges != 1 {
		t.Errorf("cycles/new_charges = %d/%d, want 1/1", p.Cycles, p.NewCharges)
	}
	if !p.LastCycleOK {
		t.Error("want last_cycle_ok=true")
	}
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(Router(NewTracker("x")))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status code = %d, want 200", resp.StatusCode)
	}
}
