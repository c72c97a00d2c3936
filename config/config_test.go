// WHAT: config file loading, merge order, and normalization.
// WHY: configs arrive as YAML or legacy JSON, possibly split across
// files; defaults and validation must behave the same either way.
package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "monitor.yaml", `
defendant_first_name: John
defendant_last_name: Deuker
defendant_sex: Male
poll_interval: 300
notification_sms: "+13055551234"
webhook_url: https://example.com/hook
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefendantFirstName != "John" || cfg.DefendantLastName != "Deuker" {
		t.Errorf("defendant = %q %q", cfg.DefendantFirstName, cfg.DefendantLastName)
	}
	if cfg.PollIntervalSeconds != 300 {
		t.Errorf("poll_interval = %d, want 300", cfg.PollIntervalSeconds)
	}
	if cfg.NotificationSMS != "+13055551234" {
		t.Errorf("notification_sms = %q", cfg.NotificationSMS)
	}
}

func TestLoad_LegacyJSON(t *testing.T) {
	path := writeFile(t, "monitor.json", `{
  "defendant_first_name": "John",
  "defendant_last_name": "Deuker",
  "defendant_sex": "Male",
  "download_documents": false
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if cfg.DefendantFirstName != "John" {
		t.Errorf("defendant_first_name = %q", cfg.DefendantFirstName)
	}
	if cfg.Downloads() {
		t.Error("download_documents=false should disable downloads")
	}
}

func TestLoad_MergeOrder(t *testing.T) {
	base := writeFile(t, "base.yaml", `
defendant_first_name: John
defendant_last_name: Deuker
poll_interval: 600
`)
	over := writeFile(t, "override.yaml", `
poll_interval: 120
notification_email: court@example.com
`)
	cfg, err := Load(base, over)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollIntervalSeconds != 120 {
		t.Errorf("poll_interval = %d, want later file to win", cfg.PollIntervalSeconds)
	}
	if cfg.DefendantFirstName != "John" {
		t.Errorf("earlier file's fields should survive, got first name %q", cfg.DefendantFirstName)
	}
	if cfg.NotificationEmail != "court@example.com" {
		t.Errorf("notification_email = %q", cfg.NotificationEmail)
	}
}

func TestNormalize(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("defaults", func(t *testing.T) {
		cfg := &Config{DefendantFirstName: "John", DefendantLastName: "Deuker"}
		if err := cfg.Normalize(log); err != nil {
			t.Fatalf("normalize: %v", err)
		}
		if cfg.PollIntervalSeconds != 600 {
			t.Errorf("poll_interval = %d, want 600", cfg.PollIntervalSeconds)
		}
		if cfg.DataFile != "docket_monitor_deuker_john.json" {
			t.Errorf("data_file = %q", cfg.DataFile)
		}
		if cfg.DocumentsDir != "court_documents" {
			t.Errorf("documents_dir = %q", cfg.DocumentsDir)
		}
		if !cfg.Downloads() {
			t.Error("downloads should default on")
		}
	})

	t.Run("missing name", func(t *testing.T) {
		cfg := &Config{DefendantFirstName: "John"}
		if err := cfg.Normalize(log); err == nil {
			t.Fatal("want error for missing last name")
		}
	})

	t.Run("case filter normalized", func(t *testing.T) {
		cfg := &Config{
			DefendantFirstName: "John",
			DefendantLastName:  "Deuker",
			FilterCaseNumber:   "f25001234",
		}
		if err := cfg.Normalize(log); err != nil {
			t.Fatalf("normalize: %v", err)
		}
		if cfg.FilterCaseNumber != "F-25-001234" {
			t.Errorf("filter = %q, want F-25-001234", cfg.FilterCaseNumber)
		}
	})

	t.Run("bad case filter", func(t *testing.T) {
		cfg := &Config{
			DefendantFirstName: "John",
			DefendantLastName:  "Deuker",
			FilterCaseNumber:   "not-a-case",
		}
		if err := cfg.Normalize(log); err == nil {
			t.Fatal("want error for unparseable case filter")
		}
	})
}
