// Package config loads monitor configuration from YAML or JSON files and
// merges multiple files in order, later files overriding earlier ones.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reveller/deuker-monitor/docket"
	"github.com/reveller/deuker-monitor/state"
)

// Config is the top-level monitor configuration. Field names match the
// persisted config files, which predate this program; JSON files parse
// fine because YAML is a superset.
type Config struct {
	DefendantFirstName string `yaml:"defendant_first_name"`
	DefendantLastName  string `yaml:"defendant_last_name"`
	DefendantSex       string `yaml:"defendant_sex"`

	// PollIntervalSeconds is the pause between checks. Default: 600.
	PollIntervalSeconds int `yaml:"poll_interval"`

	// DataFile is the state file path. Empty derives it from the
	// defendant's name.
	DataFile string `yaml:"data_file"`

	NotificationSMS   string `yaml:"notification_sms"`
	NotificationEmail string `yaml:"notification_email"`
	WebhookURL        string `yaml:"webhook_url"`
	WebhookSecret     string `yaml:"webhook_secret"`

	// DownloadDocuments toggles document retrieval. Default: true.
	DownloadDocuments *bool  `yaml:"download_documents"`
	DocumentsDir      string `yaml:"documents_dir"`

	// FilterCaseNumber restricts monitoring to one case.
	FilterCaseNumber string `yaml:"filter_case_number"`

	HistoryFile string `yaml:"history_file"`
	StatusAddr  string `yaml:"status_addr"`

	Headful          bool   `yaml:"headful"`
	RemoteBrowserURL string `yaml:"remote_browser_url"`
}

// Load reads and merges the given config files in order. No files yields
// an empty config, left for flags and Normalize to fill in.
func Load(paths ...string) (*Config, error) {
	var cfg Config
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return &cfg, nil
}

// Normalize validates the config and fills in derived defaults. Call after
// all file and flag overrides are merged.
func (c *Config) Normalize(log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	if c.DefendantFirstName == "" || c.DefendantLastName == "" {
		return fmt.Errorf("config: defendant first and last name are required")
	}

	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = 600
	}
	if c.PollIntervalSeconds < 60 {
		log.Warn("poll interval under a minute hammers the portal",
			"seconds", c.PollIntervalSeconds)
	}

	if c.DataFile == "" {
		c.DataFile = state.AutoFilename(c.DefendantFirstName, c.DefendantLastName)
	}
	if c.DocumentsDir == "" {
		c.DocumentsDir = "court_documents"
	}

	if c.FilterCaseNumber != "" {
		normalized, ok := docket.NormalizeCaseNumber(c.FilterCaseNumber)
		if !ok {
			return fmt.Errorf("config: unrecognized case number %q", c.FilterCaseNumber)
		}
		c.FilterCaseNumber = normalized
	}
	return nil
}

// PollInterval is the configured interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Downloads reports whether document retrieval is enabled.
func (c *Config) Downloads() bool {
	return c.DownloadDocuments == nil || *c.DownloadDocuments
}
