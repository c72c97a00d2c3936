// Package browser manages the Chrome lifecycle and adapts Rod to the
// driver capability set the portal flows consume: launch or connect,
// stealth page setup, bounded waits, tab adoption, and download capture.
package browser

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Headless runs Chrome without a display. Default: true (set
	// Headful to opt out; the portal tolerates both).
	Headful bool

	// DownloadDir receives captured document downloads. Created if missing.
	DownloadDir string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.DownloadDir == "" {
		c.DownloadDir = "documents"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one Chrome process (or remote connection) and hands out
// sessions bound to it.
type Manager struct {
	cfg    Config
	mu     sync.Mutex
	brw    *rod.Browser
	lnch   *launcher.Launcher
	closed bool
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance).
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.brw != nil {
		return nil
	}

	if err := os.MkdirAll(m.cfg.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("browser: download dir: %w", err)
	}

	b, err := m.launch()
	if err != nil {
		return err
	}
	m.brw = b
	return nil
}

// Session creates a fresh stealth page bound to this manager's browser.
func (m *Manager) Session() (*Session, error) {
	m.mu.Lock()
	b := m.brw
	m.mu.Unlock()
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}
	return newSession(b, m.cfg.DownloadDir, m.cfg.Logger)
}

// Restart tears Chrome down and launches it again. Existing sessions are
// invalid afterwards; callers open a new one.
func (m *Manager) Restart() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	m.cfg.Logger.Info("restarting browser")
	m.cleanupLocked()

	b, err := m.launch()
	if err != nil {
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.brw = b
	return nil
}

// Close shuts Chrome down.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanupLocked()
	return nil
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("connecting to remote browser", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(!m.cfg.Headful).
			Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("launched local chrome", "url", wsURL, "headful", m.cfg.Headful)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("ignore cert errors failed", "error", err)
	}
	return b, nil
}

func (m *Manager) cleanupLocked() {
	if m.brw != nil {
		if err := m.brw.Close(); err != nil {
			m.cfg.Logger.Debug("browser close", "error", err)
		}
		m.brw = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}
