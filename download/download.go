// Package download runs the document retrieval workflow: open the React
// PDF viewer from a table row's view control, click through its toolbar,
// capture the transfer, and file the result under a stable name.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/reveller/deuker-monitor/docket"
	"github.com/reveller/deuker-monitor/portal"
)

var (
	// ErrNoTrigger means no row matched the document or the row had no
	// view control.
	ErrNoTrigger = errors.New("download: no view control found")
	// ErrNoDownload means the viewer opened but no transfer started.
	ErrNoDownload = errors.New("download: transfer did not start")
)

// Config configures a Downloader.
type Config struct {
	// Dir is where named PDFs land. Default: "documents".
	Dir string
	// ViewerTimeout bounds the wait for the PDF viewer to render. Default: 15s.
	ViewerTimeout time.Duration
	// DownloadTimeout bounds the wait for the transfer itself. Default: 30s.
	DownloadTimeout time.Duration
	// Validate runs a PDF structure check on each downloaded file. The
	// result is advisory; a failed check is logged, not fatal.
	Validate bool
	Logger   *slog.Logger
	// Settle overrides the fixed render pauses (tests).
	Settle func(ctx context.Context, d time.Duration)
}

func (c *Config) defaults() {
	if c.Dir == "" {
		c.Dir = "documents"
	}
	if c.ViewerTimeout <= 0 {
		c.ViewerTimeout = 15 * time.Second
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Settle == nil {
		c.Settle = func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		}
	}
}

// Downloader drives the viewer workflow over one browser session.
type Downloader struct {
	drv portal.Driver
	cfg Config
	log *slog.Logger
}

// New creates a Downloader.
func New(d portal.Driver, cfg Config) *Downloader {
	cfg.defaults()
	return &Downloader{drv: d, cfg: cfg, log: cfg.Logger}
}

// docketViewCascade finds the view control inside a docket row. The portal
// renders a mobile and a desktop copy; the desktop one is last.
var docketViewCascade = portal.Cascade{
	`span[role="button"][aria-label="View Docket Image"]`,
	`span[role="button"]`,
	`a`,
}

// extraViewCascade finds the view control inside an Extra Documents row.
var extraViewCascade = portal.Cascade{
	`span[role="button"]`,
	`span[aria-label*="View"]`,
	`a`,
}

// DocketDocument downloads the document attached to one docket entry and
// returns the filename it was stored under. On success the entry's
// download fields are updated in place. The session is always returned to
// the primary page, viewer tabs closed, whatever the outcome.
func (d *Downloader) DocketDocument(ctx context.Context, entry *docket.DocketEntry) (string, error) {
	defer d.reset()

	path, filename := d.destination(entry.CaseNumber, entry.DocketDescription)
	d.log.Info("downloading docket document",
		"case", entry.CaseNumber, "din", entry.DIN, "file", filename)

	if err := d.openViewer(ctx, entry.DocketDescription, docketViewCascade); err != nil {
		return "", err
	}
	if err := d.saveViaViewer(ctx, path); err != nil {
		return "", err
	}

	entry.DocumentDownloaded = true
	entry.DocumentFilename = filename
	return filename, nil
}

// ExtraDocument downloads one row from the Extra Documents tab and returns
// the filename it was stored under.
func (d *Downloader) ExtraDocument(ctx context.Context, doc portal.ExtraDocument) (string, error) {
	defer d.reset()

	path, filename := d.destination(doc.CaseNumber, doc.Description)
	d.log.Info("downloading extra document", "case", doc.CaseNumber, "file", filename)

	if err := d.openViewer(ctx, doc.Description, extraViewCascade); err != nil {
		return "", err
	}
	if err := d.saveViaViewer(ctx, path); err != nil {
		return "", err
	}
	return filename, nil
}

func (d *Downloader) reset() {
	if err := d.drv.ResetToPrimary(); err != nil {
		d.log.Debug("reset to primary page", "error", err)
	}
}

// destination picks a collision-free path for a document: the safe name,
// then -1, -2, ... suffixes while a file of that name already exists.
func (d *Downloader) destination(caseNumber, description string) (path, filename string) {
	filename = docket.SafeFilename(caseNumber, description)
	base := strings.TrimSuffix(filename, ".pdf")
	path = filepath.Join(d.cfg.Dir, filename)
	for n := 1; ; n++ {
		if _, err := os.Stat(path); err != nil {
			return path, filename
		}
		filename = fmt.Sprintf("%s-%d.pdf", base, n)
		path = filepath.Join(d.cfg.Dir, filename)
	}
}

// place moves the captured temp file (named by GUID) to its destination
// and optionally validates it as a PDF. Validation failure is advisory:
// the portal occasionally serves HTML error pages through the viewer, and
// keeping the file aids diagnosis.
func (d *Downloader) place(tmpPath, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("download: create dir: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		if err := copyFile(tmpPath, destPath); err != nil {
			return fmt.Errorf("download: move %s: %w", destPath, err)
		}
		if err := os.Remove(tmpPath); err != nil {
			d.log.Debug("remove temp download", "path", tmpPath, "error", err)
		}
	}

	if d.cfg.Validate {
		if err := api.ValidateFile(destPath, nil); err != nil {
			d.log.Warn("downloaded file failed pdf validation",
				"file", filepath.Base(destPath), "error", err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
