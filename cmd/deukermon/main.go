// Command deukermon watches the Miami-Dade clerk portal for one defendant
// and reports new charges, docket entries, and filed documents.
//
// Usage:
//
//	deukermon -first John -last Deuker -sex Male        # flags only
//	deukermon -config monitor.yaml                      # file config
//	deukermon -config base.yaml -config override.yaml   # continuous: later files win
//	deukermon -first John -last Deuker -once            # single check
//	deukermon -once -config john.yaml -config jane.yaml # batch: one check per file
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/reveller/deuker-monitor/browser"
	"github.com/reveller/deuker-monitor/config"
	"github.com/reveller/deuker-monitor/download"
	"github.com/reveller/deuker-monitor/monitor"
	"github.com/reveller/deuker-monitor/notify"
	"github.com/reveller/deuker-monitor/portal"
	"github.com/reveller/deuker-monitor/state"
	"github.com/reveller/deuker-monitor/status"
)

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func main() {
	var configPaths stringList
	flag.Var(&configPaths, "config", "config file (YAML or JSON), repeatable; later files override earlier")
	first := flag.String("first", "", "defendant first name")
	last := flag.String("last", "", "defendant last name")
	sex := flag.String("sex", "", "defendant sex as the portal lists it (Male, Female)")
	interval := flag.Int("interval", 0, "seconds between checks (default 600)")
	dataFile := flag.String("data-file", "", "state file path (default derived from the name)")
	once := flag.Bool("once", false, "run a single check and exit")
	all := flag.Bool("all", false, "stateless single check: report everything, read and write no state file")
	noDownloads := flag.Bool("no-downloads", false, "skip document downloads")
	documentsDir := flag.String("documents-dir", "", "directory for downloaded documents")
	caseFilter := flag.String("case", "", "monitor only this case number")
	statusAddr := flag.String("status-addr", "", "serve /status and /healthz on this address")
	headful := flag.Bool("headful", false, "run Chrome with a visible window")
	remoteBrowser := flag.String("remote-browser", "", "WebSocket URL of an external Chrome")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	oneShot := *once || *all

	cfgs, err := loadConfigs(configPaths, oneShot)
	if err != nil {
		logger.Error("deukermon: config", "error", err)
		os.Exit(1)
	}

	// Flags override file config.
	for _, cfg := range cfgs {
		if *first != "" {
			cfg.DefendantFirstName = *first
		}
		if *last != "" {
			cfg.DefendantLastName = *last
		}
		if *sex != "" {
			cfg.DefendantSex = *sex
		}
		if *interval > 0 {
			cfg.PollIntervalSeconds = *interval
		}
		if *dataFile != "" {
			cfg.DataFile = *dataFile
		}
		if *noDownloads {
			off := false
			cfg.DownloadDocuments = &off
		}
		if *documentsDir != "" {
			cfg.DocumentsDir = *documentsDir
		}
		if *caseFilter != "" {
			cfg.FilterCaseNumber = *caseFilter
		}
		if *statusAddr != "" {
			cfg.StatusAddr = *statusAddr
		}
		if *headful {
			cfg.Headful = true
		}
		if *remoteBrowser != "" {
			cfg.RemoteBrowserURL = *remoteBrowser
		}

		if err := cfg.Normalize(logger); err != nil {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, "usage: deukermon -first <name> -last <name> [-sex Male|Female] | -config <file>")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failed := false
	for _, cfg := range cfgs {
		if ctx.Err() != nil {
			break
		}
		if err := run(ctx, logger, cfg, oneShot, *all); err != nil {
			logger.Error("deukermon: monitor failed",
				"defendant", cfg.DefendantLastName, "error", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

// loadConfigs maps config files to monitor configs. In one-shot mode each
// file stands alone: one defendant per file, checked sequentially with its
// own state file and notifications. In continuous mode the files merge in
// order, later values overriding earlier ones.
func loadConfigs(paths []string, oneShot bool) ([]*config.Config, error) {
	if !oneShot || len(paths) <= 1 {
		cfg, err := config.Load(paths...)
		if err != nil {
			return nil, err
		}
		return []*config.Config{cfg}, nil
	}
	cfgs := make([]*config.Config, 0, len(paths))
	for _, path := range paths {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, once, stateless bool) error {
	mgr := browser.NewManager(browser.Config{
		RemoteURL:   cfg.RemoteBrowserURL,
		Headful:     cfg.Headful,
		DownloadDir: cfg.DocumentsDir,
		Logger:      logger,
	})
	if err := mgr.Start(); err != nil {
		return err
	}
	defer mgr.Close()

	src, fetch, err := buildSession(mgr, logger, cfg)
	if err != nil {
		return err
	}

	store := state.NewStore(cfg.DataFile, stateless, logger)

	var history *state.History
	if cfg.HistoryFile != "" {
		history, err = state.OpenHistory(cfg.HistoryFile)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer history.Close()
	}

	query := portal.Query{
		FirstName:  cfg.DefendantFirstName,
		LastName:   cfg.DefendantLastName,
		Sex:        cfg.DefendantSex,
		CaseFilter: cfg.FilterCaseNumber,
	}

	mcfg := monitor.Config{
		Query:        query,
		PollInterval: cfg.PollInterval(),
		Logger:       logger,
		Recover: func() (monitor.Source, monitor.Fetcher, error) {
			if err := mgr.Restart(); err != nil {
				return nil, nil, err
			}
			return buildSession(mgr, logger, cfg)
		},
	}

	if cfg.StatusAddr != "" {
		name := strings.TrimSpace(cfg.DefendantFirstName + " " + cfg.DefendantLastName)
		tracker := status.NewTracker(name)
		go func() {
			if err := status.Serve(ctx, cfg.StatusAddr, tracker, logger); err != nil {
				logger.Error("status endpoint failed", "error", err)
			}
		}()
		mcfg.OnCycle = func(res *monitor.CycleResult) {
			tracker.Record(len(res.NewCharges), len(res.NewDockets),
				len(res.Downloaded), res.Errors, res.FinishedAt)
		}
	}

	m := monitor.New(src, fetch, store, buildAlerter(logger, cfg), history, mcfg)
	if once {
		return m.RunOnce(ctx)
	}
	return m.Run(ctx)
}

// buildSession opens a fresh stealth page and wires the portal flows and
// the downloader to it. Also the recovery path after a browser restart.
func buildSession(mgr *browser.Manager, logger *slog.Logger, cfg *config.Config) (monitor.Source, monitor.Fetcher, error) {
	sess, err := mgr.Session()
	if err != nil {
		return nil, nil, err
	}

	src := portal.New(sess, portal.Config{Logger: logger})

	var fetch monitor.Fetcher
	if cfg.Downloads() {
		fetch = download.New(sess, download.Config{
			Dir:      cfg.DocumentsDir,
			Validate: true,
			Logger:   logger,
		})
	}
	return src, fetch, nil
}

// buildAlerter assembles the notification channels the config names.
// Credential problems disable the channel with a warning rather than
// aborting the monitor.
func buildAlerter(logger *slog.Logger, cfg *config.Config) monitor.Alerter {
	var channels []notify.Notifier

	if cfg.NotificationSMS != "" {
		smsCfg, err := notify.SMSFromEnv(cfg.NotificationSMS)
		if err != nil {
			logger.Warn("sms notifications disabled", "error", err)
		} else {
			channels = append(channels, notify.NewSMS(smsCfg, logger))
		}
	}

	if cfg.NotificationEmail != "" {
		emailCfg, err := notify.EmailFromEnv(cfg.NotificationEmail)
		if err != nil {
			logger.Warn("email notifications disabled", "error", err)
		} else {
			channels = append(channels, notify.NewEmail(emailCfg, logger))
		}
	}

	if cfg.WebhookURL != "" {
		channels = append(channels, notify.NewWebhook(notify.WebhookConfig{
			URL:     cfg.WebhookURL,
			Secret:  cfg.WebhookSecret,
			Timeout: 30 * time.Second,
		}, logger))
	}

	if len(channels) == 0 {
		logger.Info("no notification channels configured, alerts go to the log only")
		return nil
	}
	return notify.NewDispatcher(logger, channels...)
}
