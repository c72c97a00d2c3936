// Package monitor orchestrates the check cycle: reposition on the portal,
// read every case, classify rows against the persisted seen-sets, fetch
// attachments, persist, and report.
package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/reveller/deuker-monitor/docket"
	"github.com/reveller/deuker-monitor/notify"
	"github.com/reveller/deuker-monitor/portal"
	"github.com/reveller/deuker-monitor/state"
)

// Source is the portal capability set the cycle consumes.
type Source interface {
	CaseList(ctx context.Context, q portal.Query) ([]docket.CaseSummary, error)
	Reopen(ctx context.Context, q portal.Query) error
	CaseDetails(ctx context.Context, cs docket.CaseSummary) ([]docket.Charge, []docket.DocketEntry, error)
	ExpandDockets(ctx context.Context)
	ExtraDocuments(ctx context.Context, caseNumber string) ([]portal.ExtraDocument, bool, error)
	ReopenExtraDocuments(ctx context.Context)
}

// Fetcher retrieves documents. A nil Fetcher disables downloads.
type Fetcher interface {
	DocketDocument(ctx context.Context, entry *docket.DocketEntry) (string, error)
	ExtraDocument(ctx context.Context, doc portal.ExtraDocument) (string, error)
}

// Alerter delivers a cycle's alert.
type Alerter interface {
	Dispatch(ctx context.Context, a notify.Alert) error
}

// Config configures the monitor.
type Config struct {
	Query portal.Query
	// PollInterval is the pause between cycles. Default: 10m.
	PollInterval time.Duration
	// SnapshotDir receives new_entries_*.json files. Default: ".".
	SnapshotDir string
	Logger      *slog.Logger
	// Out receives the human-readable cycle summary. Default: stdout.
	Out io.Writer
	Now func() time.Time
	// Pause overrides the politeness delay between cases (tests).
	Pause func(ctx context.Context, d time.Duration)
	// Recover rebuilds the portal source and fetcher after a failed cycle,
	// typically by restarting the browser. Nil means keep the current ones.
	Recover func() (Source, Fetcher, error)
	// OnCycle observes every reported cycle (status endpoint).
	OnCycle func(res *CycleResult)
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Minute
	}
	if c.SnapshotDir == "" {
		c.SnapshotDir = "."
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Out == nil {
		c.Out = os.Stdout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Pause == nil {
		c.Pause = func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		}
	}
}

// CaseBreakdown is one case's line in the cycle summary.
type CaseBreakdown struct {
	CaseNumber  string
	ChargeCount int
	DocketCount int
	NewCharges  int
	NewDockets  int
	FirstCharge string
}

// CycleResult is one cycle's outcome.
type CycleResult struct {
	Iteration    int
	StartedAt    time.Time
	FinishedAt   time.Time
	TotalCases   int
	TotalCharges int
	TotalDockets int
	NewCharges   []docket.Charge
	NewDockets   []docket.DocketEntry
	Downloaded   []string
	Breakdown    []CaseBreakdown
	Errors       int
}

// Monitor runs check cycles for one defendant.
type Monitor struct {
	src     Source
	fetch   Fetcher
	store   *state.Store
	st      *state.State
	alerts  Alerter
	history *state.History
	cfg     Config
	log     *slog.Logger

	iteration int
}

// New creates a Monitor and loads the defendant's persisted state. fetch
// may be nil (downloads disabled); alerts may be nil (log only); history
// may be nil (no cycle log).
func New(src Source, fetch Fetcher, store *state.Store, alerts Alerter, history *state.History, cfg Config) *Monitor {
	cfg.defaults()
	return &Monitor{
		src:     src,
		fetch:   fetch,
		store:   store,
		st:      store.Load(),
		alerts:  alerts,
		history: history,
		cfg:     cfg,
		log:     cfg.Logger,
	}
}

// defendant is the persisted identity block.
func (m *Monitor) defendant() state.Defendant {
	return state.Defendant{
		FirstName: m.cfg.Query.FirstName,
		LastName:  m.cfg.Query.LastName,
		Sex:       m.cfg.Query.Sex,
	}
}

// RunCycle performs one full check and persists the updated state. The
// returned result is reported separately (see RunOnce and Run) so callers
// can decide what a standalone check prints.
func (m *Monitor) RunCycle(ctx context.Context) (*CycleResult, error) {
	m.iteration++
	res := &CycleResult{Iteration: m.iteration, StartedAt: m.cfg.Now()}

	m.log.Info("starting check", "iteration", m.iteration,
		"defendant", m.cfg.Query.DisplayName())

	cases, err := m.src.CaseList(ctx, m.cfg.Query)
	if err != nil {
		return nil, fmt.Errorf("monitor: case list: %w", err)
	}
	res.TotalCases = len(cases)
	if len(cases) == 0 {
		m.log.Warn("no cases found", "defendant", m.cfg.Query.DisplayName(),
			"filter", m.cfg.Query.CaseFilter)
	}

	for i, cs := range cases {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		m.log.Info("checking case", "case", cs.CaseNumber,
			"position", fmt.Sprintf("%d/%d", i+1, len(cases)))

		// The detail view replaces the case list; reposition by searching
		// again for every case after the first.
		if i > 0 {
			if err := m.src.Reopen(ctx, m.cfg.Query); err != nil {
				m.log.Error("reposition failed, skipping case", "case", cs.CaseNumber, "error", err)
				res.Errors++
				continue
			}
		}

		charges, dockets, err := m.src.CaseDetails(ctx, cs)
		if err != nil {
			m.log.Error("case details failed", "case", cs.CaseNumber, "error", err)
			res.Errors++
			continue
		}

		if m.fetch != nil {
			res.Downloaded = append(res.Downloaded, m.downloadDocuments(ctx, cs.CaseNumber, dockets, res)...)
		}

		bd := m.classify(cs, charges, dockets, res)
		res.Breakdown = append(res.Breakdown, bd)

		if i < len(cases)-1 {
			m.cfg.Pause(ctx, time.Second)
		}
	}

	if err := m.store.Save(m.st, m.defendant()); err != nil {
		m.log.Error("state save failed", "error", err)
		res.Errors++
	}

	res.FinishedAt = m.cfg.Now()
	return res, nil
}

// classify splits a case's rows into new and known, updating the seen-sets
// and the persisted case record. A row is marked seen the moment it is
// classified as new; even if the rest of the cycle fails, it will not be
// re-reported.
func (m *Monitor) classify(cs docket.CaseSummary, charges []docket.Charge, dockets []docket.DocketEntry, res *CycleResult) CaseBreakdown {
	bd := CaseBreakdown{
		CaseNumber:  cs.CaseNumber,
		ChargeCount: len(charges),
		DocketCount: len(dockets),
		FirstCharge: cs.FirstCharge,
	}

	for _, c := range charges {
		fp := c.Fingerprint()
		if m.st.SeenCharges[fp] {
			continue
		}
		m.st.SeenCharges[fp] = true
		res.NewCharges = append(res.NewCharges, c)
		bd.NewCharges++
		m.log.Info("new charge", "case", c.CaseNumber,
			"seq", c.SequenceNumber, "charge", c.ChargeDescription)
	}

	for _, d := range dockets {
		fp := d.Fingerprint()
		if m.st.SeenDockets[fp] {
			continue
		}
		m.st.SeenDockets[fp] = true
		res.NewDockets = append(res.NewDockets, d)
		bd.NewDockets++
		m.log.Info("new docket entry", "case", d.CaseNumber,
			"din", d.DIN, "docket", d.DocketDescription)
	}

	res.TotalCharges += len(charges)
	res.TotalDockets += len(dockets)

	m.st.CaseInfo[cs.CaseNumber] = docket.CaseInfo{
		CaseNumber:  cs.CaseNumber,
		FiledDate:   cs.FiledDate,
		ClosedDate:  cs.ClosedDate,
		FirstCharge: cs.FirstCharge,
		BalanceDue:  cs.BalanceDue,
		ChargeCount: len(charges),
		DocketCount: len(dockets),
		LastChecked: m.cfg.Now().Format(time.RFC3339),
	}
	return bd
}

// downloadDocuments fetches every not-yet-retrieved attachment for one
// case: docket rows flagged with a view control, then the Extra Documents
// tab when present. A document enters the seen-set only after a successful
// download, so failures retry on the next cycle.
func (m *Monitor) downloadDocuments(ctx context.Context, caseNumber string, dockets []docket.DocketEntry, res *CycleResult) []string {
	var files []string

	pending := false
	for i := range dockets {
		if dockets[i].HasDocument && !m.st.SeenDocuments[dockets[i].DocumentID()] {
			pending = true
			break
		}
	}
	if pending {
		m.src.ExpandDockets(ctx)
		for i := range dockets {
			d := &dockets[i]
			if !d.HasDocument {
				continue
			}
			id := d.DocumentID()
			if m.st.SeenDocuments[id] {
				continue
			}
			name, err := m.fetch.DocketDocument(ctx, d)
			if err != nil {
				m.log.Error("document download failed",
					"case", caseNumber, "din", d.DIN, "error", err)
				res.Errors++
				continue
			}
			m.st.SeenDocuments[id] = true
			files = append(files, name)
		}
	}

	docs, present, err := m.src.ExtraDocuments(ctx, caseNumber)
	if err != nil {
		m.log.Error("extra documents listing failed", "case", caseNumber, "error", err)
		res.Errors++
		return files
	}
	if !present {
		return files
	}
	for _, doc := range docs {
		id := docket.ExtraDocumentID(doc.CaseNumber, doc.Description)
		if m.st.SeenDocuments[id] {
			continue
		}
		name, err := m.fetch.ExtraDocument(ctx, doc)
		// The viewer detour left the tab whether or not the transfer
		// finished; bring the listing back for the next row.
		m.src.ReopenExtraDocuments(ctx)
		if err != nil {
			m.log.Error("extra document download failed",
				"case", caseNumber, "document", doc.Description, "error", err)
			res.Errors++
			continue
		}
		m.st.SeenDocuments[id] = true
		files = append(files, name)
	}
	return files
}
