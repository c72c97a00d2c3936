package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/reveller/deuker-monitor/notify"
	"github.com/reveller/deuker-monitor/state"
)

// RunOnce performs a single cycle and reports it. A failed cycle is logged
// and reported as empty, not returned: extraction failures are recoverable
// conditions, and a one-shot run still prints its summary and records its
// history row.
func (m *Monitor) RunOnce(ctx context.Context) error {
	res, err := m.RunCycle(ctx)
	if ctx.Err() != nil {
		m.log.Info("monitor stopped")
		return nil
	}
	if err != nil {
		m.log.Error("cycle failed", "iteration", m.iteration, "error", err)
		now := m.cfg.Now()
		res = &CycleResult{
			Iteration:  m.iteration,
			StartedAt:  now,
			FinishedAt: now,
			Errors:     1,
		}
	}
	m.report(ctx, res)
	return nil
}

// Run cycles until the context is cancelled. A failed cycle does not stop
// the loop: the Recover hook (when set) rebuilds the portal session, and
// the next cycle starts after the usual interval.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("monitor started",
		"defendant", m.cfg.Query.DisplayName(),
		"interval", m.cfg.PollInterval)

	for {
		res, err := m.RunCycle(ctx)
		switch {
		case ctx.Err() != nil:
			m.log.Info("monitor stopped")
			return nil
		case err != nil:
			m.log.Error("cycle failed", "iteration", m.iteration, "error", err)
			m.recover()
		default:
			m.report(ctx, res)
		}

		next := m.cfg.Now().Add(m.cfg.PollInterval)
		m.log.Info("sleeping until next check", "next", next.Format(time.RFC3339))

		t := time.NewTimer(m.cfg.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			m.log.Info("monitor stopped")
			return nil
		case <-t.C:
		}
	}
}

func (m *Monitor) recover() {
	if m.cfg.Recover == nil {
		return
	}
	src, fetch, err := m.cfg.Recover()
	if err != nil {
		m.log.Error("session recovery failed", "error", err)
		return
	}
	m.src = src
	m.fetch = fetch
	m.log.Info("session recovered")
}

// report handles a finished cycle: snapshot file, notifications, the
// console summary, and the history row.
func (m *Monitor) report(ctx context.Context, res *CycleResult) {
	if len(res.NewCharges) > 0 || len(res.NewDockets) > 0 {
		path, err := state.WriteNewEntries(m.cfg.SnapshotDir, res.NewCharges, res.NewDockets, m.cfg.Now())
		if err != nil {
			m.log.Error("snapshot write failed", "error", err)
		} else {
			m.log.Info("saved new entries", "path", path)
		}
	} else {
		m.log.Info("no new charges or docket entries", "iteration", res.Iteration)
	}

	if m.alerts != nil {
		alert := notify.Alert{
			Defendant:  strings.TrimSpace(m.cfg.Query.FirstName + " " + m.cfg.Query.LastName),
			NewCharges: res.NewCharges,
			NewDockets: res.NewDockets,
			Downloaded: res.Downloaded,
		}
		if err := m.alerts.Dispatch(ctx, alert); err != nil {
			m.log.Error("alert dispatch incomplete", "error", err)
		}
	}

	m.printSummary(res)

	if m.history != nil {
		rec := state.CycleRecord{
			StartedAt:    res.StartedAt,
			FinishedAt:   res.FinishedAt,
			TotalCases:   res.TotalCases,
			TotalCharges: res.TotalCharges,
			TotalDockets: res.TotalDockets,
			NewCharges:   len(res.NewCharges),
			NewDockets:   len(res.NewDockets),
			NewDocuments: len(res.Downloaded),
			Errors:       res.Errors,
			OK:           res.Errors == 0,
		}
		if err := m.history.Record(ctx, rec); err != nil {
			m.log.Error("history record failed", "error", err)
		}
	}

	if m.cfg.OnCycle != nil {
		m.cfg.OnCycle(res)
	}
}

const rule = "================================================================================"

// printSummary writes the per-cycle human-readable breakdown.
func (m *Monitor) printSummary(res *CycleResult) {
	w := m.cfg.Out
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "CASE SUMMARY (check #%d)\n", res.Iteration)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Total Cases Monitored: %d\n", res.TotalCases)
	fmt.Fprintf(w, "Total Charges: %d\n", res.TotalCharges)
	fmt.Fprintf(w, "Total Docket Entries: %d\n", res.TotalDockets)
	fmt.Fprintf(w, "New Charges This Check: %d\n", len(res.NewCharges))
	fmt.Fprintf(w, "New Dockets This Check: %d\n", len(res.NewDockets))
	if len(res.Downloaded) > 0 {
		fmt.Fprintf(w, "Documents Downloaded: %d\n", len(res.Downloaded))
	}

	if len(res.Breakdown) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Per-Case Breakdown:")
		for _, bd := range res.Breakdown {
			fmt.Fprintf(w, "  %s:\n", bd.CaseNumber)
			fmt.Fprintf(w, "    Charges: %d%s\n", bd.ChargeCount, newSuffix(bd.NewCharges))
			fmt.Fprintf(w, "    Dockets: %d%s\n", bd.DocketCount, newSuffix(bd.NewDockets))
			fmt.Fprintf(w, "    First Charge: %s\n", bd.FirstCharge)
		}
	}
	fmt.Fprintln(w, rule)
}

func newSuffix(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf(" (%d NEW)", n)
}
