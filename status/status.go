// Package status exposes a small HTTP endpoint with lifetime counters, so
// a long-running monitor can be checked without reading its logs.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Tracker accumulates cycle outcomes.
type Tracker struct {
	mu        sync.Mutex
	defendant string
	startedAt time.Time

	cycles       int
	newCharges   int
	newDockets   int
	downloads    int
	errorsTotal  int
	lastCycleAt  time.Time
	lastCycleOK  bool
	lastNewFound time.Time
}

// NewTracker creates a tracker for one defendant.
func NewTracker(defendant string) *Tracker {
	return &Tracker{defendant: defendant, startedAt: time.Now()}
}

// Record folds one cycle's outcome into the lifetime counters.
func (t *Tracker) Record(newCharges, newDockets, downloaded, errs int, finished time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cycles++
	t.newCharges += newCharges
	t.newDockets += newDockets
	t.downloads += downloaded
	t.errorsTotal += errs
	t.lastCycleAt = finished
	t.lastCycleOK = errs == 0
	if newCharges+newDockets > 0 {
		t.lastNewFound = finished
	}
}

type payload struct {
	Defendant    string `json:"defendant"`
	StartedAt    string `json:"started_at"`
	Cycles       int    `json:"cycles"`
	NewCharges   int    `json:"new_charges_total"`
	NewDockets   int    `json:"new_dockets_total"`
	Downloads    int    `json:"documents_downloaded_total"`
	Errors       int    `json:"errors_total"`
	LastCycleAt  string `json:"last_cycle_at,omitempty"`
	LastCycleOK  bool   `json:"last_cycle_ok"`
	LastNewFound string `json:"last_new_found_at,omitempty"`
}

func (t *Tracker) snapshot() payload {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := payload{
		Defendant:   t.defendant,
		StartedAt:   t.startedAt.Format(time.RFC3339),
		Cycles:      t.cycles,
		NewCharges:  t.newCharges,
		NewDockets:  t.newDockets,
		Downloads:   t.downloads,
		Errors:      t.errorsTotal,
		LastCycleOK: t.lastCycleOK,
	}
	if !t.lastCycleAt.IsZero() {
		p.LastCycleAt = t.lastCycleAt.Format(time.RFC3339)
	}
	if !t.lastNewFound.IsZero() {
		p.LastNewFound = t.lastNewFound.Format(time.RFC3339)
	}
	return p
}

// Router builds the status HTTP routes.
func Router(t *Tracker) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(t.snapshot())
	})
	return r
}

// Serve runs the status server until the context is cancelled.
func Serve(ctx context.Context, addr string, t *Tracker, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           Router(t),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("status endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
