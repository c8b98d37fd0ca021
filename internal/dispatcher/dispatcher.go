// Package dispatcher prepares the process schedule and hands pending
// process records out to supervisors. All persistent state lives in the
// registry store; the dispatcher itself only coordinates.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/dispatchr/internal/history"
	"github.com/loykin/dispatchr/internal/metrics"
	"github.com/loykin/dispatchr/internal/registry"
	"github.com/loykin/dispatchr/internal/store"
)

// DefaultTimezone is the calendar used for the one-process-per-day rule.
const DefaultTimezone = "Europe/Berlin"

// assignBatchLimit caps how many pending records one Assign call scans.
const assignBatchLimit = 10

// SourceCatalog lists the sources the dispatcher should schedule work for.
type SourceCatalog interface {
	ActiveSourceIDs(ctx context.Context) ([]uint32, error)
}

// Config wires a Dispatcher. Store and Sources are required for
// PrepareSchedule; Assign needs only the store.
type Config struct {
	Store    store.Store
	Sources  SourceCatalog
	Logger   *slog.Logger
	History  history.Sink // optional
	Timezone string       // defaults to DefaultTimezone
}

type Dispatcher struct {
	store   store.Store
	sources SourceCatalog
	locks   *keyedMutex
	log     *slog.Logger
	hist    history.Sink
	loc     *time.Location

	now func() time.Time
}

func New(cfg Config) (*Dispatcher, error) {
	if cfg.Store == nil {
		return nil, errors.New("dispatcher: store is required")
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: load timezone %q: %w", tz, err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		store:   cfg.Store,
		sources: cfg.Sources,
		locks:   newKeyedMutex(),
		log:     log,
		hist:    cfg.History,
		loc:     loc,
		now:     time.Now,
	}, nil
}

// AssignedProcess is the payload handed to a supervisor that claimed a
// process. CreatedAt is unix milliseconds.
type AssignedProcess struct {
	ID           string         `json:"id"`
	SourceID     uint32         `json:"source_id"`
	State        registry.State `json:"state"`
	Kind         registry.Kind  `json:"type"`
	CreatedAt    int64          `json:"created_at"`
	SupervisorID string         `json:"supervisor_id"`
}

// PrepareSchedule walks the active sources and creates a pending process
// for every source that has no unfinished process and no process finished
// today. Errors on individual sources are logged and do not stop the walk.
func (d *Dispatcher) PrepareSchedule(ctx context.Context) error {
	if d.sources == nil {
		return errors.New("dispatcher: no source catalog configured")
	}
	d.log.Info("preparing schedule")
	ids, err := d.sources.ActiveSourceIDs(ctx)
	if err != nil {
		return fmt.Errorf("dispatcher: list active sources: %w", err)
	}
	for _, sourceID := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		unlock := d.locks.Lock(sourceID)
		err := d.prepareSource(ctx, sourceID)
		unlock()
		if err != nil {
			d.log.Error("prepare source failed", "source_id", sourceID, "error", err)
		}
	}
	return nil
}

func (d *Dispatcher) prepareSource(ctx context.Context, sourceID uint32) error {
	latest, err := d.store.LatestBySource(ctx, sourceID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// first process for this source
	case err != nil:
		return err
	default:
		if !latest.State.Terminal() {
			d.log.Debug("unfinished process present", "source_id", sourceID, "state", latest.State)
			return nil
		}
		now := d.now().In(d.loc)
		if sameDay(now, latest.CreatedAt.In(d.loc)) {
			d.log.Debug("process already finished today", "source_id", sourceID, "date", now.Format(time.DateOnly))
			return nil
		}
	}

	rec, err := d.store.Create(ctx, sourceID, registry.KindRegular)
	if err != nil {
		return err
	}
	metrics.IncCreate()
	d.emit(ctx, history.Event{Type: history.EventCreate, OccurredAt: time.Now().UTC(), Record: rec})
	d.log.Info("created regular process", "id", rec.ID, "source_id", sourceID)
	return nil
}

// Assign claims the oldest pending process for a supervisor by moving it to
// running. Returns nil when nothing is claimable. Concurrent supervisors
// racing for the same record are resolved by the store's per-id
// compare-and-swap; a lost claim simply moves to the next candidate.
func (d *Dispatcher) Assign(ctx context.Context, supervisorID uuid.UUID) (*AssignedProcess, error) {
	candidates, err := d.store.ListByState(ctx, registry.StatePending, assignBatchLimit)
	if err != nil {
		return nil, err
	}
	for _, cand := range candidates {
		unlock := d.locks.Lock(cand.SourceID)
		rec, err := d.store.UpdateState(ctx, cand.ID, registry.StateRunning)
		unlock()
		switch {
		case err == nil:
			metrics.IncAssign()
			d.emit(ctx, history.Event{Type: history.EventTransition, OccurredAt: time.Now().UTC(), Record: rec, From: registry.StatePending})
			d.log.Info("assigned process", "id", rec.ID, "source_id", rec.SourceID, "supervisor_id", supervisorID)
			return &AssignedProcess{
				ID:           rec.ID,
				SourceID:     rec.SourceID,
				State:        rec.State,
				Kind:         rec.Kind,
				CreatedAt:    rec.CreatedAt.UnixMilli(),
				SupervisorID: supervisorID.String(),
			}, nil
		case errors.Is(err, registry.ErrIllegalTransition),
			errors.Is(err, store.ErrNotFound),
			errors.Is(err, store.ErrConflict):
			// lost the race for this record; try the next one
			continue
		default:
			return nil, err
		}
	}
	d.log.Info("no claimable processes")
	return nil, nil
}

// Run executes PrepareSchedule on a fixed interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := d.PrepareSchedule(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.Error("schedule cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			d.log.Info("schedule loop stopped")
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) emit(ctx context.Context, e history.Event) {
	if d.hist == nil {
		return
	}
	if err := d.hist.Send(ctx, e); err != nil {
		d.log.Warn("history sink failed", "error", err)
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
