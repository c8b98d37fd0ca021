package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/dispatchr/internal/registry"
	"github.com/loykin/dispatchr/internal/store"
)

type fakeCatalog struct {
	ids []uint32
}

func (f *fakeCatalog) ActiveSourceIDs(_ context.Context) ([]uint32, error) {
	return f.ids, nil
}

func newTestDispatcher(t *testing.T, st store.Store, ids ...uint32) *Dispatcher {
	t.Helper()
	d, err := New(Config{Store: st, Sources: &fakeCatalog{ids: ids}, Timezone: "UTC"})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d
}

func TestPrepareScheduleCreatesForFreshSource(t *testing.T) {
	st := store.NewMemory()
	d := newTestDispatcher(t, st, 42, 7)
	ctx := context.Background()

	if err := d.PrepareSchedule(ctx); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	for _, sourceID := range []uint32{42, 7} {
		recs, err := st.ListBySource(ctx, sourceID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(recs) != 1 {
			t.Fatalf("source %d: expected 1 record, got %d", sourceID, len(recs))
		}
		if recs[0].State != registry.StatePending || recs[0].Kind != registry.KindRegular {
			t.Fatalf("unexpected record: %+v", recs[0])
		}
	}
}

func TestPrepareScheduleSkipsUnfinished(t *testing.T) {
	st := store.NewMemory()
	d := newTestDispatcher(t, st, 42)
	ctx := context.Background()

	if err := d.PrepareSchedule(ctx); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	// still pending; a second cycle must not duplicate
	if err := d.PrepareSchedule(ctx); err != nil {
		t.Fatalf("second prepare: %v", err)
	}
	recs, _ := st.ListBySource(ctx, 42)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
}

func TestPrepareScheduleSkipsFinishedToday(t *testing.T) {
	st := store.NewMemory()
	d := newTestDispatcher(t, st, 42)
	ctx := context.Background()

	rec, _ := st.Create(ctx, 42, registry.KindRegular)
	if _, err := st.UpdateState(ctx, rec.ID, registry.StateRunning); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := st.UpdateState(ctx, rec.ID, registry.StateCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := d.PrepareSchedule(ctx); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	recs, _ := st.ListBySource(ctx, 42)
	if len(recs) != 1 {
		t.Fatalf("finished-today source got a new process: %d records", len(recs))
	}
}

func TestPrepareScheduleCreatesAfterDayRollover(t *testing.T) {
	st := store.NewMemory()
	d := newTestDispatcher(t, st, 42)
	ctx := context.Background()

	rec, _ := st.Create(ctx, 42, registry.KindRegular)
	_, _ = st.UpdateState(ctx, rec.ID, registry.StateRunning)
	_, _ = st.UpdateState(ctx, rec.ID, registry.StateFailed)

	// pretend the schedule cycle runs tomorrow
	d.now = func() time.Time { return time.Now().Add(24 * time.Hour) }

	if err := d.PrepareSchedule(ctx); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	recs, _ := st.ListBySource(ctx, 42)
	if len(recs) != 2 {
		t.Fatalf("expected a fresh process after rollover, got %d records", len(recs))
	}
}

func TestAssignClaimsOldestPending(t *testing.T) {
	st := store.NewMemory()
	d := newTestDispatcher(t, st)
	ctx := context.Background()

	first, _ := st.Create(ctx, 1, registry.KindRegular)
	second, _ := st.Create(ctx, 2, registry.KindSandbox)
	supervisor := uuid.New()

	got, err := d.Assign(ctx, supervisor)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got == nil || got.ID != first.ID {
		t.Fatalf("expected oldest record %s, got %+v", first.ID, got)
	}
	if got.State != registry.StateRunning || got.SupervisorID != supervisor.String() {
		t.Fatalf("unexpected assignment: %+v", got)
	}
	if got.CreatedAt != first.CreatedAt.UnixMilli() {
		t.Fatalf("created_at not unix millis: %d", got.CreatedAt)
	}

	claimed, _ := st.Get(ctx, first.ID)
	if claimed.State != registry.StateRunning {
		t.Fatalf("claim not persisted: %s", claimed.State)
	}

	next, err := d.Assign(ctx, supervisor)
	if err != nil {
		t.Fatalf("second assign: %v", err)
	}
	if next == nil || next.ID != second.ID {
		t.Fatalf("expected %s next, got %+v", second.ID, next)
	}

	none, err := d.Assign(ctx, supervisor)
	if err != nil {
		t.Fatalf("third assign: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no claimable process, got %+v", none)
	}
}

func TestAssignConcurrentSupervisors(t *testing.T) {
	st := store.NewMemory()
	d := newTestDispatcher(t, st)
	ctx := context.Background()

	if _, err := st.Create(ctx, 1, registry.KindRegular); err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 4
	results := make(chan *AssignedProcess, workers)
	for i := 0; i < workers; i++ {
		go func() {
			got, err := d.Assign(ctx, uuid.New())
			if err != nil {
				t.Errorf("assign: %v", err)
			}
			results <- got
		}()
	}
	claimed := 0
	for i := 0; i < workers; i++ {
		if got := <-results; got != nil {
			claimed++
		}
	}
	if claimed != 1 {
		t.Fatalf("expected exactly one claim, got %d", claimed)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	st := store.NewMemory()
	d := newTestDispatcher(t, st, 9)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("run did not stop on cancel")
	}

	recs, _ := st.ListBySource(context.Background(), 9)
	if len(recs) != 1 {
		t.Fatalf("expected 1 scheduled record, got %d", len(recs))
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without store")
	}
}
