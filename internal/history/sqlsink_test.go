package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/dispatchr/internal/registry"
)

func TestSQLSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	sink, err := NewSQLSinkFromDSN(path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })
	ctx := context.Background()

	rec := registry.ProcessRecord{
		ID:        uuid.NewString(),
		SourceID:  42,
		State:     registry.StateRunning,
		Kind:      registry.KindRegular,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := sink.Send(ctx, Event{Type: EventCreate, OccurredAt: time.Now().UTC(), Record: rec}); err != nil {
		t.Fatalf("send create: %v", err)
	}
	if err := sink.Send(ctx, Event{Type: EventTransition, OccurredAt: time.Now().UTC(), Record: rec, From: registry.StatePending}); err != nil {
		t.Fatalf("send transition: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open check db: %v", err)
	}
	defer func() { _ = db.Close() }()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM dispatch_history WHERE uuid=?;`, rec.ID).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 events, got %d", n)
	}
	var prev sql.NullString
	if err := db.QueryRow(`SELECT prev_state FROM dispatch_history WHERE event='transition' AND uuid=?;`, rec.ID).Scan(&prev); err != nil {
		t.Fatalf("prev_state: %v", err)
	}
	if !prev.Valid || prev.String != "pending" {
		t.Fatalf("unexpected prev_state: %+v", prev)
	}
}

func TestSQLSinkEmptyDSN(t *testing.T) {
	if _, err := NewSQLSinkFromDSN(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
