package source

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/loykin/dispatchr/internal/registry"
	"github.com/loykin/dispatchr/internal/store"
)

func TestRecordsForSourceSnapshot(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	b := NewBinding(st)

	var want []string
	for i := 0; i < 3; i++ {
		rec, err := st.Create(ctx, 42, registry.KindRegular)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		want = append(want, rec.ID)
	}
	if _, err := st.Create(ctx, 7, registry.KindRegular); err != nil {
		t.Fatalf("create other source: %v", err)
	}

	seq, err := b.RecordsForSource(ctx, 42)
	if err != nil {
		t.Fatalf("records for source: %v", err)
	}

	// a record created after the snapshot must not appear
	if _, err := st.Create(ctx, 42, registry.KindRegular); err != nil {
		t.Fatalf("create post-snapshot: %v", err)
	}

	var got []string
	for rec := range seq {
		if rec.SourceID != 42 {
			t.Fatalf("foreign record in sequence: %+v", rec)
		}
		got = append(got, rec.ID)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %s want %s", i, got[i], want[i])
		}
	}

	// the sequence is one-shot
	count := 0
	for range seq {
		count++
	}
	if count != 0 {
		t.Fatalf("sequence restarted: yielded %d records", count)
	}
}

func TestRecordsForSourceEarlyBreak(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	b := NewBinding(st)
	for i := 0; i < 3; i++ {
		if _, err := st.Create(ctx, 5, registry.KindRegular); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	seq, err := b.RecordsForSource(ctx, 5)
	if err != nil {
		t.Fatalf("records for source: %v", err)
	}
	count := 0
	for range seq {
		count++
		break
	}
	if count != 1 {
		t.Fatalf("expected a single yield before break, got %d", count)
	}
}

func TestCatalogActiveSourceIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.db")

	seed, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	defer func() { _ = seed.Close() }()
	stmts := []string{
		`CREATE TABLE sources(id INTEGER PRIMARY KEY, status TEXT NOT NULL);`,
		`INSERT INTO sources(id, status) VALUES (3, 'run'), (1, 'run'), (2, 'stopped');`,
	}
	for _, q := range stmts {
		if _, err := seed.Exec(q); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	cat, err := OpenCatalog(path)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { _ = cat.Close() })

	ids, err := cat.ActiveSourceIDs(context.Background())
	if err != nil {
		t.Fatalf("active source ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestCatalogRejectsOutOfRangeIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.db")

	seed, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	defer func() { _ = seed.Close() }()
	stmts := []string{
		`CREATE TABLE sources(id INTEGER PRIMARY KEY, status TEXT NOT NULL);`,
		// 2^32 does not fit the unsigned 32-bit source id
		`INSERT INTO sources(id, status) VALUES (1, 'run'), (4294967296, 'run');`,
	}
	for _, q := range stmts {
		if _, err := seed.Exec(q); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	cat, err := OpenCatalog(path)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { _ = cat.Close() })

	if _, err := cat.ActiveSourceIDs(context.Background()); err == nil {
		t.Fatalf("expected error for out-of-range source id")
	}
}

func TestOpenCatalogEmptyDSN(t *testing.T) {
	if _, err := OpenCatalog(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
